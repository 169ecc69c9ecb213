package snapshot

import (
	"database/sql"
	"fmt"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/events"
	"github.com/ldavies/fitsync/internal/store"
)

// Stats reports what Apply did.
type Stats struct {
	Inserted int
	Updated  int
	Restored int
	Skipped  int
}

// Apply commits a plan under the given decisions. All item mutations run in
// one transaction; on error nothing from this invocation is persisted and the
// caller should re-plan before retrying. Catalog rows are ensured up front
// (idempotently) so a failed apply never strands items without their
// exercise or unit.
//
// Absent decisions favor local state: conflicts stay local, tombstones stay
// deleted, near-duplicates are not inserted.
func Apply(st *store.Store, doc *Document, plan *Plan, decisions Decisions, restoreMode bool) (*Stats, error) {
	exerciseMap, unitMap, err := ensureCatalog(st, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrApplyFailed, err)
	}

	dayOf := make(map[string]string, len(doc.Days))
	for _, d := range doc.Days {
		dayOf[d.UUID] = d.Day
	}

	keep := decisions.KeepImportSet()
	restore := decisions.RestoreSet()
	skip := decisions.SkipInsertSet()
	legacy := decisions.InsertLegacySet()

	stats := &Stats{}
	err = st.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		buckets := make(map[string]*domain.DayBucket)

		insertItem := func(item Item, logicalID string, withExternalID bool) error {
			day := dayOf[item.BucketUUID]
			bucket, ok := buckets[day]
			if !ok {
				var err error
				bucket, err = st.Days.FindOrCreateTx(tx, day)
				if err != nil {
					return err
				}
				buckets[day] = bucket
			}

			params := store.InsertParams{
				UUID:         logicalID,
				BucketUUID:   bucket.UUID,
				ExerciseUUID: exerciseMap[item.ExerciseUUID],
				UnitUUID:     unitMap[item.UnitUUID],
				Amount:       item.Amount,
				Enjoyment:    item.Enjoyment,
				Intensity:    item.Intensity,
				Imported:     item.Imported,
				CreatedAt:    item.CreatedAt,
				ModifiedAt:   item.ModifiedAt,
			}
			if withExternalID && item.ExternalID != "" {
				externalID := item.ExternalID
				params.ExternalID = &externalID
			}
			if item.Note != "" {
				note := item.Note
				params.Note = &note
			}
			_, err := st.Items.InsertTx(tx, ew, params)
			return err
		}

		for _, c := range plan.IdentityConflicts {
			if !keep[c.Key] {
				stats.Skipped++
				continue
			}
			fields := map[string]interface{}{
				"exercise_uuid": exerciseMap[c.Incoming.ExerciseUUID],
				"unit_uuid":     unitMap[c.Incoming.UnitUUID],
				"amount":        c.Incoming.Amount,
				"enjoyment":     c.Incoming.Enjoyment,
				"intensity":     c.Incoming.Intensity,
				"modified_at":   store.FormatTime(c.Incoming.ModifiedAt),
			}
			if c.Incoming.Note != "" {
				fields["note"] = c.Incoming.Note
			} else {
				fields["note"] = nil
			}
			if err := st.Items.UpdateFieldsTx(tx, c.Local.Item.UUID, fields); err != nil {
				return err
			}
			stats.Updated++
		}

		for _, c := range plan.TombstoneConflicts {
			if !restoreMode && !restore[c.Key] {
				stats.Skipped++
				continue
			}
			// Clearing the tombstone alone is not enough: the key set
			// mirror may still carry it, and only a seen key outranks a
			// mirrored tombstone on the next sync cycle.
			if _, err := tx.Exec(`DELETE FROM deleted_keys WHERE external_id = ?`, c.Incoming.ExternalID); err != nil {
				return fmt.Errorf("failed to clear tombstone: %w", err)
			}
			if _, err := tx.Exec(`
				INSERT INTO seen_keys (external_id) VALUES (?)
				ON CONFLICT(external_id) DO NOTHING
			`, c.Incoming.ExternalID); err != nil {
				return fmt.Errorf("failed to mark restored key seen: %w", err)
			}
			if err := insertItem(c.Incoming, c.Incoming.LogicalID, true); err != nil {
				return err
			}
			stats.Restored++
		}

		// Force-inserted twins get a fresh UUID and no external ID: the
		// original keeps both identities.
		for _, n := range plan.NearDuplicates {
			if !legacy[n.Key] {
				stats.Skipped++
				continue
			}
			if err := insertItem(n.Incoming, "", false); err != nil {
				return err
			}
			stats.Inserted++
		}
		for _, e := range plan.AlreadyExists {
			if !legacy[e.Key] {
				stats.Skipped++
				continue
			}
			if err := insertItem(e.Incoming, "", false); err != nil {
				return err
			}
			stats.Inserted++
		}

		for _, ins := range plan.Inserts {
			if skip[ins.Key] {
				stats.Skipped++
				continue
			}
			if err := insertItem(ins.Incoming, ins.Incoming.LogicalID, true); err != nil {
				return err
			}
			stats.Inserted++
		}

		return ew.LogImportApplied(tx, stats.Inserted, stats.Updated, stats.Restored, stats.Skipped)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrApplyFailed, err)
	}
	return stats, nil
}

// ensureCatalog maps snapshot catalog UUIDs onto local rows, creating any
// that are missing. Matching is by name, so snapshots restore cleanly across
// installs with different catalog UUIDs.
func ensureCatalog(st *store.Store, doc *Document) (exerciseMap, unitMap map[string]string, err error) {
	unitMap = make(map[string]string, len(doc.Units))
	for _, u := range doc.Units {
		local, err := st.Catalog.EnsureUnit(u.Name, domain.UnitKind(u.Kind))
		if err != nil {
			return nil, nil, err
		}
		unitMap[u.UUID] = local.UUID
	}

	exerciseMap = make(map[string]string, len(doc.Exercises))
	for _, e := range doc.Exercises {
		var defaultUnit *string
		if e.DefaultUnitUUID != "" {
			if localUnit, ok := unitMap[e.DefaultUnitUUID]; ok {
				defaultUnit = &localUnit
			}
		}
		local, err := st.Catalog.EnsureExercise(e.Name, e.Category, defaultUnit)
		if err != nil {
			return nil, nil, err
		}
		exerciseMap[e.UUID] = local.UUID
	}
	return exerciseMap, unitMap, nil
}
