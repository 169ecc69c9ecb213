package snapshot

import (
	"fmt"
	"time"

	"github.com/ldavies/fitsync/internal/store"
)

// Export builds a snapshot document from the current store contents.
func Export(st *store.Store, now time.Time) (*Document, error) {
	doc := &Document{
		SchemaVersion: SchemaVersion,
		ExportedAt:    now,
	}

	buckets, err := st.Days.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to export day buckets: %w", err)
	}
	for _, b := range buckets {
		doc.Days = append(doc.Days, Day{
			UUID:       b.UUID,
			Day:        b.Day,
			CreatedAt:  b.CreatedAt,
			ModifiedAt: b.ModifiedAt,
		})
	}

	items, err := st.Items.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to export items: %w", err)
	}
	for _, it := range items {
		item := Item{
			LogicalID:    it.UUID,
			BucketUUID:   it.BucketUUID,
			ExerciseUUID: it.ExerciseUUID,
			UnitUUID:     it.UnitUUID,
			Amount:       it.Amount,
			Enjoyment:    it.Enjoyment,
			Intensity:    it.Intensity,
			Imported:     it.Imported,
			SortIndex:    it.SortIndex,
			CreatedAt:    it.CreatedAt,
			ModifiedAt:   it.ModifiedAt,
		}
		if it.ExternalID != nil {
			item.ExternalID = *it.ExternalID
		}
		if it.Note != nil {
			item.Note = *it.Note
		}
		doc.Items = append(doc.Items, item)
	}

	exercises, err := st.Catalog.ListExercises()
	if err != nil {
		return nil, fmt.Errorf("failed to export exercises: %w", err)
	}
	for _, e := range exercises {
		ex := Exercise{UUID: e.UUID, Name: e.Name, Category: e.Category}
		if e.DefaultUnitUUID != nil {
			ex.DefaultUnitUUID = *e.DefaultUnitUUID
		}
		doc.Exercises = append(doc.Exercises, ex)
	}

	units, err := st.Catalog.ListUnits()
	if err != nil {
		return nil, fmt.Errorf("failed to export units: %w", err)
	}
	for _, u := range units {
		doc.Units = append(doc.Units, Unit{UUID: u.UUID, Name: u.Name, Kind: string(u.Kind)})
	}

	rows, err := st.DB().Query(`SELECT external_id FROM deleted_keys ORDER BY external_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to export tombstones: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		doc.Deleted = append(doc.Deleted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}
