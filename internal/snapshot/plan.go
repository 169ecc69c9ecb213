package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/store"
)

// LocalItem is a local activity item joined with the names the planner
// compares on.
type LocalItem struct {
	Item         domain.ActivityItem
	Day          string
	ExerciseName string
	UnitName     string
}

// LocalState is an in-memory view of the store. The planner works entirely
// off this view, so planning never touches the database.
type LocalState struct {
	ByLogicalID  map[string]*LocalItem
	ByExternalID map[string]*LocalItem
	ByFuzzyKey   map[string]*LocalItem
	Deleted      map[string]bool
}

// LoadLocal reads the store into a LocalState for planning.
func LoadLocal(st *store.Store) (*LocalState, error) {
	state := &LocalState{
		ByLogicalID:  make(map[string]*LocalItem),
		ByExternalID: make(map[string]*LocalItem),
		ByFuzzyKey:   make(map[string]*LocalItem),
		Deleted:      make(map[string]bool),
	}

	buckets, err := st.Days.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load day buckets: %w", err)
	}
	days := make(map[string]string, len(buckets))
	for _, b := range buckets {
		days[b.UUID] = b.Day
	}

	exercises, err := st.Catalog.ListExercises()
	if err != nil {
		return nil, fmt.Errorf("failed to load exercises: %w", err)
	}
	exerciseNames := make(map[string]string, len(exercises))
	for _, e := range exercises {
		exerciseNames[e.UUID] = e.Name
	}

	units, err := st.Catalog.ListUnits()
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	unitNames := make(map[string]string, len(units))
	for _, u := range units {
		unitNames[u.UUID] = u.Name
	}

	items, err := st.Items.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	for i := range items {
		it := items[i]
		local := &LocalItem{
			Item:         it,
			Day:          days[it.BucketUUID],
			ExerciseName: exerciseNames[it.ExerciseUUID],
			UnitName:     unitNames[it.UnitUUID],
		}
		state.ByLogicalID[it.UUID] = local
		if it.HasExternalID() {
			state.ByExternalID[*it.ExternalID] = local
		}
		fuzzy := FuzzyKey(local.ExerciseName, local.UnitName, it.Amount, it.Enjoyment, it.Intensity, it.CreatedAt)
		if _, taken := state.ByFuzzyKey[fuzzy]; !taken {
			state.ByFuzzyKey[fuzzy] = local
		}
	}

	rows, err := st.DB().Query(`SELECT external_id FROM deleted_keys`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tombstones: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		state.Deleted[id] = true
	}
	return state, rows.Err()
}

// PlanImport classifies every snapshot item against local state. It mutates
// nothing; Apply consumes the result.
func PlanImport(doc *Document, local *LocalState) (*Plan, error) {
	exerciseNames := make(map[string]string, len(doc.Exercises))
	for _, e := range doc.Exercises {
		exerciseNames[e.UUID] = e.Name
	}
	unitNames := make(map[string]string, len(doc.Units))
	for _, u := range doc.Units {
		unitNames[u.UUID] = u.Name
	}

	plan := &Plan{}
	for _, item := range doc.Items {
		exerciseName, ok := exerciseNames[item.ExerciseUUID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s references unknown exercise %s",
				domain.ErrSnapshotMalformed, item.LogicalID, item.ExerciseUUID)
		}
		unitName, ok := unitNames[item.UnitUUID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s references unknown unit %s",
				domain.ErrSnapshotMalformed, item.LogicalID, item.UnitUUID)
		}
		fuzzy := FuzzyKey(exerciseName, unitName, item.Amount, item.Enjoyment, item.Intensity, item.CreatedAt)

		// Stable identity first: logical ID, then provider ID.
		match, key := local.ByLogicalID[item.LogicalID], LogicalKey(item.LogicalID)
		if match == nil && item.ExternalID != "" {
			match, key = local.ByExternalID[item.ExternalID], ExternalKey(item.ExternalID)
		}
		if match != nil {
			if contentEqual(item, exerciseName, unitName, match) {
				plan.AlreadyExists = append(plan.AlreadyExists, Existing{
					Key: LegacyKey(fuzzy), Incoming: item, Local: *match,
				})
			} else {
				plan.IdentityConflicts = append(plan.IdentityConflicts, IdentityConflict{
					Key:      key,
					Incoming: item,
					Local:    *match,
					Newer:    newerVerdict(item.ModifiedAt, match.Item.ModifiedAt),
				})
			}
			continue
		}

		if item.ExternalID != "" && local.Deleted[item.ExternalID] {
			plan.TombstoneConflicts = append(plan.TombstoneConflicts, TombstoneConflict{
				Key: ExternalKey(item.ExternalID), Incoming: item,
			})
			continue
		}

		if twin := local.ByFuzzyKey[fuzzy]; twin != nil {
			if contentEqual(item, exerciseName, unitName, twin) {
				plan.AlreadyExists = append(plan.AlreadyExists, Existing{
					Key: LegacyKey(fuzzy), Incoming: item, Local: *twin,
				})
			} else {
				plan.NearDuplicates = append(plan.NearDuplicates, NearDuplicate{
					Key: LegacyKey(fuzzy), Incoming: item, Local: *twin,
				})
			}
			continue
		}

		plan.Inserts = append(plan.Inserts, Insert{
			Key: LogicalKey(item.LogicalID), Incoming: item,
		})
	}
	return plan, nil
}

// contentEqual compares a snapshot item against a local item on the fields a
// user would notice, ignoring identifiers and sort position.
func contentEqual(item Item, exerciseName, unitName string, local *LocalItem) bool {
	note := ""
	if local.Item.Note != nil {
		note = *local.Item.Note
	}
	return fmt.Sprintf("%.3f", item.Amount) == fmt.Sprintf("%.3f", local.Item.Amount) &&
		item.Enjoyment == local.Item.Enjoyment &&
		item.Intensity == local.Item.Intensity &&
		item.Note == note &&
		strings.EqualFold(strings.TrimSpace(exerciseName), strings.TrimSpace(local.ExerciseName)) &&
		strings.EqualFold(strings.TrimSpace(unitName), strings.TrimSpace(local.UnitName))
}

// newerVerdict compares modification times at second precision; ties mean
// neither side wins.
func newerVerdict(incoming, local time.Time) Verdict {
	a := incoming.UTC().Truncate(time.Second)
	b := local.UTC().Truncate(time.Second)
	switch {
	case a.After(b):
		return NewerImport
	case b.After(a):
		return NewerLocal
	default:
		return NewerEqual
	}
}
