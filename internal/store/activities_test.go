package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/events"
	"github.com/ldavies/fitsync/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, _ := testutil.TempDB(t)
	return New(database)
}

func seedCatalog(t *testing.T, st *Store) (*domain.Exercise, *domain.Unit) {
	t.Helper()
	unit, err := st.Catalog.EnsureUnit("minutes", domain.UnitKindTime)
	testutil.AssertNoError(t, err)
	exercise, err := st.Catalog.EnsureExercise("walking", "cardio", &unit.UUID)
	testutil.AssertNoError(t, err)
	return exercise, unit
}

func TestInsertAssignsSortIndex(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)

	first, err := st.Items.Insert(InsertParams{
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
	})
	testutil.AssertNoError(t, err)
	second, err := st.Items.Insert(InsertParams{
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       15,
		Enjoyment:    3,
		Intensity:    3,
	})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 0, first.SortIndex)
	testutil.AssertEqual(t, 1, second.SortIndex)
	if first.CreatedAt.IsZero() || first.ModifiedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestInsertClampsRatings(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)

	item, err := st.Items.Insert(InsertParams{
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       10,
		Enjoyment:    9,
		Intensity:    0,
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 5, item.Enjoyment)
	testutil.AssertEqual(t, 1, item.Intensity)
}

func TestExternalIDLookups(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)

	externalID := "HK-123"
	item, err := st.Items.Insert(InsertParams{
		ExternalID:   &externalID,
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
		Imported:     true,
	})
	testutil.AssertNoError(t, err)

	found, err := st.Items.GetByExternalID(externalID)
	testutil.AssertNoError(t, err)
	if found == nil {
		t.Fatal("expected item by external ID")
	}
	testutil.AssertEqual(t, item.UUID, found.UUID)

	inBucket, err := st.Items.FindInBucketByExternalID(bucket.UUID, externalID)
	testutil.AssertNoError(t, err)
	if inBucket == nil {
		t.Fatal("expected item in bucket")
	}

	missing, err := st.Items.GetByExternalID("HK-999")
	testutil.AssertNoError(t, err)
	if missing != nil {
		t.Fatal("expected nil for unknown external ID")
	}

	present, err := st.Items.PresentExternalIDs()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, present[externalID])
}

func TestFindInBucketByFingerprint(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)

	createdAt := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	_, err = st.Items.Insert(InsertParams{
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
		CreatedAt:    createdAt,
	})
	testutil.AssertNoError(t, err)

	// Within one second counts as the same record.
	match, err := st.Items.FindInBucketByFingerprint(
		bucket.UUID, createdAt.Add(time.Second), exercise.UUID, unit.UUID, 30)
	testutil.AssertNoError(t, err)
	if match == nil {
		t.Fatal("expected fingerprint match within 1s")
	}

	none, err := st.Items.FindInBucketByFingerprint(
		bucket.UUID, createdAt.Add(5*time.Second), exercise.UUID, unit.UUID, 30)
	testutil.AssertNoError(t, err)
	if none != nil {
		t.Fatal("expected no match outside the window")
	}
}

func TestDeleteTombstonesExternalID(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)

	externalID := "HK-del"
	item, err := st.Items.Insert(InsertParams{
		ExternalID:   &externalID,
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
		Imported:     true,
	})
	testutil.AssertNoError(t, err)

	_, err = st.DB().Exec(`INSERT INTO seen_keys (external_id, added_at) VALUES (?, ?)`,
		externalID, FormatTime(time.Now()))
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, st.Items.Delete(item.UUID, true))

	gone, err := st.Items.GetByExternalID(externalID)
	testutil.AssertNoError(t, err)
	if gone != nil {
		t.Fatal("expected item to be deleted")
	}

	var tombstoned int
	err = st.DB().QueryRow(`SELECT COUNT(*) FROM deleted_keys WHERE external_id = ?`, externalID).Scan(&tombstoned)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, tombstoned)

	var seen int
	err = st.DB().QueryRow(`SELECT COUNT(*) FROM seen_keys WHERE external_id = ?`, externalID).Scan(&seen)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, seen)
}

func TestRelocatePreservesModifiedAt(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	from, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)
	to, err := st.Days.FindOrCreate("2026-08-02")
	testutil.AssertNoError(t, err)

	createdAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	item, err := st.Items.Insert(InsertParams{
		BucketUUID:   from.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
		CreatedAt:    createdAt,
	})
	testutil.AssertNoError(t, err)

	err = st.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		return st.Items.RelocateTx(tx, ew, item.UUID, to.UUID)
	})
	testutil.AssertNoError(t, err)

	moved, err := st.Items.GetByUUID(item.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, to.UUID, moved.BucketUUID)
	testutil.AssertEqual(t, FormatTime(item.ModifiedAt), FormatTime(moved.ModifiedAt))
}

func TestUpdateFieldsBumpsModifiedAt(t *testing.T) {
	st := newTestStore(t)
	exercise, unit := seedCatalog(t, st)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)

	createdAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	item, err := st.Items.Insert(InsertParams{
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercise.UUID,
		UnitUUID:     unit.UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
		CreatedAt:    createdAt,
	})
	testutil.AssertNoError(t, err)

	err = st.Items.UpdateFields(item.UUID, map[string]interface{}{
		"amount":    45.0,
		"enjoyment": 9,
	})
	testutil.AssertNoError(t, err)

	updated, err := st.Items.GetByUUID(item.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 45.0, updated.Amount)
	testutil.AssertEqual(t, 5, updated.Enjoyment)
	if !updated.ModifiedAt.After(createdAt) {
		t.Fatal("expected modified_at to move forward")
	}
}

func TestFindByDayOldestWins(t *testing.T) {
	st := newTestStore(t)

	// Two buckets for the same day, as replication might produce.
	older, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)
	_, err = st.DB().Exec(`
		INSERT INTO day_buckets (uuid, day, created_at, modified_at)
		VALUES (?, ?, ?, ?)
	`, "11111111-2222-4333-8444-555555555555", "2026-08-01",
		FormatTime(time.Now().Add(time.Hour)), FormatTime(time.Now().Add(time.Hour)))
	testutil.AssertNoError(t, err)

	found, err := st.Days.FindByDay("2026-08-01")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, older.UUID, found.UUID)
}
