package dedupe

import (
	"testing"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/store"
	"github.com/ldavies/fitsync/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	database, _ := testutil.TempDB(t)
	return store.New(database)
}

func rawBucket(t *testing.T, st *store.Store, uuid, day string, createdAt time.Time) {
	t.Helper()
	_, err := st.DB().Exec(`
		INSERT INTO day_buckets (uuid, day, created_at, modified_at)
		VALUES (?, ?, ?, ?)
	`, uuid, day, store.FormatTime(createdAt), store.FormatTime(createdAt))
	testutil.AssertNoError(t, err)
}

func rawUnit(t *testing.T, st *store.Store, uuid, name string, createdAt time.Time) {
	t.Helper()
	_, err := st.DB().Exec(`
		INSERT INTO units (uuid, name, kind, created_at)
		VALUES (?, ?, 'time', ?)
	`, uuid, name, store.FormatTime(createdAt))
	testutil.AssertNoError(t, err)
}

func insertItem(t *testing.T, st *store.Store, bucketUUID, exerciseUUID, unitUUID string) *domain.ActivityItem {
	t.Helper()
	item, err := st.Items.Insert(store.InsertParams{
		BucketUUID:   bucketUUID,
		ExerciseUUID: exerciseUUID,
		UnitUUID:     unitUUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
	})
	testutil.AssertNoError(t, err)
	return item
}

func TestCollapseDuplicateBuckets(t *testing.T) {
	st := newTestStore(t)
	unit, err := st.Catalog.EnsureUnit("minutes", domain.UnitKindTime)
	testutil.AssertNoError(t, err)
	exercise, err := st.Catalog.EnsureExercise("walking", "cardio", &unit.UUID)
	testutil.AssertNoError(t, err)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rawBucket(t, st, "aaaaaaaa-1111-4111-8111-111111111111", "2026-08-01", base)
	rawBucket(t, st, "bbbbbbbb-2222-4222-8222-222222222222", "2026-08-01", base.Add(time.Hour))

	orphan := insertItem(t, st, "aaaaaaaa-1111-4111-8111-111111111111", exercise.UUID, unit.UUID)

	result, err := New(st).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, result.Buckets)

	// The newer bucket wins; the orphan was reparented onto it.
	buckets, err := st.Days.ListAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, len(buckets))
	testutil.AssertEqual(t, "bbbbbbbb-2222-4222-8222-222222222222", buckets[0].UUID)

	moved, err := st.Items.GetByUUID(orphan.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "bbbbbbbb-2222-4222-8222-222222222222", moved.BucketUUID)
}

func TestCollapseDuplicateUnits(t *testing.T) {
	st := newTestStore(t)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rawUnit(t, st, "cccccccc-1111-4111-8111-111111111111", "minutes", base)
	rawUnit(t, st, "dddddddd-2222-4222-8222-222222222222", "Minutes", base.Add(time.Hour))

	keeperUUID := "dddddddd-2222-4222-8222-222222222222"
	exercise, err := st.Catalog.EnsureExercise("walking", "cardio", nil)
	testutil.AssertNoError(t, err)
	bucket, err := st.Days.FindOrCreate("2026-08-01")
	testutil.AssertNoError(t, err)
	item := insertItem(t, st, bucket.UUID, exercise.UUID, "cccccccc-1111-4111-8111-111111111111")

	result, err := New(st).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, result.Units)

	units, err := st.Catalog.ListUnits()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, len(units))
	testutil.AssertEqual(t, keeperUUID, units[0].UUID)

	moved, err := st.Items.GetByUUID(item.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, keeperUUID, moved.UnitUUID)
}

func TestDedupeIsIdempotent(t *testing.T) {
	st := newTestStore(t)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rawBucket(t, st, "aaaaaaaa-1111-4111-8111-111111111111", "2026-08-01", base)
	rawBucket(t, st, "bbbbbbbb-2222-4222-8222-222222222222", "2026-08-01", base.Add(time.Hour))

	result, err := New(st).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, result.Total())

	again, err := New(st).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, again.Total())
}

func TestTieBrokenByChildCount(t *testing.T) {
	st := newTestStore(t)
	unit, err := st.Catalog.EnsureUnit("minutes", domain.UnitKindTime)
	testutil.AssertNoError(t, err)
	exercise, err := st.Catalog.EnsureExercise("walking", "cardio", &unit.UUID)
	testutil.AssertNoError(t, err)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rawBucket(t, st, "aaaaaaaa-1111-4111-8111-111111111111", "2026-08-01", base)
	rawBucket(t, st, "bbbbbbbb-2222-4222-8222-222222222222", "2026-08-01", base)

	// Equal creation times: the bucket with more items wins.
	insertItem(t, st, "aaaaaaaa-1111-4111-8111-111111111111", exercise.UUID, unit.UUID)
	insertItem(t, st, "aaaaaaaa-1111-4111-8111-111111111111", exercise.UUID, unit.UUID)

	result, err := New(st).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, result.Buckets)

	buckets, err := st.Days.ListAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "aaaaaaaa-1111-4111-8111-111111111111", buckets[0].UUID)
}
