package syncer

import (
	"database/sql"
	"testing"
	"time"

	"github.com/ldavies/fitsync/internal/events"
	"github.com/ldavies/fitsync/internal/store"
	"github.com/ldavies/fitsync/internal/testutil"
)

func TestGuardAcquireRelease(t *testing.T) {
	g := NewGuard(nil)

	testutil.AssertEqual(t, true, g.Acquire("HK-1"))
	testutil.AssertEqual(t, false, g.Acquire("HK-1"))
	testutil.AssertEqual(t, true, g.Acquire("HK-2"))

	g.Release("HK-1")
	testutil.AssertEqual(t, true, g.Acquire("HK-1"))

	// Records without an external ID are never gated.
	testutil.AssertEqual(t, true, g.Acquire(""))
	testutil.AssertEqual(t, true, g.Acquire(""))
}

func TestGuardCheckOrdering(t *testing.T) {
	f := newSyncFixture(t)
	g := NewGuard(f.st)

	exercises, err := f.st.Catalog.ListExercises()
	testutil.AssertNoError(t, err)
	units, err := f.st.Catalog.ListUnits()
	testutil.AssertNoError(t, err)
	bucket, err := f.st.Days.FindOrCreate("2026-08-15")
	testutil.AssertNoError(t, err)

	createdAt := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	externalID := "HK-1"
	_, err = f.st.Items.Insert(store.InsertParams{
		ExternalID:   &externalID,
		BucketUUID:   bucket.UUID,
		ExerciseUUID: exercises[0].UUID,
		UnitUUID:     units[0].UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
		CreatedAt:    createdAt,
	})
	testutil.AssertNoError(t, err)

	err = f.st.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		// Same external ID in the same bucket: skip.
		action := g.Check(tx, ew, Candidate{
			ExternalID: "HK-1", BucketUUID: bucket.UUID,
			ExerciseUUID: exercises[0].UUID, UnitUUID: units[0].UUID,
			Amount: 30, CreatedAt: createdAt,
		})
		testutil.AssertEqual(t, ActionSkip, action)

		// No external ID but a matching fingerprint: skip.
		action = g.Check(tx, ew, Candidate{
			BucketUUID:   bucket.UUID,
			ExerciseUUID: exercises[0].UUID, UnitUUID: units[0].UUID,
			Amount: 30, CreatedAt: createdAt.Add(time.Second),
		})
		testutil.AssertEqual(t, ActionSkip, action)

		// Nothing matches anywhere: insert.
		action = g.Check(tx, ew, Candidate{
			ExternalID: "HK-new", BucketUUID: bucket.UUID,
			ExerciseUUID: exercises[0].UUID, UnitUUID: units[0].UUID,
			Amount: 45, CreatedAt: createdAt.Add(time.Hour),
		})
		testutil.AssertEqual(t, ActionInsert, action)
		return nil
	})
	testutil.AssertNoError(t, err)
}

func TestGuardSeesInsertInOpenTransaction(t *testing.T) {
	f := newSyncFixture(t)
	g := NewGuard(f.st)

	exercises, err := f.st.Catalog.ListExercises()
	testutil.AssertNoError(t, err)
	units, err := f.st.Catalog.ListUnits()
	testutil.AssertNoError(t, err)
	bucket, err := f.st.Days.FindOrCreate("2026-08-15")
	testutil.AssertNoError(t, err)

	createdAt := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	err = f.st.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		externalID := "HK-1"
		_, err := f.st.Items.InsertTx(tx, ew, store.InsertParams{
			ExternalID:   &externalID,
			BucketUUID:   bucket.UUID,
			ExerciseUUID: exercises[0].UUID,
			UnitUUID:     units[0].UUID,
			Amount:       30,
			Enjoyment:    3,
			Intensity:    3,
			Imported:     true,
			CreatedAt:    createdAt,
		})
		if err != nil {
			return err
		}

		// The row is not committed yet; the guard must still see it.
		action := g.Check(tx, ew, Candidate{
			ExternalID: "HK-1", BucketUUID: bucket.UUID,
			ExerciseUUID: exercises[0].UUID, UnitUUID: units[0].UUID,
			Amount: 30, CreatedAt: createdAt,
		})
		testutil.AssertEqual(t, ActionSkip, action)
		return nil
	})
	testutil.AssertNoError(t, err)
}

func TestGuardCheckRelocates(t *testing.T) {
	f := newSyncFixture(t)
	g := NewGuard(f.st)

	exercises, err := f.st.Catalog.ListExercises()
	testutil.AssertNoError(t, err)
	units, err := f.st.Catalog.ListUnits()
	testutil.AssertNoError(t, err)
	wrong, err := f.st.Days.FindOrCreate("2026-07-01")
	testutil.AssertNoError(t, err)
	right, err := f.st.Days.FindOrCreate("2026-08-15")
	testutil.AssertNoError(t, err)

	externalID := "HK-1"
	item, err := f.st.Items.Insert(store.InsertParams{
		ExternalID:   &externalID,
		BucketUUID:   wrong.UUID,
		ExerciseUUID: exercises[0].UUID,
		UnitUUID:     units[0].UUID,
		Amount:       30,
		Enjoyment:    3,
		Intensity:    3,
	})
	testutil.AssertNoError(t, err)

	err = f.st.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		action := g.Check(tx, ew, Candidate{
			ExternalID: "HK-1", BucketUUID: right.UUID,
			ExerciseUUID: exercises[0].UUID, UnitUUID: units[0].UUID,
			Amount: 30, CreatedAt: time.Now(),
		})
		testutil.AssertEqual(t, ActionRelocated, action)
		return nil
	})
	testutil.AssertNoError(t, err)

	moved, err := f.st.Items.GetByUUID(item.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, right.UUID, moved.BucketUUID)
}
