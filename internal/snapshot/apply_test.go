package snapshot

import (
	"testing"

	"github.com/ldavies/fitsync/internal/testutil"
)

func TestApplyDefaultsFavorLocal(t *testing.T) {
	f := newFixture(t)
	local := f.insertLocal(t, "2026-08-01", "", 10, t1, t1)
	f.tombstone(t, "HK-gone")
	f.insertLocal(t, "2026-08-01", "", 30, t2, t2)

	doc := testDoc(
		Item{LogicalID: local.UUID, Amount: 20, Enjoyment: 3, Intensity: 3, CreatedAt: t1, ModifiedAt: t2},
		Item{LogicalID: "l-tomb", ExternalID: "HK-gone", Amount: 15, Enjoyment: 3, Intensity: 3, CreatedAt: t1, ModifiedAt: t1},
		Item{LogicalID: "l-near", Amount: 30, Enjoyment: 3, Intensity: 3, Note: "twin", CreatedAt: t2, ModifiedAt: t2},
		Item{LogicalID: "l-new", ExternalID: "HK-new", Amount: 45, Enjoyment: 3, Intensity: 3, CreatedAt: t1, ModifiedAt: t1},
	)
	plan := f.plan(t, doc)
	testutil.AssertEqual(t, 1, len(plan.IdentityConflicts))
	testutil.AssertEqual(t, 1, len(plan.TombstoneConflicts))
	testutil.AssertEqual(t, 1, len(plan.NearDuplicates))
	testutil.AssertEqual(t, 1, len(plan.Inserts))

	stats, err := Apply(f.st, doc, plan, Decisions{}, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, stats.Inserted)
	testutil.AssertEqual(t, 0, stats.Updated)
	testutil.AssertEqual(t, 0, stats.Restored)
	testutil.AssertEqual(t, 3, stats.Skipped)

	// The conflict stayed local, the tombstone held, only the new record
	// landed.
	kept, err := f.st.Items.GetByUUID(local.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 10.0, kept.Amount)

	gone, err := f.st.Items.GetByExternalID("HK-gone")
	testutil.AssertNoError(t, err)
	if gone != nil {
		t.Fatal("tombstoned item was restored without a decision")
	}

	added, err := f.st.Items.GetByExternalID("HK-new")
	testutil.AssertNoError(t, err)
	if added == nil {
		t.Fatal("plain insert did not land")
	}
}

func TestApplyKeepImportUpdatesLocal(t *testing.T) {
	f := newFixture(t)
	local := f.insertLocal(t, "2026-08-01", "", 10, t1, t1)

	doc := testDoc(Item{
		LogicalID: local.UUID, Amount: 20, Enjoyment: 4, Intensity: 2,
		CreatedAt: t1, ModifiedAt: t2,
	})
	plan := f.plan(t, doc)
	testutil.AssertEqual(t, 1, len(plan.IdentityConflicts))
	testutil.AssertEqual(t, NewerImport, plan.IdentityConflicts[0].Newer)

	stats, err := Apply(f.st, doc, plan, Decisions{
		KeepImport: []string{LogicalKey(local.UUID)},
	}, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, stats.Updated)

	updated, err := f.st.Items.GetByUUID(local.UUID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 20.0, updated.Amount)
	testutil.AssertEqual(t, 4, updated.Enjoyment)
	testutil.AssertEqual(t, 2, updated.Intensity)
	testutil.AssertEqual(t, t2, updated.ModifiedAt.UTC())
}

func TestApplyRestoreClearsTombstone(t *testing.T) {
	f := newFixture(t)
	f.tombstone(t, "HK-gone")

	doc := testDoc(Item{
		LogicalID: "l-tomb", ExternalID: "HK-gone",
		Amount: 15, Enjoyment: 3, Intensity: 3, CreatedAt: t1, ModifiedAt: t1,
	})
	plan := f.plan(t, doc)
	testutil.AssertEqual(t, 1, len(plan.TombstoneConflicts))

	stats, err := Apply(f.st, doc, plan, Decisions{
		Restore: []string{ExternalKey("HK-gone")},
	}, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, stats.Restored)

	restored, err := f.st.Items.GetByExternalID("HK-gone")
	testutil.AssertNoError(t, err)
	if restored == nil {
		t.Fatal("expected restored item")
	}

	var tombstones int
	err = f.st.DB().QueryRow(`SELECT COUNT(*) FROM deleted_keys WHERE external_id = ?`, "HK-gone").Scan(&tombstones)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, tombstones)

	// The key is marked seen so a stale mirror tombstone cannot undo the
	// restore on the next sync cycle.
	var seen int
	err = f.st.DB().QueryRow(`SELECT COUNT(*) FROM seen_keys WHERE external_id = ?`, "HK-gone").Scan(&seen)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, seen)
}

func TestApplyRestoreModeRestoresAll(t *testing.T) {
	f := newFixture(t)
	f.tombstone(t, "HK-a")
	f.tombstone(t, "HK-b")

	doc := testDoc(
		Item{LogicalID: "l-a", ExternalID: "HK-a", Amount: 10, Enjoyment: 3, Intensity: 3, CreatedAt: t1, ModifiedAt: t1},
		Item{LogicalID: "l-b", ExternalID: "HK-b", Amount: 20, Enjoyment: 3, Intensity: 3, CreatedAt: t2, ModifiedAt: t2},
	)
	plan := f.plan(t, doc)

	stats, err := Apply(f.st, doc, plan, Decisions{}, true)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, stats.Restored)
}

func TestApplySkipInsert(t *testing.T) {
	f := newFixture(t)

	doc := testDoc(Item{
		LogicalID: "l-new", Amount: 30, Enjoyment: 3, Intensity: 3,
		CreatedAt: t1, ModifiedAt: t1,
	})
	plan := f.plan(t, doc)
	testutil.AssertEqual(t, 1, len(plan.Inserts))

	stats, err := Apply(f.st, doc, plan, Decisions{
		SkipInsert: []string{LogicalKey("l-new")},
	}, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, stats.Inserted)
	testutil.AssertEqual(t, 1, stats.Skipped)

	items, err := f.st.Items.ListAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, len(items))
}

func TestApplyInsertLegacyForcesTwin(t *testing.T) {
	f := newFixture(t)
	original := f.insertLocal(t, "2026-08-01", "HK-orig", 30, t1, t1)

	doc := testDoc(Item{
		LogicalID: "l-near", Amount: 30, Enjoyment: 3, Intensity: 3,
		Note: "twin", CreatedAt: t1, ModifiedAt: t1,
	})
	plan := f.plan(t, doc)
	testutil.AssertEqual(t, 1, len(plan.NearDuplicates))

	stats, err := Apply(f.st, doc, plan, Decisions{
		InsertLegacy: []string{plan.NearDuplicates[0].Key},
	}, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, stats.Inserted)

	items, err := f.st.Items.ListAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, len(items))

	// The twin is a fresh row: new UUID, no external identity.
	for _, it := range items {
		if it.UUID == original.UUID {
			continue
		}
		if it.UUID == "l-near" {
			t.Error("forced twin reused the snapshot logical ID")
		}
		if it.HasExternalID() {
			t.Error("forced twin carried an external ID")
		}
	}
}

func TestApplyIsIdempotentForPlainInserts(t *testing.T) {
	f := newFixture(t)

	doc := testDoc(Item{
		LogicalID: "11111111-2222-4333-8444-555555555555", ExternalID: "HK-1",
		Amount: 30, Enjoyment: 3, Intensity: 3, CreatedAt: t1, ModifiedAt: t1,
	})

	plan := f.plan(t, doc)
	_, err := Apply(f.st, doc, plan, Decisions{}, false)
	testutil.AssertNoError(t, err)

	// Re-planning the same document now classifies the item as existing.
	plan = f.plan(t, doc)
	testutil.AssertEqual(t, 0, len(plan.Inserts))
	testutil.AssertEqual(t, 1, len(plan.AlreadyExists))

	stats, err := Apply(f.st, doc, plan, Decisions{}, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, stats.Inserted)

	items, err := f.st.Items.ListAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, len(items))
}
