package store

import (
	"testing"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/testutil"
)

func TestPrefsDefaults(t *testing.T) {
	st := newTestStore(t)

	enabled, err := st.Prefs.SyncEnabled()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, enabled)

	pref, err := st.Prefs.ImportUnit()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, domain.ImportUnitAuto, pref)

	last, err := st.Prefs.LastSyncAt()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, last.IsZero())
}

func TestPrefsSetAndGet(t *testing.T) {
	st := newTestStore(t)

	testutil.AssertNoError(t, st.Prefs.Set(domain.PrefSyncEnabled, "false"))
	enabled, err := st.Prefs.SyncEnabled()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, false, enabled)

	testutil.AssertNoError(t, st.Prefs.Set(domain.PrefImportUnit, "distance"))
	pref, err := st.Prefs.ImportUnit()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, domain.ImportUnitDistance, pref)

	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	testutil.AssertNoError(t, st.Prefs.SetLastSyncAt(at))
	last, err := st.Prefs.LastSyncAt()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, at, last.UTC())
}

func TestMarkFirstImportNotifiedFiresOnce(t *testing.T) {
	st := newTestStore(t)

	first, err := st.Prefs.MarkFirstImportNotified()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, first)

	again, err := st.Prefs.MarkFirstImportNotified()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, false, again)
}
