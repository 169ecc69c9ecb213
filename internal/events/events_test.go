package events

import (
	"encoding/json"
	"testing"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/testutil"
)

func TestLogEventWritesRow(t *testing.T) {
	database, _ := testutil.TempDB(t)
	w := NewWriter(database.DB)

	tx, err := database.Begin()
	testutil.AssertNoError(t, err)
	item := &domain.ActivityItem{UUID: "11111111-2222-4333-8444-555555555555", Amount: 30}
	testutil.AssertNoError(t, w.LogItemImported(tx, item))
	testutil.AssertNoError(t, tx.Commit())

	var resourceUUID, eventType, payload string
	err = database.QueryRow(`
		SELECT resource_uuid, event_type, payload FROM event_log
	`).Scan(&resourceUUID, &eventType, &payload)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, item.UUID, resourceUUID)
	testutil.AssertEqual(t, "item.imported", eventType)

	var decoded map[string]interface{}
	testutil.AssertNoError(t, json.Unmarshal([]byte(payload), &decoded))
	testutil.AssertEqual(t, 30.0, decoded["amount"])
}

func TestEventRollsBackWithTransaction(t *testing.T) {
	database, _ := testutil.TempDB(t)
	w := NewWriter(database.DB)

	tx, err := database.Begin()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.LogSyncCompleted(tx, domain.SyncResult{Imported: 3}))
	testutil.AssertNoError(t, tx.Rollback())

	var n int
	err = database.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&n)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, n)
}
