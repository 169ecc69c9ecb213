package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ldavies/fitsync/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (resource_type, resource_uuid, event_type, payload)
		VALUES (?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.ResourceType, event.ResourceUUID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogItemImported logs an item import event
func (w *Writer) LogItemImported(tx *sql.Tx, item *domain.ActivityItem) error {
	payload := map[string]interface{}{
		"bucket_uuid": item.BucketUUID,
		"amount":      item.Amount,
	}
	if item.HasExternalID() {
		payload["external_id"] = *item.ExternalID
	}
	return w.log(tx, "item", item.UUID, "item.imported", payload)
}

// LogItemRelocated logs a dedup-guard repair that moved an item between buckets
func (w *Writer) LogItemRelocated(tx *sql.Tx, itemUUID, fromBucket, toBucket string) error {
	return w.log(tx, "item", itemUUID, "item.relocated", map[string]interface{}{
		"from_bucket_uuid": fromBucket,
		"to_bucket_uuid":   toBucket,
	})
}

// LogItemDeleted logs an item deletion, including whether a tombstone was written
func (w *Writer) LogItemDeleted(tx *sql.Tx, itemUUID string, tombstoned bool) error {
	return w.log(tx, "item", itemUUID, "item.deleted", map[string]interface{}{
		"tombstoned": tombstoned,
	})
}

// LogSyncCompleted logs the result of a sync cycle
func (w *Writer) LogSyncCompleted(tx *sql.Tx, result domain.SyncResult) error {
	payload := map[string]interface{}{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}
	if result.Err != "" {
		payload["error"] = result.Err
	}
	return w.log(tx, "sync", "", "sync.completed", payload)
}

// LogImportApplied logs the outcome of applying a snapshot import
func (w *Writer) LogImportApplied(tx *sql.Tx, inserted, updated, restored, skipped int) error {
	return w.log(tx, "import", "", "import.applied", map[string]interface{}{
		"inserted": inserted,
		"updated":  updated,
		"restored": restored,
		"skipped":  skipped,
	})
}

// LogDedupeCollapsed logs an entity-dedupe collapse of duplicate rows
func (w *Writer) LogDedupeCollapsed(tx *sql.Tx, resourceType, keeperUUID string, losers int) error {
	return w.log(tx, resourceType, keeperUUID, "dedupe.collapsed", map[string]interface{}{
		"losers": losers,
	})
}

func (w *Writer) log(tx *sql.Tx, resourceType, resourceUUID, eventType string, payload map[string]interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	payloadStr := string(payloadJSON)

	event := &domain.Event{
		ResourceType: resourceType,
		EventType:    eventType,
		Payload:      &payloadStr,
	}
	if resourceUUID != "" {
		event.ResourceUUID = &resourceUUID
	}

	return w.LogEvent(tx, event)
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
