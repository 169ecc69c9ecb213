package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/events"
)

// ItemStore handles activity-item persistence operations.
type ItemStore struct {
	store *Store
}

// InsertParams contains parameters for inserting a new activity item.
type InsertParams struct {
	UUID         string // optional: force specific UUID instead of auto-generating
	ExternalID   *string
	BucketUUID   string
	ExerciseUUID string
	UnitUUID     string
	Amount       float64
	Enjoyment    int
	Intensity    int
	Note         *string
	Imported     bool
	CreatedAt    time.Time // zero means now
	ModifiedAt   time.Time // zero means CreatedAt
}

// Insert creates a new activity item at the end of its bucket and logs an
// item.imported event for imported items.
func (is *ItemStore) Insert(params InsertParams) (*domain.ActivityItem, error) {
	var item *domain.ActivityItem
	err := is.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		var err error
		item, err = is.InsertTx(tx, ew, params)
		return err
	})
	return item, err
}

// InsertTx is Insert inside an existing transaction. Ratings are clamped on
// write; sort_index is assigned past the current end of the bucket.
func (is *ItemStore) InsertTx(tx *sql.Tx, ew *events.Writer, params InsertParams) (*domain.ActivityItem, error) {
	if err := domain.ValidateAmount(params.Amount); err != nil {
		return nil, err
	}

	itemUUID := params.UUID
	if itemUUID == "" {
		itemUUID = uuid.NewString()
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	modifiedAt := params.ModifiedAt
	if modifiedAt.IsZero() {
		modifiedAt = createdAt
	}

	var sortIndex int
	err := tx.QueryRow(`
		SELECT COALESCE(MAX(sort_index) + 1, 0) FROM activity_items WHERE bucket_uuid = ?
	`, params.BucketUUID).Scan(&sortIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sort index: %w", err)
	}

	item := &domain.ActivityItem{
		UUID:         itemUUID,
		ExternalID:   params.ExternalID,
		BucketUUID:   params.BucketUUID,
		ExerciseUUID: params.ExerciseUUID,
		UnitUUID:     params.UnitUUID,
		Amount:       params.Amount,
		Enjoyment:    domain.ClampRating(params.Enjoyment),
		Intensity:    domain.ClampRating(params.Intensity),
		Note:         params.Note,
		Imported:     params.Imported,
		SortIndex:    sortIndex,
		CreatedAt:    createdAt.UTC(),
		ModifiedAt:   modifiedAt.UTC(),
	}

	_, err = tx.Exec(`
		INSERT INTO activity_items (
			uuid, external_id, bucket_uuid, exercise_uuid, unit_uuid,
			amount, enjoyment, intensity, note, imported, sort_index,
			created_at, modified_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.UUID, item.ExternalID, item.BucketUUID, item.ExerciseUUID, item.UnitUUID,
		item.Amount, item.Enjoyment, item.Intensity, item.Note, boolToInt(item.Imported),
		item.SortIndex, FormatTime(item.CreatedAt), FormatTime(item.ModifiedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert activity item: %w", err)
	}

	if err := is.store.Days.TouchTx(tx, item.BucketUUID, time.Now().UTC()); err != nil {
		return nil, err
	}

	if item.Imported {
		if err := ew.LogItemImported(tx, item); err != nil {
			return nil, err
		}
	}

	return item, nil
}

// GetByUUID retrieves an item by its local identity.
func (is *ItemStore) GetByUUID(itemUUID string) (*domain.ActivityItem, error) {
	item, err := scanItem(is.store.db.QueryRow(itemSelect+` WHERE uuid = ?`, itemUUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("activity item not found: %s", itemUUID)
		}
		return nil, fmt.Errorf("failed to get activity item: %w", err)
	}
	return item, nil
}

// GetByExternalID retrieves the item carrying a provider identity, anywhere in
// the store. Returns nil if none exists.
func (is *ItemStore) GetByExternalID(externalID string) (*domain.ActivityItem, error) {
	return is.getByExternalID(is.store.db, externalID)
}

// GetByExternalIDTx is GetByExternalID inside an existing transaction, so
// rows inserted earlier in the same transaction are visible.
func (is *ItemStore) GetByExternalIDTx(tx *sql.Tx, externalID string) (*domain.ActivityItem, error) {
	return is.getByExternalID(tx, externalID)
}

func (is *ItemStore) getByExternalID(q rowQueryer, externalID string) (*domain.ActivityItem, error) {
	item, err := scanItem(q.QueryRow(itemSelect+`
		WHERE external_id = ? ORDER BY created_at ASC LIMIT 1
	`, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query by external id: %w", err)
	}
	return item, nil
}

// FindInBucketByExternalID finds an imported item with the given provider
// identity inside one bucket. Returns nil if none exists.
func (is *ItemStore) FindInBucketByExternalID(bucketUUID, externalID string) (*domain.ActivityItem, error) {
	return is.findInBucketByExternalID(is.store.db, bucketUUID, externalID)
}

// FindInBucketByExternalIDTx is FindInBucketByExternalID inside an existing
// transaction.
func (is *ItemStore) FindInBucketByExternalIDTx(tx *sql.Tx, bucketUUID, externalID string) (*domain.ActivityItem, error) {
	return is.findInBucketByExternalID(tx, bucketUUID, externalID)
}

func (is *ItemStore) findInBucketByExternalID(q rowQueryer, bucketUUID, externalID string) (*domain.ActivityItem, error) {
	item, err := scanItem(q.QueryRow(itemSelect+`
		WHERE bucket_uuid = ? AND external_id = ? LIMIT 1
	`, bucketUUID, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query bucket by external id: %w", err)
	}
	return item, nil
}

// FindInBucketByFingerprint finds an item in a bucket matching
// timestamp-within-1-second plus exercise, unit and amount. Used when a record
// lacks an external identity.
func (is *ItemStore) FindInBucketByFingerprint(bucketUUID string, createdAt time.Time, exerciseUUID, unitUUID string, amount float64) (*domain.ActivityItem, error) {
	return is.findInBucketByFingerprint(is.store.db, bucketUUID, createdAt, exerciseUUID, unitUUID, amount)
}

// FindInBucketByFingerprintTx is FindInBucketByFingerprint inside an existing
// transaction.
func (is *ItemStore) FindInBucketByFingerprintTx(tx *sql.Tx, bucketUUID string, createdAt time.Time, exerciseUUID, unitUUID string, amount float64) (*domain.ActivityItem, error) {
	return is.findInBucketByFingerprint(tx, bucketUUID, createdAt, exerciseUUID, unitUUID, amount)
}

func (is *ItemStore) findInBucketByFingerprint(q rowQueryer, bucketUUID string, createdAt time.Time, exerciseUUID, unitUUID string, amount float64) (*domain.ActivityItem, error) {
	low := FormatTime(createdAt.Add(-time.Second))
	high := FormatTime(createdAt.Add(time.Second))
	item, err := scanItem(q.QueryRow(itemSelect+`
		WHERE bucket_uuid = ? AND exercise_uuid = ? AND unit_uuid = ?
		  AND amount = ? AND created_at BETWEEN ? AND ?
		LIMIT 1
	`, bucketUUID, exerciseUUID, unitUUID, amount, low, high))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query bucket by fingerprint: %w", err)
	}
	return item, nil
}

// ListByBucket returns a bucket's items in insertion order.
func (is *ItemStore) ListByBucket(bucketUUID string) ([]domain.ActivityItem, error) {
	return is.list(itemSelect+` WHERE bucket_uuid = ? ORDER BY sort_index ASC, created_at ASC`, bucketUUID)
}

// ListAll returns every item in the store ordered by creation time.
func (is *ItemStore) ListAll() ([]domain.ActivityItem, error) {
	return is.list(itemSelect + ` ORDER BY created_at ASC, uuid ASC`)
}

// PresentExternalIDs returns the set of external IDs currently backed by a
// live item.
func (is *ItemStore) PresentExternalIDs() (map[string]bool, error) {
	rows, err := is.store.db.Query(`
		SELECT external_id FROM activity_items
		WHERE external_id IS NOT NULL AND external_id != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query external ids: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		present[id] = true
	}
	return present, rows.Err()
}

// UpdateFields updates the given columns on an item and bumps modified_at.
func (is *ItemStore) UpdateFields(itemUUID string, fields map[string]interface{}) error {
	return is.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		return is.UpdateFieldsTx(tx, itemUUID, fields)
	})
}

// UpdateFieldsTx is UpdateFields inside an existing transaction.
func (is *ItemStore) UpdateFieldsTx(tx *sql.Tx, itemUUID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	var setClauses []string
	var args []interface{}
	for key, value := range fields {
		if key == "enjoyment" || key == "intensity" {
			if r, ok := value.(int); ok {
				value = domain.ClampRating(r)
			}
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}
	if _, ok := fields["modified_at"]; !ok {
		setClauses = append(setClauses, "modified_at = ?")
		args = append(args, FormatTime(time.Now().UTC()))
	}
	args = append(args, itemUUID)

	query := fmt.Sprintf("UPDATE activity_items SET %s WHERE uuid = ?", strings.Join(setClauses, ", "))
	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update activity item: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("activity item not found: %s", itemUUID)
	}
	return nil
}

// RelocateTx moves an item into a different bucket. This is the repair path:
// bucket membership changes but modified_at is left alone, and the move is
// recorded as an item.relocated event.
func (is *ItemStore) RelocateTx(tx *sql.Tx, ew *events.Writer, itemUUID, toBucketUUID string) error {
	var fromBucket string
	err := tx.QueryRow(`SELECT bucket_uuid FROM activity_items WHERE uuid = ?`, itemUUID).Scan(&fromBucket)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("activity item not found: %s", itemUUID)
		}
		return fmt.Errorf("failed to get activity item: %w", err)
	}
	if fromBucket == toBucketUUID {
		return nil
	}

	var sortIndex int
	if err := tx.QueryRow(`
		SELECT COALESCE(MAX(sort_index) + 1, 0) FROM activity_items WHERE bucket_uuid = ?
	`, toBucketUUID).Scan(&sortIndex); err != nil {
		return fmt.Errorf("failed to compute sort index: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE activity_items SET bucket_uuid = ?, sort_index = ? WHERE uuid = ?
	`, toBucketUUID, sortIndex, itemUUID)
	if err != nil {
		return fmt.Errorf("failed to relocate activity item: %w", err)
	}

	now := time.Now().UTC()
	if err := is.store.Days.TouchTx(tx, fromBucket, now); err != nil {
		return err
	}
	if err := is.store.Days.TouchTx(tx, toBucketUUID, now); err != nil {
		return err
	}

	return ew.LogItemRelocated(tx, itemUUID, fromBucket, toBucketUUID)
}

// Delete removes an item. When tombstone is true and the item carries an
// external identity, the identity is recorded in deleted_keys (and dropped
// from seen_keys) in the same transaction so ordinary sync cycles will not
// reintroduce it.
func (is *ItemStore) Delete(itemUUID string, tombstone bool) error {
	return is.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		var externalID sql.NullString
		err := tx.QueryRow(`SELECT external_id FROM activity_items WHERE uuid = ?`, itemUUID).Scan(&externalID)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("activity item not found: %s", itemUUID)
			}
			return fmt.Errorf("failed to get activity item: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM activity_items WHERE uuid = ?`, itemUUID); err != nil {
			return fmt.Errorf("failed to delete activity item: %w", err)
		}

		tombstoned := false
		if tombstone && externalID.Valid && externalID.String != "" {
			if _, err := tx.Exec(`
				INSERT INTO deleted_keys (external_id) VALUES (?)
				ON CONFLICT(external_id) DO NOTHING
			`, externalID.String); err != nil {
				return fmt.Errorf("failed to tombstone external id: %w", err)
			}
			if _, err := tx.Exec(`DELETE FROM seen_keys WHERE external_id = ?`, externalID.String); err != nil {
				return fmt.Errorf("failed to drop seen key: %w", err)
			}
			tombstoned = true
		}

		return ew.LogItemDeleted(tx, itemUUID, tombstoned)
	})
}

const itemSelect = `
	SELECT uuid, external_id, bucket_uuid, exercise_uuid, unit_uuid,
	       amount, enjoyment, intensity, note, imported, sort_index,
	       created_at, modified_at
	FROM activity_items`

func (is *ItemStore) list(query string, args ...interface{}) ([]domain.ActivityItem, error) {
	rows, err := is.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity items: %w", err)
	}
	defer rows.Close()

	var items []domain.ActivityItem
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanItem(row rowScanner) (*domain.ActivityItem, error) {
	return scanItemRow(row)
}

func scanItemRow(row rowScanner) (*domain.ActivityItem, error) {
	var item domain.ActivityItem
	var externalID, note sql.NullString
	var imported int
	var createdAt, modifiedAt string

	err := row.Scan(&item.UUID, &externalID, &item.BucketUUID, &item.ExerciseUUID,
		&item.UnitUUID, &item.Amount, &item.Enjoyment, &item.Intensity, &note,
		&imported, &item.SortIndex, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}

	if externalID.Valid && externalID.String != "" {
		item.ExternalID = &externalID.String
	}
	if note.Valid {
		item.Note = &note.String
	}
	item.Imported = imported != 0
	item.CreatedAt = parseTimeLenient(createdAt)
	item.ModifiedAt = parseTimeLenient(modifiedAt)

	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
