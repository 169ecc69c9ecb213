package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldavies/fitsync/internal/domain"
)

// DayStore handles day-bucket persistence operations.
type DayStore struct {
	store *Store
}

// GetByUUID retrieves a bucket by UUID.
func (ds *DayStore) GetByUUID(bucketUUID string) (*domain.DayBucket, error) {
	return scanBucket(ds.store.db.QueryRow(`
		SELECT uuid, day, created_at, modified_at FROM day_buckets WHERE uuid = ?
	`, bucketUUID))
}

// FindByDay returns the bucket for a calendar date, or nil if none exists.
// If duplicates exist (healed later by dedupe), the oldest wins.
func (ds *DayStore) FindByDay(day string) (*domain.DayBucket, error) {
	bucket, err := scanBucket(ds.store.db.QueryRow(`
		SELECT uuid, day, created_at, modified_at FROM day_buckets
		WHERE day = ? ORDER BY created_at ASC, uuid ASC LIMIT 1
	`, day))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return bucket, nil
}

// FindOrCreate returns the bucket for a calendar date, creating it if needed.
func (ds *DayStore) FindOrCreate(day string) (*domain.DayBucket, error) {
	if err := domain.ValidateDay(day); err != nil {
		return nil, err
	}

	existing, err := ds.FindByDay(day)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	bucket := &domain.DayBucket{
		UUID:       uuid.NewString(),
		Day:        day,
		CreatedAt:  time.Now().UTC(),
		ModifiedAt: time.Now().UTC(),
	}
	_, err = ds.store.db.Exec(`
		INSERT INTO day_buckets (uuid, day, created_at, modified_at)
		VALUES (?, ?, ?, ?)
	`, bucket.UUID, bucket.Day, FormatTime(bucket.CreatedAt), FormatTime(bucket.ModifiedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create day bucket: %w", err)
	}
	return bucket, nil
}

// FindOrCreateTx is FindOrCreate inside an existing transaction.
func (ds *DayStore) FindOrCreateTx(tx *sql.Tx, day string) (*domain.DayBucket, error) {
	if err := domain.ValidateDay(day); err != nil {
		return nil, err
	}

	bucket, err := scanBucket(tx.QueryRow(`
		SELECT uuid, day, created_at, modified_at FROM day_buckets
		WHERE day = ? ORDER BY created_at ASC, uuid ASC LIMIT 1
	`, day))
	if err == nil {
		return bucket, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	created := &domain.DayBucket{
		UUID:       uuid.NewString(),
		Day:        day,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	_, err = tx.Exec(`
		INSERT INTO day_buckets (uuid, day, created_at, modified_at)
		VALUES (?, ?, ?, ?)
	`, created.UUID, created.Day, FormatTime(now), FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create day bucket: %w", err)
	}
	return created, nil
}

// ListAll returns all buckets ordered by day.
func (ds *DayStore) ListAll() ([]domain.DayBucket, error) {
	rows, err := ds.store.db.Query(`
		SELECT uuid, day, created_at, modified_at FROM day_buckets ORDER BY day ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query day buckets: %w", err)
	}
	defer rows.Close()

	var buckets []domain.DayBucket
	for rows.Next() {
		var b domain.DayBucket
		var createdAt, modifiedAt string
		if err := rows.Scan(&b.UUID, &b.Day, &createdAt, &modifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan day bucket: %w", err)
		}
		b.CreatedAt = parseTimeLenient(createdAt)
		b.ModifiedAt = parseTimeLenient(modifiedAt)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TouchTx bumps a bucket's modified_at inside a transaction.
func (ds *DayStore) TouchTx(tx *sql.Tx, bucketUUID string, at time.Time) error {
	_, err := tx.Exec(`UPDATE day_buckets SET modified_at = ? WHERE uuid = ?`,
		FormatTime(at), bucketUUID)
	if err != nil {
		return fmt.Errorf("failed to touch day bucket: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// rowQueryer is satisfied by both *sql.Tx and the pooled connection, so
// lookups can run inside or outside a transaction.
type rowQueryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func scanBucket(row rowScanner) (*domain.DayBucket, error) {
	var b domain.DayBucket
	var createdAt, modifiedAt string
	if err := row.Scan(&b.UUID, &b.Day, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	b.CreatedAt = parseTimeLenient(createdAt)
	b.ModifiedAt = parseTimeLenient(modifiedAt)
	return &b, nil
}
