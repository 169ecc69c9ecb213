// Package store provides a persistence layer that abstracts database
// operations, automatically handling timestamps, bucket membership, and
// event logging.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ldavies/fitsync/internal/db"
	"github.com/ldavies/fitsync/internal/events"
)

// TimeFormat is the timestamp layout used in all table columns.
const TimeFormat = "2006-01-02T15:04:05Z"

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db *db.DB

	// Domain-specific stores
	Days    *DayStore
	Items   *ItemStore
	Catalog *CatalogStore
	Prefs   *PrefStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.Days = &DayStore{store: s}
	s.Items = &ItemStore{store: s}
	s.Catalog = &CatalogStore{store: s}
	s.Prefs = &PrefStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// WithTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) WithTx(fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

// FormatTime formats a time.Time for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

func parseTimeLenient(s string) time.Time {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		// Older rows may carry RFC3339 with offsets
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}
