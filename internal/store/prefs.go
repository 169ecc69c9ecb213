package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
)

// PrefStore handles persisted user preferences.
type PrefStore struct {
	store *Store
}

// Get returns a preference value, or "" if unset.
func (ps *PrefStore) Get(key string) (string, error) {
	var value string
	err := ps.store.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, nil
}

// Set writes a preference value.
func (ps *PrefStore) Set(key, value string) error {
	_, err := ps.store.db.Exec(`
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

// SyncEnabled reports whether provider sync is turned on. Default: true.
func (ps *PrefStore) SyncEnabled() (bool, error) {
	v, err := ps.Get(domain.PrefSyncEnabled)
	if err != nil {
		return false, err
	}
	return v != "false", nil
}

// ImportUnit returns the import-unit preference. Default: auto.
func (ps *PrefStore) ImportUnit() (domain.ImportUnitPreference, error) {
	v, err := ps.Get(domain.PrefImportUnit)
	if err != nil {
		return "", err
	}
	if v == "" {
		return domain.ImportUnitAuto, nil
	}
	if err := domain.ValidateImportUnitPreference(v); err != nil {
		return "", err
	}
	return domain.ImportUnitPreference(v), nil
}

// LastSyncAt returns the last successful sync time, or zero if never synced.
func (ps *PrefStore) LastSyncAt() (time.Time, error) {
	v, err := ps.Get(domain.PrefLastSyncAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return ParseTime(v)
}

// SetLastSyncAt records the last successful sync time.
func (ps *PrefStore) SetLastSyncAt(t time.Time) error {
	return ps.Set(domain.PrefLastSyncAt, FormatTime(t))
}

// MarkFirstImportNotified flips the one-time first-background-import flag.
// Returns true if this call was the first to flip it.
func (ps *PrefStore) MarkFirstImportNotified() (bool, error) {
	v, err := ps.Get(domain.PrefFirstImportNotified)
	if err != nil {
		return false, err
	}
	if v == "true" {
		return false, nil
	}
	if err := ps.Set(domain.PrefFirstImportNotified, "true"); err != nil {
		return false, err
	}
	return true, nil
}
