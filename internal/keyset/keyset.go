// Package keyset tracks which provider identities have been imported
// (seen keys) and which the user deliberately removed (deleted keys, the
// tombstones). Both sets are persisted locally and mirrored to a shared
// key-value document so multiple installs converge.
package keyset

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Sets holds the in-memory seen and deleted key sets backed by the local
// database and an optional mirror. Callers must Load before trusting the
// in-memory state; mirror merges are additive-union on read.
type Sets struct {
	db     *sql.DB
	mirror Mirror

	mu      sync.Mutex
	seen    map[string]bool
	deleted map[string]bool
}

// New creates key sets over the given database. mirror may be nil.
func New(database *sql.DB, mirror Mirror) *Sets {
	return &Sets{
		db:      database,
		mirror:  mirror,
		seen:    make(map[string]bool),
		deleted: make(map[string]bool),
	}
}

// Load reads both sets from the local tables and merges in any mirror
// entries. The local tables outrank the mirror in both directions: a locally
// cleared tombstone (an explicit restore) must not come back from a stale
// mirror, and a locally tombstoned key must not come back as seen.
func (s *Sets) Load() error {
	seen, err := s.readTable("seen_keys")
	if err != nil {
		return err
	}
	deleted, err := s.readTable("deleted_keys")
	if err != nil {
		return err
	}

	if s.mirror != nil {
		mirrorSeen, mirrorDeleted, err := s.mirror.Load()
		if err != nil {
			return fmt.Errorf("failed to load key set mirror: %w", err)
		}
		for id := range mirrorSeen {
			if !deleted[id] {
				seen[id] = true
			}
		}
		for id := range mirrorDeleted {
			if !seen[id] {
				deleted[id] = true
			}
		}
	}

	s.mu.Lock()
	s.seen = seen
	s.deleted = deleted
	s.mu.Unlock()
	return nil
}

// Seen reports whether an external ID has already been imported.
func (s *Sets) Seen(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[externalID]
}

// Deleted reports whether an external ID is tombstoned.
func (s *Sets) Deleted(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[externalID]
}

// MarkSeen adds external IDs to the in-memory seen set. A tombstoned ID that
// is explicitly re-imported loses its tombstone.
func (s *Sets) MarkSeen(externalIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range externalIDs {
		if id == "" {
			continue
		}
		s.seen[id] = true
		delete(s.deleted, id)
	}
}

// PurgeSeenNotIn drops seen keys no longer backed by a live local item and
// returns the purged IDs. Self-healing against lost writes; a mirror entry
// for a purged key survives until the owning install stops re-publishing it.
func (s *Sets) PurgeSeenNotIn(present map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	for id := range s.seen {
		if !present[id] {
			delete(s.seen, id)
			purged = append(purged, id)
		}
	}
	sort.Strings(purged)
	return purged
}

// Persist writes both sets to the local tables and publishes them to the
// mirror. Mirror publication is additive: remote entries are unioned in
// before writing, so a concurrent install's keys are never clobbered.
func (s *Sets) Persist() error {
	s.mu.Lock()
	seen := copySet(s.seen)
	deleted := copySet(s.deleted)
	s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin key set transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeTable(tx, "seen_keys", seen); err != nil {
		return err
	}
	if err := writeTable(tx, "deleted_keys", deleted); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key sets: %w", err)
	}

	if s.mirror != nil {
		mirrorSeen, mirrorDeleted, err := s.mirror.Load()
		if err != nil {
			return fmt.Errorf("failed to load key set mirror: %w", err)
		}
		for id := range mirrorSeen {
			if !deleted[id] {
				seen[id] = true
			}
		}
		for id := range mirrorDeleted {
			if !seen[id] {
				deleted[id] = true
			}
		}
		if err := s.mirror.Store(seen, deleted); err != nil {
			return fmt.Errorf("failed to store key set mirror: %w", err)
		}
	}

	return nil
}

// SeenCount returns the number of seen keys.
func (s *Sets) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// DeletedCount returns the number of tombstones.
func (s *Sets) DeletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted)
}

func (s *Sets) readTable(table string) (map[string]bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT external_id FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		set[id] = true
	}
	return set, rows.Err()
}

func writeTable(tx *sql.Tx, table string, set map[string]bool) error {
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (external_id) VALUES (?) ON CONFLICT(external_id) DO NOTHING", table))
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

func copySet(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for id := range set {
		out[id] = true
	}
	return out
}
