package syncer

import (
	"database/sql"
	"sync"
	"time"

	"github.com/ldavies/fitsync/internal/events"
	"github.com/ldavies/fitsync/internal/store"
)

// Action is the guard's verdict for a candidate insert.
type Action int

const (
	// ActionInsert means no matching item exists anywhere; safe to insert.
	ActionInsert Action = iota
	// ActionSkip means a matching item already sits in the target bucket.
	ActionSkip
	// ActionRelocated means a matching item existed in a different bucket
	// and the guard moved it into the target bucket.
	ActionRelocated
)

// Candidate describes an item about to be inserted for an external record.
type Candidate struct {
	ExternalID   string
	BucketUUID   string
	ExerciseUUID string
	UnitUUID     string
	Amount       float64
	CreatedAt    time.Time
}

// Guard prevents duplicate inserts for the same external record. It combines
// an in-flight gate with local and global existence checks; on a global-only
// hit it repairs the item's bucket membership in place.
//
// The guard degrades toward safety, never toward duplication: a failed local
// check assumes the item is absent (the store's uniqueness index backstops a
// wrong guess), while a failed global check assumes the item is present and
// skips the insert.
type Guard struct {
	store *store.Store

	mu       sync.Mutex
	inflight map[string]bool
}

// NewGuard creates a guard over the given store.
func NewGuard(st *store.Store) *Guard {
	return &Guard{
		store:    st,
		inflight: make(map[string]bool),
	}
}

// Acquire gates an external ID for the duration of its insert. It returns
// false if another insert for the same ID is already in flight, in which
// case the caller must skip the record and must not call Release.
func (g *Guard) Acquire(externalID string) bool {
	if externalID == "" {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[externalID] {
		return false
	}
	g.inflight[externalID] = true
	return true
}

// Release clears the in-flight gate for an external ID.
func (g *Guard) Release(externalID string) {
	if externalID == "" {
		return
	}
	g.mu.Lock()
	delete(g.inflight, externalID)
	g.mu.Unlock()
}

// Check decides what to do with a candidate. Checks run in order: the target
// bucket by external ID, the target bucket by fingerprint, then the whole
// store by external ID. A global hit outside the target bucket is repaired by
// relocating the existing item rather than inserting a twin.
//
// All checks query through tx so an item inserted earlier in the same cycle
// is visible. A fetch batch can carry the same external ID twice when
// overlapping provider export files both contain a workout; the second copy
// must hit the bucket check, not the uniqueness index.
func (g *Guard) Check(tx *sql.Tx, ew *events.Writer, c Candidate) Action {
	existing, err := g.store.Items.FindInBucketByExternalIDTx(tx, c.BucketUUID, c.ExternalID)
	if err == nil && existing != nil {
		return ActionSkip
	}

	existing, err = g.store.Items.FindInBucketByFingerprintTx(
		tx, c.BucketUUID, c.CreatedAt, c.ExerciseUUID, c.UnitUUID, c.Amount)
	if err == nil && existing != nil {
		return ActionSkip
	}

	if c.ExternalID == "" {
		return ActionInsert
	}

	existing, err = g.store.Items.GetByExternalIDTx(tx, c.ExternalID)
	if err != nil {
		// Can't tell whether the item exists; skip rather than risk a twin.
		return ActionSkip
	}
	if existing == nil {
		return ActionInsert
	}

	if err := g.store.Items.RelocateTx(tx, ew, existing.UUID, c.BucketUUID); err != nil {
		return ActionSkip
	}
	return ActionRelocated
}
