// Package syncer pulls external workout records into the local store. The
// Coordinator runs full sync cycles; the Guard keeps each cycle from ever
// inserting the same record twice.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ldavies/fitsync/internal/catalog"
	"github.com/ldavies/fitsync/internal/dedupe"
	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/events"
	"github.com/ldavies/fitsync/internal/keyset"
	"github.com/ldavies/fitsync/internal/provider"
	"github.com/ldavies/fitsync/internal/store"
)

const (
	// DefaultWindow is the trailing fetch window for a normal cycle.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultThrottle is the minimum gap between timer-driven cycles.
	DefaultThrottle = time.Hour
)

// Options selects a sync cycle variant.
type Options struct {
	// Force imports everything the provider returns without consulting
	// the seen or tombstone sets.
	Force bool
	// ExactIDs restricts a forced cycle to the named record IDs. Unlike
	// plain Force, the imported records are marked seen afterward, which
	// clears any tombstone they carried.
	ExactIDs []string
	// Window overrides the trailing fetch window; zero means DefaultWindow.
	Window time.Duration
}

func (o Options) forced() bool {
	return o.Force || len(o.ExactIDs) > 0
}

// Coordinator runs sync cycles against a record source. Concurrent normal
// cycles collapse into one via a single-flight gate; forced cycles bypass
// the gate, and the Guard still screens every insert.
type Coordinator struct {
	source provider.RecordSource
	store  *store.Store
	keys   *keyset.Sets
	guard  *Guard
	dedupe *dedupe.Service

	// Now supplies the clock; override in tests.
	Now func() time.Time
	// Logf receives progress lines; defaults to log.Printf.
	Logf func(format string, args ...interface{})
	// Throttle caps timer-driven cycle frequency; zero means DefaultThrottle.
	Throttle time.Duration

	syncing  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a coordinator over the given source, store and key sets.
func New(source provider.RecordSource, st *store.Store, keys *keyset.Sets) *Coordinator {
	return &Coordinator{
		source: source,
		store:  st,
		keys:   keys,
		guard:  NewGuard(st),
		dedupe: dedupe.New(st),
		Now:    time.Now,
		Logf:   log.Printf,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run executes one sync cycle and returns its result. Errors from the
// provider or the store are captured in the result rather than returned;
// a busy gate yields an empty result immediately.
func (c *Coordinator) Run(ctx context.Context, opts Options) domain.SyncResult {
	if !opts.forced() {
		if !c.syncing.CompareAndSwap(false, true) {
			return domain.SyncResult{At: c.Now()}
		}
		defer c.syncing.Store(false)
	}

	result := c.runCycle(ctx, opts)
	c.recordResult(result)

	if result.OK() {
		if _, err := c.dedupe.Run(); err != nil {
			c.Logf("dedupe after sync failed: %v", err)
		}
	}
	return result
}

func (c *Coordinator) runCycle(ctx context.Context, opts Options) domain.SyncResult {
	now := c.Now()
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}

	if err := c.keys.Load(); err != nil {
		return domain.SyncResult{Err: fmt.Sprintf("failed to load key sets: %v", err), At: now}
	}

	present, err := c.store.Items.PresentExternalIDs()
	if err != nil {
		return domain.SyncResult{Err: fmt.Sprintf("%v: %v", domain.ErrPersistenceFailed, err), At: now}
	}
	if !opts.forced() {
		if purged := c.keys.PurgeSeenNotIn(present); len(purged) > 0 {
			c.Logf("purged %d stale seen keys", len(purged))
		}
	}

	records, err := c.source.Fetch(ctx, now.Add(-window), now)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			// An absent provider is a state, not a failure.
			return domain.SyncResult{At: now}
		}
		return domain.SyncResult{Err: err.Error(), At: now}
	}

	if len(opts.ExactIDs) > 0 {
		want := make(map[string]bool, len(opts.ExactIDs))
		for _, id := range opts.ExactIDs {
			want[id] = true
		}
		var filtered []domain.ExternalRecord
		for _, rec := range records {
			if want[rec.ID] {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	var fresh []domain.ExternalRecord
	skipped := 0
	for _, rec := range records {
		if !opts.forced() {
			if c.keys.Deleted(rec.ID) {
				skipped++
				continue
			}
			if c.keys.Seen(rec.ID) && present[rec.ID] {
				skipped++
				continue
			}
		}
		fresh = append(fresh, rec)
	}

	imported, convSkipped, err := c.importRecords(ctx, fresh)
	skipped += convSkipped
	if err != nil {
		return domain.SyncResult{
			Imported: 0,
			Skipped:  skipped,
			Err:      fmt.Sprintf("%v: %v", domain.ErrPersistenceFailed, err),
			At:       now,
		}
	}

	c.markSeen(opts, records)

	return domain.SyncResult{Imported: imported, Skipped: skipped, At: now}
}

// importRecords converts and inserts fresh records in a single transaction.
// It returns the imported and skipped counts; on error nothing is persisted.
func (c *Coordinator) importRecords(ctx context.Context, fresh []domain.ExternalRecord) (int, int, error) {
	if len(fresh) == 0 {
		return 0, 0, nil
	}

	exercises, err := c.store.Catalog.ListExercises()
	if err != nil {
		return 0, 0, err
	}
	units, err := c.store.Catalog.ListUnits()
	if err != nil {
		return 0, 0, err
	}
	pref, err := c.store.Prefs.ImportUnit()
	if err != nil {
		return 0, 0, err
	}

	imported, skipped := 0, 0
	err = c.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		buckets := make(map[string]*domain.DayBucket)
		for _, rec := range fresh {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			exercise := catalog.Match(rec.ActivityType, exercises)
			if exercise == nil {
				skipped++
				continue
			}
			unit := catalog.PickUnit(pref, exercise, rec, units)
			if unit == nil {
				skipped++
				continue
			}

			day := rec.Day()
			bucket, ok := buckets[day]
			if !ok {
				bucket, err = c.store.Days.FindOrCreateTx(tx, day)
				if err != nil {
					return err
				}
				buckets[day] = bucket
			}

			if !c.guard.Acquire(rec.ID) {
				skipped++
				continue
			}

			candidate := Candidate{
				ExternalID:   rec.ID,
				BucketUUID:   bucket.UUID,
				ExerciseUUID: exercise.UUID,
				UnitUUID:     unit.UUID,
				Amount:       catalog.Amount(rec, unit),
				CreatedAt:    rec.StartTime,
			}
			switch c.guard.Check(tx, ew, candidate) {
			case ActionInsert:
				externalID := rec.ID
				_, insertErr := c.store.Items.InsertTx(tx, ew, store.InsertParams{
					ExternalID:   &externalID,
					BucketUUID:   bucket.UUID,
					ExerciseUUID: exercise.UUID,
					UnitUUID:     unit.UUID,
					Amount:       candidate.Amount,
					Enjoyment:    3,
					Intensity:    3,
					Imported:     true,
					CreatedAt:    rec.StartTime,
				})
				if insertErr != nil {
					c.guard.Release(rec.ID)
					return insertErr
				}
				imported++
			case ActionRelocated:
				skipped++
			case ActionSkip:
				skipped++
			}
			c.guard.Release(rec.ID)
		}
		return nil
	})
	if err != nil {
		return 0, skipped, err
	}
	return imported, skipped, nil
}

// markSeen records which fetched records now exist locally. It runs strictly
// after the import transaction committed, so a failed commit never leaves a
// seen key pointing at nothing.
func (c *Coordinator) markSeen(opts Options, records []domain.ExternalRecord) {
	if opts.Force && len(opts.ExactIDs) == 0 {
		return
	}

	present, err := c.store.Items.PresentExternalIDs()
	if err != nil {
		c.Logf("failed to read present external IDs: %v", err)
		return
	}
	for _, rec := range records {
		if present[rec.ID] {
			c.keys.MarkSeen(rec.ID)
		}
	}
	if err := c.keys.Persist(); err != nil {
		// Tables are rewritten on the next cycle; a miss here only delays
		// the mirror.
		c.Logf("failed to persist key sets: %v", err)
	}
}

// recordResult logs the cycle outcome and stamps the last-sync time.
func (c *Coordinator) recordResult(result domain.SyncResult) {
	err := c.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		return ew.LogSyncCompleted(tx, result)
	})
	if err != nil {
		c.Logf("failed to log sync result: %v", err)
	}
	if err := c.store.Prefs.SetLastSyncAt(result.At); err != nil {
		c.Logf("failed to record last sync time: %v", err)
	}
}

// Start launches the background loop: it reacts to provider change
// notifications and fires throttled timer cycles. Cycles are skipped while
// the sync preference is off.
func (c *Coordinator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop shuts down the background loop and waits for it to exit. Safe to
// call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.doneCh)

	throttle := c.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	ticker := time.NewTicker(throttle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-c.source.Changes():
			c.maybeRun(ctx, false, throttle)
		case <-ticker.C:
			c.maybeRun(ctx, true, throttle)
		}
	}
}

func (c *Coordinator) maybeRun(ctx context.Context, throttled bool, throttle time.Duration) {
	enabled, err := c.store.Prefs.SyncEnabled()
	if err != nil {
		c.Logf("failed to read sync preference: %v", err)
		return
	}
	if !enabled {
		return
	}

	if throttled {
		last, err := c.store.Prefs.LastSyncAt()
		if err == nil && !last.IsZero() && c.Now().Sub(last) < throttle {
			return
		}
	}

	result := c.Run(ctx, Options{})
	if !result.OK() {
		c.Logf("sync cycle failed: %s", result.Err)
		return
	}
	if result.Imported > 0 || result.Skipped > 0 {
		c.Logf("sync cycle: %d imported, %d skipped", result.Imported, result.Skipped)
	}

	// The one-time toast flag belongs to the first background import, not
	// to manual sync invocations.
	if result.Imported > 0 {
		first, err := c.store.Prefs.MarkFirstImportNotified()
		if err == nil && first {
			c.Logf("first import completed: %d items", result.Imported)
		}
	}
}
