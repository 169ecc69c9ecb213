package provider

import (
	"context"
	"sync"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
)

// Static is an in-memory RecordSource for tests and repair flows. It serves
// a fixed record set and lets callers fire change notifications by hand.
type Static struct {
	mu      sync.Mutex
	records []domain.ExternalRecord
	changes chan struct{}
	err     error
	closed  bool
}

// NewStatic creates a source serving the given records.
func NewStatic(records ...domain.ExternalRecord) *Static {
	return &Static{
		records: records,
		changes: make(chan struct{}, 1),
	}
}

// SetRecords replaces the served record set.
func (s *Static) SetRecords(records ...domain.ExternalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// SetError makes every subsequent Fetch fail with err.
func (s *Static) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Fetch returns the records whose start time falls within [start, end].
func (s *Static) Fetch(ctx context.Context, start, end time.Time) ([]domain.ExternalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	var out []domain.ExternalRecord
	for _, r := range s.records {
		if r.StartTime.Before(start) || r.StartTime.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Changes returns the notification channel.
func (s *Static) Changes() <-chan struct{} {
	return s.changes
}

// Notify fires a change notification. Non-blocking; a pending notification
// is enough.
func (s *Static) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Close closes the notification channel.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.changes)
	}
	return nil
}
