// Package provider abstracts the external health-activity source. The
// coordinator only sees RecordSource; concrete sources are swappable with
// the Static test double.
package provider

import (
	"context"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
)

// RecordSource exposes the external provider: a fetch over a time range and
// an asynchronous change notification. The notification carries no payload
// beyond "something changed"; receivers must re-fetch a trailing window.
type RecordSource interface {
	// Fetch returns all records whose start time falls within [start, end].
	Fetch(ctx context.Context, start, end time.Time) ([]domain.ExternalRecord, error)

	// Changes returns a channel that receives a signal when the provider's
	// data may have changed. The channel is closed when the source is closed.
	Changes() <-chan struct{}

	// Close releases any resources held by the source.
	Close() error
}
