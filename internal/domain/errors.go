package domain

import (
	"errors"
)

// Provider and persistence error taxonomy. Recoverable errors never terminate
// the process; they are captured in a SyncResult. Only malformed-input errors
// propagate synchronously to the caller.
var (
	// ErrProviderUnavailable means the provider feature is disabled or
	// unsupported on this platform. A state, not a failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderPermission means the provider denied access; surfaced to the
	// user as an actionable prompt.
	ErrProviderPermission = errors.New("provider permission denied")

	// ErrFetchFailed wraps transient provider fetch errors. The cycle aborts
	// with zero imported and retries on the next trigger.
	ErrFetchFailed = errors.New("provider fetch failed")

	// ErrPersistenceFailed wraps store write errors surfaced as a sync-result
	// error.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrSnapshotMalformed means import planning rejected the snapshot before
	// any mutation.
	ErrSnapshotMalformed = errors.New("snapshot malformed")

	// ErrApplyFailed means apply aborted mid-way; the caller must assume the
	// store may be partially mutated and should re-run entity dedupe to heal.
	ErrApplyFailed = errors.New("apply failed")
)
