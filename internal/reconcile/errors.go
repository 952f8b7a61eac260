package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrLockTimeout means another cycle held the lock for the whole timeout.
	// Nothing was read or written. Callers treat it as non-fatal.
	ErrLockTimeout = errors.New("timed out waiting for the sync lock")

	// ErrNoCalendar means no source calendar id was given or configured.
	ErrNoCalendar = errors.New("no source calendar id given and no default configured")
)

// RemoteFetchError wraps a failure to list the source calendar.
type RemoteFetchError struct {
	CalendarID string
	Err        error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch events from %s: %v", e.CalendarID, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// MirrorMutationError wraps a failed search, delete or create against the
// mirror calendar.
type MirrorMutationError struct {
	Op     string
	Marker string
	Err    error
}

func (e *MirrorMutationError) Error() string {
	return fmt.Sprintf("mirror %s for %s: %v", e.Op, e.Marker, e.Err)
}

func (e *MirrorMutationError) Unwrap() error {
	return e.Err
}
