package lock

import (
	"context"
	"time"
)

// DefaultTimeout is how long Acquire waits for a running cycle by default.
const DefaultTimeout = 60 * time.Second

// Locker is a non-reentrant mutual exclusion primitive with bounded wait.
type Locker interface {
	// Acquire blocks until the lock is held, timeout elapses, or ctx is done.
	// It returns false with a nil error on timeout. A non-nil error means the
	// lock could not be attempted at all, or ctx was cancelled.
	Acquire(ctx context.Context, timeout time.Duration) (bool, error)

	// Release gives the lock up. Releasing a lock that is not held is a no-op.
	Release()
}

// WithLock runs fn while holding l. It reports acquired=false, without
// calling fn, when the lock could not be taken within timeout. The lock is
// released on every return path of fn, including panics.
func WithLock(ctx context.Context, l Locker, timeout time.Duration, fn func(ctx context.Context) error) (acquired bool, err error) {
	ok, err := l.Acquire(ctx, timeout)
	if err != nil || !ok {
		return false, err
	}
	defer l.Release()
	return true, fn(ctx)
}
