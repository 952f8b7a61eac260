package lock

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Semaphore is an in-process Locker.
type Semaphore struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

// NewSemaphore creates an unlocked Semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{sem: semaphore.NewWeighted(1)}
}

// Acquire implements Locker.
func (s *Semaphore) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if timeout <= 0 {
		if !s.sem.TryAcquire(1) {
			return false, nil
		}
		s.held.Store(true)
		return true, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	s.held.Store(true)
	return true, nil
}

// Release implements Locker.
func (s *Semaphore) Release() {
	if s.held.CompareAndSwap(true, false) {
		s.sem.Release(1)
	}
}
