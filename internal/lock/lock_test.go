package lock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockers(t *testing.T) map[string]func() Locker {
	path := filepath.Join(t.TempDir(), "busymirror.lock")
	shared := NewSemaphore()
	return map[string]func() Locker{
		// Each call yields a handle on the same underlying lock.
		"semaphore": func() Locker { return shared },
		"file":      func() Locker { return NewFileLock(path) },
	}
}

func TestLocker_Exclusive(t *testing.T) {
	for name, newLocker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, second := newLocker(), newLocker()

			ok, err := first.Acquire(ctx, time.Second)
			require.NoError(t, err)
			require.True(t, ok)

			start := time.Now()
			ok, err = second.Acquire(ctx, 250*time.Millisecond)
			require.NoError(t, err)
			assert.False(t, ok, "second acquire must time out while the first holds the lock")
			assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
			assert.Less(t, time.Since(start), 2*time.Second, "must give up close to the timeout")

			first.Release()

			ok, err = second.Acquire(ctx, time.Second)
			require.NoError(t, err)
			assert.True(t, ok, "lock must be available after release")
			second.Release()
		})
	}
}

func TestLocker_WaitsForRelease(t *testing.T) {
	for name, newLocker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, second := newLocker(), newLocker()

			ok, err := first.Acquire(ctx, time.Second)
			require.NoError(t, err)
			require.True(t, ok)

			go func() {
				time.Sleep(100 * time.Millisecond)
				first.Release()
			}()

			ok, err = second.Acquire(ctx, 5*time.Second)
			require.NoError(t, err)
			assert.True(t, ok)
			second.Release()
		})
	}
}

func TestLocker_ReleaseWithoutAcquire(t *testing.T) {
	for name, newLocker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			l := newLocker()
			assert.NotPanics(t, func() {
				l.Release()
				l.Release()
			})
		})
	}
}

func TestLocker_CancelledContext(t *testing.T) {
	for name, newLocker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			first, second := newLocker(), newLocker()
			ok, err := first.Acquire(context.Background(), time.Second)
			require.NoError(t, err)
			require.True(t, ok)
			defer first.Release()

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
			ok, err = second.Acquire(ctx, 10*time.Second)
			assert.False(t, ok)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestSemaphore_ZeroTimeout(t *testing.T) {
	s := NewSemaphore()
	ok, err := s.Acquire(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
	s.Release()
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	s := NewSemaphore()

	called := false
	acquired, err := WithLock(ctx, s, time.Second, func(context.Context) error {
		called = true
		return errors.New("cycle failed")
	})
	assert.True(t, acquired)
	assert.True(t, called)
	assert.EqualError(t, err, "cycle failed")

	// Released after an error
	ok, err := s.Acquire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	called = false
	acquired, err = WithLock(ctx, s, 50*time.Millisecond, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, acquired)
	assert.NoError(t, err)
	assert.False(t, called, "fn must not run without the lock")
	s.Release()

	// Released after a panic
	assert.Panics(t, func() {
		_, _ = WithLock(ctx, s, time.Second, func(context.Context) error { panic("boom") })
	})
	ok, err = s.Acquire(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	s.Release()
}
