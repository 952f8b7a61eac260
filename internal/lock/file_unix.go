//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval is how often a waiting FileLock retries flock.
const pollInterval = 100 * time.Millisecond

// FileLock is a Locker backed by an exclusive flock on a file. It serializes
// cycles across processes on the same host.
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileLock creates a FileLock on path. The file is created on first
// acquire and never removed.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire implements Locker.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return false, errors.New("file lock is not reentrant")
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.file = f
			return true, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return false, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			f.Close()
			return false, nil
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			f.Close()
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Release implements Locker.
func (l *FileLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
