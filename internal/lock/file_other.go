//go:build !unix

package lock

import (
	"context"
	"errors"
	"time"
)

// FileLock is unavailable on this platform; use Semaphore instead.
type FileLock struct {
	path string
}

// NewFileLock creates a FileLock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire always fails on this platform.
func (l *FileLock) Acquire(context.Context, time.Duration) (bool, error) {
	return false, errors.New("file locks are not supported on this platform")
}

// Release is a no-op.
func (l *FileLock) Release() {}
