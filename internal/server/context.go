package server

import (
	"context"
	"sync"
	"time"
)

// CycleStatus describes the most recent sync cycle run by the watcher.
type CycleStatus struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Err      error

	// Skipped is true when the cycle gave up waiting for the lock.
	Skipped bool

	// ConsecutiveFailures counts failed cycles since the last success.
	ConsecutiveFailures int
}

// ServerContext carries state shared between the watch scheduler and the
// health endpoints.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	shutdown bool
	last     CycleStatus
	cycles   int
}

// NewServerContext creates a new server context derived from ctx.
func NewServerContext(ctx context.Context) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
	}
}

// Context returns the server context. It is cancelled by Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// RecordCycle stores the outcome of a finished cycle. A skipped cycle neither
// resets nor increases the failure count.
func (sc *ServerContext) RecordCycle(status CycleStatus) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	switch {
	case status.Skipped:
		status.ConsecutiveFailures = sc.last.ConsecutiveFailures
	case status.Err != nil:
		status.ConsecutiveFailures = sc.last.ConsecutiveFailures + 1
	default:
		status.ConsecutiveFailures = 0
	}
	sc.last = status
	sc.cycles++
}

// LastCycle returns the most recent cycle and whether any cycle has run.
func (sc *ServerContext) LastCycle() (CycleStatus, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.last, sc.cycles > 0
}

// Cycles returns the number of cycles recorded so far.
func (sc *ServerContext) Cycles() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cycles
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
