package datewindow

import (
	"sync"
	"time"
)

// DefaultDays is the distance, in days, of the window edges from now.
const DefaultDays = 30

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock is a Clock that only moves when told to. Safe for concurrent use.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a FixedClock pinned at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the pinned time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock at t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Around returns the window spanning back days before now and forward days
// after it. Negative values are treated as zero.
func Around(now time.Time, back, forward int) Window {
	if back < 0 {
		back = 0
	}
	if forward < 0 {
		forward = 0
	}
	return Window{
		Start: now.AddDate(0, 0, -back),
		End:   now.AddDate(0, 0, forward),
	}
}

// Since returns the instant days before now.
func Since(now time.Time, days int) time.Time {
	if days < 0 {
		days = 0
	}
	return now.AddDate(0, 0, -days)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	if end.IsZero() || !end.After(start) {
		return w.Contains(start)
	}
	return start.Before(w.End) && end.After(w.Start)
}
