package datewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAround(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	w := Around(now, DefaultDays, DefaultDays)
	assert.Equal(t, time.Date(2026, 9, 17, 12, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 11, 16, 12, 0, 0, 0, time.UTC), w.End)

	w = Around(now, -5, 0)
	assert.Equal(t, now, w.Start)
	assert.Equal(t, now, w.End)
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), Since(now, 30))
	assert.Equal(t, now, Since(now, -1))
}

func TestWindow_Contains(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	w := Around(now, 1, 1)

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"start is inclusive", w.Start, true},
		{"end is exclusive", w.End, false},
		{"now", now, true},
		{"before", w.Start.Add(-time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.t))
		})
	}
}

func TestWindow_Overlaps(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	w := Around(now, 1, 1)

	assert.True(t, w.Overlaps(w.Start.Add(-time.Hour), w.Start.Add(time.Minute)))
	assert.False(t, w.Overlaps(w.End, w.End.Add(time.Hour)))
	assert.False(t, w.Overlaps(w.Start.Add(-2*time.Hour), w.Start.Add(-time.Hour)))
	assert.True(t, w.Overlaps(now, time.Time{}))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())

	var _ Clock = SystemClock{}
	var _ Clock = c
}
