package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestCycleRecord_Complete(t *testing.T) {
	r := NewCycleRecord("run-1", "alice@example.com")
	assert.Equal(t, StatusUnknown, r.Status)

	r.Complete(nil)
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Empty(t, r.Error)

	r.Complete(errors.New("list failed"))
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "list failed", r.Error)

	r.CompleteWithStatus(StatusTimeout, nil)
	assert.Equal(t, StatusTimeout, r.Status)
}

func TestCycleRecord_CalendarDomain(t *testing.T) {
	tests := map[string]string{
		"alice@example.com":                "example.com",
		"abc123@group.calendar.google.com": "group.calendar.google.com",
		"primary":                          StatusUnknown,
		"":                                 StatusUnknown,
		"broken@":                          StatusUnknown,
	}
	for id, want := range tests {
		assert.Equal(t, want, (&CycleRecord{CalendarID: id}).CalendarDomain(), id)
	}
}

func TestAuditLogger_LogCycle(t *testing.T) {
	tests := []struct {
		name              string
		includeCalendarID bool
		complete          func(*CycleRecord)
		wantMsg           string
		wantLevel         string
	}{
		{
			name:      "success",
			complete:  func(r *CycleRecord) { r.Complete(nil) },
			wantMsg:   "sync_cycle_completed",
			wantLevel: "INFO",
		},
		{
			name:      "failure",
			complete:  func(r *CycleRecord) { r.Complete(errors.New("boom")) },
			wantMsg:   "sync_cycle_failed",
			wantLevel: "WARN",
		},
		{
			name:              "lock timeout with calendar id",
			includeCalendarID: true,
			complete:          func(r *CycleRecord) { r.CompleteWithStatus(StatusTimeout, nil) },
			wantMsg:           "sync_cycle_skipped",
			wantLevel:         "WARN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{
				Enabled:           true,
				IncludeCalendarID: tt.includeCalendarID,
			})

			r := NewCycleRecord("run-1", "alice@example.com")
			r.Timed = 2
			r.Cancelled = 1
			tt.complete(r)
			al.LogCycle(context.Background(), r)

			entry := decodeLastLine(t, &buf)
			assert.Equal(t, tt.wantMsg, entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "run-1", entry["run_id"])
			assert.EqualValues(t, 2, entry["timed"])
			if tt.includeCalendarID {
				assert.Equal(t, "alice@example.com", entry["calendar"])
			} else {
				assert.Equal(t, "example.com", entry["calendar_domain"])
				assert.NotContains(t, buf.String(), "alice@")
			}
		})
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogCycle(context.Background(), NewCycleRecord("run", "cal").Complete(nil))
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	assert.NotPanics(t, func() { nilLogger.LogCycle(context.Background(), &CycleRecord{}) })
}
