package instrumentation

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// CycleRecord captures the outcome of one reconciliation cycle for audit logging.
//
// CalendarID is usually an email address. Unless the AuditLogger is configured
// with IncludeCalendarID, only its domain is logged.
type CycleRecord struct {
	RunID      string
	CalendarID string

	FullSync bool
	DryRun   bool

	// Counters filled by the engine
	Pages     int
	Timed     int
	Recurring int
	Cancelled int
	AllDay    int
	Skipped   int

	// TokenStored is true when the cycle persisted a new sync token.
	TokenStored bool

	StartTime time.Time
	Duration  time.Duration
	Status    string
	Error     string

	TraceID string
}

// NewCycleRecord creates a CycleRecord with timing started.
// Call Complete when the cycle finishes.
func NewCycleRecord(runID, calendarID string) *CycleRecord {
	return &CycleRecord{
		RunID:      runID,
		CalendarID: calendarID,
		StartTime:  time.Now(),
		Status:     StatusUnknown,
	}
}

// WithSpanContext extracts the trace id from the current span.
func (r *CycleRecord) WithSpanContext(ctx context.Context) *CycleRecord {
	r.TraceID = TraceID(ctx)
	return r
}

// Complete sets duration and status. A nil err means success.
func (r *CycleRecord) Complete(err error) *CycleRecord {
	r.Duration = time.Since(r.StartTime)
	if err != nil {
		r.Status = StatusError
		r.Error = err.Error()
	} else {
		r.Status = StatusSuccess
	}
	return r
}

// CompleteWithStatus is like Complete but overrides the status, e.g. StatusTimeout.
func (r *CycleRecord) CompleteWithStatus(status string, err error) *CycleRecord {
	r.Complete(err)
	r.Status = status
	return r
}

// Mirrored returns the number of events that resulted in a mirror being created.
func (r *CycleRecord) Mirrored() int {
	return r.Timed + r.Recurring
}

// CalendarDomain returns the domain part of the calendar id, or "unknown".
func (r *CycleRecord) CalendarDomain() string {
	return calendarDomain(r.CalendarID)
}

func calendarDomain(calendarID string) string {
	if calendarID == "" {
		return StatusUnknown
	}
	at := strings.LastIndex(calendarID, "@")
	if at < 0 || at == len(calendarID)-1 {
		return StatusUnknown
	}
	return calendarID[at+1:]
}

// LogAttrs returns slog attributes for the record.
func (r *CycleRecord) LogAttrs(includeCalendarID bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("run_id", r.RunID),
		slog.String("status", r.Status),
		slog.Duration("duration", r.Duration),
		slog.Bool("full_sync", r.FullSync),
		slog.Int("pages", r.Pages),
		slog.Int("timed", r.Timed),
		slog.Int("recurring", r.Recurring),
		slog.Int("cancelled", r.Cancelled),
		slog.Int("all_day", r.AllDay),
		slog.Int("skipped", r.Skipped),
		slog.Bool("token_stored", r.TokenStored),
	}

	if includeCalendarID {
		attrs = append(attrs, slog.String("calendar", r.CalendarID))
	} else {
		attrs = append(attrs, slog.String("calendar_domain", r.CalendarDomain()))
	}
	if r.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// AuditLogger writes one structured record per reconciliation cycle.
type AuditLogger struct {
	logger            *slog.Logger
	includeCalendarID bool
	enabled           bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:            logger,
		includeCalendarID: config.IncludeCalendarID,
		enabled:           config.Enabled,
	}
}

// LogCycle logs the record as sync_cycle_completed, or sync_cycle_failed
// when the cycle did not succeed. A nil AuditLogger logs nothing.
func (al *AuditLogger) LogCycle(ctx context.Context, r *CycleRecord) {
	if al == nil || !al.enabled || r == nil {
		return
	}

	attrs := r.LogAttrs(al.includeCalendarID)
	switch r.Status {
	case StatusSuccess:
		al.logger.LogAttrs(ctx, slog.LevelInfo, "sync_cycle_completed", attrs...)
	case StatusTimeout:
		al.logger.LogAttrs(ctx, slog.LevelWarn, "sync_cycle_skipped", attrs...)
	default:
		al.logger.LogAttrs(ctx, slog.LevelWarn, "sync_cycle_failed", attrs...)
	}
}
