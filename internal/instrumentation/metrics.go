package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrKind      = "kind"
	attrReason    = "reason"
	attrCalendar  = "calendar"
)

// Metrics provides methods for recording observability metrics.
//
// A zero or nil Metrics is a valid no-op recorder.
type Metrics struct {
	// Sync metrics
	syncCyclesTotal   metric.Int64Counter
	syncCycleDuration metric.Float64Histogram
	syncEventsTotal   metric.Int64Counter
	syncFullResyncs   metric.Int64Counter
	mirrorMutations   metric.Int64Counter
	lockWaitDuration  metric.Float64Histogram
	lockTimeoutsTotal metric.Int64Counter

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// detailedLabels adds the source calendar id to sync metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.syncCyclesTotal, err = meter.Int64Counter(
		"sync_cycles_total",
		metric.WithDescription("Total number of reconciliation cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_cycles_total counter: %w", err)
	}

	m.syncCycleDuration, err = meter.Float64Histogram(
		"sync_cycle_duration_seconds",
		metric.WithDescription("Reconciliation cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_cycle_duration_seconds histogram: %w", err)
	}

	m.syncEventsTotal, err = meter.Int64Counter(
		"sync_events_total",
		metric.WithDescription("Total number of processed source events by kind"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_events_total counter: %w", err)
	}

	m.syncFullResyncs, err = meter.Int64Counter(
		"sync_full_resyncs_total",
		metric.WithDescription("Total number of full resyncs by reason"),
		metric.WithUnit("{resync}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_full_resyncs_total counter: %w", err)
	}

	m.mirrorMutations, err = meter.Int64Counter(
		"mirror_mutations_total",
		metric.WithDescription("Total number of mirror calendar mutations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror_mutations_total counter: %w", err)
	}

	m.lockWaitDuration, err = meter.Float64Histogram(
		"lock_wait_duration_seconds",
		metric.WithDescription("Time spent waiting for the single-writer lock in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 1.0, 5.0, 15.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock_wait_duration_seconds histogram: %w", err)
	}

	m.lockTimeoutsTotal, err = meter.Int64Counter(
		"lock_timeouts_total",
		metric.WithDescription("Total number of cycles abandoned because the lock was held"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock_timeouts_total counter: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// calendarAttrs returns the calendar label only when detailed labels are enabled.
func (m *Metrics) calendarAttrs(calendarID string) []attribute.KeyValue {
	if !m.detailedLabels || calendarID == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String(attrCalendar, calendarID)}
}

// RecordSyncCycle records a finished reconciliation cycle.
//
// Parameters:
//   - calendarID: Source calendar (only included if detailedLabels is true)
//   - status: Cycle status ("success", "error" or "timeout")
//   - duration: Wall time of the cycle including lock wait
func (m *Metrics) RecordSyncCycle(ctx context.Context, calendarID, status string, duration time.Duration) {
	if m == nil || m.syncCyclesTotal == nil || m.syncCycleDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := append([]attribute.KeyValue{
		attribute.String(attrStatus, status),
	}, m.calendarAttrs(calendarID)...)

	m.syncCyclesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.syncCycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSyncEvents adds n processed source events of the given kind.
func (m *Metrics) RecordSyncEvents(ctx context.Context, kind string, n int) {
	if m == nil || m.syncEventsTotal == nil || n <= 0 {
		return
	}

	m.syncEventsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrKind, kind)))
}

// RecordFullResync records a full resync. Reason is one of the ResyncReason constants.
func (m *Metrics) RecordFullResync(ctx context.Context, calendarID, reason string) {
	if m == nil || m.syncFullResyncs == nil {
		return
	}

	attrs := append([]attribute.KeyValue{
		attribute.String(attrReason, reason),
	}, m.calendarAttrs(calendarID)...)

	m.syncFullResyncs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMirrorMutation records a create or delete against the mirror calendar.
func (m *Metrics) RecordMirrorMutation(ctx context.Context, operation, status string) {
	if m == nil || m.mirrorMutations == nil {
		return
	}

	m.mirrorMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	))
}

// RecordLockWait records how long a cycle waited for the lock and whether it got it.
func (m *Metrics) RecordLockWait(ctx context.Context, wait time.Duration, acquired bool) {
	if m == nil || m.lockWaitDuration == nil || m.lockTimeoutsTotal == nil {
		return
	}

	m.lockWaitDuration.Record(ctx, wait.Seconds())
	if !acquired {
		m.lockTimeoutsTotal.Add(ctx, 1)
	}
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (calendar)
//   - operation: Operation type (list, insert, search, delete, calendar_get)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
