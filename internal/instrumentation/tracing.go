package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every busymirror span is created with.
const TracerName = "github.com/teemow/busymirror"

// SpanCycle is the root span of one reconciliation cycle.
const SpanCycle = "sync.cycle"

// EventFullSync is added to the cycle span when it lists without a token.
const EventFullSync = "full_sync"

// Span attribute keys.
const (
	AttrService   = attribute.Key("google.service")
	AttrOperation = attribute.Key("google.operation")
	AttrCalendar  = attribute.Key("busymirror.calendar")
	AttrRunID     = attribute.Key("busymirror.run_id")
	AttrDryRun    = attribute.Key("busymirror.dry_run")
	AttrFullSync  = attribute.Key("busymirror.full_sync")
	AttrReason    = attribute.Key("busymirror.resync_reason")
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartCycleSpan starts the root span of a reconciliation cycle.
func StartCycleSpan(ctx context.Context, calendarID, runID string, dryRun bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanCycle,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrCalendar.String(calendarID),
			AttrRunID.String(runID),
			AttrDryRun.Bool(dryRun),
		),
	)
}

// MarkFullSync flags the span in ctx as a full sync and records why.
// It may be called twice per cycle when a rejected token forces a resync.
func MarkFullSync(ctx context.Context, reason string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(AttrFullSync.Bool(true))
	span.AddEvent(EventFullSync, trace.WithAttributes(AttrReason.String(reason)))
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{AttrService.String(service), AttrOperation.String(operation)}, attrs...)
	return tracer().Start(ctx, "google."+service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the trace id of the span in ctx, or "" without one.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
