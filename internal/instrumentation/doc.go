// Package instrumentation wires OpenTelemetry metrics and tracing into the
// sync engine and writes one audit record per reconciliation cycle.
//
// Metrics are exported through Prometheus by default. Each Provider owns its
// registry, served by the watch command's metrics server:
//
//	sync_cycles_total                       cycles by status
//	sync_cycle_duration_seconds             cycle duration
//	sync_events_total                       source events by kind
//	sync_full_resyncs_total                 full resyncs by reason
//	mirror_mutations_total                  mirror writes by operation and status
//	lock_wait_duration_seconds              time spent waiting for the sync lock
//	lock_timeouts_total                     cycles skipped because the lock was held
//	google_api_operations_total             Google API calls by operation and status
//	google_api_operation_duration_seconds   Google API call duration
//
// Spans cover a cycle (sync.cycle) and each Google API call
// (google.calendar.<operation>). A cycle that lists without a sync token
// carries a full_sync event naming the reason.
//
// Settings come from the environment, see DefaultConfig. The most common are
// BUSYMIRROR_INSTRUMENTATION_ENABLED, BUSYMIRROR_METRICS_EXPORTER,
// BUSYMIRROR_TRACING_EXPORTER and OTEL_EXPORTER_OTLP_ENDPOINT.
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSyncCycle(ctx, calendarID, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
