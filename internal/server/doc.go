// Package server provides the HTTP side of watch mode.
//
// MetricsServer exposes the instrumentation provider's Prometheus registry on
// a dedicated address. HealthServer exposes Kubernetes probes backed by a
// HealthChecker:
//
//   - /healthz: liveness, always ok while the process runs
//   - /readyz: not ready while shutting down or after repeated failed cycles
//   - /healthz/detailed: uptime and the outcome of the last cycle
//
// ServerContext carries the shutdown state and the last CycleStatus between
// the scheduler and the probes.
package server
