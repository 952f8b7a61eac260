package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusFailing      = "failing"
	healthStatusPending      = "pending"
)

// DefaultMaxConsecutiveFailures is the number of failed cycles in a row after
// which the watcher reports itself as not ready.
const DefaultMaxConsecutiveFailures = 3

// HealthChecker serves the Kubernetes probes of the watch command. A nil
// ServerContext is allowed and reports a process with no cycles yet.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
	maxFailures   int
}

// NewHealthChecker returns a checker that starts out ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
		maxFailures:   DefaultMaxConsecutiveFailures,
	}
	h.ready.Store(true)
	return h
}

// SetMaxConsecutiveFailures changes the readiness threshold. Zero or less
// disables the check.
func (h *HealthChecker) SetMaxConsecutiveFailures(n int) {
	h.maxFailures = n
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status    string          `json:"status"`
	Uptime    string          `json:"uptime"`
	Cycles    int             `json:"cycles"`
	LastCycle *LastCycleState `json:"last_cycle,omitempty"`
}

// LastCycleState is the JSON form of CycleStatus.
type LastCycleState struct {
	RunID               string    `json:"run_id"`
	Started             time.Time `json:"started"`
	Duration            string    `json:"duration"`
	Skipped             bool      `json:"skipped,omitempty"`
	Error               string    `json:"error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// readiness is the outcome of one evaluation of the readiness checks.
type readiness struct {
	checks map[string]string
	// status is the first failing check's value, or ok.
	status string
}

func (r readiness) ok() bool { return r.status == healthStatusOK }

func (h *HealthChecker) evaluate() readiness {
	r := readiness{
		checks: map[string]string{
			"ready":    healthStatusOK,
			"shutdown": healthStatusOK,
			"sync":     healthStatusPending,
		},
		status: healthStatusOK,
	}
	fail := func(check, value string) {
		r.checks[check] = value
		if r.status == healthStatusOK {
			r.status = value
		}
	}

	if !h.ready.Load() {
		fail("ready", healthStatusNotReady)
	}
	if h.serverContext == nil {
		return r
	}
	if h.serverContext.IsShutdown() {
		fail("shutdown", healthStatusShuttingDown)
	}
	if last, ok := h.serverContext.LastCycle(); ok {
		if h.maxFailures > 0 && last.ConsecutiveFailures >= h.maxFailures {
			fail("sync", healthStatusFailing)
		} else {
			r.checks["sync"] = healthStatusOK
		}
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// LivenessHandler serves /healthz. It succeeds while the process can answer.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz. The watcher is ready while it is not
// shutting down and its recent cycles have not failed repeatedly.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r := h.evaluate()
		status := healthStatusOK
		if !r.ok() {
			status = healthStatusNotReady
		}
		writeJSON(w, statusCode(r.ok()), HealthResponse{Status: status, Checks: r.checks})
	})
}

// DetailedHealthHandler serves /healthz/detailed with the outcome of the
// last sync cycle.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r := h.evaluate()
		response := DetailedHealthResponse{
			Status: r.status,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if h.serverContext != nil {
			response.Cycles = h.serverContext.Cycles()
			if last, ok := h.serverContext.LastCycle(); ok {
				state := &LastCycleState{
					RunID:               last.RunID,
					Started:             last.Started,
					Duration:            last.Duration.String(),
					Skipped:             last.Skipped,
					ConsecutiveFailures: last.ConsecutiveFailures,
				}
				if last.Err != nil {
					state.Error = last.Err.Error()
				}
				response.LastCycle = state
			}
		}

		writeJSON(w, statusCode(r.ok()), response)
	})
}

// RegisterHealthEndpoints registers the probe endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
