package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func newHealthMux(sc *ServerContext) (*HealthChecker, *http.ServeMux) {
	h := NewHealthChecker(sc)
	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)
	return h, mux
}

func TestHealth_Liveness(t *testing.T) {
	_, mux := newHealthMux(nil)
	code, body := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_ReadinessBeforeFirstCycle(t *testing.T) {
	_, mux := newHealthMux(NewServerContext(context.Background()))
	code, body := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["checks"].(map[string]any)["sync"])
}

func TestHealth_ReadinessFailsAfterRepeatedFailures(t *testing.T) {
	sc := NewServerContext(context.Background())
	h, mux := newHealthMux(sc)
	h.SetMaxConsecutiveFailures(2)

	boom := errors.New("quota exceeded")
	sc.RecordCycle(CycleStatus{RunID: "1", Err: boom})
	code, _ := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	sc.RecordCycle(CycleStatus{RunID: "2", Skipped: true})
	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code, "a skipped cycle does not count as a failure")

	sc.RecordCycle(CycleStatus{RunID: "3", Err: boom})
	code, body := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "failing", body["checks"].(map[string]any)["sync"])

	sc.RecordCycle(CycleStatus{RunID: "4"})
	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestHealth_ReadinessShutdown(t *testing.T) {
	sc := NewServerContext(context.Background())
	_, mux := newHealthMux(sc)
	require.NoError(t, sc.Shutdown())

	code, body := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting down", body["checks"].(map[string]any)["shutdown"])
	assert.Error(t, sc.Context().Err())
}

func TestHealth_NotReady(t *testing.T) {
	h, mux := newHealthMux(nil)
	h.SetReady(false)
	assert.False(t, h.IsReady())

	code, _ := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, body := get(t, mux, "/healthz/detailed")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])
}

func TestHealth_Detailed(t *testing.T) {
	sc := NewServerContext(context.Background())
	_, mux := newHealthMux(sc)

	started := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	sc.RecordCycle(CycleStatus{RunID: "run-1", Started: started, Duration: 2 * time.Second, Err: errors.New("boom")})

	code, body := get(t, mux, "/healthz/detailed")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["cycles"])

	last := body["last_cycle"].(map[string]any)
	assert.Equal(t, "run-1", last["run_id"])
	assert.Equal(t, "2s", last["duration"])
	assert.Equal(t, "boom", last["error"])
	assert.EqualValues(t, 1, last["consecutive_failures"])
}

func TestNewHealthServer(t *testing.T) {
	_, err := NewHealthServer(":0", nil, nil)
	assert.Error(t, err)

	s, err := NewHealthServer("", NewHealthChecker(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultHealthAddr, s.Addr())

	code, _ := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
}
