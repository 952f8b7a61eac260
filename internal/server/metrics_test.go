package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teemow/busymirror/internal/instrumentation"
)

func TestNewMetricsServer_Errors(t *testing.T) {
	tests := map[string]struct {
		provider *instrumentation.Provider
		wantErr  string
	}{
		"missing provider":  {provider: nil, wantErr: "instrumentation provider is required"},
		"disabled provider": {provider: newProvider(t, false, instrumentation.ExporterPrometheus), wantErr: "not enabled"},
		"stdout exporter":   {provider: newProvider(t, true, instrumentation.ExporterStdout), wantErr: "no prometheus exporter"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: tt.provider})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewMetricsServer() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewMetricsServer_Defaults(t *testing.T) {
	s, err := NewMetricsServer(MetricsServerConfig{
		InstrumentationProvider: newProvider(t, true, instrumentation.ExporterPrometheus),
	})
	if err != nil {
		t.Fatalf("NewMetricsServer() error = %v", err)
	}
	if got := s.Addr(); got != DefaultMetricsAddr {
		t.Errorf("Addr() before Start = %q, want %q", got, DefaultMetricsAddr)
	}
}

func TestMetricsServer_CustomPath(t *testing.T) {
	provider := newProvider(t, true, instrumentation.ExporterPrometheus)
	provider.Metrics().RecordSyncCycle(context.Background(), "private@example.com", instrumentation.StatusSuccess, time.Second)
	provider.Metrics().RecordMirrorMutation(context.Background(), "create", instrumentation.StatusSuccess)

	s, err := NewMetricsServer(MetricsServerConfig{
		Path:                    "/busymirror/metrics",
		InstrumentationProvider: provider,
	})
	if err != nil {
		t.Fatalf("NewMetricsServer() error = %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/busymirror/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	for _, want := range []string{"sync_cycles_total", "mirror_mutations_total"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("scrape output lacks %s", want)
		}
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("default path status = %d, want 404 when a custom path is set", rec.Code)
	}
}

type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
	Addr() string
}

// serve starts s on an ephemeral port and returns its base URL together with
// a stop function that fails the test if Start reported anything but a
// clean close.
func serve(t *testing.T, s lifecycle) (string, func()) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	deadline := time.Now().Add(2 * time.Second)
	for strings.HasSuffix(s.Addr(), ":0") {
		if time.Now().After(deadline) {
			t.Fatalf("server did not bind within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		select {
		case err := <-done:
			if !errors.Is(err, http.ErrServerClosed) {
				t.Errorf("Start() returned %v, want http.ErrServerClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Start() did not return after Shutdown()")
		}
	}
	return "http://" + s.Addr(), stop
}

func fetch(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestMetricsServer_Lifecycle(t *testing.T) {
	s, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		InstrumentationProvider: newProvider(t, true, instrumentation.ExporterPrometheus),
	})
	if err != nil {
		t.Fatalf("NewMetricsServer() error = %v", err)
	}

	base, stop := serve(t, s)
	defer stop()

	if code, body := fetch(t, base+"/healthz"); code != http.StatusOK || body != "ok" {
		t.Errorf("GET /healthz = %d %q, want 200 \"ok\"", code, body)
	}
	if code, _ := fetch(t, base+"/metrics"); code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", code)
	}
}

func TestHealthServer_Lifecycle(t *testing.T) {
	checker := NewHealthChecker(NewServerContext(context.Background()))
	s, err := NewHealthServer("127.0.0.1:0", checker, nil)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}

	base, stop := serve(t, s)
	defer stop()

	if code, _ := fetch(t, base+"/healthz"); code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", code)
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s, err := NewHealthServer("127.0.0.1:0", NewHealthChecker(nil), nil)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() before Start() error = %v", err)
	}
}

func TestServer_ListenError(t *testing.T) {
	s, err := NewHealthServer("127.0.0.1:99999", NewHealthChecker(nil), nil)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}
	if err := s.Start(); err == nil || !strings.Contains(err.Error(), "health server") {
		t.Errorf("Start() error = %v, want a listen error naming the health server", err)
	}
}

func newProvider(t *testing.T, enabled bool, exporter string) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "busymirror-test",
		Enabled:         enabled,
		MetricsExporter: exporter,
		TracingExporter: instrumentation.ExporterNone,
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })
	return provider
}
