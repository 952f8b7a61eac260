package instrumentation

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test-service", Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name           string
		config         Config
		wantErr        bool
		wantPrometheus bool
	}{
		{
			name:           "prometheus",
			config:         Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone},
			wantPrometheus: true,
		},
		{
			name:   "stdout",
			config: Config{MetricsExporter: ExporterStdout, TracingExporter: ExporterStdout},
		},
		{
			name:    "unknown metrics exporter",
			config:  Config{MetricsExporter: "invalid", TracingExporter: ExporterNone},
			wantErr: true,
		},
		{
			name:    "unknown tracing exporter",
			config:  Config{MetricsExporter: ExporterPrometheus, TracingExporter: "invalid"},
			wantErr: true,
		},
		{
			name:    "otlp tracing without endpoint",
			config:  Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
			wantErr: true,
		},
		{
			name:    "otlp metrics without endpoint",
			config:  Config{MetricsExporter: ExporterOTLP, TracingExporter: ExporterNone},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tt.config.ServiceName = "test-service"
			tt.config.ServiceVersion = "1.0.0"
			tt.config.Enabled = true

			provider, err := NewProvider(ctx, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer func() { _ = provider.Shutdown(ctx) }()

			if !provider.Enabled() {
				t.Error("expected provider to be enabled")
			}
			if got := provider.PrometheusHandler() != nil; got != tt.wantPrometheus {
				t.Errorf("PrometheusHandler present = %v, want %v", got, tt.wantPrometheus)
			}
		})
	}
}

func TestProvider_AuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	provider, err := NewProvider(context.Background(), Config{
		Enabled:      false,
		AuditLogging: AuditLoggingConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	record := NewCycleRecord("run-1", "alice@example.com").Complete(nil)
	provider.AuditLogger(logger).LogCycle(context.Background(), record)

	if !bytes.Contains(buf.Bytes(), []byte("sync_cycle_completed")) {
		t.Errorf("expected audit record in log output, got %q", buf.String())
	}
}

func TestProvider_CycleDurationBuckets(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "busymirror-test",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	provider.Metrics().RecordSyncCycle(ctx, "alice@example.com", StatusSuccess, 90*time.Second)

	rec := httptest.NewRecorder()
	provider.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `sync_cycle_duration_seconds_bucket`) {
		t.Fatalf("expected cycle histogram in scrape output, got %q", body)
	}
	if !strings.Contains(body, `le="300"`) {
		t.Errorf("expected a 300s bucket, got %q", body)
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), Config{
		ServiceName:       "busymirror",
		ServiceVersion:    "1.2.3",
		ServiceInstanceID: "busymirror-0",
		K8sNamespace:      "calendars",
	})
	if err != nil {
		t.Fatalf("newResource() error = %v", err)
	}

	got := make(map[string]string)
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		"service.name":        "busymirror",
		"service.version":     "1.2.3",
		"service.instance.id": "busymirror-0",
		"k8s.namespace.name":  "calendars",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("resource attribute %s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["k8s.pod.name"]; ok {
		t.Error("unset pod name must not be recorded")
	}
}
