package instrumentation

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the telemetry settings of a busymirror process. Every field
// can be set from the environment; see DefaultConfig for the variable names.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname, which is the pod name when
	// running in Kubernetes.
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled switches metrics and tracing off entirely when false.
	Enabled bool

	// MetricsExporter is one of ExporterPrometheus, ExporterOTLP or ExporterStdout.
	MetricsExporter string

	// TracingExporter is one of ExporterOTLP, ExporterStdout or ExporterNone.
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme, e.g. "localhost:4318".
	OTLPEndpoint string

	// OTLPInsecure sends OTLP over plain HTTP. Spans name calendar ids, so
	// keep this off outside local development.
	OTLPInsecure bool

	TraceSamplingRate float64

	// PrometheusEndpoint is the scrape path served by the metrics server.
	PrometheusEndpoint string

	// DetailedLabels adds the source calendar id to sync metrics.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig controls the per-cycle audit record.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludeCalendarID logs the full source calendar id instead of only
	// its domain.
	IncludeCalendarID bool
}

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// DefaultConfig reads the configuration from the environment. A BUSYMIRROR_
// variable takes precedence over the generic or OTEL_ name next to it.
func DefaultConfig() Config {
	return Config{
		ServiceName:       envString("busymirror", "BUSYMIRROR_SERVICE_NAME", "OTEL_SERVICE_NAME"),
		ServiceVersion:    "unknown",
		ServiceInstanceID: envString("", "OTEL_SERVICE_INSTANCE_ID"),
		K8sNamespace:      envString("", "K8S_NAMESPACE", "POD_NAMESPACE"),
		K8sPodName:        envString("", "K8S_POD_NAME", "HOSTNAME"),

		Enabled:            envBool(true, "BUSYMIRROR_INSTRUMENTATION_ENABLED", "INSTRUMENTATION_ENABLED"),
		MetricsExporter:    envString(ExporterPrometheus, "BUSYMIRROR_METRICS_EXPORTER", "METRICS_EXPORTER"),
		TracingExporter:    envString(ExporterNone, "BUSYMIRROR_TRACING_EXPORTER", "TRACING_EXPORTER"),
		OTLPEndpoint:       envString("", "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:       envBool(false, "OTEL_EXPORTER_OTLP_INSECURE"),
		TraceSamplingRate:  envFloat(0.1, "OTEL_TRACES_SAMPLER_ARG"),
		PrometheusEndpoint: envString("/metrics", "BUSYMIRROR_METRICS_PATH", "PROMETHEUS_ENDPOINT"),
		DetailedLabels:     envBool(false, "BUSYMIRROR_METRICS_DETAILED_LABELS", "METRICS_DETAILED_LABELS"),

		AuditLogging: AuditLoggingConfig{
			Enabled:           envBool(true, "BUSYMIRROR_AUDIT_ENABLED", "AUDIT_LOGGING_ENABLED"),
			IncludeCalendarID: envBool(false, "BUSYMIRROR_AUDIT_INCLUDE_CALENDAR_ID", "AUDIT_LOGGING_INCLUDE_CALENDAR_ID"),
		},
	}
}

// Validate checks exporter names, the sampling rate and that an OTLP
// exporter has somewhere to send to. Empty exporter names mean the default.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: %s",
			c.MetricsExporter, strings.Join(metricsExporters, ", "))
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: %s",
			c.TracingExporter, strings.Join(tracingExporters, ", "))
	}
	if c.OTLPEndpoint == "" {
		if c.TracingExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
		if c.MetricsExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	}
	return nil
}

// lookupEnv returns the first non-empty value among keys.
func lookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value, true
		}
	}
	return "", false
}

func envString(def string, keys ...string) string {
	if value, ok := lookupEnv(keys...); ok {
		return value
	}
	return def
}

// envBool falls back to def when the value does not parse.
func envBool(def bool, keys ...string) bool {
	value, ok := lookupEnv(keys...)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(def float64, keys ...string) float64 {
	value, ok := lookupEnv(keys...)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// Label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"
	StatusTimeout = "timeout"
	StatusSkipped = "skipped"

	ResyncReasonNoToken     = "no_token"
	ResyncReasonForced      = "forced"
	ResyncReasonInvalidated = "token_invalidated"

	ServiceCalendar = "calendar"
)

// Exporter names.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultMetricInterval is the push interval of the periodic metric readers.
const DefaultMetricInterval = 10 * time.Second
