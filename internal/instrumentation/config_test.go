package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	for _, key := range []string{
		"OTEL_SERVICE_NAME", "INSTRUMENTATION_ENABLED", "METRICS_EXPORTER",
		"TRACING_EXPORTER", "OTEL_TRACES_SAMPLER_ARG", "AUDIT_LOGGING_ENABLED",
		"AUDIT_LOGGING_INCLUDE_CALENDAR_ID", "METRICS_DETAILED_LABELS",
		"BUSYMIRROR_SERVICE_NAME", "BUSYMIRROR_INSTRUMENTATION_ENABLED",
		"BUSYMIRROR_METRICS_EXPORTER", "BUSYMIRROR_TRACING_EXPORTER",
	} {
		t.Setenv(key, "")
	}

	config := DefaultConfig()

	assert.Equal(t, "busymirror", config.ServiceName)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.InDelta(t, 0.1, config.TraceSamplingRate, 1e-9)
	assert.False(t, config.DetailedLabels)
	assert.True(t, config.AuditLogging.Enabled)
	assert.False(t, config.AuditLogging.IncludeCalendarID)
	require.NoError(t, config.Validate())
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "busymirror-test")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("TRACING_EXPORTER", "stdout")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("AUDIT_LOGGING_INCLUDE_CALENDAR_ID", "true")
	t.Setenv("METRICS_DETAILED_LABELS", "1")

	config := DefaultConfig()

	assert.Equal(t, "busymirror-test", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterStdout, config.MetricsExporter)
	assert.Equal(t, ExporterStdout, config.TracingExporter)
	assert.InDelta(t, 0.5, config.TraceSamplingRate, 1e-9)
	assert.True(t, config.AuditLogging.IncludeCalendarID)
	assert.True(t, config.DetailedLabels)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		errContains string
	}{
		{
			name:   "prometheus without tracing",
			config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone},
		},
		{
			name: "otlp tracing with endpoint",
			config: Config{
				MetricsExporter: ExporterPrometheus,
				TracingExporter: ExporterOTLP,
				OTLPEndpoint:    "localhost:4318",
			},
		},
		{
			name:        "negative sampling rate",
			config:      Config{TraceSamplingRate: -0.5},
			errContains: "sampling rate",
		},
		{
			name:        "sampling rate above 1",
			config:      Config{TraceSamplingRate: 1.5},
			errContains: "sampling rate",
		},
		{
			name:        "unknown metrics exporter",
			config:      Config{MetricsExporter: "statsd"},
			errContains: "invalid metrics exporter",
		},
		{
			name:        "unknown tracing exporter",
			config:      Config{TracingExporter: "jaeger"},
			errContains: "invalid tracing exporter",
		},
		{
			name:        "otlp tracing without endpoint",
			config:      Config{TracingExporter: ExporterOTLP},
			errContains: "OTLP endpoint is required",
		},
		{
			name:        "otlp metrics without endpoint",
			config:      Config{MetricsExporter: ExporterOTLP},
			errContains: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestDefaultConfig_PrefixedEnvWins(t *testing.T) {
	t.Setenv("METRICS_EXPORTER", "otlp")
	t.Setenv("BUSYMIRROR_METRICS_EXPORTER", "stdout")
	t.Setenv("OTEL_SERVICE_NAME", "generic")
	t.Setenv("BUSYMIRROR_SERVICE_NAME", "")

	config := DefaultConfig()

	assert.Equal(t, ExporterStdout, config.MetricsExporter)
	assert.Equal(t, "generic", config.ServiceName)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BUSYMIRROR_TEST_STRING", "value")
	t.Setenv("BUSYMIRROR_TEST_BOOL", "true")
	t.Setenv("BUSYMIRROR_TEST_BAD_BOOL", "perhaps")
	t.Setenv("BUSYMIRROR_TEST_FLOAT", "0.25")
	t.Setenv("BUSYMIRROR_TEST_BAD_FLOAT", "quarter")

	assert.Equal(t, "value", envString("default", "BUSYMIRROR_TEST_STRING"))
	assert.Equal(t, "value", envString("default", "BUSYMIRROR_TEST_UNSET", "BUSYMIRROR_TEST_STRING"))
	assert.Equal(t, "default", envString("default", "BUSYMIRROR_TEST_UNSET"))

	assert.True(t, envBool(false, "BUSYMIRROR_TEST_BOOL"))
	assert.True(t, envBool(true, "BUSYMIRROR_TEST_BAD_BOOL"))
	assert.False(t, envBool(false, "BUSYMIRROR_TEST_UNSET"))

	assert.InDelta(t, 0.25, envFloat(1, "BUSYMIRROR_TEST_FLOAT"), 1e-9)
	assert.InDelta(t, 1.0, envFloat(1, "BUSYMIRROR_TEST_BAD_FLOAT"), 1e-9)
}
