package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCronLogger_WithNil(t *testing.T) {
	adapter := NewCronLogger(nil)
	if adapter == nil {
		t.Fatal("NewCronLogger returned nil")
	}
	if adapter.logger == nil {
		t.Error("adapter.logger should not be nil when created with nil")
	}
}

func TestCronLogger_Logger(t *testing.T) {
	logger := slog.Default()
	adapter := NewCronLogger(logger)
	if adapter.Logger() != logger {
		t.Error("Logger() should return the underlying logger")
	}
}

func TestCronLogger_InfoIsDebug(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCronLogger(New(&buf, FormatText, false))

	adapter.Info("wake", "now", "x")
	assert.Empty(t, buf.String(), "info from cron should be demoted to debug")

	buf.Reset()
	adapter = NewCronLogger(New(&buf, FormatText, true))
	adapter.Info("wake", "now", "x")
	assert.Contains(t, buf.String(), "cron: wake")
}

func TestCronLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCronLogger(New(&buf, FormatText, false))

	adapter.Error(errors.New("boom"), "panic", "entry", 1)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "cron: panic")
	assert.Contains(t, out, "error=boom")
}
