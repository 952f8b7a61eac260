package logging

import (
	"log/slog"
)

// CronLogger adapts an slog.Logger to the logger interface of
// github.com/robfig/cron/v3, so scheduler events end up in the same stream
// as everything else.
type CronLogger struct {
	logger *slog.Logger
}

// NewCronLogger creates a CronLogger wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewCronLogger(logger *slog.Logger) *CronLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronLogger{logger: logger}
}

// Info logs routine scheduler activity. The scheduler is chatty, so these go
// to debug level.
func (a *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

// Error logs a scheduler error.
func (a *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{Err(err)}, keysAndValues...)
	a.logger.Error("cron: "+msg, args...)
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *CronLogger) Logger() *slog.Logger {
	return a.logger
}
