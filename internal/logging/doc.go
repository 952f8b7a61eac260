// Package logging builds the slog loggers used by busymirror and names the
// attributes they share.
//
// Sync tokens are only ever logged through Token, which records their length.
// Source event summaries and descriptions are never logged; the source event
// id appears as the marker attribute.
//
//	logger := logging.WithCalendar(logging.New(os.Stderr, logging.FormatJSON, false), calendarID)
//	logger.Warn("sync token rejected", logging.Token(token))
//
// NewCronLogger adapts a logger to the cron scheduler used by the watch command.
package logging
