package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared by every package that logs.
const (
	KeyOperation = "operation"
	KeyCalendar  = "calendar"
	KeyMarker    = "marker"
	KeyEventID   = "event_id"
	KeyRunID     = "run_id"
	KeyToken     = "sync_token"
	KeyError     = "error"
)

// Log output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds a logger writing to w. Unknown formats fall back to text. In
// debug mode records also carry their source location.
func New(w io.Writer, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithCalendar scopes logger to one source calendar.
func WithCalendar(logger *slog.Logger, calendarID string) *slog.Logger {
	return logger.With(Calendar(calendarID))
}

// WithRunID scopes logger to one sync cycle.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String(KeyRunID, runID))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

func Calendar(calendarID string) slog.Attr { return slog.String(KeyCalendar, calendarID) }

// Marker is the source event id a mirrored event was created for.
func Marker(marker string) slog.Attr { return slog.String(KeyMarker, marker) }

func EventID(id string) slog.Attr { return slog.String(KeyEventID, id) }

// Err returns the error attribute, or an empty group that handlers drop when
// err is nil, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken describes a sync token by its length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// Token returns the sanitized sync token attribute.
func Token(token string) slog.Attr {
	return slog.String(KeyToken, SanitizeToken(token))
}
