package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/busymirror/internal/calendar"
	"github.com/teemow/busymirror/internal/datewindow"
	"github.com/teemow/busymirror/internal/instrumentation"
	"github.com/teemow/busymirror/internal/logging"
)

// Calendar is the subset of the calendar API the store needs.
type Calendar interface {
	SearchEvents(ctx context.Context, calendarID string, opts calendar.SearchOptions) ([]calendar.MirrorEvent, error)
	InsertEvent(ctx context.Context, calendarID string, in calendar.MirrorInput) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// Mutation kinds used in logs and metrics.
const (
	OpDeleteSeries = "delete_series"
	OpDeleteSingle = "delete_single"
	OpCreate       = "create"
)

// Event is a placeholder to create.
type Event struct {
	Marker string
	Start  calendar.EventTime
	End    calendar.EventTime
	// Rules is the recurrence rule set. Empty for single events.
	Rules []string
}

// Removal summarizes what RemoveByMarker did.
type Removal struct {
	Series      int
	Singles     int
	AlreadyGone int
	Passes      int
}

// Removed returns the number of delete calls that took effect.
func (r Removal) Removed() int {
	return r.Series + r.Singles
}

// Store reads and writes placeholders in one calendar.
type Store struct {
	cal        Calendar
	calendarID string

	clock   datewindow.Clock
	back    int
	forward int
	dryRun  bool
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock the search window is computed from.
func WithClock(c datewindow.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithWindowDays sets how many days before and after now are searched.
func WithWindowDays(back, forward int) Option {
	return func(s *Store) {
		if back > 0 {
			s.back = back
		}
		if forward > 0 {
			s.forward = forward
		}
	}
}

// WithDryRun makes the store log mutations instead of performing them.
func WithDryRun(dryRun bool) Option {
	return func(s *Store) { s.dryRun = dryRun }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store for calendarID.
func New(cal Calendar, calendarID string, opts ...Option) *Store {
	s := &Store{
		cal:        cal,
		calendarID: calendarID,
		clock:      datewindow.SystemClock{},
		back:       datewindow.DefaultDays,
		forward:    datewindow.DefaultDays,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CalendarID returns the mirror calendar id.
func (s *Store) CalendarID() string {
	return s.calendarID
}

// DryRun reports whether mutations are skipped.
func (s *Store) DryRun() bool {
	return s.dryRun
}

// Window returns the current search window.
func (s *Store) Window() datewindow.Window {
	return datewindow.Around(s.clock.Now(), s.back, s.forward)
}

// RemoveByMarker deletes every placeholder in the search window whose
// description equals marker. Series are deleted as a whole, once per series
// id, and the search is repeated after each series deletion until a pass
// finds no new series. Events that are already gone count as removed.
func (s *Store) RemoveByMarker(ctx context.Context, marker string) (Removal, error) {
	var res Removal
	if marker == "" {
		return res, fmt.Errorf("marker cannot be empty")
	}

	window := s.Window()
	deletedSeries := make(map[string]bool)
	deletedSingles := make(map[string]bool)

	for {
		res.Passes++
		found, err := s.cal.SearchEvents(ctx, s.calendarID, calendar.SearchOptions{
			Query:   marker,
			TimeMin: window.Start,
			TimeMax: window.End,
		})
		if err != nil {
			return res, fmt.Errorf("search for %s: %w", marker, err)
		}

		restart := false
		for _, ev := range found {
			if ev.Description != marker {
				continue
			}

			if ev.IsRecurring() {
				if deletedSeries[ev.RecurringEventID] {
					continue
				}
				deletedSeries[ev.RecurringEventID] = true
				gone, err := s.delete(ctx, OpDeleteSeries, marker, ev.RecurringEventID)
				if err != nil {
					return res, err
				}
				res.Series++
				if gone {
					res.AlreadyGone++
				}
				restart = true
				break
			}

			if deletedSingles[ev.ID] {
				continue
			}
			deletedSingles[ev.ID] = true
			gone, err := s.delete(ctx, OpDeleteSingle, marker, ev.ID)
			if err != nil {
				return res, err
			}
			res.Singles++
			if gone {
				res.AlreadyGone++
			}
		}

		if !restart {
			return res, nil
		}
	}
}

// delete removes one event or series. gone is true when it no longer existed.
func (s *Store) delete(ctx context.Context, op, marker, eventID string) (gone bool, err error) {
	logger := s.logger.With(logging.Operation(op), logging.Marker(marker), logging.EventID(eventID))

	if s.dryRun {
		logger.Info("dry run: would delete mirrored event")
		s.metrics.RecordMirrorMutation(ctx, op, instrumentation.StatusSkipped)
		return false, nil
	}

	err = s.cal.DeleteEvent(ctx, s.calendarID, eventID)
	switch {
	case err == nil:
		logger.Debug("deleted mirrored event")
		s.metrics.RecordMirrorMutation(ctx, op, instrumentation.StatusSuccess)
		return false, nil
	case calendar.IsNotFound(err):
		logger.Debug("mirrored event already gone")
		s.metrics.RecordMirrorMutation(ctx, op, instrumentation.StatusSuccess)
		return true, nil
	default:
		s.metrics.RecordMirrorMutation(ctx, op, instrumentation.StatusError)
		return false, fmt.Errorf("%s %s: %w", op, eventID, err)
	}
}

// Create inserts a busy placeholder for ev and returns its id. In dry-run mode
// nothing is created and the id is empty.
func (s *Store) Create(ctx context.Context, ev Event) (string, error) {
	if ev.Marker == "" {
		return "", fmt.Errorf("marker cannot be empty")
	}
	if ev.End.Time.Before(ev.Start.Time) {
		return "", fmt.Errorf("end %s before start %s", ev.End.Time, ev.Start.Time)
	}

	logger := s.logger.With(logging.Operation(OpCreate), logging.Marker(ev.Marker),
		slog.Time("start", ev.Start.Time), slog.Bool("recurring", len(ev.Rules) > 0))

	if s.dryRun {
		logger.Info("dry run: would create mirrored event")
		s.metrics.RecordMirrorMutation(ctx, OpCreate, instrumentation.StatusSkipped)
		return "", nil
	}

	id, err := s.cal.InsertEvent(ctx, s.calendarID, calendar.MirrorInput{
		Summary:     calendar.BusySummary,
		Description: ev.Marker,
		Start:       ev.Start,
		End:         ev.End,
		Recurrence:  ev.Rules,
	})
	if err != nil {
		s.metrics.RecordMirrorMutation(ctx, OpCreate, instrumentation.StatusError)
		return "", fmt.Errorf("create mirrored event: %w", err)
	}

	s.metrics.RecordMirrorMutation(ctx, OpCreate, instrumentation.StatusSuccess)
	logger.Debug("created mirrored event", logging.EventID(id))
	return id, nil
}
