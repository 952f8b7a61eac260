package calendar

import (
	"errors"
	"fmt"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// Event status values reported by the API.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// BusySummary is the title of every mirrored event.
const BusySummary = "busy"

var (
	// ErrSyncTokenInvalidated is returned by ListEvents when the server no
	// longer accepts the sync token and a full resync is required.
	ErrSyncTokenInvalidated = errors.New("sync token is no longer valid")

	// ErrEventNotFound is returned by DeleteEvent when the event is already gone.
	ErrEventNotFound = errors.New("event not found")
)

// EventTime is a point in time together with the IANA zone the source used.
type EventTime struct {
	Time     time.Time
	TimeZone string
}

// IsZero reports whether the time is unset.
func (t EventTime) IsZero() bool {
	return t.Time.IsZero()
}

// Shape is the temporal form of a source event.
type Shape interface {
	shape() string
}

// Cancelled is a source event that was deleted or cancelled.
type Cancelled struct{}

// AllDay is an event with a date-only start.
type AllDay struct {
	Date string // YYYY-MM-DD
}

// Timed is a single event with a start and end time.
type Timed struct {
	Start EventTime
	End   EventTime
}

// Recurring is a series master. Start and End describe the first instance.
type Recurring struct {
	Start EventTime
	End   EventTime
	Rules []string // RRULE, EXRULE, RDATE and EXDATE lines, in source order
}

// Unknown is an event whose time could not be interpreted.
type Unknown struct {
	Reason string
}

func (Cancelled) shape() string { return KindCancelled }
func (AllDay) shape() string    { return KindAllDay }
func (Timed) shape() string     { return KindTimed }
func (Recurring) shape() string { return KindRecurring }
func (Unknown) shape() string   { return KindUnknown }

// Shape kinds, also used as metric label values.
const (
	KindCancelled = "cancelled"
	KindAllDay    = "all_day"
	KindTimed     = "timed"
	KindRecurring = "recurring"
	KindUnknown   = "unknown"
)

// Kind returns the kind label of s.
func Kind(s Shape) string {
	if s == nil {
		return KindUnknown
	}
	return s.shape()
}

// SourceEvent is an event read from the private calendar. Summary and
// description are deliberately not carried.
type SourceEvent struct {
	ID               string
	Status           string
	RecurringEventID string
	Shape            Shape
}

// ListOptions selects a page of the source calendar. SyncToken and TimeMin
// are mutually exclusive.
type ListOptions struct {
	SyncToken  string
	TimeMin    time.Time
	PageToken  string
	MaxResults int64
}

// EventPage is one page of a delta listing. NextSyncToken is only set on the
// last page.
type EventPage struct {
	Events        []SourceEvent
	NextPageToken string
	NextSyncToken string
}

// SearchOptions is a full-text search over expanded instances in a window.
type SearchOptions struct {
	Query   string
	TimeMin time.Time
	TimeMax time.Time
}

// MirrorEvent is an event found in the mirror calendar.
type MirrorEvent struct {
	ID               string
	RecurringEventID string
	Description      string
	Status           string
	Start            time.Time
	End              time.Time
}

// IsRecurring reports whether the event is an instance of a series.
func (e MirrorEvent) IsRecurring() bool {
	return e.RecurringEventID != ""
}

// MirrorInput describes a busy placeholder to insert.
type MirrorInput struct {
	Summary     string
	Description string
	Start       EventTime
	End         EventTime
	Recurrence  []string
}

// FromAPIEvent classifies an API event.
func FromAPIEvent(ev *calendar.Event) SourceEvent {
	if ev == nil {
		return SourceEvent{Shape: Unknown{Reason: "nil event"}}
	}

	se := SourceEvent{
		ID:               ev.Id,
		Status:           ev.Status,
		RecurringEventID: ev.RecurringEventId,
	}
	se.Shape = classify(ev)
	return se
}

func classify(ev *calendar.Event) Shape {
	if ev.Status == StatusCancelled {
		return Cancelled{}
	}
	if ev.Start == nil {
		return Unknown{Reason: "missing start"}
	}
	if ev.Start.Date != "" {
		return AllDay{Date: ev.Start.Date}
	}

	start, err := parseEventDateTime(ev.Start)
	if err != nil {
		return Unknown{Reason: err.Error()}
	}
	end := start
	if ev.End != nil {
		if end, err = parseEventDateTime(ev.End); err != nil {
			return Unknown{Reason: err.Error()}
		}
	}
	if end.Time.Before(start.Time) {
		return Unknown{Reason: "end before start"}
	}

	if len(ev.Recurrence) > 0 {
		rules := make([]string, len(ev.Recurrence))
		copy(rules, ev.Recurrence)
		return Recurring{Start: start, End: end, Rules: rules}
	}
	return Timed{Start: start, End: end}
}

func parseEventDateTime(dt *calendar.EventDateTime) (EventTime, error) {
	if dt.DateTime == "" {
		return EventTime{}, fmt.Errorf("missing dateTime")
	}
	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return EventTime{}, fmt.Errorf("invalid dateTime %q: %w", dt.DateTime, err)
	}
	return EventTime{Time: t, TimeZone: dt.TimeZone}, nil
}

func toMirrorEvent(ev *calendar.Event) MirrorEvent {
	if ev == nil {
		return MirrorEvent{}
	}

	me := MirrorEvent{
		ID:               ev.Id,
		RecurringEventID: ev.RecurringEventId,
		Description:      ev.Description,
		Status:           ev.Status,
	}
	if ev.Start != nil {
		if t, err := parseEventDateTime(ev.Start); err == nil {
			me.Start = t.Time
		}
	}
	if ev.End != nil {
		if t, err := parseEventDateTime(ev.End); err == nil {
			me.End = t.Time
		}
	}
	return me
}

func toEventDateTime(t EventTime) *calendar.EventDateTime {
	tz := t.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return &calendar.EventDateTime{
		DateTime: t.Time.Format(time.RFC3339),
		TimeZone: tz,
	}
}

// NewMirrorAPIEvent builds the busy placeholder. Reminders are disabled and the event
// is opaque so it blocks availability.
func NewMirrorAPIEvent(in MirrorInput) *calendar.Event {
	summary := in.Summary
	if summary == "" {
		summary = BusySummary
	}

	ev := &calendar.Event{
		Summary:      summary,
		Description:  in.Description,
		Start:        toEventDateTime(in.Start),
		End:          toEventDateTime(in.End),
		Transparency: "opaque",
		Visibility:   "default",
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if len(in.Recurrence) > 0 {
		ev.Recurrence = in.Recurrence
	}
	return ev
}
