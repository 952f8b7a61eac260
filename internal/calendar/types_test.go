package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"
)

func TestFromAPIEvent_Classification(t *testing.T) {
	dt := func(s string) *calendar.EventDateTime { return &calendar.EventDateTime{DateTime: s} }

	tests := []struct {
		name  string
		event *calendar.Event
		want  string
	}{
		{
			name:  "cancelled with times",
			event: &calendar.Event{Id: "a", Status: StatusCancelled, Start: dt("2026-10-18T14:00:00Z")},
			want:  KindCancelled,
		},
		{
			name:  "cancelled without times",
			event: &calendar.Event{Id: "a", Status: StatusCancelled},
			want:  KindCancelled,
		},
		{
			name:  "all day",
			event: &calendar.Event{Id: "a", Status: StatusConfirmed, Start: &calendar.EventDateTime{Date: "2026-10-18"}},
			want:  KindAllDay,
		},
		{
			name:  "timed",
			event: &calendar.Event{Id: "a", Status: StatusConfirmed, Start: dt("2026-10-18T14:00:00Z"), End: dt("2026-10-18T15:00:00Z")},
			want:  KindTimed,
		},
		{
			name:  "tentative is still mirrored",
			event: &calendar.Event{Id: "a", Status: StatusTentative, Start: dt("2026-10-18T14:00:00Z"), End: dt("2026-10-18T15:00:00Z")},
			want:  KindTimed,
		},
		{
			name: "recurring",
			event: &calendar.Event{
				Id: "a", Status: StatusConfirmed,
				Start: dt("2026-10-18T14:00:00Z"), End: dt("2026-10-18T15:00:00Z"),
				Recurrence: []string{"RRULE:FREQ=DAILY;COUNT=5"},
			},
			want: KindRecurring,
		},
		{
			name:  "missing start",
			event: &calendar.Event{Id: "a", Status: StatusConfirmed},
			want:  KindUnknown,
		},
		{
			name:  "garbled start",
			event: &calendar.Event{Id: "a", Status: StatusConfirmed, Start: dt("tomorrow at two")},
			want:  KindUnknown,
		},
		{
			name:  "end before start",
			event: &calendar.Event{Id: "a", Status: StatusConfirmed, Start: dt("2026-10-18T15:00:00Z"), End: dt("2026-10-18T14:00:00Z")},
			want:  KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAPIEvent(tt.event)
			assert.Equal(t, tt.want, Kind(got.Shape))
			assert.Equal(t, tt.event.Id, got.ID)
		})
	}
}

func TestFromAPIEvent_RecurringKeepsRuleOrder(t *testing.T) {
	rules := []string{
		"RRULE:FREQ=WEEKLY;BYDAY=MO,WE",
		"EXDATE;TZID=Europe/Berlin:20261021T140000",
	}
	ev := &calendar.Event{
		Id:         "series",
		Status:     StatusConfirmed,
		Start:      &calendar.EventDateTime{DateTime: "2026-10-19T14:00:00+02:00", TimeZone: "Europe/Berlin"},
		End:        &calendar.EventDateTime{DateTime: "2026-10-19T14:30:00+02:00", TimeZone: "Europe/Berlin"},
		Recurrence: rules,
	}

	got := FromAPIEvent(ev)
	rec, ok := got.Shape.(Recurring)
	require.True(t, ok)
	assert.Equal(t, rules, rec.Rules)
	assert.Equal(t, 30*time.Minute, rec.End.Time.Sub(rec.Start.Time))

	ev.Recurrence[0] = "mutated"
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO,WE", rec.Rules[0])
}

func TestKind_Nil(t *testing.T) {
	assert.Equal(t, KindUnknown, Kind(nil))
	assert.Equal(t, KindUnknown, FromAPIEvent(nil).Shape.shape())
}

func TestNewMirrorAPIEvent_DefaultsSummary(t *testing.T) {
	ev := NewMirrorAPIEvent(MirrorInput{
		Description: "evt-1",
		Start:       EventTime{Time: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		End:         EventTime{Time: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
	})
	assert.Equal(t, BusySummary, ev.Summary)
	assert.Nil(t, ev.Recurrence)
	assert.False(t, ev.Reminders.UseDefault)
}
