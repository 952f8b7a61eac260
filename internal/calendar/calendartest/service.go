// Package calendartest provides an in-memory Google Calendar for tests.
//
// Service mimics the parts of the Calendar API that busymirror relies on:
// sync tokens that return only later changes (including cancellations),
// pagination, server-side token invalidation, full-text search over expanded
// recurring instances, and deletion of instances, single events and series.
package calendartest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/busymirror/internal/calendar"
)

// maxInstances bounds expansion of open-ended series.
const maxInstances = 1000

type stored struct {
	ev  *gcal.Event
	seq int64
}

type calendarState struct {
	events map[string]*stored
	// deletedInstances holds start times (unix seconds) of deleted instances per series
	deletedInstances map[string]map[int64]bool
	minValidSeq      int64
}

// Service is an in-memory calendar backend. The zero value is not usable; use New.
type Service struct {
	mu        sync.Mutex
	seq       int64
	nextID    int
	defaultID string
	calendars map[string]*calendarState
	failures  map[string][]error
	calls     map[string]int
}

// New creates an empty Service whose primary calendar is defaultCalendarID.
func New(defaultCalendarID string) *Service {
	return &Service{
		defaultID: defaultCalendarID,
		calendars: make(map[string]*calendarState),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

func (s *Service) calendar(id string) *calendarState {
	c, ok := s.calendars[id]
	if !ok {
		c = &calendarState{
			events:           make(map[string]*stored),
			deletedInstances: make(map[string]map[int64]bool),
		}
		s.calendars[id] = c
	}
	return c
}

func (s *Service) put(calendarID string, ev *gcal.Event) {
	s.seq++
	s.calendar(calendarID).events[ev.Id] = &stored{ev: ev, seq: s.seq}
}

// PutEvent adds or replaces a raw event in calendarID.
func (s *Service) PutEvent(calendarID string, ev *gcal.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ev
	if cp.Status == "" {
		cp.Status = calendar.StatusConfirmed
	}
	s.put(calendarID, &cp)
}

// PutTimed adds or replaces a single timed event.
func (s *Service) PutTimed(calendarID, id string, start, end time.Time) {
	s.PutEvent(calendarID, &gcal.Event{
		Id:      id,
		Summary: "private " + id,
		Start:   &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: zoneName(start)},
		End:     &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: zoneName(end)},
	})
}

// PutRecurring adds or replaces a series master.
func (s *Service) PutRecurring(calendarID, id string, start, end time.Time, rules ...string) {
	s.PutEvent(calendarID, &gcal.Event{
		Id:         id,
		Summary:    "private " + id,
		Start:      &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: zoneName(start)},
		End:        &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: zoneName(end)},
		Recurrence: rules,
	})
}

// PutAllDay adds or replaces an all-day event on date (YYYY-MM-DD).
func (s *Service) PutAllDay(calendarID, id, date string) {
	s.PutEvent(calendarID, &gcal.Event{
		Id:      id,
		Summary: "private " + id,
		Start:   &gcal.EventDateTime{Date: date},
		End:     &gcal.EventDateTime{Date: date},
	})
}

// Cancel marks an event cancelled. Cancelled events remain visible to
// incremental listings.
func (s *Service) Cancel(calendarID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.calendar(calendarID)
	st, ok := c.events[id]
	if !ok {
		s.put(calendarID, &gcal.Event{Id: id, Status: calendar.StatusCancelled})
		return
	}
	cp := *st.ev
	cp.Status = calendar.StatusCancelled
	s.put(calendarID, &cp)
}

// InvalidateSyncTokens makes every token issued so far for calendarID fail
// with calendar.ErrSyncTokenInvalidated.
func (s *Service) InvalidateSyncTokens(calendarID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.calendar(calendarID).minValidSeq = s.seq
}

// FailNext makes the next call of op (one of the calendar.Op constants) fail with err.
func (s *Service) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// FailAfter lets the next skip calls of op succeed and fails the one after
// with err. Use it to fail a later page of a listing.
func (s *Service) FailAfter(op string, skip int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range skip {
		s.failures[op] = append(s.failures[op], nil)
	}
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op was called.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// call counts op and pops a queued failure.
func (s *Service) call(op string) error {
	s.calls[op]++
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

// LiveEvents returns copies of the non-cancelled events in calendarID, ordered by id.
func (s *Service) LiveEvents(calendarID string) []*gcal.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*gcal.Event
	for _, st := range s.calendar(calendarID).events {
		if st.ev.Status == calendar.StatusCancelled {
			continue
		}
		cp := *st.ev
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// Instances returns all live expanded instances in calendarID overlapping [from, to).
func (s *Service) Instances(calendarID string, from, to time.Time) []calendar.MirrorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instances(s.calendar(calendarID), "", from, to)
}

func syncToken(seq int64) string {
	return "fake-sync-" + strconv.FormatInt(seq, 10)
}

func parseSyncToken(token string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(token, "fake-sync-"), 10, 64)
	return n, err == nil && strings.HasPrefix(token, "fake-sync-")
}

func parsePageToken(token string) (snapshot int64, offset int, err error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid page token %q", token)
	}
	if snapshot, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid page token %q", token)
	}
	if offset, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid page token %q", token)
	}
	return snapshot, offset, nil
}

// ListEvents implements delta listing with sync tokens and pagination.
func (s *Service) ListEvents(_ context.Context, calendarID string, opts calendar.ListOptions) (*calendar.EventPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.call(calendar.OpList); err != nil {
		return nil, err
	}
	if opts.SyncToken != "" && !opts.TimeMin.IsZero() {
		return nil, fmt.Errorf("syncToken and timeMin are mutually exclusive")
	}

	c := s.calendar(calendarID)

	var since int64
	if opts.SyncToken != "" {
		seq, ok := parseSyncToken(opts.SyncToken)
		if !ok || seq < c.minValidSeq {
			return nil, fmt.Errorf("%w: Sync token is no longer valid, a full sync is required", calendar.ErrSyncTokenInvalidated)
		}
		since = seq
	}

	snapshot, offset := s.seq, 0
	if opts.PageToken != "" {
		var err error
		if snapshot, offset, err = parsePageToken(opts.PageToken); err != nil {
			return nil, err
		}
	}

	var matching []*stored
	for _, st := range c.events {
		if st.seq > snapshot {
			continue
		}
		if opts.SyncToken != "" {
			if st.seq > since {
				matching = append(matching, st)
			}
			continue
		}
		if st.ev.Status == calendar.StatusCancelled {
			continue
		}
		if opts.TimeMin.IsZero() || s.endsAfter(st.ev, opts.TimeMin) {
			matching = append(matching, st)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].seq < matching[j].seq })

	pageSize := int(opts.MaxResults)
	if pageSize <= 0 {
		pageSize = calendar.DefaultMaxResults
	}
	if offset > len(matching) {
		offset = len(matching)
	}
	end := offset + pageSize
	if end > len(matching) {
		end = len(matching)
	}

	page := &calendar.EventPage{}
	for _, st := range matching[offset:end] {
		cp := *st.ev
		page.Events = append(page.Events, calendar.FromAPIEvent(&cp))
	}
	if end < len(matching) {
		page.NextPageToken = fmt.Sprintf("%d:%d", snapshot, end)
	} else {
		page.NextSyncToken = syncToken(snapshot)
	}
	return page, nil
}

// endsAfter reports whether ev, or any instance of it, ends after t.
func (s *Service) endsAfter(ev *gcal.Event, t time.Time) bool {
	if ev.Start == nil {
		return false
	}
	if ev.Start.Date != "" {
		d, err := time.Parse("2006-01-02", ev.Start.Date)
		return err == nil && !d.AddDate(0, 0, 1).Before(t)
	}
	start, end, ok := eventTimes(ev)
	if !ok {
		return false
	}
	if len(ev.Recurrence) == 0 {
		return end.After(t)
	}
	set, err := ruleSet(ev.Recurrence, start)
	if err != nil {
		return false
	}
	return !set.After(t.Add(-end.Sub(start)), false).IsZero()
}

// InsertEvent stores a mirror event.
func (s *Service) InsertEvent(_ context.Context, calendarID string, in calendar.MirrorInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.call(calendar.OpInsert); err != nil {
		return "", err
	}

	s.nextID++
	ev := calendar.NewMirrorAPIEvent(in)
	ev.Id = fmt.Sprintf("mirror%04d", s.nextID)
	ev.Status = calendar.StatusConfirmed
	s.put(calendarID, ev)
	return ev.Id, nil
}

// SearchEvents returns expanded instances whose summary or description
// contains the query, case-insensitively.
func (s *Service) SearchEvents(_ context.Context, calendarID string, opts calendar.SearchOptions) ([]calendar.MirrorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.call(calendar.OpSearch); err != nil {
		return nil, err
	}
	return s.instances(s.calendar(calendarID), opts.Query, opts.TimeMin, opts.TimeMax), nil
}

func (s *Service) instances(c *calendarState, query string, from, to time.Time) []calendar.MirrorEvent {
	query = strings.ToLower(query)

	var out []calendar.MirrorEvent
	for _, st := range c.events {
		ev := st.ev
		if ev.Status == calendar.StatusCancelled {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(ev.Description), query) &&
			!strings.Contains(strings.ToLower(ev.Summary), query) {
			continue
		}
		start, end, ok := eventTimes(ev)
		if !ok {
			continue
		}

		if len(ev.Recurrence) == 0 {
			if overlaps(start, end, from, to) {
				out = append(out, calendar.MirrorEvent{
					ID: ev.Id, Description: ev.Description, Status: ev.Status, Start: start, End: end,
				})
			}
			continue
		}

		set, err := ruleSet(ev.Recurrence, start)
		if err != nil {
			continue
		}
		dur := end.Sub(start)
		lo, hi := from.Add(-dur), to
		if from.IsZero() {
			lo = start
		}
		if to.IsZero() {
			hi = start.AddDate(2, 0, 0)
		}
		for i, occ := range set.Between(lo, hi, true) {
			if i >= maxInstances {
				break
			}
			if c.deletedInstances[ev.Id][occ.Unix()] || !overlaps(occ, occ.Add(dur), from, to) {
				continue
			}
			out = append(out, calendar.MirrorEvent{
				ID:               instanceID(ev.Id, occ),
				RecurringEventID: ev.Id,
				Description:      ev.Description,
				Status:           ev.Status,
				Start:            occ,
				End:              occ.Add(dur),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteEvent deletes a single event, a whole series (given the master id) or
// one instance (given an instance id).
func (s *Service) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.call(calendar.OpDelete); err != nil {
		return err
	}

	c := s.calendar(calendarID)
	if st, ok := c.events[eventID]; ok {
		if st.ev.Status == calendar.StatusCancelled {
			return fmt.Errorf("%w: %s", calendar.ErrEventNotFound, eventID)
		}
		cp := *st.ev
		cp.Status = calendar.StatusCancelled
		s.put(calendarID, &cp)
		return nil
	}

	if series, at, ok := parseInstanceID(eventID); ok {
		if st, found := c.events[series]; found && st.ev.Status != calendar.StatusCancelled {
			if c.deletedInstances[series] == nil {
				c.deletedInstances[series] = make(map[int64]bool)
			}
			if c.deletedInstances[series][at.Unix()] {
				return fmt.Errorf("%w: %s", calendar.ErrEventNotFound, eventID)
			}
			c.deletedInstances[series][at.Unix()] = true
			s.seq++
			return nil
		}
	}

	return fmt.Errorf("%w: %s", calendar.ErrEventNotFound, eventID)
}

// DefaultCalendarID returns the id passed to New.
func (s *Service) DefaultCalendarID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.call(calendar.OpCalendarGet); err != nil {
		return "", err
	}
	if s.defaultID == "" {
		return "", fmt.Errorf("no primary calendar")
	}
	return s.defaultID, nil
}

const instanceLayout = "20060102T150405Z"

func instanceID(series string, start time.Time) string {
	return series + "_" + start.UTC().Format(instanceLayout)
}

func parseInstanceID(id string) (string, time.Time, bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 {
		return "", time.Time{}, false
	}
	at, err := time.Parse(instanceLayout, id[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return id[:i], at, true
}

func eventTimes(ev *gcal.Event) (time.Time, time.Time, bool) {
	if ev.Start == nil || ev.Start.DateTime == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end := start
	if ev.End != nil && ev.End.DateTime != "" {
		if end, err = time.Parse(time.RFC3339, ev.End.DateTime); err != nil {
			return time.Time{}, time.Time{}, false
		}
	}
	return start, end, true
}

// ruleSet parses RRULE/EXRULE/RDATE/EXDATE lines anchored at start.
func ruleSet(lines []string, start time.Time) (*rrule.Set, error) {
	set, err := rrule.StrSliceToRRuleSetInLoc(lines, start.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence: %w", err)
	}
	set.DTStart(start)
	return set, nil
}

func overlaps(start, end, from, to time.Time) bool {
	if !from.IsZero() && !end.After(from) {
		return false
	}
	if !to.IsZero() && !start.Before(to) {
		return false
	}
	return true
}

func zoneName(t time.Time) string {
	if name := t.Location().String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
