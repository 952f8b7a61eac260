package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/busymirror/internal/google"
	"github.com/teemow/busymirror/internal/instrumentation"
)

// DefaultMaxResults is the page size used when ListOptions leaves it unset.
const DefaultMaxResults = 100

// Operation names used for metrics and spans.
const (
	OpList        = "list"
	OpInsert      = "insert"
	OpSearch      = "search"
	OpDelete      = "delete"
	OpCalendarGet = "calendar_get"
)

// Client wraps the Google Calendar service
type Client struct {
	svc     *calendar.Service
	account string // The account this client is associated with
	metrics *instrumentation.Metrics
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// WithMetrics sets the recorder for Google API operation metrics.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// HasTokenForAccountWithProvider checks if a valid OAuth token exists for the specified account
func HasTokenForAccountWithProvider(account string, provider google.TokenProvider) bool {
	if provider == nil {
		return false
	}
	return provider.HasTokenForAccount(account)
}

// NewClientForAccountWithProvider creates a new Calendar client for a specific
// account. Extra options are appended after the authenticated HTTP client, so
// option.WithEndpoint can point the client at a test server.
func NewClientForAccountWithProvider(ctx context.Context, account string, tokenProvider google.TokenProvider, opts ...option.ClientOption) (*Client, error) {
	if tokenProvider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}

	ts, err := tokenProvider.TokenSourceForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google OAuth token for account %s: %w", account, err)
	}

	all := append([]option.ClientOption{option.WithHTTPClient(google.NewHTTPClient(ctx, ts))}, opts...)
	svc, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return NewClientFromService(svc, account), nil
}

// NewClientFromService wraps an existing service.
func NewClientFromService(svc *calendar.Service, account string) *Client {
	return &Client{svc: svc, account: account}
}

// NewClientWithHTTPClient creates a client that sends requests with hc to
// endpoint. Used against fake servers.
func NewClientWithHTTPClient(ctx context.Context, hc *http.Client, endpoint string) (*Client, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(hc), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return NewClientFromService(svc, ""), nil
}

// observe runs fn inside a Google API span and records its outcome.
func (c *Client) observe(ctx context.Context, op, calendarID string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op,
		instrumentation.AttrCalendar.String(calendarID))

	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil && !errors.Is(err, ErrEventNotFound) {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(start))
	instrumentation.EndSpan(span, err)
	return err
}

// ListEvents returns one page of changes in calendarID. With a sync token it
// returns the delta since the token was issued, including cancelled events.
// Without one it returns all events starting at or after opts.TimeMin.
func (c *Client) ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*EventPage, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	call := c.svc.Events.List(calendarID).MaxResults(maxResults)
	if opts.SyncToken != "" {
		call = call.SyncToken(opts.SyncToken)
	} else if !opts.TimeMin.IsZero() {
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	var page *EventPage
	err := c.observe(ctx, OpList, calendarID, func(ctx context.Context) error {
		events, err := call.Context(ctx).Do()
		if err != nil {
			if IsSyncTokenInvalidated(err) {
				return fmt.Errorf("%w: %w", ErrSyncTokenInvalidated, err)
			}
			return fmt.Errorf("failed to list events: %w", err)
		}

		page = &EventPage{
			NextPageToken: events.NextPageToken,
			NextSyncToken: events.NextSyncToken,
			Events:        make([]SourceEvent, 0, len(events.Items)),
		}
		for _, ev := range events.Items {
			page.Events = append(page.Events, FromAPIEvent(ev))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// InsertEvent creates a busy placeholder and returns its id.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, in MirrorInput) (string, error) {
	var id string
	err := c.observe(ctx, OpInsert, calendarID, func(ctx context.Context) error {
		created, err := c.svc.Events.Insert(calendarID, NewMirrorAPIEvent(in)).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		id = created.Id
		return nil
	})
	return id, err
}

// SearchEvents runs a full-text query over single instances between
// opts.TimeMin and opts.TimeMax, following all pages.
func (c *Client) SearchEvents(ctx context.Context, calendarID string, opts SearchOptions) ([]MirrorEvent, error) {
	call := c.svc.Events.List(calendarID).
		SingleEvents(true).
		Q(opts.Query).
		MaxResults(250)
	if !opts.TimeMin.IsZero() {
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if !opts.TimeMax.IsZero() {
		call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
	}

	var found []MirrorEvent
	err := c.observe(ctx, OpSearch, calendarID, func(ctx context.Context) error {
		return call.Pages(ctx, func(events *calendar.Events) error {
			for _, ev := range events.Items {
				found = append(found, toMirrorEvent(ev))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	return found, nil
}

// DeleteEvent deletes a single event or, given a series id, the whole series.
// It returns an error wrapping ErrEventNotFound when the event is already gone.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return c.observe(ctx, OpDelete, calendarID, func(ctx context.Context) error {
		err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
		if err == nil {
			return nil
		}
		if isGone(err) {
			return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	})
}

// DefaultCalendarID returns the id of the account's primary calendar.
func (c *Client) DefaultCalendarID(ctx context.Context) (string, error) {
	var id string
	err := c.observe(ctx, OpCalendarGet, "primary", func(ctx context.Context) error {
		entry, err := c.svc.CalendarList.Get("primary").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get primary calendar: %w", err)
		}
		id = entry.Id
		return nil
	})
	return id, err
}

// IsSyncTokenInvalidated reports whether err means the sync token was rejected.
func IsSyncTokenInvalidated(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSyncTokenInvalidated) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusGone {
			return true
		}
		for _, item := range apiErr.Errors {
			if item.Reason == "fullSyncRequired" {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), "Sync token is no longer valid")
}

// IsNotFound reports whether err means the event was already deleted.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// isGone reports a 404 or 410 response.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
