package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/busymirror/internal/calendar"
	"github.com/teemow/busymirror/internal/datewindow"
	"github.com/teemow/busymirror/internal/instrumentation"
	"github.com/teemow/busymirror/internal/lock"
	"github.com/teemow/busymirror/internal/logging"
	"github.com/teemow/busymirror/internal/mirror"
	"github.com/teemow/busymirror/internal/synctoken"
)

// Source lists changes in the private calendar.
type Source interface {
	ListEvents(ctx context.Context, calendarID string, opts calendar.ListOptions) (*calendar.EventPage, error)
}

// Mirror is the placeholder store in the public calendar.
type Mirror interface {
	RemoveByMarker(ctx context.Context, marker string) (mirror.Removal, error)
	Create(ctx context.Context, ev mirror.Event) (string, error)
}

// Mutation ops reported in MirrorMutationError.
const (
	OpRemove = "remove"
	OpCreate = "create"
)

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	// DefaultCalendarID is used when SyncEvents is called without a calendar.
	DefaultCalendarID string

	// PageSize caps events per listing page (default 100).
	PageSize int64

	// LookbackDays bounds a full resync to events ending after now minus
	// this many days (default 30).
	LookbackDays int

	// LockTimeout bounds the wait for the single-writer lock (default 60s).
	LockTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = calendar.DefaultMaxResults
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = datewindow.DefaultDays
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = lock.DefaultTimeout
	}
	return c
}

// Result describes one reconciliation.
type Result struct {
	CalendarID string

	// FullSync is true when the final listing ran without a sync token.
	FullSync bool
	// Resynced is true when a rejected token forced the full sync.
	Resynced bool

	Pages   int
	Events  map[string]int // by calendar.Kind
	Removed int
	Created int

	// TokenStored is true when a new sync token was persisted.
	TokenStored bool
}

// Total returns the number of processed source events.
func (r Result) Total() int {
	n := 0
	for _, c := range r.Events {
		n += c
	}
	return n
}

// Engine runs reconciliation cycles.
type Engine struct {
	source Source
	mirror Mirror
	tokens *synctoken.Store
	lock   lock.Locker
	cfg    Config

	clock    datewindow.Clock
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	newRunID func() string
	dryRun   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets tuning parameters.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithClock sets the clock used for the full-resync lookback.
func WithClock(c datewindow.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditLogger sets the per-cycle audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithRunIDFunc overrides run id generation.
func WithRunIDFunc(f func() string) Option {
	return func(e *Engine) { e.newRunID = f }
}

// WithDryRun marks cycles as dry runs. The engine then never stores tokens;
// the Mirror is expected to skip its own mutations.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// New creates an Engine.
func New(source Source, m Mirror, tokens *synctoken.Store, l lock.Locker, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		mirror:   m,
		tokens:   tokens,
		lock:     l,
		cfg:      Config{}.withDefaults(),
		clock:    datewindow.SystemClock{},
		logger:   slog.Default(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncEvents runs one locked cycle for calendarID. An empty calendarID falls
// back to the configured default and then to the default stored in the
// property store. It returns ErrLockTimeout when another cycle holds the lock.
func (e *Engine) SyncEvents(ctx context.Context, calendarID string, fullSync bool) error {
	runID := e.newRunID()
	logger := logging.WithRunID(e.logger, runID)

	calendarID, err := e.resolveCalendar(ctx, calendarID)
	if err != nil {
		logger.Error("cannot start sync cycle", logging.Err(err))
		return err
	}
	logger = logging.WithCalendar(logger, calendarID)

	ctx, span := instrumentation.StartCycleSpan(ctx, calendarID, runID, e.dryRun)
	record := instrumentation.NewCycleRecord(runID, calendarID).WithSpanContext(ctx)
	record.DryRun = e.dryRun

	var res Result
	waitStart := time.Now()
	acquired, err := lock.WithLock(ctx, e.lock, e.cfg.LockTimeout, func(ctx context.Context) error {
		e.metrics.RecordLockWait(ctx, time.Since(waitStart), true)
		var rerr error
		res, rerr = e.reconcile(ctx, logger, calendarID, fullSync)
		return rerr
	})

	if !acquired && err == nil {
		e.metrics.RecordLockWait(ctx, time.Since(waitStart), false)
		logger.Warn("another sync cycle holds the lock, skipping",
			slog.Duration("timeout", e.cfg.LockTimeout))
		record.CompleteWithStatus(instrumentation.StatusTimeout, ErrLockTimeout)
		e.finish(ctx, span, record, ErrLockTimeout)
		return ErrLockTimeout
	}
	if !acquired {
		err = fmt.Errorf("acquire sync lock: %w", err)
	}

	record.FullSync = res.FullSync
	record.Pages = res.Pages
	record.Timed = res.Events[calendar.KindTimed]
	record.Recurring = res.Events[calendar.KindRecurring]
	record.Cancelled = res.Events[calendar.KindCancelled]
	record.AllDay = res.Events[calendar.KindAllDay]
	record.Skipped = res.Events[calendar.KindUnknown]
	record.TokenStored = res.TokenStored
	record.Complete(err)

	if err != nil {
		logger.Error("sync cycle failed", logging.Err(err), slog.Int("pages", res.Pages))
	} else {
		logger.Info("sync cycle completed",
			slog.Bool("full_sync", res.FullSync),
			slog.Int("pages", res.Pages),
			slog.Int("events", res.Total()),
			slog.Int("removed", res.Removed),
			slog.Int("created", res.Created),
		)
	}
	e.finish(ctx, span, record, err)
	return err
}

func (e *Engine) finish(ctx context.Context, span trace.Span, record *instrumentation.CycleRecord, err error) {
	e.metrics.RecordSyncCycle(ctx, record.CalendarID, record.Status, record.Duration)
	e.audit.LogCycle(ctx, record)
	instrumentation.EndSpan(span, err)
}

func (e *Engine) resolveCalendar(ctx context.Context, calendarID string) (string, error) {
	if calendarID != "" {
		return calendarID, nil
	}
	if e.cfg.DefaultCalendarID != "" {
		return e.cfg.DefaultCalendarID, nil
	}
	id, ok, err := e.tokens.DefaultCalendarID(ctx)
	if err != nil {
		return "", fmt.Errorf("read default calendar id: %w", err)
	}
	if !ok {
		return "", ErrNoCalendar
	}
	return id, nil
}

// Reconcile runs one cycle for calendarID without taking the lock. Callers
// other than SyncEvents must serialize calls themselves.
func (e *Engine) Reconcile(ctx context.Context, calendarID string, forceFullSync bool) (Result, error) {
	return e.reconcile(ctx, logging.WithCalendar(e.logger, calendarID), calendarID, forceFullSync)
}

func (e *Engine) reconcile(ctx context.Context, logger *slog.Logger, calendarID string, forceFullSync bool) (Result, error) {
	res := Result{CalendarID: calendarID, Events: make(map[string]int)}

	full := forceFullSync
	reason := instrumentation.ResyncReasonForced

	// At most two passes: the second only after the server rejected the token.
	for attempt := 0; ; attempt++ {
		token := ""
		if !full {
			stored, ok, err := e.tokens.Get(ctx, calendarID)
			if err != nil {
				return res, fmt.Errorf("read sync token: %w", err)
			}
			if ok {
				token = stored
			} else {
				full = true
				reason = instrumentation.ResyncReasonNoToken
			}
		}
		if full {
			e.metrics.RecordFullResync(ctx, calendarID, reason)
			instrumentation.MarkFullSync(ctx, reason)
			logger.Info("running full sync", slog.String("reason", reason))
		}
		res.FullSync = full

		err := e.pass(ctx, logger, calendarID, token, &res)
		if err == nil {
			return res, nil
		}
		if attempt > 0 || !errors.Is(err, errMustResync) {
			return res, err
		}

		logger.Warn("sync token rejected, clearing it and resyncing", logging.Token(token))
		if err := e.tokens.Clear(ctx, calendarID); err != nil {
			return res, fmt.Errorf("clear sync token: %w", err)
		}
		full = true
		reason = instrumentation.ResyncReasonInvalidated
		res.Resynced = true
	}
}

// errMustResync wraps a listing error that rejected the sync token. It is the
// only error reconcile answers with a full resync.
var errMustResync = errors.New("sync token rejected, full resync required")

// pass pages through one listing and applies every change. A rejected token on
// any page is returned wrapped in errMustResync; other listing errors become
// RemoteFetchError.
func (e *Engine) pass(ctx context.Context, logger *slog.Logger, calendarID, token string, res *Result) error {
	opts := calendar.ListOptions{MaxResults: e.cfg.PageSize}
	if token != "" {
		opts.SyncToken = token
	} else {
		opts.TimeMin = datewindow.Since(e.clock.Now(), e.cfg.LookbackDays)
	}

	for {
		page, err := e.source.ListEvents(ctx, calendarID, opts)
		if err != nil {
			if token != "" && calendar.IsSyncTokenInvalidated(err) {
				return fmt.Errorf("%w: %w", errMustResync, err)
			}
			return &RemoteFetchError{CalendarID: calendarID, Err: err}
		}
		res.Pages++
		logger.Debug("fetched page", slog.Int("page", res.Pages), slog.Int("events", len(page.Events)))

		for _, ev := range page.Events {
			if err := e.apply(ctx, logger, ev, res); err != nil {
				return err
			}
		}

		if page.NextPageToken != "" {
			opts.PageToken = page.NextPageToken
			continue
		}

		if page.NextSyncToken == "" {
			logger.Warn("last page carried no sync token, keeping the stored one")
			return nil
		}
		if e.dryRun {
			logger.Info("dry run: not storing sync token", logging.Token(page.NextSyncToken))
			return nil
		}
		if err := e.tokens.Set(ctx, calendarID, page.NextSyncToken); err != nil {
			return fmt.Errorf("store sync token: %w", err)
		}
		res.TokenStored = true
		return nil
	}
}

// apply mirrors one source change: remove whatever the mirror holds for the
// event, then recreate it if the event is still busy time.
func (e *Engine) apply(ctx context.Context, logger *slog.Logger, ev calendar.SourceEvent, res *Result) error {
	kind := calendar.Kind(ev.Shape)
	res.Events[kind]++
	e.metrics.RecordSyncEvents(ctx, kind, 1)

	logger = logger.With(logging.Marker(ev.ID), slog.String("kind", kind))

	var create *mirror.Event
	switch s := ev.Shape.(type) {
	case calendar.Cancelled:
	case calendar.AllDay:
		logger.Debug("all-day event is not mirrored", slog.String("date", s.Date))
	case calendar.Timed:
		create = &mirror.Event{Marker: ev.ID, Start: s.Start, End: s.End}
	case calendar.Recurring:
		create = &mirror.Event{Marker: ev.ID, Start: s.Start, End: s.End, Rules: s.Rules}
	default:
		reason := ""
		if u, ok := s.(calendar.Unknown); ok {
			reason = u.Reason
		}
		logger.Warn("skipping event without usable time", slog.String("reason", reason))
		return nil
	}

	removal, err := e.mirror.RemoveByMarker(ctx, ev.ID)
	if err != nil {
		return &MirrorMutationError{Op: OpRemove, Marker: ev.ID, Err: err}
	}
	res.Removed += removal.Removed()

	if create == nil {
		return nil
	}
	if _, err := e.mirror.Create(ctx, *create); err != nil {
		return &MirrorMutationError{Op: OpCreate, Marker: ev.ID, Err: err}
	}
	res.Created++
	return nil
}

// IsLockTimeout reports whether err is ErrLockTimeout.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
