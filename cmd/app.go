package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/oauth2"

	"github.com/teemow/busymirror/internal/calendar"
	"github.com/teemow/busymirror/internal/config"
	"github.com/teemow/busymirror/internal/google"
	"github.com/teemow/busymirror/internal/instrumentation"
	"github.com/teemow/busymirror/internal/lock"
	"github.com/teemow/busymirror/internal/logging"
	"github.com/teemow/busymirror/internal/mirror"
	"github.com/teemow/busymirror/internal/properties"
	"github.com/teemow/busymirror/internal/reconcile"
	"github.com/teemow/busymirror/internal/synctoken"
)

// envAccessToken supplies a short-lived access token instead of token files,
// e.g. when running under workload identity.
const envAccessToken = "BUSYMIRROR_GOOGLE_ACCESS_TOKEN"

// calendarService is everything the engine and mirror need from a calendar
// backend.
type calendarService interface {
	reconcile.Source
	mirror.Calendar
	DefaultCalendarID(ctx context.Context) (string, error)
}

// newCalendarService opens the calendar backend for an account. Tests swap it
// for an in-memory fake.
var newCalendarService = googleCalendarService

func tokenProvider() google.TokenProvider {
	if tok := os.Getenv(envAccessToken); tok != "" {
		return google.StaticTokenProvider{Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})}
	}
	return google.NewFileTokenProvider()
}

func googleCalendarService(ctx context.Context, account string, metrics *instrumentation.Metrics) (calendarService, error) {
	provider := tokenProvider()
	if !calendar.HasTokenForAccountWithProvider(account, provider) {
		return nil, errors.New(google.GetAuthenticationErrorMessage(account))
	}
	client, err := calendar.NewClientForAccountWithProvider(ctx, account, provider)
	if err != nil {
		return nil, err
	}
	return client.WithMetrics(metrics), nil
}

// app holds what every command needs: configuration, logging and state.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	props    properties.Store
	tokens   *synctoken.Store
}

// newApp loads the configuration and opens the property store. Logs go to
// logOut.
func newApp(ctx context.Context, opts *rootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(logOut, opts.logFormat, opts.debug)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	props, err := properties.Open(ctx, cfg.Properties())
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open %s state store: %w", cfg.State.Type, err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		props:    props,
		tokens:   synctoken.New(props),
	}, nil
}

// Close releases the state store and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	if err := a.props.Close(); err != nil {
		a.logger.Warn("failed to close state store", logging.Err(err))
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shut down instrumentation", logging.Err(err))
	}
}

// locker returns the configured single-writer lock.
func (a *app) locker() lock.Locker {
	if a.cfg.Lock.File != "" {
		return lock.NewFileLock(a.cfg.Lock.File)
	}
	return lock.NewSemaphore()
}

// resolveCalendar picks the source calendar for commands that act on stored
// state: the flag, then the configuration, then the stored default.
func (a *app) resolveCalendar(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.Source.CalendarID != "" {
		return a.cfg.Source.CalendarID, nil
	}
	id, ok, err := a.tokens.DefaultCalendarID(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", reconcile.ErrNoCalendar
	}
	return id, nil
}

// engineOptions tweak newEngine per command.
type engineOptions struct {
	dryRun bool
	runID  func() string
}

// newEngine connects to both calendars and wires the reconciliation engine.
func (a *app) newEngine(ctx context.Context, opts engineOptions) (*reconcile.Engine, *mirror.Store, error) {
	metrics := a.provider.Metrics()
	dryRun := opts.dryRun || a.cfg.Mirror.DryRun

	services := make(map[string]calendarService)
	open := func(account string) (calendarService, error) {
		if svc, ok := services[account]; ok {
			return svc, nil
		}
		svc, err := newCalendarService(ctx, account, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to open calendar for account %s: %w", account, err)
		}
		services[account] = svc
		return svc, nil
	}

	source, err := open(a.cfg.Source.Account)
	if err != nil {
		return nil, nil, err
	}
	target, err := open(a.cfg.Mirror.Account)
	if err != nil {
		return nil, nil, err
	}

	mirrorID := a.cfg.Mirror.CalendarID
	if mirrorID == "" {
		if mirrorID, err = target.DefaultCalendarID(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve the mirror calendar: %w", err)
		}
		a.logger.Debug("using primary calendar as mirror", logging.Calendar(mirrorID))
	}

	store := mirror.New(target, mirrorID,
		mirror.WithWindowDays(a.cfg.Mirror.WindowBackDays, a.cfg.Mirror.WindowForwardDays),
		mirror.WithDryRun(dryRun),
		mirror.WithLogger(a.logger),
		mirror.WithMetrics(metrics),
	)

	engineOpts := []reconcile.Option{
		reconcile.WithConfig(reconcile.Config{
			DefaultCalendarID: a.cfg.Source.CalendarID,
			PageSize:          int64(a.cfg.Sync.PageSize),
			LookbackDays:      a.cfg.Sync.LookbackDays,
			LockTimeout:       a.cfg.Lock.Timeout,
		}),
		reconcile.WithLogger(a.logger),
		reconcile.WithMetrics(metrics),
		reconcile.WithAuditLogger(a.provider.AuditLogger(a.logger)),
		reconcile.WithDryRun(dryRun),
	}
	if opts.runID != nil {
		engineOpts = append(engineOpts, reconcile.WithRunIDFunc(opts.runID))
	}

	return reconcile.New(source, store, a.tokens, a.locker(), engineOpts...), store, nil
}

// checkDistinct rejects mirroring a calendar into itself.
func checkDistinct(source string, store *mirror.Store) error {
	if source != "" && source == store.CalendarID() {
		return fmt.Errorf("source and mirror calendar must differ, both are %q", source)
	}
	return nil
}
