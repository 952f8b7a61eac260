package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/teemow/busymirror/internal/logging"
	"github.com/teemow/busymirror/internal/reconcile"
	"github.com/teemow/busymirror/internal/server"
)

// watchOptions are the flags of the watch command.
type watchOptions struct {
	calendarID  string
	schedule    string
	metricsAddr string
	healthAddr  string
	runNow      bool
	dryRun      bool
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run sync cycles on a schedule",
		Long: `Run sync cycles on a cron schedule until interrupted.

The schedule is a standard five-field cron expression (default "*/15 * * * *").
A cycle that is still running when the next one is due causes that tick to be
skipped. On SIGINT or SIGTERM no new cycles are started and a running cycle is
given watch.shutdown_timeout to finish.

Prometheus metrics are served on watch.metrics_addr and Kubernetes probes
(/healthz, /readyz, /healthz/detailed) on watch.health_addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.calendarID, "calendar", "", "Source calendar id (default: source.calendar_id, then the stored default)")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "Cron schedule (default: watch.schedule)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Metrics server address (default: watch.metrics_addr)")
	cmd.Flags().StringVar(&opts.healthAddr, "health-addr", "", "Health server address (default: watch.health_addr)")
	cmd.Flags().BoolVar(&opts.runNow, "run-now", true, "Run a cycle immediately instead of waiting for the first tick")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Log mirror changes without making them; sync tokens are not stored")

	return cmd
}

// watcher runs cycles and reports them to the server context.
type watcher struct {
	engine     *reconcile.Engine
	calendarID string
	logger     *slog.Logger
	sc         *server.ServerContext

	mu    sync.Mutex
	runID string
}

// nextRunID is handed to the engine so the watcher knows the id of the cycle
// it just ran.
func (w *watcher) nextRunID() string {
	id := uuid.NewString()
	w.mu.Lock()
	w.runID = id
	w.mu.Unlock()
	return id
}

// runCycle runs one cycle with ctx and records its outcome.
func (w *watcher) runCycle(ctx context.Context) {
	started := time.Now()
	err := w.engine.SyncEvents(ctx, w.calendarID, false)

	w.mu.Lock()
	status := server.CycleStatus{RunID: w.runID, Started: started, Duration: time.Since(started)}
	w.mu.Unlock()

	switch {
	case reconcile.IsLockTimeout(err):
		status.Skipped = true
		w.logger.Warn("cycle skipped: another cycle holds the lock")
	case err != nil:
		status.Err = err
		w.logger.Error("cycle failed", logging.Err(err))
	}
	w.sc.RecordCycle(status)
}

func runWatch(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts watchOptions) error {
	a, err := newApp(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	schedule := opts.schedule
	if schedule == "" {
		schedule = a.cfg.Watch.Schedule
	}
	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = a.cfg.Watch.MetricsAddr
	}
	healthAddr := opts.healthAddr
	if healthAddr == "" {
		healthAddr = a.cfg.Watch.HealthAddr
	}

	sc := server.NewServerContext(ctx)
	w := &watcher{logger: a.logger, sc: sc}

	engine, store, err := a.newEngine(ctx, engineOptions{dryRun: opts.dryRun, runID: w.nextRunID})
	if err != nil {
		return err
	}
	source, err := a.resolveCalendar(ctx, opts.calendarID)
	if err != nil {
		return err
	}
	if err := checkDistinct(source, store); err != nil {
		return err
	}
	w.engine = engine
	w.calendarID = source

	// Cycles get their own context so a shutdown lets a running cycle finish
	// within the grace period.
	cycleCtx, cancelCycles := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCycles()

	cronLogger := logging.NewCronLogger(a.logger)
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	job := cron.FuncJob(func() { w.runCycle(cycleCtx) })
	if _, err := scheduler.AddJob(schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	servers, err := startServers(a, sc, metricsAddr, healthAddr)
	if err != nil {
		return err
	}

	a.logger.Info("watching source calendar",
		slog.String("schedule", schedule),
		slog.String("mirror", store.CalendarID()),
		slog.Bool("dry_run", store.DryRun()))

	// The immediate cycle runs outside the scheduler, which neither tracks nor
	// waits for it on Stop.
	var initial sync.WaitGroup
	scheduler.Start()
	if opts.runNow {
		initial.Go(scheduler.Entries()[0].WrappedJob.Run)
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received, waiting for the running cycle")

	stopped := scheduler.Stop()
	idle := make(chan struct{})
	go func() {
		<-stopped.Done()
		initial.Wait()
		close(idle)
	}()

	grace := a.cfg.Watch.ShutdownTimeout
	select {
	case <-idle:
	case <-time.After(grace):
		a.logger.Warn("running cycle did not finish within the grace period, cancelling it",
			slog.Duration("grace", grace))
		cancelCycles()
		select {
		case <-idle:
		case <-time.After(grace):
			a.logger.Error("cancelled cycle did not return, exiting anyway")
		}
	}
	_ = sc.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", logging.Err(err))
		}
	}
	return nil
}

type shutdowner interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// startServers starts the metrics and health servers that have an address.
func startServers(a *app, sc *server.ServerContext, metricsAddr, healthAddr string) ([]shutdowner, error) {
	var servers []shutdowner

	if metricsAddr != "" && a.provider.Enabled() && a.provider.PrometheusHandler() != nil {
		ms, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsAddr,
			InstrumentationProvider: a.provider,
			Logger:                  a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics server: %w", err)
		}
		servers = append(servers, ms)
	}

	if healthAddr != "" {
		hs, err := server.NewHealthServer(healthAddr, server.NewHealthChecker(sc), a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create health server: %w", err)
		}
		servers = append(servers, hs)
	}

	for _, s := range servers {
		go func(s shutdowner) {
			if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("server stopped", logging.Err(err))
			}
		}(s)
	}
	return servers, nil
}
