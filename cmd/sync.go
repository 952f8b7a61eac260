package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/busymirror/internal/logging"
	"github.com/teemow/busymirror/internal/reconcile"
)

func newSyncCmd(root *rootOptions) *cobra.Command {
	var (
		calendarID string
		full       bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Long: `Fetch the changes of the source calendar since the last stored sync token
and update the placeholders in the mirror calendar.

Without a stored token, or with --full, every event ending in the last 30 days
or later is processed. If another cycle holds the lock for longer than
lock.timeout the command logs a warning and exits successfully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runSync(ctx, cmd, root, calendarID, full, dryRun)
		},
	}

	cmd.Flags().StringVar(&calendarID, "calendar", "", "Source calendar id (default: source.calendar_id, then the stored default)")
	cmd.Flags().BoolVar(&full, "full", false, "Ignore the stored sync token and resync the whole window")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log mirror changes without making them; the sync token is not stored")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, root *rootOptions, calendarID string, full, dryRun bool) error {
	a, err := newApp(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	engine, store, err := a.newEngine(ctx, engineOptions{dryRun: dryRun})
	if err != nil {
		return err
	}
	source, err := a.resolveCalendar(ctx, calendarID)
	if err != nil {
		return err
	}
	if err := checkDistinct(source, store); err != nil {
		return err
	}

	err = engine.SyncEvents(ctx, source, full)
	if reconcile.IsLockTimeout(err) {
		a.logger.Warn("sync skipped: another cycle is running", logging.Err(err))
		return nil
	}
	return err
}
