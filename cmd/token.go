package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/busymirror/internal/logging"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or reset stored sync state",
		Long: `Inspect or reset the sync token stored for a source calendar.

Clearing the token makes the next cycle a full resync.`,
	}

	cmd.AddCommand(newTokenShowCmd(root))
	cmd.AddCommand(newTokenClearCmd(root))
	cmd.AddCommand(newTokenSetDefaultCmd(root))
	return cmd
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, root *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func newTokenShowCmd(root *rootOptions) *cobra.Command {
	var (
		calendarID string
		reveal     bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored sync token of a source calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()

				if def, ok, err := a.tokens.DefaultCalendarID(ctx); err != nil {
					return err
				} else if ok {
					fmt.Fprintf(out, "default calendar: %s\n", def)
				}

				id, err := a.resolveCalendar(ctx, calendarID)
				if err != nil {
					return err
				}
				tok, ok, err := a.tokens.Get(ctx, id)
				if err != nil {
					return err
				}
				switch {
				case !ok:
					fmt.Fprintf(out, "%s: no sync token, the next cycle is a full resync\n", id)
				case reveal:
					fmt.Fprintf(out, "%s: %s\n", id, tok)
				default:
					fmt.Fprintf(out, "%s: %s\n", id, logging.SanitizeToken(tok))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&calendarID, "calendar", "", "Source calendar id")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the full token instead of its length")
	return cmd
}

func newTokenClearCmd(root *rootOptions) *cobra.Command {
	var calendarID string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the stored sync token, forcing a full resync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				id, err := a.resolveCalendar(ctx, calendarID)
				if err != nil {
					return err
				}
				if err := a.tokens.Clear(ctx, id); err != nil {
					return err
				}
				a.logger.Info("sync token cleared", logging.Calendar(id))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&calendarID, "calendar", "", "Source calendar id")
	return cmd
}

func newTokenSetDefaultCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default CALENDAR_ID",
		Short: "Store the source calendar used when none is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				if err := a.tokens.SetDefaultCalendarID(ctx, args[0]); err != nil {
					return err
				}
				a.logger.Info("default source calendar stored", logging.Calendar(args[0]))
				return nil
			})
		},
	}
}
