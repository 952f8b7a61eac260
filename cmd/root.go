package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/busymirror/internal/config"
	"github.com/teemow/busymirror/internal/logging"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
	logFormat  string
}

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "busymirror",
		Short: "Mirrors busy time from a private Google calendar into a public one",
		Long: `busymirror copies the busy blocks of a private Google calendar into a
public calendar as opaque "busy" placeholders. Titles, descriptions, attendees
and locations are never copied.

Changes are fetched incrementally with Calendar sync tokens. Every changed
event has its placeholder deleted and recreated; cancelled events lose theirs.

It can run as:
  - a one-shot command (sync), e.g. from a system cron job
  - a long-running scheduler with metrics and health endpoints (watch)`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "busymirror version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to the YAML configuration file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", logging.FormatText, "Log format: text or json")

	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
