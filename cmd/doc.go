// Package cmd implements the command-line interface for busymirror.
//
// This package provides the following commands:
//   - sync: run one reconciliation cycle and exit
//   - watch: run cycles on a cron schedule and serve metrics and health probes
//   - token: show or clear the stored sync token, or set the default source calendar
//   - version: display version information
package cmd
