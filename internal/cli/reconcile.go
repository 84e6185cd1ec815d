// Package cli implements the reconcile operator command. The exit codes
// are a contract for operator tooling: 0 clean or fully fixed, 1 issues
// found and not fixed, 2 completed with partial errors, 3 invocation or
// configuration failure.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/compevent/registration/internal/model"
)

// Exit codes of the reconcile command.
const (
	ExitClean         = 0
	ExitIssuesFound   = 1
	ExitPartialErrors = 2
	ExitConfigError   = 3
)

// ExitError carries an exit code out of a command run.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Runner executes one reconciliation pass against the given database.
// Injected so the command wiring is testable without Postgres.
type Runner func(ctx context.Context, databaseURL string, opts model.ReconcileOptions, log *slog.Logger) (*model.ReconciliationReport, error)

// Options holds the reconcile command flags.
type Options struct {
	DryRun          bool
	AutoFix         bool
	EventID         string
	IncludeOrphaned bool
	Format          string
	DatabaseURL     string
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(run Runner, log *slog.Logger) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Audit and repair event capacity counters",
		Long: `Recomputes true admitted/waitlisted counts from the registration ledger,
compares them against the cached counters on each event, and optionally
repairs drift and orphaned registrations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, run, opts, log)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report discrepancies without writing")
	cmd.Flags().BoolVar(&opts.AutoFix, "auto-fix", false, "overwrite drifted counters with ledger truth")
	cmd.Flags().StringVar(&opts.EventID, "event", "", "limit the run to one event id")
	cmd.Flags().BoolVar(&opts.IncludeOrphaned, "include-orphaned", false, "resolve registrations whose event no longer exists")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "postgres connection string (defaults to DATABASE_URL)")

	return cmd
}

func runReconcile(cmd *cobra.Command, run Runner, opts *Options, log *slog.Logger) error {
	if opts.Format != "text" && opts.Format != "json" {
		return &ExitError{Code: ExitConfigError, Message: fmt.Sprintf("invalid format %q: must be text or json", opts.Format)}
	}

	engineOpts := model.ReconcileOptions{
		DryRun:          opts.DryRun,
		AutoFix:         opts.AutoFix,
		EventID:         opts.EventID,
		IncludeOrphaned: opts.IncludeOrphaned,
	}
	// Rejected before any database access.
	if err := engineOpts.Validate(); err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}

	report, err := run(cmd.Context(), opts.DatabaseURL, engineOpts, log)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}

	if err := RenderReport(cmd.OutOrStdout(), report, opts.Format); err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}

	code := ExitCodeFor(report)
	if code == ExitClean {
		return nil
	}
	return &ExitError{Code: code, Message: fmt.Sprintf("reconciliation finished with exit code %d", code)}
}

// ExitCodeFor maps a report onto the exit-code contract. Partial errors
// take precedence over unfixed discrepancies.
func ExitCodeFor(report *model.ReconciliationReport) int {
	if len(report.Errors) > 0 {
		return ExitPartialErrors
	}
	if report.DiscrepanciesFound > report.DiscrepanciesFixed {
		return ExitIssuesFound
	}
	return ExitClean
}

// RenderReport writes the report in the requested format.
func RenderReport(w io.Writer, report *model.ReconciliationReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "reconciliation run at %s\n", report.RanAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  events checked:      %d\n", report.EventsChecked)
	fmt.Fprintf(w, "  discrepancies found: %d\n", report.DiscrepanciesFound)
	fmt.Fprintf(w, "  discrepancies fixed: %d\n", report.DiscrepanciesFixed)
	fmt.Fprintf(w, "  orphaned resolved:   %d\n", report.OrphanedResolved)

	for _, d := range report.Discrepancies {
		fmt.Fprintf(w, "  event %s: registered diff %+d, waitlisted diff %+d\n",
			d.EventID, d.RegisteredDiff, d.WaitlistedDiff)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}

	if report.Clean() {
		fmt.Fprintln(w, "✓ counters consistent with ledger")
	}
	return nil
}
