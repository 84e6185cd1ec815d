// Package reconcile audits the denormalized capacity counters against the
// registration ledger and optionally repairs drift and orphaned entries.
//
// The engine runs outside the registration hot path and is not a
// transactional peer of the registration service: it reads, compares, and
// optionally writes. Racing a live registration is acceptable — the next
// pass converges.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/compevent/registration/internal/clock"
	"github.com/compevent/registration/internal/model"
	"github.com/compevent/registration/internal/monitoring"
)

// Ledger is the ledger surface reconciliation needs: ground-truth counts
// and orphan resolution.
type Ledger interface {
	CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error)
	OrphanedEventIDs(ctx context.Context) ([]string, error)
	CancelActiveForEvent(ctx context.Context, eventID string) (int64, error)
}

// Events is the capacity-counter surface reconciliation needs.
type Events interface {
	GetCapacity(ctx context.Context, eventID string) (*model.EventCapacitySnapshot, error)
	WriteCounts(ctx context.Context, eventID string, admitted, waitlisted int) error
	ListEventIDs(ctx context.Context) ([]string, error)
}

// Engine performs reconciliation passes.
type Engine struct {
	ledger Ledger
	events Events
	clock  clock.Clock
	log    *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(ledger Ledger, events Events, clk clock.Clock, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{ledger: ledger, events: events, clock: clk, log: log}
}

// Run executes one reconciliation pass. Per-event failures are collected
// into the report's error list and the run continues, so one broken event
// cannot block repair of the rest. The returned error is non-nil only for
// invalid options or failures that prevent the run from starting at all.
func (e *Engine) Run(ctx context.Context, opts model.ReconcileOptions) (*model.ReconciliationReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report := &model.ReconciliationReport{RanAt: e.clock.Now()}

	if opts.IncludeOrphaned {
		e.resolveOrphans(ctx, opts, report)
	}

	eventIDs, err := e.targetEvents(ctx, opts)
	if err != nil {
		return nil, err
	}

	for _, eventID := range eventIDs {
		if err := e.checkEvent(ctx, eventID, opts, report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("event %s: %v", eventID, err))
			e.log.Warn("reconciliation failed for event", "event_id", eventID, "error", err)
		}
		report.EventsChecked++
	}

	monitoring.TrackReconciliation(report.DiscrepanciesFound, report.DiscrepanciesFixed)
	e.log.Info("reconciliation run complete",
		"events_checked", report.EventsChecked,
		"discrepancies_found", report.DiscrepanciesFound,
		"discrepancies_fixed", report.DiscrepanciesFixed,
		"orphaned_resolved", report.OrphanedResolved,
		"errors", len(report.Errors),
	)
	return report, nil
}

// resolveOrphans cancels active ledger entries whose event no longer
// exists. Orphans are marked cancelled, never deleted, so the audit trail
// stays intact. In dry-run mode they are counted but left alone.
func (e *Engine) resolveOrphans(ctx context.Context, opts model.ReconcileOptions, report *model.ReconciliationReport) {
	orphaned, err := e.ledger.OrphanedEventIDs(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("orphan scan: %v", err))
		return
	}

	for _, eventID := range orphaned {
		if opts.DryRun {
			admitted, err := e.ledger.CountByStatus(ctx, eventID, model.StatusRegistered)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("orphaned event %s: %v", eventID, err))
				continue
			}
			waitlisted, err := e.ledger.CountByStatus(ctx, eventID, model.StatusWaitlisted)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("orphaned event %s: %v", eventID, err))
				continue
			}
			report.OrphanedResolved += admitted + waitlisted
			continue
		}

		n, err := e.ledger.CancelActiveForEvent(ctx, eventID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("orphaned event %s: %v", eventID, err))
			continue
		}
		report.OrphanedResolved += int(n)
		e.log.Info("resolved orphaned registrations", "event_id", eventID, "count", n)
	}
}

func (e *Engine) targetEvents(ctx context.Context, opts model.ReconcileOptions) ([]string, error) {
	if opts.EventID != "" {
		return []string{opts.EventID}, nil
	}
	return e.events.ListEventIDs(ctx)
}

// checkEvent recomputes true counts from the ledger, compares them against
// the cached counters, and repairs the counters when auto-fix is on.
func (e *Engine) checkEvent(ctx context.Context, eventID string, opts model.ReconcileOptions, report *model.ReconciliationReport) error {
	snap, err := e.events.GetCapacity(ctx, eventID)
	if err != nil {
		return err
	}

	trueAdmitted, err := e.ledger.CountByStatus(ctx, eventID, model.StatusRegistered)
	if err != nil {
		return err
	}
	trueWaitlisted, err := e.ledger.CountByStatus(ctx, eventID, model.StatusWaitlisted)
	if err != nil {
		return err
	}

	if snap.AdmittedCount == trueAdmitted && snap.WaitlistedCount == trueWaitlisted {
		return nil
	}

	report.DiscrepanciesFound++
	report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
		EventID:        eventID,
		RegisteredDiff: snap.AdmittedCount - trueAdmitted,
		WaitlistedDiff: snap.WaitlistedCount - trueWaitlisted,
	})

	if !opts.AutoFix || opts.DryRun {
		return nil
	}
	if err := e.events.WriteCounts(ctx, eventID, trueAdmitted, trueWaitlisted); err != nil {
		return err
	}
	report.DiscrepanciesFixed++
	e.log.Info("repaired capacity counters",
		"event_id", eventID,
		"admitted", trueAdmitted,
		"waitlisted", trueWaitlisted,
	)
	return nil
}
