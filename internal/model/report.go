package model

import "time"

// ReconcileOptions controls a single reconciliation run.
type ReconcileOptions struct {
	// DryRun reports discrepancies without writing anything.
	DryRun bool `json:"dry_run"`
	// AutoFix overwrites drifted counters with recomputed ledger truth.
	AutoFix bool `json:"auto_fix"`
	// EventID limits the run to one event; empty means all events.
	EventID string `json:"event_id,omitempty"`
	// IncludeOrphaned resolves ledger entries whose event no longer exists.
	IncludeOrphaned bool `json:"include_orphaned"`
}

// Validate rejects contradictory options. Callers must invoke this before
// any storage access.
func (o ReconcileOptions) Validate() error {
	if o.DryRun && o.AutoFix {
		return ErrConflictingOptions
	}
	return nil
}

// Discrepancy is one event whose cached counters disagree with the ledger.
// Diffs are cached minus true: positive means the counter overstated.
type Discrepancy struct {
	EventID        string `json:"event_id"`
	RegisteredDiff int    `json:"registered_diff"`
	WaitlistedDiff int    `json:"waitlisted_diff"`
}

// ReconciliationReport is the immutable result of one reconciliation run.
type ReconciliationReport struct {
	EventsChecked      int           `json:"events_checked"`
	DiscrepanciesFound int           `json:"discrepancies_found"`
	DiscrepanciesFixed int           `json:"discrepancies_fixed"`
	OrphanedResolved   int           `json:"orphaned_resolved"`
	Discrepancies      []Discrepancy `json:"discrepancies,omitempty"`
	Errors             []string      `json:"errors,omitempty"`
	RanAt              time.Time     `json:"ran_at"`
}

// Clean reports whether the run found nothing wrong and hit no errors.
func (r *ReconciliationReport) Clean() bool {
	return r.DiscrepanciesFound == 0 && len(r.Errors) == 0
}
