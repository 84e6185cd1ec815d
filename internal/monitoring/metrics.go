// Package monitoring exposes Prometheus metrics for the registration engine.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_attempts_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	promotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitlist_promotions_total",
			Help: "Waitlisted registrations promoted to admitted",
		},
	)

	reconciliationRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Completed reconciliation runs",
		},
	)

	discrepanciesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_discrepancies_found_total",
			Help: "Counter discrepancies detected by reconciliation",
		},
	)

	discrepanciesFixed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_discrepancies_fixed_total",
			Help: "Counter discrepancies repaired by reconciliation",
		},
	)
)

// Outcome labels for registration attempts.
const (
	OutcomeAdmitted   = "admitted"
	OutcomeWaitlisted = "waitlisted"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

// TrackRegistration records one registration attempt.
func TrackRegistration(outcome string) {
	registrationOutcomes.WithLabelValues(outcome).Inc()
}

// TrackPromotion records one FIFO waitlist promotion.
func TrackPromotion() {
	promotions.Inc()
}

// TrackReconciliation records one completed run and its findings.
func TrackReconciliation(found, fixed int) {
	reconciliationRuns.Inc()
	discrepanciesFound.Add(float64(found))
	discrepanciesFixed.Add(float64(fixed))
}
