// Package model defines the core domain types for the registration engine.
package model

import "time"

// Status is the lifecycle state of a registration ledger entry.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
)

// IsActive reports whether the status counts against the event's capacity
// bookkeeping. Cancelled records are kept for audit but are inert.
func (s Status) IsActive() bool {
	return s == StatusRegistered || s == StatusWaitlisted
}

// CanTransitionTo reports whether a ledger entry in status s may move to
// next. Cancelled is terminal; a later registration attempt creates a new
// ledger entry instead of re-opening the old one.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusRegistered:
		return next == StatusCancelled
	case StatusWaitlisted:
		return next == StatusRegistered || next == StatusCancelled
	case StatusCancelled:
		return false
	}
	return false
}

// Registration is one ledger entry for a (user, event) registration attempt.
// At most one entry with an active status may exist per pair; the database
// enforces this with a partial unique index over active statuses.
type Registration struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UnregisterResult summarises an unregistration: whether cancelling freed a
// slot that was handed to the earliest waitlisted entrant, and to whom.
// PromotedUserID is the input for the external notification collaborator.
type UnregisterResult struct {
	Promoted       bool   `json:"promoted"`
	PromotedUserID string `json:"promoted_user_id,omitempty"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// UnregisterRequest is the payload for cancelling a registration.
type UnregisterRequest struct {
	UserID string `json:"user_id"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
