package model

import "time"

// EventCapacitySnapshot is the capacity-relevant projection of an event.
// MaxCapacity, AllowRegistration and the deadlines are owned by event CRUD
// and read-only here; the two counts are denormalized from the registration
// ledger and written back only by the engine's transactional updates and by
// reconciliation.
type EventCapacitySnapshot struct {
	EventID              string     `json:"event_id"`
	Name                 string     `json:"name"`
	MaxCapacity          int        `json:"max_capacity"` // 0 means unlimited
	AdmittedCount        int        `json:"admitted_count"`
	WaitlistedCount      int        `json:"waitlisted_count"`
	AllowRegistration    bool       `json:"allow_registration"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	UnregisterDeadline   *time.Time `json:"unregister_deadline,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// HasCapacity reports whether a new admission fits under MaxCapacity.
func (e *EventCapacitySnapshot) HasCapacity() bool {
	return e.MaxCapacity == 0 || e.AdmittedCount < e.MaxCapacity
}

// Closed reports whether registration is shut, either by the gate flag or
// because the deadline has passed.
func (e *EventCapacitySnapshot) Closed(now time.Time) bool {
	if !e.AllowRegistration {
		return true
	}
	return e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline)
}

// UnregisterLocked reports whether the event's optional unregistration
// lock-out is in effect. Events without an unregister deadline never lock.
func (e *EventCapacitySnapshot) UnregisterLocked(now time.Time) bool {
	return e.UnregisterDeadline != nil && now.After(*e.UnregisterDeadline)
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name                 string     `json:"name"`
	MaxCapacity          int        `json:"max_capacity"`
	AllowRegistration    bool       `json:"allow_registration"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	UnregisterDeadline   *time.Time `json:"unregister_deadline,omitempty"`
}
