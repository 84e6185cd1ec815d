package model

import "errors"

// Policy failures: expected outcomes of the state machine, returned to the
// caller and never retried automatically.
var (
	ErrPermissionDenied         = errors.New("role is not permitted to register")
	ErrEventNotFound            = errors.New("event not found")
	ErrRegistrationClosed       = errors.New("registration is closed for this event")
	ErrAlreadyRegistered        = errors.New("user is already registered for this event")
	ErrAlreadyWaitlisted        = errors.New("user is already on the waitlist for this event")
	ErrNotRegistered            = errors.New("user has no active registration for this event")
	ErrUnregisterDeadlinePassed = errors.New("cannot unregister after the event's deadline")
)

// Integrity failures: a race lost to a concurrent request. Safe to surface
// as "already registered"; never retried.
var (
	ErrDuplicateActiveRegistration = errors.New("an active registration already exists for this user and event")
	ErrInvalidTransition           = errors.New("invalid registration status transition")
)

// ErrConflictingOptions is the reconciliation configuration error for
// dry-run combined with auto-fix. It is raised before any database access.
var ErrConflictingOptions = errors.New("dry-run and auto-fix are mutually exclusive")
