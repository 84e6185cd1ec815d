// Package service implements the registration state machine: admission
// under finite capacity, FIFO waitlist promotion, and the transactional
// protocol that keeps the ledger and the denormalized counters consistent.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/compevent/registration/internal/clock"
	"github.com/compevent/registration/internal/model"
	"github.com/compevent/registration/internal/monitoring"
)

// Ledger is the registration ledger surface the service depends on.
type Ledger interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindActive(ctx context.Context, userID, eventID string) (*model.Registration, error)
	CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error)
	Insert(ctx context.Context, userID, eventID string, status model.Status) (*model.Registration, error)
	SetStatus(ctx context.Context, registrationID string, status model.Status) error
	FirstWaitlisted(ctx context.Context, eventID string) (*model.Registration, error)
}

// Events is the capacity-counter surface the service depends on.
type Events interface {
	GetCapacity(ctx context.Context, eventID string) (*model.EventCapacitySnapshot, error)
	GetCapacityForUpdate(ctx context.Context, eventID string) (*model.EventCapacitySnapshot, error)
	WriteCounts(ctx context.Context, eventID string, admitted, waitlisted int) error
}

// RegistrationService owns the register/unregister/queryStatus state
// machine.
type RegistrationService struct {
	ledger    Ledger
	events    Events
	clock     clock.Clock
	txTimeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(ledger Ledger, events Events, clk clock.Clock, opts ...Option) *RegistrationService {
	svc := &RegistrationService{
		ledger:    ledger,
		events:    events,
		clock:     clk,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Option configures a RegistrationService.
type Option func(*RegistrationService)

// WithTxTimeout bounds each register/unregister transaction. On timeout the
// transaction aborts with no partial state and the caller may retry.
func WithTxTimeout(d time.Duration) Option {
	return func(s *RegistrationService) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// Register admits the user into the event or places them on the waitlist.
//
// Cheap policy checks run before the transaction; everything that decides
// or mutates state runs inside one transaction holding the event's row
// lock, so two concurrent calls cannot both observe the same free slot.
// Returns the decided status (registered or waitlisted).
func (s *RegistrationService) Register(ctx context.Context, userID, eventID string, role model.Role) (model.Status, error) {
	if !model.CanRegister(role) {
		monitoring.TrackRegistration(monitoring.OutcomeRejected)
		return "", model.ErrPermissionDenied
	}
	if _, err := s.events.GetCapacity(ctx, eventID); err != nil {
		monitoring.TrackRegistration(monitoring.OutcomeRejected)
		return "", err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var decided model.Status
	err := s.ledger.WithTx(txCtx, func(ctx context.Context) error {
		// Locks the event row; the gate and deadline are re-checked here
		// because they may have changed since the precheck.
		snap, err := s.events.GetCapacityForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if snap.Closed(s.clock.Now()) {
			return model.ErrRegistrationClosed
		}

		existing, err := s.ledger.FindActive(ctx, userID, eventID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == model.StatusWaitlisted {
				return model.ErrAlreadyWaitlisted
			}
			return model.ErrAlreadyRegistered
		}

		decided = model.StatusWaitlisted
		if snap.HasCapacity() {
			decided = model.StatusRegistered
		}

		if _, err := s.ledger.Insert(ctx, userID, eventID, decided); err != nil {
			return err
		}

		admitted, waitlisted := snap.AdmittedCount, snap.WaitlistedCount
		if decided == model.StatusRegistered {
			admitted++
		} else {
			waitlisted++
		}
		return s.events.WriteCounts(ctx, eventID, admitted, waitlisted)
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRegistrationClosed),
			errors.Is(err, model.ErrAlreadyRegistered),
			errors.Is(err, model.ErrAlreadyWaitlisted),
			errors.Is(err, model.ErrDuplicateActiveRegistration):
			monitoring.TrackRegistration(monitoring.OutcomeRejected)
		default:
			monitoring.TrackRegistration(monitoring.OutcomeError)
		}
		return "", err
	}

	if decided == model.StatusRegistered {
		monitoring.TrackRegistration(monitoring.OutcomeAdmitted)
	} else {
		monitoring.TrackRegistration(monitoring.OutcomeWaitlisted)
	}
	return decided, nil
}

// Unregister cancels the user's active registration. When the cancellation
// frees an admitted slot, the earliest waitlisted entrant is promoted in
// the same transaction. Counters are recomputed from the ledger rather than
// decremented, so any drift that slipped in earlier is repaired on the way.
func (s *RegistrationService) Unregister(ctx context.Context, userID, eventID string) (model.UnregisterResult, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var result model.UnregisterResult
	err := s.ledger.WithTx(txCtx, func(ctx context.Context) error {
		snap, err := s.events.GetCapacityForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if snap.UnregisterLocked(s.clock.Now()) {
			return model.ErrUnregisterDeadlinePassed
		}

		rec, err := s.ledger.FindActive(ctx, userID, eventID)
		if err != nil {
			return err
		}
		if rec == nil {
			return model.ErrNotRegistered
		}

		if err := s.ledger.SetStatus(ctx, rec.ID, model.StatusCancelled); err != nil {
			return err
		}

		// A slot frees only when an admitted registration is cancelled.
		if rec.Status == model.StatusRegistered {
			next, err := s.ledger.FirstWaitlisted(ctx, eventID)
			if err != nil {
				return err
			}
			if next != nil {
				if err := s.ledger.SetStatus(ctx, next.ID, model.StatusRegistered); err != nil {
					return err
				}
				result = model.UnregisterResult{Promoted: true, PromotedUserID: next.UserID}
			}
		}

		admitted, err := s.ledger.CountByStatus(ctx, eventID, model.StatusRegistered)
		if err != nil {
			return err
		}
		waitlisted, err := s.ledger.CountByStatus(ctx, eventID, model.StatusWaitlisted)
		if err != nil {
			return err
		}
		return s.events.WriteCounts(ctx, eventID, admitted, waitlisted)
	})
	if err != nil {
		return model.UnregisterResult{}, err
	}

	if result.Promoted {
		monitoring.TrackPromotion()
	}
	return result, nil
}

// QueryStatus returns the user's active registration status for the event,
// or nil when they have none. Read-only, no transaction.
func (s *RegistrationService) QueryStatus(ctx context.Context, userID, eventID string) (*model.Status, error) {
	rec, err := s.ledger.FindActive(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	status := rec.Status
	return &status, nil
}
