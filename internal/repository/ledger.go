// Package repository implements all database queries for the registration
// engine. It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compevent/registration/internal/model"
)

// LedgerRepository is the authoritative store of registration ledger
// entries. Entries are never physically deleted; cancellation is a status
// transition so the audit trail survives.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// WithTx runs fn inside a single database transaction. Repository methods
// called from fn (on this or any repository sharing the pool) join it.
func (r *LedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const registrationColumns = `id, event_id, user_id, status, registered_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindActive returns the user's registered or waitlisted entry for the
// event, or nil when there is none. Cancelled entries are ignored.
func (r *LedgerRepository) FindActive(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	reg, err := scanRegistration(queryRow(ctx, r.pool,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE user_id = $1 AND event_id = $2 AND status IN ($3, $4)`,
		userID, eventID, model.StatusRegistered, model.StatusWaitlisted,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return reg, nil
}

// CountByStatus counts the event's ledger entries in the given status.
// This is the ground truth the denormalized counters are reconciled against.
func (r *LedgerRepository) CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error) {
	var n int
	err := queryRow(ctx, r.pool,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		eventID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// Insert creates a new ledger entry with the decided status. The partial
// unique index over active statuses turns a lost race into
// ErrDuplicateActiveRegistration instead of a second active entry.
func (r *LedgerRepository) Insert(ctx context.Context, userID, eventID string, status model.Status) (*model.Registration, error) {
	now := time.Now().UTC()
	reg := &model.Registration{
		ID:           uuid.New().String(),
		EventID:      eventID,
		UserID:       userID,
		Status:       status,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	_, err := exec(ctx, r.pool,
		`INSERT INTO registrations (id, event_id, user_id, status, registered_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.RegisteredAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrDuplicateActiveRegistration
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

// SetStatus transitions a ledger entry to newStatus. Cancelled entries are
// terminal: trying to re-open one fails with ErrInvalidTransition. The
// guard lives in the UPDATE's WHERE clause so it holds inside the caller's
// transaction without a separate read.
func (r *LedgerRepository) SetStatus(ctx context.Context, registrationID string, newStatus model.Status) error {
	tag, err := exec(ctx, r.pool,
		`UPDATE registrations
		 SET status = $2, updated_at = $3
		 WHERE id = $1 AND status <> $4`,
		registrationID, newStatus, time.Now().UTC(), model.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("set registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

// FirstWaitlisted returns the earliest waitlisted entry for the event, or
// nil when the waitlist is empty. Promotion order is FIFO by registered_at,
// ties broken by id.
func (r *LedgerRepository) FirstWaitlisted(ctx context.Context, eventID string) (*model.Registration, error) {
	reg, err := scanRegistration(queryRow(ctx, r.pool,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND status = $2
		 ORDER BY registered_at ASC, id ASC
		 LIMIT 1`,
		eventID, model.StatusWaitlisted,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("first waitlisted: %w", err)
	}
	return reg, nil
}

// AllForEvent returns every ledger entry for an event, oldest first. Each
// call issues a fresh query, so reconciliation can restart safely.
func (r *LedgerRepository) AllForEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := query(ctx, r.pool,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY registered_at ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt, &reg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// OrphanedEventIDs returns the distinct event IDs referenced by active
// ledger entries whose event row no longer exists.
func (r *LedgerRepository) OrphanedEventIDs(ctx context.Context) ([]string, error) {
	rows, err := query(ctx, r.pool,
		`SELECT DISTINCT r.event_id
		 FROM registrations r
		 LEFT JOIN events e ON e.id = r.event_id
		 WHERE e.id IS NULL AND r.status IN ($1, $2)
		 ORDER BY r.event_id`,
		model.StatusRegistered, model.StatusWaitlisted,
	)
	if err != nil {
		return nil, fmt.Errorf("find orphaned event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphaned event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CancelActiveForEvent marks every active entry for the event cancelled and
// returns how many entries it touched. Orphans are resolved, never deleted.
func (r *LedgerRepository) CancelActiveForEvent(ctx context.Context, eventID string) (int64, error) {
	tag, err := exec(ctx, r.pool,
		`UPDATE registrations
		 SET status = $2, updated_at = $3
		 WHERE event_id = $1 AND status IN ($4, $5)`,
		eventID, model.StatusCancelled, time.Now().UTC(),
		model.StatusRegistered, model.StatusWaitlisted,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel registrations for event: %w", err)
	}
	return tag.RowsAffected(), nil
}
