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

// EventRepository reads and writes the capacity projection of events. The
// denormalized counts live on the event row; everything else on that row is
// owned by event CRUD and treated as read-only input.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventColumns = `id, name, max_capacity, admitted_count, waitlisted_count,
	allow_registration, registration_deadline, unregister_deadline, created_at`

func scanEvent(row pgx.Row) (*model.EventCapacitySnapshot, error) {
	var e model.EventCapacitySnapshot
	err := row.Scan(&e.EventID, &e.Name, &e.MaxCapacity, &e.AdmittedCount, &e.WaitlistedCount,
		&e.AllowRegistration, &e.RegistrationDeadline, &e.UnregisterDeadline, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event with zeroed counters.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.EventCapacitySnapshot, error) {
	e := &model.EventCapacitySnapshot{
		EventID:              uuid.New().String(),
		Name:                 req.Name,
		MaxCapacity:          req.MaxCapacity,
		AllowRegistration:    req.AllowRegistration,
		RegistrationDeadline: req.RegistrationDeadline,
		UnregisterDeadline:   req.UnregisterDeadline,
		CreatedAt:            time.Now().UTC(),
	}

	_, err := exec(ctx, r.pool,
		`INSERT INTO events (id, name, max_capacity, admitted_count, waitlisted_count,
		                     allow_registration, registration_deadline, unregister_deadline, created_at)
		 VALUES ($1, $2, $3, 0, 0, $4, $5, $6, $7)`,
		e.EventID, e.Name, e.MaxCapacity, e.AllowRegistration,
		e.RegistrationDeadline, e.UnregisterDeadline, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.EventCapacitySnapshot, error) {
	rows, err := query(ctx, r.pool,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.EventCapacitySnapshot
	for rows.Next() {
		var e model.EventCapacitySnapshot
		if err := rows.Scan(&e.EventID, &e.Name, &e.MaxCapacity, &e.AdmittedCount, &e.WaitlistedCount,
			&e.AllowRegistration, &e.RegistrationDeadline, &e.UnregisterDeadline, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetCapacity returns the event's capacity snapshot without locking. Used
// for prechecks and read-only queries; transactional decisions must use
// GetCapacityForUpdate instead.
func (r *EventRepository) GetCapacity(ctx context.Context, eventID string) (*model.EventCapacitySnapshot, error) {
	e, err := scanEvent(queryRow(ctx, r.pool,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// GetCapacityForUpdate locks the event row with SELECT ... FOR UPDATE and
// returns the snapshot. Two concurrent registrations for the same event
// serialize here, so both cannot observe the same free slot — the read and
// the admission decision happen under the same row lock as the eventual
// counter write.
func (r *EventRepository) GetCapacityForUpdate(ctx context.Context, eventID string) (*model.EventCapacitySnapshot, error) {
	e, err := scanEvent(queryRow(ctx, r.pool,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}

// WriteCounts unconditionally overwrites the denormalized counters.
// Transactional isolation is the caller's responsibility.
func (r *EventRepository) WriteCounts(ctx context.Context, eventID string, admitted, waitlisted int) error {
	tag, err := exec(ctx, r.pool,
		`UPDATE events SET admitted_count = $2, waitlisted_count = $3 WHERE id = $1`,
		eventID, admitted, waitlisted,
	)
	if err != nil {
		return fmt.Errorf("write capacity counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrEventNotFound
	}
	return nil
}

// ListEventIDs returns the IDs of all events, for reconciliation sweeps.
func (r *EventRepository) ListEventIDs(ctx context.Context) ([]string, error) {
	rows, err := query(ctx, r.pool, `SELECT id FROM events ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an event row. Registrations deliberately carry no foreign
// key, so deleting an event leaves its ledger entries behind as orphans for
// reconciliation to resolve.
func (r *EventRepository) Delete(ctx context.Context, eventID string) error {
	tag, err := exec(ctx, r.pool, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrEventNotFound
	}
	return nil
}
