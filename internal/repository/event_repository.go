package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo reads events and owns the only writes to capacity_remaining.
// TryReserve and Release are single conditional statements, so they are
// linearizable per event row without application-level locking.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns an EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, organizer_id, title, unit_price_cents, currency, initial_capacity, capacity_remaining, starts_at, ends_at, created_at`

// Create inserts an event with its full capacity available.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (id, organizer_id, title, unit_price_cents, currency, initial_capacity, capacity_remaining, starts_at, ends_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	e.CapacityRemaining = e.InitialCapacity
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		e.ID, e.OrganizerID, e.Title, e.UnitPriceCents, e.Currency,
		e.InitialCapacity, e.CapacityRemaining, e.StartsAt, e.EndsAt)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns the event or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	var e model.Event
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.UnitPriceCents, &e.Currency,
		&e.InitialCapacity, &e.CapacityRemaining, &e.StartsAt, &e.EndsAt, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// TryReserve takes qty units from the event when at least qty remain.
// false with a nil error means sold out; it is not a failure.
func (r *EventRepo) TryReserve(ctx context.Context, eventID string, qty int) (bool, error) {
	if qty < 1 {
		return false, fmt.Errorf("try reserve: invalid quantity %d", qty)
	}
	const q = `UPDATE events SET capacity_remaining = capacity_remaining - ? WHERE id = ? AND capacity_remaining >= ?`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, qty, eventID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release returns qty units to the event, never past its initial capacity.
func (r *EventRepo) Release(ctx context.Context, eventID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("release: invalid quantity %d", qty)
	}
	const q = `UPDATE events SET capacity_remaining = LEAST(capacity_remaining + ?, initial_capacity) WHERE id = ?`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, qty, eventID)
	return err
}
