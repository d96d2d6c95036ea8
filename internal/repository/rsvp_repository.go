package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RSVPRepo persists free-event reservations. The (event_id, contact_email)
// unique key is what rejects duplicate registrations, including concurrent
// ones: the second insert waits on the first's key lock and then fails.
type RSVPRepo struct {
	db *sql.DB
}

// NewRSVPRepo returns an RSVPRepo bound to the given database.
func NewRSVPRepo(db *sql.DB) *RSVPRepo { return &RSVPRepo{db: db} }

// Create inserts the RSVP or returns ErrDuplicate.
func (r *RSVPRepo) Create(ctx context.Context, rsvp *model.RSVPReservation) error {
	const q = `INSERT INTO rsvps (id, event_id, contact_email, quantity, checked_in_count, created_at) VALUES (?, ?, ?, ?, 0, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		rsvp.ID, rsvp.EventID, rsvp.ContactEmail, rsvp.Quantity, rsvp.CreatedAt)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns the RSVP or ErrRSVPNotFound.
func (r *RSVPRepo) GetByID(ctx context.Context, id string) (*model.RSVPReservation, error) {
	const q = `SELECT id, event_id, contact_email, quantity, checked_in_count, last_check_in_at, created_at FROM rsvps WHERE id = ?`
	var (
		rsvp model.RSVPReservation
		last sql.NullTime
	)
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(
		&rsvp.ID, &rsvp.EventID, &rsvp.ContactEmail, &rsvp.Quantity,
		&rsvp.CheckedInCount, &last, &rsvp.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRSVPNotFound
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		rsvp.LastCheckInAt = &t
	}
	return &rsvp, nil
}

// UpdateCheckIn overwrites the checked-in headcount. The timestamp only
// moves when count is positive. The statement refuses counts above the
// stored quantity, returning false.
func (r *RSVPRepo) UpdateCheckIn(ctx context.Context, id string, count int, at time.Time) (bool, error) {
	const q = `UPDATE rsvps SET checked_in_count = ?, last_check_in_at = IF(? > 0, ?, last_check_in_at) WHERE id = ? AND ? BETWEEN 0 AND quantity`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, count, count, at, id, count)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
