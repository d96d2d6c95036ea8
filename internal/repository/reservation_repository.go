package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// ReservationRepo persists paid reservations. Status changes are guarded by
// `WHERE status = 'pending'` so a terminal state is written at most once.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, user_id, event_id, quantity, external_intent_id, status, amount_cents, currency, receipt_ref, refund_ref, created_at, updated_at`

// Create inserts a pending reservation. A second row for the same external
// intent fails with ErrDuplicate.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, user_id, event_id, quantity, external_intent_id, status, amount_cents, currency) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		res.ID, res.UserID, res.EventID, res.Quantity, res.ExternalIntentID,
		res.Status, res.AmountCents, res.Currency)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// CreateIfAbsent inserts the reservation unless one already exists for its
// external intent. It returns true when this call created the row.
func (r *ReservationRepo) CreateIfAbsent(ctx context.Context, res *model.Reservation) (bool, error) {
	const q = `INSERT IGNORE INTO reservations (id, user_id, event_id, quantity, external_intent_id, status, amount_cents, currency) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	out, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		res.ID, res.UserID, res.EventID, res.Quantity, res.ExternalIntentID,
		res.Status, res.AmountCents, res.Currency)
	if err != nil {
		return false, err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID returns the reservation or ErrReservationNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
}

// GetByIntentID looks a reservation up by the gateway intent it was
// opened with. External intent ids are unique, so at most one row matches.
func (r *ReservationRepo) GetByIntentID(ctx context.Context, intentID string) (*model.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE external_intent_id = ?`, intentID)
}

// LockByIntentID reads the reservation with a row lock held until the
// surrounding transaction ends. Concurrent confirmations of the same intent
// queue here; the later caller sees the status the earlier one committed.
func (r *ReservationRepo) LockByIntentID(ctx context.Context, intentID string) (*model.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE external_intent_id = ? FOR UPDATE`, intentID)
}

// MarkSucceeded moves a pending reservation to succeeded.
func (r *ReservationRepo) MarkSucceeded(ctx context.Context, id string, receiptRef *string) (bool, error) {
	const q = `UPDATE reservations SET status = 'succeeded', receipt_ref = ? WHERE id = ? AND status = 'pending'`
	return r.transition(ctx, q, nullString(receiptRef), id)
}

// MarkRefunded moves a pending reservation to refunded. The gateway refund
// reference is recorded separately by SetRefundRef once the gateway confirms.
func (r *ReservationRepo) MarkRefunded(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE reservations SET status = 'refunded' WHERE id = ? AND status = 'pending'`
	return r.transition(ctx, q, id)
}

// SetRefundRef records the gateway refund reference on a refunded
// reservation. Writing the same reference again is harmless.
func (r *ReservationRepo) SetRefundRef(ctx context.Context, id, ref string) error {
	const q = `UPDATE reservations SET refund_ref = ? WHERE id = ? AND status = 'refunded'`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, ref, id)
	return err
}

// transition runs a guarded status update and reports whether the row
// was in the expected state.
func (r *ReservationRepo) transition(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// getOne scans a single reservation row selected by q.
func (r *ReservationRepo) getOne(ctx context.Context, q string, arg any) (*model.Reservation, error) {
	var (
		res        model.Reservation
		receiptRef sql.NullString
		refundRef  sql.NullString
	)
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, arg).Scan(
		&res.ID, &res.UserID, &res.EventID, &res.Quantity, &res.ExternalIntentID,
		&res.Status, &res.AmountCents, &res.Currency, &receiptRef, &refundRef,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	res.ReceiptRef = stringPtr(receiptRef)
	res.RefundRef = stringPtr(refundRef)
	return &res, nil
}

// nullString maps a nil pointer to SQL NULL.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr is the inverse of nullString.
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
