package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketRepo persists issued tickets. MarkUsed and MarkCancelled are
// compare-and-set updates on status = 'active'; only one of them can ever
// succeed for a given ticket.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, user_id, event_id, reservation_id, code, status, credential_payload, credential_error, used_at, cancelled_at, created_at`

// Create inserts a ticket. A code collision returns ErrDuplicate so the
// issuer can draw a fresh code.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	const q = `INSERT INTO tickets (id, user_id, event_id, reservation_id, code, status, credential_payload, credential_error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	payload := sql.NullString{String: t.CredentialPayload, Valid: t.CredentialPayload != ""}
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		t.ID, t.UserID, t.EventID, t.ReservationID, t.Code, t.Status,
		payload, nullString(t.CredentialError), t.CreatedAt)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns the ticket or ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return firstTicket(scanTickets(rows))
}

// GetByCode resolves a scanned code. Codes are unique across all events.
func (r *TicketRepo) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code = ?`, code)
	if err != nil {
		return nil, err
	}
	return firstTicket(scanTickets(rows))
}

// ListByReservation returns the reservation's tickets in issue order.
func (r *TicketRepo) ListByReservation(ctx context.Context, reservationID string) ([]model.Ticket, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE reservation_id = ? ORDER BY created_at, id`, reservationID)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

// ListByUser returns every ticket owned by the user, newest first.
func (r *TicketRepo) ListByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

// MarkUsed transitions active -> used.
func (r *TicketRepo) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE tickets SET status = 'used', used_at = ? WHERE id = ? AND status = 'active'`
	return r.transition(ctx, q, at, id)
}

// MarkCancelled transitions active -> cancelled.
func (r *TicketRepo) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE tickets SET status = 'cancelled', cancelled_at = ? WHERE id = ? AND status = 'active'`
	return r.transition(ctx, q, at, id)
}

// transition applies a compare-and-set from active and reports whether
// this call won it.
func (r *TicketRepo) transition(ctx context.Context, q string, at time.Time, id string) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// firstTicket returns the first ticket of a query or ErrTicketNotFound.
func firstTicket(ts []model.Ticket, err error) (*model.Ticket, error) {
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrTicketNotFound
	}
	return &ts[0], nil
}

// scanTickets reads every row and closes rows.
func scanTickets(rows *sql.Rows) ([]model.Ticket, error) {
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var (
			t         model.Ticket
			payload   sql.NullString
			credErr   sql.NullString
			usedAt    sql.NullTime
			cancelled sql.NullTime
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.EventID, &t.ReservationID, &t.Code, &t.Status,
			&payload, &credErr, &usedAt, &cancelled, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.CredentialPayload = payload.String
		t.CredentialError = stringPtr(credErr)
		if usedAt.Valid {
			u := usedAt.Time
			t.UsedAt = &u
		}
		if cancelled.Valid {
			c := cancelled.Time
			t.CancelledAt = &c
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
