package service

import (
	"context"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
)

// The interfaces below are satisfied by the MySQL repositories in
// internal/repository and by in-memory fakes in tests. Not-found and
// duplicate-key conditions are reported with the repository sentinels.

// TxManager runs fn in a transaction carried by the context it receives.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CapacityStore is the atomic counter of remaining units per event.
// TryReserve returns false, not an error, when fewer than qty remain.
type CapacityStore interface {
	TryReserve(ctx context.Context, eventID string, qty int) (bool, error)
	Release(ctx context.Context, eventID string, qty int) error
}

type EventStore interface {
	CapacityStore
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	CreateIfAbsent(ctx context.Context, res *model.Reservation) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	GetByIntentID(ctx context.Context, intentID string) (*model.Reservation, error)
	LockByIntentID(ctx context.Context, intentID string) (*model.Reservation, error)
	MarkSucceeded(ctx context.Context, id string, receiptRef *string) (bool, error)
	MarkRefunded(ctx context.Context, id string) (bool, error)
	SetRefundRef(ctx context.Context, id, ref string) error
}

type RSVPStore interface {
	Create(ctx context.Context, rsvp *model.RSVPReservation) error
	GetByID(ctx context.Context, id string) (*model.RSVPReservation, error)
	UpdateCheckIn(ctx context.Context, id string, count int, at time.Time) (bool, error)
}

type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	GetByCode(ctx context.Context, code string) (*model.Ticket, error)
	ListByReservation(ctx context.Context, reservationID string) ([]model.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]model.Ticket, error)
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
}

// EventPublisher sends domain events to the broker. Publishing is best
// effort; failures are logged by the caller.
type EventPublisher interface {
	PublishTicketsIssued(ctx context.Context, ev queue.TicketsIssuedEvent) error
	PublishReservationRefunded(ctx context.Context, ev queue.ReservationRefundedEvent) error
}

type CredentialRenderer interface {
	Render(code string) (string, error)
}

type CredentialVerifier interface {
	Verify(token string) (string, error)
}
