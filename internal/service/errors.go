package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

var (
	// ErrCapacityExhausted means the event cannot supply the requested
	// units. On the paid path it comes with a compensating refund.
	ErrCapacityExhausted = errors.New("capacity exhausted")
	// ErrDuplicateReservation means the contact already holds an RSVP for the event.
	ErrDuplicateReservation = errors.New("duplicate reservation")
	// ErrPaymentNotAuthorized means the gateway does not report the intent
	// as authorized or captured.
	ErrPaymentNotAuthorized = errors.New("payment not authorized")
	// ErrGatewayUnavailable means the gateway timed out or failed. The
	// operation is safe to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	ErrEventNotFound       = errors.New("event not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrRSVPNotFound        = errors.New("rsvp not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrForbidden           = errors.New("forbidden")
	ErrTicketNotActive     = errors.New("ticket is not active")
)

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// invalid builds a ValidationError for a request field.
func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// gatewayError wraps transport trouble as ErrGatewayUnavailable so
// handlers can tell the caller to retry.
func gatewayError(op string, err error) error {
	if errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrGatewayUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// loadEvent maps the repository not-found sentinel onto ErrEventNotFound.
func loadEvent(ctx context.Context, events EventStore, id string) (*model.Event, error) {
	ev, err := events.GetByID(ctx, id)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	return ev, nil
}
