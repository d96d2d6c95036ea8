package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// RSVPService handles free events. The RSVP record is the admission
// record; no tickets are minted.
type RSVPService struct {
	events EventStore
	rsvps  RSVPStore
	tx     TxManager
	log    logger.Logger
	opts   options
}

// NewRSVPService panics if a dependency is nil.
func NewRSVPService(events EventStore, rsvps RSVPStore, tx TxManager, log logger.Logger, opts ...Option) *RSVPService {
	if events == nil || rsvps == nil || tx == nil || log == nil {
		panic("nil dependency passed to NewRSVPService")
	}
	return &RSVPService{events: events, rsvps: rsvps, tx: tx, log: log, opts: buildOptions(opts)}
}

// Reserve registers contactEmail for a free event. The insert and the
// capacity decrement share one transaction: a duplicate takes no capacity
// and a sold-out event leaves no record.
func (s *RSVPService) Reserve(ctx context.Context, eventID, contactEmail string, qty int) (*model.RSVPReservation, error) {
	email, err := normalizeEmail(contactEmail)
	if err != nil {
		return nil, err
	}
	if qty < 1 || qty > s.opts.maxRSVPQuantity {
		return nil, invalid("quantity", fmt.Sprintf("must be between 1 and %d", s.opts.maxRSVPQuantity))
	}
	ev, err := loadEvent(ctx, s.events, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsFree() {
		return nil, invalid("event_id", "event is paid; purchase it through a reservation")
	}

	rsvp := &model.RSVPReservation{
		ID:           uuid.NewString(),
		EventID:      ev.ID,
		ContactEmail: email,
		Quantity:     qty,
		CreatedAt:    s.opts.clock.Now(),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.rsvps.Create(ctx, rsvp); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateReservation
			}
			return fmt.Errorf("create rsvp: %w", err)
		}
		ok, err := s.events.TryReserve(ctx, ev.ID, qty)
		if err != nil {
			return fmt.Errorf("reserve capacity: %w", err)
		}
		if !ok {
			return ErrCapacityExhausted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof(ctx, "rsvp %s created: event=%s quantity=%d", rsvp.ID, ev.ID, qty)
	return rsvp, nil
}

// CheckIn sets the headcount admitted so far for an RSVP. It overwrites
// rather than increments; zero resets the count without touching the
// last check-in time.
func (s *RSVPService) CheckIn(ctx context.Context, rsvpID string, count int) (*model.RSVPReservation, error) {
	rsvp, err := s.rsvps.GetByID(ctx, rsvpID)
	if errors.Is(err, repository.ErrRSVPNotFound) {
		return nil, ErrRSVPNotFound
	}
	if err != nil {
		return nil, err
	}
	if count < 0 || count > rsvp.Quantity {
		return nil, invalid("checked_in_count", fmt.Sprintf("must be between 0 and %d", rsvp.Quantity))
	}

	now := s.opts.clock.Now()
	ok, err := s.rsvps.UpdateCheckIn(ctx, rsvp.ID, count, now)
	if err != nil {
		return nil, fmt.Errorf("update check-in: %w", err)
	}
	if !ok {
		return nil, ErrRSVPNotFound
	}
	rsvp.CheckedInCount = count
	if count > 0 {
		rsvp.LastCheckInAt = &now
	}
	return rsvp, nil
}

// normalizeEmail accepts a bare address only and lower-cases it, so
// uniqueness per event ignores case.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("contact_email", "is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", invalid("contact_email", "is not a valid address")
	}
	return strings.ToLower(addr.Address), nil
}
