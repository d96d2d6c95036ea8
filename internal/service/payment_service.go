package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// RefundReasonCapacityExhausted tags compensating refunds.
const RefundReasonCapacityExhausted = "capacity_exhausted"

// PaymentService turns authorized gateway payments into tickets. Capacity
// is only taken at confirmation, under the reservation's row lock, so a
// given intent issues tickets at most once no matter how many confirmations
// race.
type PaymentService struct {
	events       EventStore
	reservations ReservationStore
	tickets      TicketStore
	tx           TxManager
	gateway      gateway.Gateway
	issuer       *TicketIssuer
	log          logger.Logger
	opts         options
}

// NewPaymentService wires the paid acquisition path. It panics when a
// dependency is missing.
func NewPaymentService(events EventStore, reservations ReservationStore, tickets TicketStore, tx TxManager, gw gateway.Gateway, issuer *TicketIssuer, log logger.Logger, opts ...Option) *PaymentService {
	if events == nil || reservations == nil || tickets == nil || tx == nil || gw == nil || issuer == nil || log == nil {
		panic("nil dependency passed to NewPaymentService")
	}
	return &PaymentService{
		events:       events,
		reservations: reservations,
		tickets:      tickets,
		tx:           tx,
		gateway:      gw,
		issuer:       issuer,
		log:          log,
		opts:         buildOptions(opts),
	}
}

// ReservationIntent is returned by CreateReservation. ClientToken lets the
// client complete authorization with the gateway directly.
type ReservationIntent struct {
	ReservationID    string `json:"reservation_id"`
	ExternalIntentID string `json:"external_intent_id"`
	ClientToken      string `json:"client_token"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
}

// ReservationView is a reservation with the tickets issued for it.
type ReservationView struct {
	Reservation *model.Reservation `json:"reservation"`
	Tickets     []model.Ticket     `json:"tickets"`
}

// Confirmation is the result of ConfirmReservation. Replayed is set when
// the reservation had already succeeded and the stored tickets are returned.
type Confirmation struct {
	ReservationView
	Replayed bool `json:"replayed"`
}

// CreateReservation opens a gateway intent for a paid event and records a
// pending reservation for it. The capacity check here is informational; it
// reserves nothing.
func (s *PaymentService) CreateReservation(ctx context.Context, userID, eventID string, qty int) (*ReservationIntent, error) {
	if userID == "" {
		return nil, invalid("user_id", "is required")
	}
	if qty < 1 {
		return nil, invalid("quantity", "must be at least 1")
	}
	ev, err := loadEvent(ctx, s.events, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsFree() {
		return nil, invalid("event_id", "event is free; reserve it through RSVP")
	}
	if ev.CapacityRemaining < qty {
		return nil, ErrCapacityExhausted
	}

	currency := ev.Currency
	if currency == "" {
		currency = s.opts.currency
	}
	now := s.opts.clock.Now()
	res := &model.Reservation{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventID:     ev.ID,
		Quantity:    qty,
		Status:      model.ReservationPending,
		AmountCents: ev.UnitPriceCents * int64(qty),
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.gatewayTimeout)
	intent, err := s.gateway.CreateIntent(gctx, gateway.CreateIntentRequest{
		AmountCents:    res.AmountCents,
		Currency:       res.Currency,
		IdempotencyKey: res.ID,
		Metadata: map[string]string{
			gateway.MetaReservationID: res.ID,
			gateway.MetaUserID:        userID,
			gateway.MetaEventID:       ev.ID,
			gateway.MetaQuantity:      strconv.Itoa(qty),
		},
	})
	cancel()
	if err != nil {
		return nil, gatewayError("create payment intent", err)
	}

	res.ExternalIntentID = intent.ID
	if err := s.reservations.Create(ctx, res); err != nil {
		// the intent exists at the gateway; confirmation rebuilds the row from its metadata
		return nil, fmt.Errorf("persist reservation for intent %s: %w", intent.ID, err)
	}
	s.log.Infof(ctx, "reservation %s created: event=%s user=%s quantity=%d intent=%s", res.ID, ev.ID, userID, qty, intent.ID)

	return &ReservationIntent{
		ReservationID:    res.ID,
		ExternalIntentID: intent.ID,
		ClientToken:      intent.ClientToken,
		AmountCents:      res.AmountCents,
		Currency:         res.Currency,
	}, nil
}

type confirmOutcome int

const (
	outcomeIssued confirmOutcome = iota
	outcomeSettled
	outcomeSoldOut
)

// ConfirmReservation reconciles the gateway's view of an intent with the
// local reservation and issues tickets once. It is safe to call repeatedly
// and concurrently for the same intent:
//
//   - a missing reservation is rebuilt from gateway metadata when the
//     gateway reports the intent as paid;
//   - a succeeded reservation replays its stored tickets;
//   - a pending one needs a settled intent, then takes capacity, issues
//     tickets and succeeds in one transaction;
//   - when capacity ran out the payment is refunded and the reservation
//     ends refunded.
//
// eventID is optional; when set it must match the reservation.
func (s *PaymentService) ConfirmReservation(ctx context.Context, intentID, eventID string) (*Confirmation, error) {
	return s.confirm(ctx, intentID, eventID, "")
}

// ConfirmReservationFor is ConfirmReservation on behalf of a caller. It
// answers ErrForbidden before touching capacity or tickets when userID does
// not own the reservation behind the intent.
func (s *PaymentService) ConfirmReservationFor(ctx context.Context, userID, intentID, eventID string) (*Confirmation, error) {
	if userID == "" {
		return nil, invalid("user_id", "is required")
	}
	return s.confirm(ctx, intentID, eventID, userID)
}

// confirm checks ownership only when userID is set.
func (s *PaymentService) confirm(ctx context.Context, intentID, eventID, userID string) (*Confirmation, error) {
	if intentID == "" {
		return nil, invalid("external_intent_id", "is required")
	}

	// 1. find the local reservation, or rebuild it from the gateway's metadata
	res, err := s.reservations.GetByIntentID(ctx, intentID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		res, err = s.rebuild(ctx, intentID, userID)
	}
	if err != nil {
		return nil, err
	}
	if userID != "" && res.UserID != userID {
		return nil, ErrForbidden
	}
	if eventID != "" && res.EventID != eventID {
		return nil, invalid("event_id", "does not match the reservation")
	}
	// 2. terminal reservations replay their outcome
	if res.Status != model.ReservationPending {
		return s.settled(ctx, res)
	}

	// 3. the gateway must report the payment as settled for the agreed amount
	intent, err := s.getIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Status.Settled() {
		return nil, fmt.Errorf("%w: intent %s is %s", ErrPaymentNotAuthorized, intentID, intent.Status)
	}
	if intent.AmountCents != res.AmountCents || !strings.EqualFold(intent.Currency, res.Currency) {
		s.log.Warnf(ctx, "reservation %s: gateway amount %d %s does not match %d %s",
			res.ID, intent.AmountCents, intent.Currency, res.AmountCents, res.Currency)
		return nil, fmt.Errorf("%w: amount mismatch", ErrPaymentNotAuthorized)
	}

	var (
		outcome confirmOutcome
		current *model.Reservation
		issued  []model.Ticket
	)
	// 4. lock the row, take capacity, issue tickets and mark succeeded in one transaction
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		// concurrent confirmations of the same intent serialize on this lock
		locked, err := s.reservations.LockByIntentID(ctx, intentID)
		if err != nil {
			return fmt.Errorf("lock reservation: %w", err)
		}
		current = locked
		if locked.Status != model.ReservationPending {
			outcome = outcomeSettled
			return nil
		}

		ok, err := s.events.TryReserve(ctx, locked.EventID, locked.Quantity)
		if err != nil {
			return fmt.Errorf("reserve capacity: %w", err)
		}
		if !ok {
			// committed before the refund call so no later confirmation can issue
			if _, err := s.reservations.MarkRefunded(ctx, locked.ID); err != nil {
				return fmt.Errorf("mark refunded: %w", err)
			}
			locked.Status = model.ReservationRefunded
			outcome = outcomeSoldOut
			return nil
		}

		issued, err = s.issuer.Issue(ctx, locked.ID, locked.UserID, locked.EventID, locked.Quantity)
		if err != nil {
			return fmt.Errorf("issue tickets: %w", err)
		}
		var receipt *string
		if intent.ReceiptRef != "" {
			receipt = &intent.ReceiptRef
		}
		marked, err := s.reservations.MarkSucceeded(ctx, locked.ID, receipt)
		if err != nil {
			return fmt.Errorf("mark succeeded: %w", err)
		}
		if !marked {
			return fmt.Errorf("reservation %s left pending during confirmation", locked.ID)
		}
		locked.Status = model.ReservationSucceeded
		locked.ReceiptRef = receipt
		outcome = outcomeIssued
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 5. work that must not hold the row lock: replay, compensating refund or event publication
	switch outcome {
	case outcomeSettled:
		return s.settled(ctx, current)
	case outcomeSoldOut:
		s.log.Warnf(ctx, "reservation %s: capacity exhausted at confirmation, refunding intent %s", current.ID, intentID)
		if err := s.compensate(ctx, current); err != nil {
			return nil, fmt.Errorf("%w; refund pending: %w", ErrCapacityExhausted, err)
		}
		return nil, ErrCapacityExhausted
	}

	s.log.Infof(ctx, "reservation %s succeeded: %d tickets issued", current.ID, len(issued))
	s.publishIssued(ctx, current, issued)
	return &Confirmation{ReservationView: ReservationView{Reservation: current, Tickets: issued}}, nil
}

// GetReservation returns the caller's reservation with its tickets.
func (s *PaymentService) GetReservation(ctx context.Context, reservationID, userID string) (*ReservationView, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, ErrForbidden
	}
	tickets, err := s.tickets.ListByReservation(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	return &ReservationView{Reservation: res, Tickets: tickets}, nil
}

// ListTickets returns every ticket the user holds.
func (s *PaymentService) ListTickets(ctx context.Context, userID string) ([]model.Ticket, error) {
	return s.tickets.ListByUser(ctx, userID)
}

// settled answers for a reservation that already reached a terminal state.
func (s *PaymentService) settled(ctx context.Context, res *model.Reservation) (*Confirmation, error) {
	switch res.Status {
	case model.ReservationSucceeded:
		tickets, err := s.tickets.ListByReservation(ctx, res.ID)
		if err != nil {
			return nil, fmt.Errorf("load tickets: %w", err)
		}
		return &Confirmation{ReservationView: ReservationView{Reservation: res, Tickets: tickets}, Replayed: true}, nil
	case model.ReservationRefunded:
		if res.RefundRef == nil {
			if err := s.compensate(ctx, res); err != nil {
				return nil, fmt.Errorf("%w; refund pending: %w", ErrCapacityExhausted, err)
			}
		}
		return nil, ErrCapacityExhausted
	case model.ReservationFailed:
		return nil, ErrPaymentNotAuthorized
	}
	return nil, fmt.Errorf("reservation %s in unexpected status %q", res.ID, res.Status)
}

// rebuild recreates a reservation lost between intent creation and the
// local insert. Only intents the gateway reports as paid qualify. A set
// userID must match the intent's metadata before anything is written.
func (s *PaymentService) rebuild(ctx context.Context, intentID, userID string) (*model.Reservation, error) {
	intent, err := s.getIntent(ctx, intentID)
	if errors.Is(err, gateway.ErrIntentNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !intent.Status.Settled() {
		return nil, fmt.Errorf("%w: intent %s is %s", ErrPaymentNotAuthorized, intentID, intent.Status)
	}
	res, err := reservationFromIntent(intent, s.opts.clock.Now())
	if err != nil {
		s.log.Warnf(ctx, "intent %s cannot be reconciled: %v", intentID, err)
		return nil, ErrReservationNotFound
	}
	if userID != "" && res.UserID != userID {
		return nil, ErrForbidden
	}
	created, err := s.reservations.CreateIfAbsent(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("rebuild reservation: %w", err)
	}
	if created {
		s.log.Warnf(ctx, "reservation %s rebuilt from gateway metadata of intent %s", res.ID, intentID)
	}
	out, err := s.reservations.GetByIntentID(ctx, intentID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return nil, ErrReservationNotFound
	}
	return out, err
}

// reservationFromIntent rebuilds a pending reservation from the metadata
// CreateReservation attached to the intent.
func reservationFromIntent(in *gateway.Intent, now time.Time) (*model.Reservation, error) {
	userID := in.Metadata[gateway.MetaUserID]
	eventID := in.Metadata[gateway.MetaEventID]
	if userID == "" || eventID == "" {
		return nil, errors.New("intent metadata lacks user or event")
	}
	qty, err := strconv.Atoi(in.Metadata[gateway.MetaQuantity])
	if err != nil || qty < 1 {
		return nil, fmt.Errorf("intent metadata has invalid quantity %q", in.Metadata[gateway.MetaQuantity])
	}
	id := in.Metadata[gateway.MetaReservationID]
	if id == "" {
		id = uuid.NewString()
	}
	return &model.Reservation{
		ID:               id,
		UserID:           userID,
		EventID:          eventID,
		Quantity:         qty,
		ExternalIntentID: in.ID,
		Status:           model.ReservationPending,
		AmountCents:      in.AmountCents,
		Currency:         strings.ToLower(in.Currency),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// getIntent fetches the intent within the gateway timeout.
func (s *PaymentService) getIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.gatewayTimeout)
	defer cancel()
	intent, err := s.gateway.GetIntent(gctx, intentID)
	if err != nil {
		if errors.Is(err, gateway.ErrIntentNotFound) {
			return nil, err
		}
		return nil, gatewayError("get payment intent", err)
	}
	return intent, nil
}

// compensate refunds a reservation that was marked refunded and records the
// gateway reference. A failure leaves refund_ref empty; the next
// confirmation of the intent retries.
func (s *PaymentService) compensate(ctx context.Context, res *model.Reservation) error {
	gctx, cancel := context.WithTimeout(ctx, s.opts.gatewayTimeout)
	refund, err := s.gateway.Refund(gctx, res.ExternalIntentID, RefundReasonCapacityExhausted)
	cancel()
	if err != nil {
		s.log.Errorf(ctx, "reservation %s: compensating refund failed: %v", res.ID, err)
		return gatewayError("refund payment intent", err)
	}
	ref := refund.ID
	if ref == "" {
		ref = res.ExternalIntentID
	}
	if err := s.reservations.SetRefundRef(ctx, res.ID, ref); err != nil {
		// the gateway refund is idempotent, so a retry only re-records the reference
		s.log.Errorf(ctx, "reservation %s: record refund %s: %v", res.ID, ref, err)
	}
	res.RefundRef = &ref
	s.log.Infof(ctx, "reservation %s refunded (%s)", res.ID, ref)

	if s.opts.publisher != nil {
		ev := queue.ReservationRefundedEvent{
			ReservationID:    res.ID,
			UserID:           res.UserID,
			EventID:          res.EventID,
			ExternalIntentID: res.ExternalIntentID,
			AmountCents:      res.AmountCents,
			Currency:         res.Currency,
			RefundRef:        ref,
			Reason:           RefundReasonCapacityExhausted,
			RefundedAt:       s.opts.clock.Now().Format(time.RFC3339),
		}
		if err := s.opts.publisher.PublishReservationRefunded(ctx, ev); err != nil {
			s.log.Warnf(ctx, "reservation %s: publish refund event: %v", res.ID, err)
		}
	}
	return nil
}

// publishIssued announces the issued tickets. Failures are only logged.
func (s *PaymentService) publishIssued(ctx context.Context, res *model.Reservation, tickets []model.Ticket) {
	if s.opts.publisher == nil {
		return
	}
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	ev := queue.TicketsIssuedEvent{
		ReservationID:    res.ID,
		UserID:           res.UserID,
		EventID:          res.EventID,
		ExternalIntentID: res.ExternalIntentID,
		Quantity:         res.Quantity,
		AmountCents:      res.AmountCents,
		Currency:         res.Currency,
		TicketIDs:        ids,
		IssuedAt:         s.opts.clock.Now().Format(time.RFC3339),
	}
	if err := s.opts.publisher.PublishTicketsIssued(ctx, ev); err != nil {
		s.log.Warnf(ctx, "reservation %s: publish issuance event: %v", res.ID, err)
	}
}
