package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Verdict is the outcome of presenting a ticket at the door. Rejections are
// results, not errors.
type Verdict string

const (
	VerdictAdmitted        Verdict = "admitted"
	VerdictNotFound        Verdict = "not_found"
	VerdictAlreadyUsed     Verdict = "already_used"
	VerdictCancelled       Verdict = "cancelled"
	VerdictEventEnded      Verdict = "event_ended"
	VerdictEventNotYetOpen Verdict = "event_not_yet_open"
)

type ValidationResult struct {
	Verdict Verdict       `json:"verdict"`
	Ticket  *model.Ticket `json:"ticket,omitempty"`
}

func (r ValidationResult) Admitted() bool { return r.Verdict == VerdictAdmitted }

// TicketValidator drives the ticket state machine: active moves to used or
// cancelled exactly once.
type TicketValidator struct {
	tickets TicketStore
	events  EventStore
	tx      TxManager
	log     logger.Logger
	opts    options
}

// NewTicketValidator panics if a dependency is nil.
func NewTicketValidator(tickets TicketStore, events EventStore, tx TxManager, log logger.Logger, opts ...Option) *TicketValidator {
	if tickets == nil || events == nil || tx == nil || log == nil {
		panic("nil dependency passed to NewTicketValidator")
	}
	return &TicketValidator{tickets: tickets, events: events, tx: tx, log: log, opts: buildOptions(opts)}
}

// Validate admits the ticket identified by code at time at. code is either
// the raw ticket code or, with a verifier configured, a signed credential
// token. Of two concurrent scans of one active ticket exactly one is
// admitted; the other sees already_used.
func (v *TicketValidator) Validate(ctx context.Context, code string, at time.Time) (*ValidationResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("code", "is required")
	}
	if at.IsZero() {
		at = v.opts.clock.Now()
	}
	if v.opts.verifier != nil && strings.Contains(code, ".") {
		raw, err := v.opts.verifier.Verify(code)
		if err != nil {
			v.log.Warnf(ctx, "rejected credential token: %v", err)
			return &ValidationResult{Verdict: VerdictNotFound}, nil
		}
		code = raw
	}

	t, err := v.tickets.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return &ValidationResult{Verdict: VerdictNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if verdict, done := statusVerdict(t.Status); done {
		return &ValidationResult{Verdict: verdict, Ticket: t}, nil
	}

	ev, err := loadEvent(ctx, v.events, t.EventID)
	if err != nil {
		return nil, err
	}
	if at.After(ev.EndsAt) {
		return &ValidationResult{Verdict: VerdictEventEnded, Ticket: t}, nil
	}
	if at.Before(ev.StartsAt.Add(-v.opts.admissionWindow)) {
		return &ValidationResult{Verdict: VerdictEventNotYetOpen, Ticket: t}, nil
	}

	ok, err := v.tickets.MarkUsed(ctx, t.ID, at)
	if err != nil {
		return nil, fmt.Errorf("mark ticket used: %w", err)
	}
	if !ok {
		// lost the race; report whatever the winner made of it
		cur, err := v.tickets.GetByID(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		verdict, done := statusVerdict(cur.Status)
		if !done {
			return nil, fmt.Errorf("ticket %s still active after a failed transition", cur.ID)
		}
		return &ValidationResult{Verdict: verdict, Ticket: cur}, nil
	}
	t.Status = model.TicketUsed
	t.UsedAt = &at
	v.log.Infof(ctx, "ticket %s admitted for event %s", t.ID, t.EventID)
	return &ValidationResult{Verdict: VerdictAdmitted, Ticket: t}, nil
}

// Cancel lets the owner of an active ticket give it up. The unit goes back
// to the event's pool in the same transaction.
func (v *TicketValidator) Cancel(ctx context.Context, ticketID, userID string) (*model.Ticket, error) {
	t, err := v.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, ErrForbidden
	}
	if t.Status != model.TicketActive {
		return nil, ErrTicketNotActive
	}

	now := v.opts.clock.Now()
	err = v.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := v.tickets.MarkCancelled(ctx, t.ID, now)
		if err != nil {
			return fmt.Errorf("mark ticket cancelled: %w", err)
		}
		if !ok {
			return ErrTicketNotActive
		}
		if err := v.events.Release(ctx, t.EventID, 1); err != nil {
			return fmt.Errorf("release capacity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.Status = model.TicketCancelled
	t.CancelledAt = &now
	v.log.Infof(ctx, "ticket %s cancelled by owner, unit returned to event %s", t.ID, t.EventID)
	return t, nil
}

// statusVerdict maps a terminal status to its verdict. done is false for
// active tickets.
func statusVerdict(s model.TicketStatus) (Verdict, bool) {
	switch s {
	case model.TicketUsed:
		return VerdictAlreadyUsed, true
	case model.TicketCancelled:
		return VerdictCancelled, true
	}
	return VerdictAdmitted, false
}
