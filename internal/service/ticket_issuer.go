package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

const (
	// 120 random bits; a collision is astronomically unlikely but still handled
	codeBytes       = 15
	maxCodeAttempts = 5
	maxCredErrLen   = 255
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TicketIssuer mints tickets for a reservation whose capacity has already
// been taken. It does no capacity accounting of its own.
type TicketIssuer struct {
	tickets  TicketStore
	renderer CredentialRenderer
	log      logger.Logger
	opts     options
}

func NewTicketIssuer(tickets TicketStore, renderer CredentialRenderer, log logger.Logger, opts ...Option) *TicketIssuer {
	if tickets == nil || renderer == nil || log == nil {
		panic("nil dependency passed to NewTicketIssuer")
	}
	return &TicketIssuer{tickets: tickets, renderer: renderer, log: log, opts: buildOptions(opts)}
}

// Issue creates qty active tickets. Credentials render in parallel; a unit
// whose credential fails keeps its code and records the failure instead of
// aborting the batch. Persistence is sequential and regenerates a code that
// collides with an existing one. Callers run Issue inside the transaction
// that took the capacity.
func (i *TicketIssuer) Issue(ctx context.Context, reservationID, userID, eventID string, qty int) ([]model.Ticket, error) {
	if qty < 1 {
		return nil, invalid("quantity", "must be at least 1")
	}
	now := i.opts.clock.Now()
	tickets := make([]model.Ticket, qty)
	for n := range tickets {
		code, err := i.opts.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate ticket code: %w", err)
		}
		tickets[n] = model.Ticket{
			ID:            uuid.NewString(),
			UserID:        userID,
			EventID:       eventID,
			ReservationID: reservationID,
			Code:          code,
			Status:        model.TicketActive,
			CreatedAt:     now,
		}
	}

	if err := i.renderAll(ctx, tickets); err != nil {
		return nil, err
	}
	for n := range tickets {
		if err := i.persist(ctx, &tickets[n]); err != nil {
			return nil, err
		}
	}
	return tickets, nil
}

func (i *TicketIssuer) renderAll(ctx context.Context, tickets []model.Ticket) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.issueConcurrency)
	for n := range tickets {
		t := &tickets[n]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			i.render(gctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (i *TicketIssuer) render(ctx context.Context, t *model.Ticket) {
	payload, err := i.renderer.Render(t.Code)
	if err != nil {
		msg := err.Error()
		if len(msg) > maxCredErrLen {
			msg = msg[:maxCredErrLen]
		}
		t.CredentialPayload = ""
		t.CredentialError = &msg
		i.log.Warnf(ctx, "ticket %s: credential rendering failed, code stays valid for manual entry: %v", t.ID, err)
		return
	}
	t.CredentialPayload = payload
	t.CredentialError = nil
}

// persist inserts the ticket, drawing a fresh code on collision.
func (i *TicketIssuer) persist(ctx context.Context, t *model.Ticket) error {
	for attempt := 1; ; attempt++ {
		err := i.tickets.Create(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == maxCodeAttempts {
			return fmt.Errorf("persist ticket %s: %w", t.ID, err)
		}
		code, err := i.opts.newCode()
		if err != nil {
			return fmt.Errorf("generate ticket code: %w", err)
		}
		i.log.Warnf(ctx, "ticket %s: code collision, regenerating", t.ID)
		t.Code = code
		i.render(ctx, t)
	}
}

// randomCode returns 15 random bytes as unpadded base32.
func randomCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return codeEncoding.EncodeToString(buf), nil
}
