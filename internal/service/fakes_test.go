package service

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema. Transactions are
// serialized and roll back by restoring a snapshot; statements outside a
// transaction wait for the running one, which is how row locks behave for
// the access patterns under test.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	events       map[string]model.Event
	reservations map[string]model.Reservation
	rsvps        map[string]model.RSVPReservation
	tickets      map[string]memTicket
	seq          int
}

type memTicket struct {
	model.Ticket
	seq int
}

type memState struct {
	events       map[string]model.Event
	reservations map[string]model.Reservation
	rsvps        map[string]model.RSVPReservation
	tickets      map[string]memTicket
	seq          int
}

type inTxKey struct{}

func newMemDB() *memDB {
	return &memDB{
		events:       map[string]model.Event{},
		reservations: map[string]model.Reservation{},
		rsvps:        map[string]model.RSVPReservation{},
		tickets:      map[string]memTicket{},
	}
}

func (db *memDB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snap := db.snapshot()
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		db.mu.Lock()
		db.restore(snap)
		db.mu.Unlock()
		return err
	}
	return nil
}

// do runs a single statement, autocommitted when ctx carries no transaction.
func (db *memDB) do(ctx context.Context, fn func()) {
	if ctx.Value(inTxKey{}) == nil {
		db.txMu.Lock()
		defer db.txMu.Unlock()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	fn()
}

func (db *memDB) snapshot() memState {
	return memState{
		events:       maps.Clone(db.events),
		reservations: maps.Clone(db.reservations),
		rsvps:        maps.Clone(db.rsvps),
		tickets:      maps.Clone(db.tickets),
		seq:          db.seq,
	}
}

func (db *memDB) restore(s memState) {
	db.events = s.events
	db.reservations = s.reservations
	db.rsvps = s.rsvps
	db.tickets = s.tickets
	db.seq = s.seq
}

func (db *memDB) addEvent(e model.Event) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events[e.ID] = e
}

func (db *memDB) event(id string) model.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.events[id]
}

func (db *memDB) reservationByIntent(intentID string) (model.Reservation, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range db.reservations {
		if r.ExternalIntentID == intentID {
			return r, true
		}
	}
	return model.Reservation{}, false
}

func (db *memDB) ticketCount(eventID string, statuses ...model.TicketStatus) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, t := range db.tickets {
		if t.EventID != eventID {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				n++
			}
		}
	}
	return n
}

func (db *memDB) rsvpCount(eventID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, r := range db.rsvps {
		if r.EventID == eventID {
			n++
		}
	}
	return n
}

type memEvents struct{ db *memDB }

func (s memEvents) GetByID(ctx context.Context, id string) (out *model.Event, err error) {
	s.db.do(ctx, func() {
		e, ok := s.db.events[id]
		if !ok {
			err = repository.ErrEventNotFound
			return
		}
		out = &e
	})
	return out, err
}

func (s memEvents) TryReserve(ctx context.Context, eventID string, qty int) (ok bool, err error) {
	s.db.do(ctx, func() {
		e, found := s.db.events[eventID]
		if !found || e.CapacityRemaining < qty {
			return
		}
		e.CapacityRemaining -= qty
		s.db.events[eventID] = e
		ok = true
	})
	return ok, nil
}

func (s memEvents) Release(ctx context.Context, eventID string, qty int) error {
	s.db.do(ctx, func() {
		e, found := s.db.events[eventID]
		if !found {
			return
		}
		e.CapacityRemaining = min(e.CapacityRemaining+qty, e.InitialCapacity)
		s.db.events[eventID] = e
	})
	return nil
}

type memReservations struct{ db *memDB }

func (s memReservations) Create(ctx context.Context, res *model.Reservation) (err error) {
	s.db.do(ctx, func() { err = s.insert(res) })
	return err
}

func (s memReservations) CreateIfAbsent(ctx context.Context, res *model.Reservation) (created bool, err error) {
	s.db.do(ctx, func() {
		err = s.insert(res)
		created = err == nil
		if errors.Is(err, repository.ErrDuplicate) {
			err = nil
		}
	})
	return created, err
}

func (s memReservations) insert(res *model.Reservation) error {
	if _, ok := s.db.reservations[res.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, r := range s.db.reservations {
		if r.ExternalIntentID == res.ExternalIntentID {
			return repository.ErrDuplicate
		}
	}
	s.db.reservations[res.ID] = *res
	return nil
}

func (s memReservations) GetByID(ctx context.Context, id string) (out *model.Reservation, err error) {
	s.db.do(ctx, func() {
		r, ok := s.db.reservations[id]
		if !ok {
			err = repository.ErrReservationNotFound
			return
		}
		out = &r
	})
	return out, err
}

func (s memReservations) GetByIntentID(ctx context.Context, intentID string) (out *model.Reservation, err error) {
	s.db.do(ctx, func() {
		for _, r := range s.db.reservations {
			if r.ExternalIntentID == intentID {
				out = &r
				return
			}
		}
		err = repository.ErrReservationNotFound
	})
	return out, err
}

func (s memReservations) LockByIntentID(ctx context.Context, intentID string) (*model.Reservation, error) {
	return s.GetByIntentID(ctx, intentID)
}

func (s memReservations) MarkSucceeded(ctx context.Context, id string, receiptRef *string) (bool, error) {
	return s.transition(ctx, id, model.ReservationPending, func(r *model.Reservation) {
		r.Status = model.ReservationSucceeded
		r.ReceiptRef = receiptRef
	}), nil
}

func (s memReservations) MarkRefunded(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id, model.ReservationPending, func(r *model.Reservation) {
		r.Status = model.ReservationRefunded
	}), nil
}

func (s memReservations) SetRefundRef(ctx context.Context, id, ref string) error {
	s.transition(ctx, id, model.ReservationRefunded, func(r *model.Reservation) { r.RefundRef = &ref })
	return nil
}

func (s memReservations) transition(ctx context.Context, id string, from model.ReservationStatus, apply func(*model.Reservation)) (ok bool) {
	s.db.do(ctx, func() {
		r, found := s.db.reservations[id]
		if !found || r.Status != from {
			return
		}
		apply(&r)
		s.db.reservations[id] = r
		ok = true
	})
	return ok
}

type memRSVPs struct{ db *memDB }

func (s memRSVPs) Create(ctx context.Context, rsvp *model.RSVPReservation) (err error) {
	s.db.do(ctx, func() {
		for _, r := range s.db.rsvps {
			if r.EventID == rsvp.EventID && r.ContactEmail == rsvp.ContactEmail {
				err = repository.ErrDuplicate
				return
			}
		}
		s.db.rsvps[rsvp.ID] = *rsvp
	})
	return err
}

func (s memRSVPs) GetByID(ctx context.Context, id string) (out *model.RSVPReservation, err error) {
	s.db.do(ctx, func() {
		r, ok := s.db.rsvps[id]
		if !ok {
			err = repository.ErrRSVPNotFound
			return
		}
		out = &r
	})
	return out, err
}

func (s memRSVPs) UpdateCheckIn(ctx context.Context, id string, count int, at time.Time) (ok bool, err error) {
	s.db.do(ctx, func() {
		r, found := s.db.rsvps[id]
		if !found || count < 0 || count > r.Quantity {
			return
		}
		r.CheckedInCount = count
		if count > 0 {
			r.LastCheckInAt = &at
		}
		s.db.rsvps[id] = r
		ok = true
	})
	return ok, nil
}

type memTickets struct{ db *memDB }

func (s memTickets) Create(ctx context.Context, t *model.Ticket) (err error) {
	s.db.do(ctx, func() {
		for _, x := range s.db.tickets {
			if x.Code == t.Code {
				err = repository.ErrDuplicate
				return
			}
		}
		s.db.seq++
		s.db.tickets[t.ID] = memTicket{Ticket: *t, seq: s.db.seq}
	})
	return err
}

func (s memTickets) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	return s.first(ctx, func(t model.Ticket) bool { return t.ID == id })
}

func (s memTickets) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
	return s.first(ctx, func(t model.Ticket) bool { return t.Code == code })
}

func (s memTickets) ListByReservation(ctx context.Context, reservationID string) ([]model.Ticket, error) {
	return s.list(ctx, func(t model.Ticket) bool { return t.ReservationID == reservationID }), nil
}

func (s memTickets) ListByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	return s.list(ctx, func(t model.Ticket) bool { return t.UserID == userID }), nil
}

func (s memTickets) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, id, func(t *model.Ticket) { t.Status = model.TicketUsed; t.UsedAt = &at }), nil
}

func (s memTickets) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, id, func(t *model.Ticket) { t.Status = model.TicketCancelled; t.CancelledAt = &at }), nil
}

func (s memTickets) transition(ctx context.Context, id string, apply func(*model.Ticket)) (ok bool) {
	s.db.do(ctx, func() {
		t, found := s.db.tickets[id]
		if !found || t.Status != model.TicketActive {
			return
		}
		apply(&t.Ticket)
		s.db.tickets[id] = t
		ok = true
	})
	return ok
}

func (s memTickets) first(ctx context.Context, match func(model.Ticket) bool) (*model.Ticket, error) {
	ts := s.list(ctx, match)
	if len(ts) == 0 {
		return nil, repository.ErrTicketNotFound
	}
	return &ts[0], nil
}

func (s memTickets) list(ctx context.Context, match func(model.Ticket) bool) []model.Ticket {
	var rows []memTicket
	s.db.do(ctx, func() {
		for _, t := range s.db.tickets {
			if match(t.Ticket) {
				rows = append(rows, t)
			}
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]model.Ticket, len(rows))
	for i, r := range rows {
		out[i] = r.Ticket
	}
	return out
}

// stubRenderer renders "qr:<code>" and fails for codes with a listed prefix.
type stubRenderer struct {
	failPrefix string
}

func (r stubRenderer) Render(code string) (string, error) {
	if r.failPrefix != "" && strings.HasPrefix(code, r.failPrefix) {
		return "", errors.New("qr encoder: data too long")
	}
	return "qr:" + code, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	issued   []queue.TicketsIssuedEvent
	refunded []queue.ReservationRefundedEvent
}

func (p *recordingPublisher) PublishTicketsIssued(_ context.Context, ev queue.TicketsIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued = append(p.issued, ev)
	return nil
}

func (p *recordingPublisher) PublishReservationRefunded(_ context.Context, ev queue.ReservationRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, ev)
	return nil
}

func (p *recordingPublisher) counts() (issued, refunded int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.issued), len(p.refunded)
}

// flakyRefunds fails the first n refunds as unavailable.
type flakyRefunds struct {
	*gateway.Simulated
	mu    sync.Mutex
	fails int
}

func (g *flakyRefunds) Refund(ctx context.Context, intentID, reason string) (*gateway.Refund, error) {
	g.mu.Lock()
	if g.fails > 0 {
		g.fails--
		g.mu.Unlock()
		return nil, gateway.ErrUnavailable
	}
	g.mu.Unlock()
	return g.Simulated.Refund(ctx, intentID, reason)
}

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type harness struct {
	db        *memDB
	gw        *gateway.Simulated
	clock     *clock.Fake
	publisher *recordingPublisher
	payments  *PaymentService
	rsvps     *RSVPService
	validator *TicketValidator
}

// newHarness wires the services over memDB. wrap, when set, decorates the
// simulated gateway the payment service talks to.
func newHarness(t *testing.T, wrap func(*gateway.Simulated) gateway.Gateway, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		db:        newMemDB(),
		gw:        gateway.NewSimulated(),
		clock:     clock.NewFake(baseTime),
		publisher: &recordingPublisher{},
	}
	var gw gateway.Gateway = h.gw
	if wrap != nil {
		gw = wrap(h.gw)
	}
	opts = append([]Option{WithClock(h.clock), WithPublisher(h.publisher)}, opts...)

	log := logger.NewNop()
	events, tickets := memEvents{h.db}, memTickets{h.db}
	issuer := NewTicketIssuer(tickets, stubRenderer{}, log, opts...)
	h.payments = NewPaymentService(events, memReservations{h.db}, tickets, h.db, gw, issuer, log, opts...)
	h.rsvps = NewRSVPService(events, memRSVPs{h.db}, h.db, log, opts...)
	h.validator = NewTicketValidator(tickets, events, h.db, log, opts...)
	return h
}

// newEvent adds an event that starts five hours after baseTime and lasts three hours.
func (h *harness) newEvent(id string, capacity int, price int64) model.Event {
	e := model.Event{
		ID:                id,
		OrganizerID:       "org-1",
		Title:             "Event " + id,
		UnitPriceCents:    price,
		Currency:          "usd",
		InitialCapacity:   capacity,
		CapacityRemaining: capacity,
		StartsAt:          baseTime.Add(5 * time.Hour),
		EndsAt:            baseTime.Add(8 * time.Hour),
		CreatedAt:         baseTime,
	}
	h.db.addEvent(e)
	return e
}

// authorizedIntent creates a reservation and completes gateway checkout for it.
func (h *harness) authorizedIntent(t *testing.T, userID, eventID string, qty int) *ReservationIntent {
	t.Helper()
	in, err := h.payments.CreateReservation(context.Background(), userID, eventID, qty)
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	if err := h.gw.Authorize(in.ExternalIntentID); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	return in
}

// assertConserved checks that every unit is either remaining, held by an
// active or used ticket, or held by an RSVP.
func (h *harness) assertConserved(t *testing.T, eventID string) {
	t.Helper()
	e := h.db.event(eventID)
	held := h.db.ticketCount(eventID, model.TicketActive, model.TicketUsed)
	h.db.mu.Lock()
	for _, r := range h.db.rsvps {
		if r.EventID == eventID {
			held += r.Quantity
		}
	}
	h.db.mu.Unlock()
	if e.CapacityRemaining+held != e.InitialCapacity {
		t.Fatalf("capacity not conserved for %s: remaining %d + held %d != initial %d",
			eventID, e.CapacityRemaining, held, e.InitialCapacity)
	}
}

func ticketIDs(ts []model.Ticket) []string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	sort.Strings(ids)
	return ids
}
