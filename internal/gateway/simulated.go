package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Simulated is an in-process payment processor for local development and
// tests. Intents start pending unless auto-authorize is set; Authorize and
// Capture move them forward the way a customer completing checkout would.
type Simulated struct {
	mu            sync.Mutex
	intents       map[string]*Intent
	byKey         map[string]string
	refunds       map[string]*Refund
	autoAuthorize bool
	unavailable   bool
	latency       time.Duration
}

type SimulatedOption func(*Simulated)

// WithAutoAuthorize makes new intents authorized immediately.
func WithAutoAuthorize() SimulatedOption {
	return func(s *Simulated) { s.autoAuthorize = true }
}

// WithLatency delays every call by d, honoring context cancellation.
func WithLatency(d time.Duration) SimulatedOption {
	return func(s *Simulated) { s.latency = d }
}

func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		intents: make(map[string]*Intent),
		byKey:   make(map[string]string),
		refunds: make(map[string]*Refund),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetUnavailable makes every call fail with ErrUnavailable until reset.
func (s *Simulated) SetUnavailable(down bool) {
	s.mu.Lock()
	s.unavailable = down
	s.mu.Unlock()
}

func (s *Simulated) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrUnavailable
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("simulated gateway: invalid amount %d", req.AmountCents)
	}
	if id, ok := s.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return clone(s.intents[id]), nil
	}

	id := "pi_sim_" + randHex(12)
	in := &Intent{
		ID:          id,
		ClientToken: id + "_secret_" + randHex(12),
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Status:      StatusPending,
		Metadata:    maps.Clone(req.Metadata),
	}
	if s.autoAuthorize {
		in.Status = StatusAuthorized
	}
	s.intents[id] = in
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = id
	}
	return clone(in), nil
}

func (s *Simulated) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrUnavailable
	}
	in, ok := s.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return clone(in), nil
}

func (s *Simulated) Refund(ctx context.Context, intentID, reason string) (*Refund, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrUnavailable
	}
	in, ok := s.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if r, ok := s.refunds[intentID]; ok {
		return &Refund{ID: r.ID, IntentID: r.IntentID}, nil
	}
	r := &Refund{ID: "re_sim_" + randHex(12), IntentID: intentID}
	switch in.Status {
	case StatusAuthorized:
		in.Status = StatusCanceled
	case StatusCaptured:
		in.Status = StatusRefunded
	default:
		return nil, fmt.Errorf("simulated gateway: cannot refund intent in status %s", in.Status)
	}
	s.refunds[intentID] = r
	return &Refund{ID: r.ID, IntentID: r.IntentID}, nil
}

// Authorize simulates the customer completing checkout.
func (s *Simulated) Authorize(intentID string) error {
	return s.move(intentID, StatusPending, StatusAuthorized)
}

// Capture settles an authorized intent and assigns a receipt reference.
func (s *Simulated) Capture(intentID string) error {
	if err := s.move(intentID, StatusAuthorized, StatusCaptured); err != nil {
		return err
	}
	s.mu.Lock()
	s.intents[intentID].ReceiptRef = "ch_sim_" + randHex(12)
	s.mu.Unlock()
	return nil
}

// Cancel simulates the customer abandoning checkout.
func (s *Simulated) Cancel(intentID string) error {
	return s.move(intentID, StatusPending, StatusCanceled)
}

// RefundCount reports how many refunds were recorded for the intent.
func (s *Simulated) RefundCount(intentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refunds[intentID]; ok {
		return 1
	}
	return 0
}

func (s *Simulated) move(intentID string, from, to IntentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	if in.Status != from {
		return fmt.Errorf("simulated gateway: intent %s is %s, not %s", intentID, in.Status, from)
	}
	in.Status = to
	return nil
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case <-t.C:
		return nil
	}
}

func clone(in *Intent) *Intent {
	out := *in
	out.Metadata = maps.Clone(in.Metadata)
	return &out
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
