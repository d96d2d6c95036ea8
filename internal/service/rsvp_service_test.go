package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestRSVPReserve(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	ev := h.newEvent("ev-free", 20, 0)

	rsvp, err := h.rsvps.Reserve(ctx, ev.ID, "  Ana@Example.com ", 4)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if rsvp.ContactEmail != "ana@example.com" || rsvp.Quantity != 4 || rsvp.CheckedInCount != 0 {
		t.Fatalf("rsvp = %+v", rsvp)
	}
	if got := h.db.event(ev.ID).CapacityRemaining; got != 16 {
		t.Fatalf("capacity = %d, want 16", got)
	}

	// uniqueness ignores case and quantity
	if _, err := h.rsvps.Reserve(ctx, ev.ID, "ANA@example.com", 1); !errors.Is(err, ErrDuplicateReservation) {
		t.Fatalf("err = %v, want ErrDuplicateReservation", err)
	}
	if got := h.db.event(ev.ID).CapacityRemaining; got != 16 {
		t.Fatalf("duplicate took capacity: %d", got)
	}
	h.assertConserved(t, ev.ID)
}

func TestRSVPSoldOutLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	ev := h.newEvent("ev-free", 0, 0)

	if _, err := h.rsvps.Reserve(ctx, ev.ID, "ana@example.com", 1); !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("err = %v, want ErrCapacityExhausted", err)
	}
	if n := h.db.rsvpCount(ev.ID); n != 0 {
		t.Fatalf("%d rsvps stored, want 0", n)
	}

	// a later attempt with the same contact is not blocked by the failed one
	h.db.addEvent(model.Event{ID: ev.ID, InitialCapacity: 1, CapacityRemaining: 1, StartsAt: ev.StartsAt, EndsAt: ev.EndsAt})
	if _, err := h.rsvps.Reserve(ctx, ev.ID, "ana@example.com", 1); err != nil {
		t.Fatalf("Reserve after restock: %v", err)
	}
}

func TestRSVPConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	ev := h.newEvent("ev-free", 50, 0)

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.rsvps.Reserve(ctx, ev.ID, "ana@example.com", 2)
		}()
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateReservation):
			dup++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || dup != callers-1 {
		t.Fatalf("ok = %d dup = %d", ok, dup)
	}
	if got := h.db.event(ev.ID).CapacityRemaining; got != 48 {
		t.Fatalf("capacity = %d, want 48", got)
	}
}

func TestRSVPReserveValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	free := h.newEvent("ev-free", 50, 0)
	paid := h.newEvent("ev-paid", 50, 1500)

	tests := []struct {
		name    string
		eventID string
		email   string
		qty     int
		field   string
		want    error
	}{
		{name: "zero quantity", eventID: free.ID, email: "a@b.co", qty: 0, field: "quantity"},
		{name: "above limit", eventID: free.ID, email: "a@b.co", qty: 11, field: "quantity"},
		{name: "missing email", eventID: free.ID, email: " ", qty: 1, field: "contact_email"},
		{name: "malformed email", eventID: free.ID, email: "not-an-email", qty: 1, field: "contact_email"},
		{name: "display name form", eventID: free.ID, email: "Ana <a@b.co>", qty: 1, field: "contact_email"},
		{name: "paid event", eventID: paid.ID, email: "a@b.co", qty: 1, field: "event_id"},
		{name: "unknown event", eventID: "nope", email: "a@b.co", qty: 1, want: ErrEventNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.rsvps.Reserve(ctx, tc.eventID, tc.email, tc.qty)
			if tc.field != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != tc.field {
					t.Fatalf("err = %v, want validation error on %s", err, tc.field)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if got := h.db.event(free.ID).CapacityRemaining; got != 50 {
		t.Fatalf("rejected requests took capacity: %d", got)
	}
}

func TestRSVPMaxQuantityOption(t *testing.T) {
	h := newHarness(t, nil, WithMaxRSVPQuantity(2))
	ev := h.newEvent("ev-free", 10, 0)
	var ve *ValidationError
	if _, err := h.rsvps.Reserve(context.Background(), ev.ID, "a@b.co", 3); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestRSVPCheckIn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	ev := h.newEvent("ev-free", 10, 0)
	rsvp, err := h.rsvps.Reserve(ctx, ev.ID, "ana@example.com", 3)
	if err != nil {
		t.Fatal(err)
	}

	got, err := h.rsvps.CheckIn(ctx, rsvp.ID, 2)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if got.CheckedInCount != 2 || got.LastCheckInAt == nil || !got.LastCheckInAt.Equal(baseTime) {
		t.Fatalf("after check-in: %+v", got)
	}

	// overwrite, not increment
	h.clock.Advance(10 * time.Minute)
	got, err = h.rsvps.CheckIn(ctx, rsvp.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.CheckedInCount != 1 || !got.LastCheckInAt.Equal(h.clock.Now()) {
		t.Fatalf("after overwrite: %+v", got)
	}

	// zero keeps the last timestamp
	stamp := *got.LastCheckInAt
	h.clock.Advance(10 * time.Minute)
	got, err = h.rsvps.CheckIn(ctx, rsvp.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.CheckedInCount != 0 || !got.LastCheckInAt.Equal(stamp) {
		t.Fatalf("after reset: %+v", got)
	}

	var ve *ValidationError
	if _, err := h.rsvps.CheckIn(ctx, rsvp.ID, 4); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, err := h.rsvps.CheckIn(ctx, rsvp.ID, -1); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, err := h.rsvps.CheckIn(ctx, "missing", 1); !errors.Is(err, ErrRSVPNotFound) {
		t.Fatalf("err = %v, want ErrRSVPNotFound", err)
	}
}
