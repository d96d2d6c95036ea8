package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimulatedLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated()

	in, err := g.CreateIntent(ctx, CreateIntentRequest{
		AmountCents: 3000, Currency: "usd",
		Metadata: map[string]string{MetaEventID: "ev-1"}, IdempotencyKey: "res-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if in.Status != StatusPending || in.ClientToken == "" {
		t.Fatalf("new intent = %+v", in)
	}

	again, err := g.CreateIntent(ctx, CreateIntentRequest{AmountCents: 3000, Currency: "usd", IdempotencyKey: "res-1"})
	if err != nil || again.ID != in.ID {
		t.Fatalf("idempotent create returned %v, %v", again, err)
	}

	if err := g.Authorize(in.ID); err != nil {
		t.Fatal(err)
	}
	if err := g.Capture(in.ID); err != nil {
		t.Fatal(err)
	}
	got, err := g.GetIntent(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Status.Settled() || got.ReceiptRef == "" || got.Metadata[MetaEventID] != "ev-1" {
		t.Fatalf("captured intent = %+v", got)
	}

	r1, err := g.Refund(ctx, in.ID, "capacity_exhausted")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	r2, err := g.Refund(ctx, in.ID, "capacity_exhausted")
	if err != nil || r2.ID != r1.ID {
		t.Fatalf("second refund = %v, %v; want same refund", r2, err)
	}
	if g.RefundCount(in.ID) != 1 {
		t.Errorf("RefundCount = %d", g.RefundCount(in.ID))
	}
	got, _ = g.GetIntent(ctx, in.ID)
	if got.Status != StatusRefunded {
		t.Errorf("status after refund = %s", got.Status)
	}
}

func TestSimulatedUnavailable(t *testing.T) {
	g := NewSimulated()
	g.SetUnavailable(true)
	if _, err := g.GetIntent(context.Background(), "pi_x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSimulatedLatencyHonorsDeadline(t *testing.T) {
	g := NewSimulated(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.CreateIntent(ctx, CreateIntentRequest{AmountCents: 100, Currency: "usd"})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want unavailable deadline error", err)
	}
}

func TestSimulatedMetadataIsCopied(t *testing.T) {
	g := NewSimulated(WithAutoAuthorize())
	md := map[string]string{MetaQuantity: "2"}
	in, err := g.CreateIntent(context.Background(), CreateIntentRequest{AmountCents: 100, Currency: "usd", Metadata: md})
	if err != nil {
		t.Fatal(err)
	}
	md[MetaQuantity] = "9"
	in.Metadata[MetaQuantity] = "7"

	got, _ := g.GetIntent(context.Background(), in.ID)
	if got.Metadata[MetaQuantity] != "2" {
		t.Fatalf("metadata leaked mutation: %v", got.Metadata)
	}
	if got.Status != StatusAuthorized {
		t.Fatalf("status = %s, want authorized", got.Status)
	}
}
