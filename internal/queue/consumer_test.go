package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleMessageAppendsAuditLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	issued, _ := json.Marshal(TicketsIssuedEvent{
		ReservationID: "res-1", UserID: "u-1", EventID: "ev-1", ExternalIntentID: "pi_1",
		Quantity: 2, AmountCents: 2000, Currency: "usd", TicketIDs: []string{"t-1", "t-2"},
		IssuedAt: "2026-05-01T18:00:00Z",
	})
	refunded, _ := json.Marshal(ReservationRefundedEvent{
		ReservationID: "res-2", UserID: "u-2", EventID: "ev-1", ExternalIntentID: "pi_2",
		AmountCents: 1000, Currency: "usd", RefundRef: "re_1", Reason: "capacity_exhausted",
		RefundedAt: "2026-05-01T18:01:00Z",
	})

	if err := handleMessage(TicketsIssuedQueue, issued, dir); err != nil {
		t.Fatalf("issued: %v", err)
	}
	if err := handleMessage(ReservationRefundedQueue, refunded, dir); err != nil {
		t.Fatalf("refunded: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, auditFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "tickets=[t-1,t-2]") || !strings.Contains(lines[0], "total=2000 USD") {
		t.Errorf("issued line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "refund=re_1") || !strings.Contains(lines[1], "reason=capacity_exhausted") {
		t.Errorf("refunded line = %q", lines[1])
	}
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := handleMessage(TicketsIssuedQueue, []byte("{not json"), dir); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if err := handleMessage("other.queue", []byte("{}"), dir); err == nil {
		t.Fatal("expected unknown queue error")
	}
}
