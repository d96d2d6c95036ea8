// Package queue defines message payloads exchanged over the message broker,
// the publisher that sends them and the audit consumer that records them.
package queue

const (
	TicketsIssuedQueue       = "tickets.issued"
	ReservationRefundedQueue = "reservation.refunded"
)

// TicketsIssuedEvent is published after a reservation succeeds. It carries
// enough for downstream consumers (notifications, analytics) to act without
// querying the primary database.
type TicketsIssuedEvent struct {
	ReservationID    string   `json:"reservation_id"`
	UserID           string   `json:"user_id"`
	EventID          string   `json:"event_id"`
	ExternalIntentID string   `json:"external_intent_id"`
	Quantity         int      `json:"quantity"`
	AmountCents      int64    `json:"amount_cents"`
	Currency         string   `json:"currency"`
	TicketIDs        []string `json:"ticket_ids"`
	IssuedAt         string   `json:"issued_at"`
}

// ReservationRefundedEvent is published when a payment was reversed
// because capacity ran out between authorization and confirmation.
type ReservationRefundedEvent struct {
	ReservationID    string `json:"reservation_id"`
	UserID           string `json:"user_id"`
	EventID          string `json:"event_id"`
	ExternalIntentID string `json:"external_intent_id"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	RefundRef        string `json:"refund_ref,omitempty"`
	Reason           string `json:"reason"`
	RefundedAt       string `json:"refunded_at"`
}
