package model

import "time"

// ReservationStatus is the lifecycle state of a paid reservation. pending is
// the only non-terminal state.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationSucceeded ReservationStatus = "succeeded"
	ReservationRefunded  ReservationStatus = "refunded"
	ReservationFailed    ReservationStatus = "failed"
)

// Reservation records one checkout attempt against the payment gateway.
// ExternalIntentID is unique and doubles as the idempotency key for
// confirmation.
//
// Fields:
//
//	ID               – primary key identifier.
//	UserID           – purchasing principal.
//	EventID          – event being purchased.
//	Quantity         – number of units, at least 1.
//	ExternalIntentID – gateway payment intent identifier.
//	Status           – pending, succeeded, refunded or failed.
//	AmountCents      – unit price times quantity at creation time.
//	Currency         – ISO currency of the amount.
//	ReceiptRef       – gateway charge reference once the payment settled.
//	RefundRef        – gateway refund reference after compensation.
type Reservation struct {
	ID               string            `json:"id"`                    // reservations.id
	UserID           string            `json:"user_id"`               // reservations.user_id
	EventID          string            `json:"event_id"`              // reservations.event_id
	Quantity         int               `json:"quantity"`              // reservations.quantity
	ExternalIntentID string            `json:"external_intent_id"`    // reservations.external_intent_id
	Status           ReservationStatus `json:"status"`                // reservations.status
	AmountCents      int64             `json:"amount_cents"`          // reservations.amount_cents
	Currency         string            `json:"currency"`              // reservations.currency
	ReceiptRef       *string           `json:"receipt_ref,omitempty"` // reservations.receipt_ref (nullable)
	RefundRef        *string           `json:"refund_ref,omitempty"`  // reservations.refund_ref (nullable)
	CreatedAt        time.Time         `json:"created_at"`            // reservations.created_at
	UpdatedAt        time.Time         `json:"updated_at"`            // reservations.updated_at
}
