// Package gateway is the boundary to the external payment processor. The
// processor is authoritative for whether money moved; callers only react
// to what it reports.
package gateway

import (
	"context"
	"errors"
)

// IntentStatus is the processor-neutral state of a payment intent.
type IntentStatus string

const (
	StatusPending    IntentStatus = "pending"    // awaiting customer action
	StatusAuthorized IntentStatus = "authorized" // funds held, not captured
	StatusCaptured   IntentStatus = "captured"   // funds captured
	StatusCanceled   IntentStatus = "canceled"   // abandoned or released
	StatusRefunded   IntentStatus = "refunded"   // captured and returned
)

// Settled reports whether the intent counts as paid for issuance.
func (s IntentStatus) Settled() bool { return s == StatusAuthorized || s == StatusCaptured }

// Metadata keys attached to every intent. They let a confirmation rebuild
// the local reservation when it was never persisted.
const (
	MetaReservationID = "reservation_id"
	MetaUserID        = "user_id"
	MetaEventID       = "event_id"
	MetaQuantity      = "quantity"
)

var (
	// ErrUnavailable covers timeouts, transport failures and processor-side
	// 5xx responses. Callers may retry.
	ErrUnavailable    = errors.New("payment gateway unavailable")
	ErrIntentNotFound = errors.New("payment intent not found")
)

type CreateIntentRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	ID          string
	ClientToken string // handed to the client to complete authorization
	AmountCents int64
	Currency    string
	Status      IntentStatus
	Metadata    map[string]string
	ReceiptRef  string // charge reference once captured
}

type Refund struct {
	ID       string
	IntentID string
}

// Gateway is implemented by Stripe and Simulated.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	// Refund returns the money for an intent. Authorized but uncaptured
	// intents are released instead. Refunding twice is not an error.
	Refund(ctx context.Context, intentID, reason string) (*Refund, error)
}
