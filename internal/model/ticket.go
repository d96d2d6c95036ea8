package model

import "time"

// TicketStatus is the lifecycle state of a ticket. active is the only state
// that can transition, and only once.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is one admission unit issued from a succeeded reservation.
// CredentialPayload holds a base64 PNG QR code; when rendering failed it is
// empty and CredentialError says why, but the code still admits by manual
// entry.
type Ticket struct {
	ID                string       `json:"id"`                           // tickets.id
	UserID            string       `json:"user_id"`                      // tickets.user_id
	EventID           string       `json:"event_id"`                     // tickets.event_id
	ReservationID     string       `json:"reservation_id"`               // tickets.reservation_id
	Code              string       `json:"code"`                         // tickets.code (unique)
	Status            TicketStatus `json:"status"`                       // tickets.status
	CredentialPayload string       `json:"credential_payload,omitempty"` // tickets.credential_payload
	CredentialError   *string      `json:"credential_error,omitempty"`   // tickets.credential_error (nullable)
	UsedAt            *time.Time   `json:"used_at,omitempty"`            // tickets.used_at (nullable)
	CancelledAt       *time.Time   `json:"cancelled_at,omitempty"`       // tickets.cancelled_at (nullable)
	CreatedAt         time.Time    `json:"created_at"`                   // tickets.created_at
}
