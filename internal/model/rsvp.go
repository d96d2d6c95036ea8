package model

import "time"

// RSVPReservation is the admission record for a free event. At most one
// exists per (EventID, ContactEmail); CheckedInCount stays within
// [0, Quantity].
type RSVPReservation struct {
	ID             string     `json:"id"`                         // rsvps.id
	EventID        string     `json:"event_id"`                   // rsvps.event_id
	ContactEmail   string     `json:"contact_email"`              // rsvps.contact_email (normalized lower case)
	Quantity       int        `json:"quantity"`                   // rsvps.quantity
	CheckedInCount int        `json:"checked_in_count"`           // rsvps.checked_in_count
	LastCheckInAt  *time.Time `json:"last_check_in_at,omitempty"` // rsvps.last_check_in_at (nullable)
	CreatedAt      time.Time  `json:"created_at"`                 // rsvps.created_at
}
