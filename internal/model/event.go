package model

import "time"

// Event is owned by the event catalogue; the ticketing core only reads it
// and mutates CapacityRemaining through the capacity store.
//
// Fields:
//
//	ID                – primary key identifier.
//	OrganizerID       – principal that owns the event.
//	Title             – display title.
//	UnitPriceCents    – price of one unit; 0 means the event is free (RSVP only).
//	Currency          – ISO currency code for paid events.
//	InitialCapacity   – total units the event was created with.
//	CapacityRemaining – units still allocatable; never negative.
//	StartsAt, EndsAt  – event schedule in UTC.
type Event struct {
	ID                string    `json:"id"`                 // events.id
	OrganizerID       string    `json:"organizer_id"`       // events.organizer_id
	Title             string    `json:"title"`              // events.title
	UnitPriceCents    int64     `json:"unit_price_cents"`   // events.unit_price_cents
	Currency          string    `json:"currency"`           // events.currency
	InitialCapacity   int       `json:"initial_capacity"`   // events.initial_capacity
	CapacityRemaining int       `json:"capacity_remaining"` // events.capacity_remaining
	StartsAt          time.Time `json:"starts_at"`          // events.starts_at
	EndsAt            time.Time `json:"ends_at"`            // events.ends_at
	CreatedAt         time.Time `json:"created_at"`         // events.created_at
}

// IsFree reports whether the event is acquired through RSVP instead of payment.
func (e *Event) IsFree() bool { return e.UnitPriceCents == 0 }

// TicketsSold is the number of units allocated so far, paid or free.
func (e *Event) TicketsSold() int { return e.InitialCapacity - e.CapacityRemaining }
