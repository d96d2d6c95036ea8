package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// EventReader is satisfied by repository.EventRepo.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// EventHandler exposes read-only availability for the public catalogue.
type EventHandler struct {
	events EventReader
	log    logger.Logger
}

func NewEventHandler(events EventReader, log logger.Logger) *EventHandler {
	if events == nil || log == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{events: events, log: log}
}

type availability struct {
	EventID           string    `json:"event_id"`
	Free              bool      `json:"free"`
	UnitPriceCents    int64     `json:"unit_price_cents"`
	Currency          string    `json:"currency,omitempty"`
	InitialCapacity   int       `json:"initial_capacity"`
	CapacityRemaining int       `json:"capacity_remaining"`
	TicketsSold       int       `json:"tickets_sold"`
	SoldOut           bool      `json:"sold_out"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
}

// Availability handles GET /v1/events/:id/availability. The figure is
// informational; responses may be served from a short-lived cache.
func (h *EventHandler) Availability(c echo.Context) error {
	ev, err := h.events.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found", "code": "not_found"})
	}
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, availability{
		EventID:           ev.ID,
		Free:              ev.IsFree(),
		UnitPriceCents:    ev.UnitPriceCents,
		Currency:          ev.Currency,
		InitialCapacity:   ev.InitialCapacity,
		CapacityRemaining: ev.CapacityRemaining,
		TicketsSold:       ev.TicketsSold(),
		SoldOut:           ev.CapacityRemaining == 0,
		StartsAt:          ev.StartsAt,
		EndsAt:            ev.EndsAt,
	})
}
