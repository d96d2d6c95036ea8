package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RSVPAPI is implemented by service.RSVPService.
type RSVPAPI interface {
	Reserve(ctx context.Context, eventID, contactEmail string, qty int) (*model.RSVPReservation, error)
	CheckIn(ctx context.Context, rsvpID string, count int) (*model.RSVPReservation, error)
}

type RSVPHandler struct {
	rsvps RSVPAPI
	log   logger.Logger
}

func NewRSVPHandler(rsvps RSVPAPI, log logger.Logger) *RSVPHandler {
	if rsvps == nil || log == nil {
		panic("nil dependency passed to NewRSVPHandler")
	}
	return &RSVPHandler{rsvps: rsvps, log: log}
}

// Create handles POST /v1/rsvps. Anonymous callers are allowed.
func (h *RSVPHandler) Create(c echo.Context) error {
	var body struct {
		EventID      string `json:"event_id"`
		ContactEmail string `json:"contact_email"`
		Quantity     int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	rsvp, err := h.rsvps.Reserve(c.Request().Context(), body.EventID, body.ContactEmail, body.Quantity)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, rsvp)
}

// CheckIn handles PATCH /v1/rsvps/:id/check-in for door staff. The body's
// "checked_in_count" replaces the stored headcount.
func (h *RSVPHandler) CheckIn(c echo.Context) error {
	var body struct {
		CheckedInCount *int `json:"checked_in_count"`
	}
	if err := c.Bind(&body); err != nil || body.CheckedInCount == nil {
		return badRequest(c, "checked_in_count is required")
	}
	rsvp, err := h.rsvps.CheckIn(c.Request().Context(), c.Param("id"), *body.CheckedInCount)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, rsvp)
}
