package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// PaymentAPI is the paid acquisition path, implemented by
// service.PaymentService.
type PaymentAPI interface {
	CreateReservation(ctx context.Context, userID, eventID string, qty int) (*service.ReservationIntent, error)
	ConfirmReservationFor(ctx context.Context, userID, intentID, eventID string) (*service.Confirmation, error)
	GetReservation(ctx context.Context, reservationID, userID string) (*service.ReservationView, error)
	ListTickets(ctx context.Context, userID string) ([]model.Ticket, error)
}

// ReservationHandler serves the customer side of paid reservations. All
// methods assume JWT authentication and the CUSTOMER role were enforced
// by middleware.
type ReservationHandler struct {
	payments PaymentAPI
	log      logger.Logger
}

// NewReservationHandler panics if a dependency is nil.
func NewReservationHandler(payments PaymentAPI, log logger.Logger) *ReservationHandler {
	if payments == nil || log == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{payments: payments, log: log}
}

// Create handles POST /v1/reservations. The body carries "event_id" and
// "quantity". It opens a payment intent and returns 201 with the client
// token the caller completes checkout with. Nothing is reserved yet.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		EventID  string `json:"event_id"`
		Quantity int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	body.EventID = strings.TrimSpace(body.EventID)
	if body.EventID == "" {
		return badRequest(c, "event_id is required")
	}
	intent, err := h.payments.CreateReservation(c.Request().Context(), userID, body.EventID, body.Quantity)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, intent)
}

// Confirm handles POST /v1/reservations/confirm with "external_intent_id"
// and an optional "event_id". It is idempotent: 201 when tickets were
// issued by this call, 200 when an earlier confirmation already issued
// them. A caller who does not own the reservation gets 403 and nothing is
// confirmed on their behalf.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		ExternalIntentID string `json:"external_intent_id"`
		EventID          string `json:"event_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	// ownership is checked by the service before any capacity is taken
	conf, err := h.payments.ConfirmReservationFor(c.Request().Context(), userID,
		strings.TrimSpace(body.ExternalIntentID), strings.TrimSpace(body.EventID))
	if err != nil {
		return writeError(c, h.log, err)
	}
	status := http.StatusCreated
	if conf.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, conf)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	view, err := h.payments.GetReservation(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// MyTickets handles GET /v1/my-tickets and lists every ticket the caller holds.
func (h *ReservationHandler) MyTickets(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	tickets, err := h.payments.ListTickets(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}
