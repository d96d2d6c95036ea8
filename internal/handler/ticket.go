package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// TicketAPI is implemented by service.TicketValidator.
type TicketAPI interface {
	Validate(ctx context.Context, code string, at time.Time) (*service.ValidationResult, error)
	Cancel(ctx context.Context, ticketID, userID string) (*model.Ticket, error)
}

type TicketHandler struct {
	tickets TicketAPI
	log     logger.Logger
}

func NewTicketHandler(tickets TicketAPI, log logger.Logger) *TicketHandler {
	if tickets == nil || log == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{tickets: tickets, log: log}
}

// verdictStatus is the HTTP status reported with each door verdict. The
// verdict itself is always in the body.
var verdictStatus = map[service.Verdict]int{
	service.VerdictAdmitted:        http.StatusOK,
	service.VerdictNotFound:        http.StatusNotFound,
	service.VerdictAlreadyUsed:     http.StatusConflict,
	service.VerdictCancelled:       http.StatusConflict,
	service.VerdictEventEnded:      http.StatusConflict,
	service.VerdictEventNotYetOpen: http.StatusConflict,
}

// Validate handles POST /v1/tickets/:id/validate, where :id is the scanned
// code or signed QR token. Admission time is the server's clock.
func (h *TicketHandler) Validate(c echo.Context) error {
	res, err := h.tickets.Validate(c.Request().Context(), c.Param("id"), time.Time{})
	if err != nil {
		return writeError(c, h.log, err)
	}
	status, ok := verdictStatus[res.Verdict]
	if !ok {
		status = http.StatusConflict
	}
	return c.JSON(status, res)
}

// Cancel handles POST /v1/tickets/:id/cancel. Only the owner may cancel an
// active ticket; the unit returns to the event's pool.
func (h *TicketHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	t, err := h.tickets.Cancel(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, t)
}
