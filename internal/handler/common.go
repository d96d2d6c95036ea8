package handler // handler defines http handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// getUserID extracts the authenticated subject stored by the JWT middleware.
func getUserID(c echo.Context) (string, error) {
	if v, ok := c.Get(middleware.ContextUserID).(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("missing user_id in context")
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "invalid_request"})
}

// writeError maps service errors onto HTTP responses. Gateway trouble is
// checked before capacity: a sold-out confirmation whose refund could not
// reach the gateway is reported as retryable.
func writeError(c echo.Context, log logger.Logger, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Error(), "code": "invalid_request", "field": ve.Field})
	case errors.Is(err, service.ErrGatewayUnavailable):
		c.Response().Header().Set("Retry-After", "5")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payment gateway unavailable, retry later", "code": "gateway_unavailable"})
	case errors.Is(err, service.ErrCapacityExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not enough capacity left", "code": "capacity_exhausted"})
	case errors.Is(err, service.ErrDuplicateReservation):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already registered for this event", "code": "duplicate_reservation"})
	case errors.Is(err, service.ErrTicketNotActive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket is not active", "code": "ticket_not_active"})
	case errors.Is(err, service.ErrPaymentNotAuthorized):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment not authorized", "code": "payment_not_authorized"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "forbidden"})
	case errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrReservationNotFound),
		errors.Is(err, service.ErrRSVPNotFound),
		errors.Is(err, service.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "code": "not_found"})
	}
	log.Errorf(c.Request().Context(), "%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "internal"})
}
