package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// RegisterCustomer registers customer-scoped endpoints under /v1. All routes
// require a valid JWT and the CUSTOMER role. Customers open and confirm paid
// reservations, view them with their tickets, and cancel tickets they own.
func RegisterCustomer(e *echo.Echo, r *handler.ReservationHandler, t *handler.TicketHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	g.POST("/reservations", r.Create)
	// confirm is idempotent; clients may retry it freely
	g.POST("/reservations/confirm", r.Confirm)
	g.GET("/reservations/:id", r.Get)
	g.GET("/my-tickets", r.MyTickets)
	g.POST("/tickets/:id/cancel", t.Cancel)
}
