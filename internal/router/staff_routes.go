package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// RegisterStaff registers door endpoints under /v1 for STAFF and ORGANIZER
// tokens.
func RegisterStaff(e *echo.Echo, t *handler.TicketHandler, rs *handler.RSVPHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff, middleware.RoleOrganizer),
	)
	// :id carries the scanned ticket code or signed QR token
	g.POST("/tickets/:id/validate", t.Validate)
	g.PATCH("/rsvps/:id/check-in", rs.CheckIn)
}
