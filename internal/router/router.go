package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// RegisterRoutes registers operational routes that never require
// authentication: liveness at /healthz and readiness at /readyz.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks))
}

// RegisterPublic registers endpoints guests may call. Availability reads go
// through the response cache; RSVP creation accepts an optional token so a
// signed-in caller is still identified in logs and rate-limit keys.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, rs *handler.RSVPHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/availability", ev.Availability, cache)
	e.POST("/v1/rsvps", rs.Create, middleware.OptionalJWTAuth(jwtSecret))
}
