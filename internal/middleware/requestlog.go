package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/logger"
)

// RequestLogger attaches the request id to the request's logger and writes
// one access line per request. It must run after echo's RequestID
// middleware.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := log.With(req.Context(), "request_id", rid)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo's error handler write the response before logging its status
				c.Error(err)
			}
			status := c.Response().Status
			latency := time.Since(start)
			switch {
			case status >= 500:
				log.Errorf(ctx, "%s %s -> %d in %s (user=%s): %v", req.Method, c.Path(), status, latency, userID(c), err)
			default:
				log.Infof(ctx, "%s %s -> %d in %s (user=%s)", req.Method, c.Path(), status, latency, userID(c))
			}
			return nil
		}
	}
}
