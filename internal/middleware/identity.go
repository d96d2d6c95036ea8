package middleware

// identity.go holds helpers shared across middleware files for figuring out
// who is calling.

import "github.com/labstack/echo/v4"

// userID returns the authenticated subject stored by JWTAuth or
// OptionalJWTAuth, or "guest" for anonymous requests.
func userID(c echo.Context) string {
	if v, ok := c.Get(ContextUserID).(string); ok && v != "" {
		return v
	}
	return "guest"
}
