package middleware // reusable HTTP middleware for the ticketing API

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5" // JWT parsing and validation
	"github.com/labstack/echo/v4"
)

// Context keys set by the JWT middleware. Handlers read them through
// c.Get.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

var errNoToken = errors.New("missing bearer token")

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject and role claims into the request context. The
// provided secret must match the one used when issuing tokens. Requests
// without a valid token are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, role, err := parseBearer(c, secret)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, errNoToken) {
					msg = err.Error()
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
			}
			c.Set(ContextUserID, sub)
			c.Set(ContextRole, role)
			return next(c)
		}
	}
}

// OptionalJWTAuth behaves like JWTAuth when a token is supplied, and lets
// anonymous requests through untouched. A token that is present but invalid
// is still rejected so that a stale session is not silently downgraded to
// anonymous.
func OptionalJWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, role, err := parseBearer(c, secret)
			switch {
			case errors.Is(err, errNoToken):
				return next(c)
			case err != nil:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ContextUserID, sub)
			c.Set(ContextRole, role)
			return next(c)
		}
	}
}

// parseBearer extracts and verifies the HS256 token from the Authorization
// header, returning its subject and role claims.
func parseBearer(c echo.Context, secret string) (string, string, error) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", "", errNoToken
	}
	raw := strings.TrimPrefix(auth, "Bearer ")

	// Reject anything not signed with HMAC before handing out the key.
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errors.New("token has no subject")
	}
	role, _ := claims["role"].(string)
	return sub, role, nil
}
