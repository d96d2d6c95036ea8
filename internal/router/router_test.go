package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

const secret = "router-test-secret"

type admitAll struct{}

func (admitAll) Validate(context.Context, string, time.Time) (*service.ValidationResult, error) {
	return &service.ValidationResult{Verdict: service.VerdictAdmitted}, nil
}

func (admitAll) Cancel(_ context.Context, id, _ string) (*model.Ticket, error) {
	return &model.Ticket{ID: id, Status: model.TicketCancelled}, nil
}

type noRSVPs struct{}

func (noRSVPs) Reserve(context.Context, string, string, int) (*model.RSVPReservation, error) {
	return &model.RSVPReservation{ID: "r-1"}, nil
}

func (noRSVPs) CheckIn(_ context.Context, id string, n int) (*model.RSVPReservation, error) {
	return &model.RSVPReservation{ID: id, CheckedInCount: n}, nil
}

func newServer() *echo.Echo {
	log := logger.NewNop()
	e := echo.New()
	t := handler.NewTicketHandler(admitAll{}, log)
	rs := handler.NewRSVPHandler(noRSVPs{}, log)
	RegisterRoutes(e, map[string]handler.Check{})
	RegisterStaff(e, t, rs, secret)
	e.POST("/v1/rsvps", rs.Create, middleware.OptionalJWTAuth(secret))
	return e
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, "u-1", role, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func TestStaffRoutesRequireDoorRole(t *testing.T) {
	e := newServer()
	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"customer", bearer(t, middleware.RoleCustomer), http.StatusForbidden},
		{"staff", bearer(t, middleware.RoleStaff), http.StatusOK},
		{"organizer", bearer(t, middleware.RoleOrganizer), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/tickets/ABC/validate", nil)
			if tc.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.auth)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	e := newServer()
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}
}
