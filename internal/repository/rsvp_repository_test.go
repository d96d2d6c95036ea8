package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestRSVPCreateDuplicatePair(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewRSVPRepo(db)

	mock.ExpectExec("INSERT INTO rsvps").
		WithArgs("r-1", "ev-1", "a@example.com", 2, sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err = repo.Create(context.Background(), &model.RSVPReservation{
		ID: "r-1", EventID: "ev-1", ContactEmail: "a@example.com", Quantity: 2, CreatedAt: time.Now(),
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestRSVPUpdateCheckInGuardsQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewRSVPRepo(db)
	at := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE rsvps SET checked_in_count = \?`).
		WithArgs(5, 5, at, "r-1", 5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateCheckIn(context.Background(), "r-1", 5, at)
	if err != nil || ok {
		t.Fatalf("UpdateCheckIn = %v, %v; want false", ok, err)
	}
}

func TestRSVPGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mock.ExpectQuery("FROM rsvps WHERE id").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := NewRSVPRepo(db).GetByID(context.Background(), "r-x"); !errors.Is(err, ErrRSVPNotFound) {
		t.Fatalf("err = %v, want ErrRSVPNotFound", err)
	}
}
