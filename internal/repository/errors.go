// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to tell a
// missing row from a uniqueness violation without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrRSVPNotFound        = errors.New("rsvp not found")
	ErrTicketNotFound      = errors.New("ticket not found")
)

// ErrDuplicate is returned when an insert violates a unique key: an
// external intent already recorded, an (event, email) RSVP pair already
// taken, or a ticket code collision.
var ErrDuplicate = errors.New("duplicate key")

const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is MySQL's duplicate-entry error.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
