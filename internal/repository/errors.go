// Package repository holds the MySQL data access layer.  The sentinel
// values below let handlers distinguish failure scenarios: ErrForbidden
// means the caller does not own the resource, ErrConflict means the
// write clashes with existing state.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be applied because of
// conflicting state, such as cancelling a booking twice.  Handlers
// translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

var (
	ErrGroundNotFound  = errors.New("ground not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
)

// isDuplicateKey reports whether err is a primary or unique key
// violation.  MySQL reports error 1062; the SQLite driver used in tests
// only exposes the message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
