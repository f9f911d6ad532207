package database

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrNotAvailable           = errors.New("site is not available for the requested dates")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrInUse                  = errors.New("record is referenced by reservations")
	ErrDuplicate              = errors.New("record already exists")
)

func sqliteCode(err error) (sqlite3.ErrNoExtended, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode, true
	}
	return 0, false
}

const overlapMessage = "reservation overlaps an existing reservation"

// isOverlapViolation reports whether the reservations_no_overlap trigger fired.
func isOverlapViolation(err error) bool {
	if err == nil {
		return false
	}
	code, ok := sqliteCode(err)
	if ok && code == sqlite3.ErrConstraintTrigger {
		return true
	}
	return strings.Contains(err.Error(), overlapMessage)
}

func isForeignKeyViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.ErrConstraintForeignKey
}

func isUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.ErrConstraintUnique || code == sqlite3.ErrConstraintPrimaryKey)
}
