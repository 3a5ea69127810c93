// Package repository holds data access logic for the theatre domain on top
// of database/sql.  The sentinel values below let the service layer tell
// apart the storage outcomes it reacts to; everything else is returned as
// the raw driver error.
package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by identity matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update collides with a unique
// key, or when a delete is blocked by rows that still reference the target.
var ErrConflict = errors.New("conflict")

// ErrInvalidReference is returned when a write references a row that does
// not exist (foreign key failure on insert).
var ErrInvalidReference = errors.New("invalid reference")

// MySQL server error numbers the repositories react to.
const (
	mysqlDuplicateEntry   = 1062
	mysqlRowIsReferenced  = 1451
	mysqlNoReferencedRow  = 1452
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlRowIsReferenced2 = 1217
	mysqlNoReferencedRow2 = 1216
)

func mysqlErrNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

// IsDuplicate reports a unique key violation.
func IsDuplicate(err error) bool {
	n, ok := mysqlErrNumber(err)
	return ok && n == mysqlDuplicateEntry
}

// IsReferenced reports a delete blocked by a RESTRICT foreign key.
func IsReferenced(err error) bool {
	n, ok := mysqlErrNumber(err)
	return ok && (n == mysqlRowIsReferenced || n == mysqlRowIsReferenced2)
}

// IsMissingReference reports an insert pointing at a missing parent row.
func IsMissingReference(err error) bool {
	n, ok := mysqlErrNumber(err)
	return ok && (n == mysqlNoReferencedRow || n == mysqlNoReferencedRow2)
}

// missingParent reports an insert that failed on the named foreign key.
func missingParent(err error, constraint string) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == mysqlNoReferencedRow || me.Number == mysqlNoReferencedRow2) &&
		strings.Contains(me.Message, "`"+constraint+"`")
}

// IsRetryable reports failures where repeating the whole transaction is
// safe and may succeed: deadlock victims, lock wait timeouts, statement
// deadlines and lost connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if n, ok := mysqlErrNumber(err); ok {
		return n == mysqlDeadlock || n == mysqlLockWaitTimeout
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// classify maps well known MySQL failures onto the package sentinels so
// callers can use errors.Is.  The driver error stays in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsDuplicate(err), IsReferenced(err):
		return errors.Join(ErrConflict, err)
	case IsMissingReference(err):
		return errors.Join(ErrInvalidReference, err)
	}
	return err
}
