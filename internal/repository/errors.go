// Package repository holds the MySQL stores for trips, bookings and
// wallets.  Driver errors are translated here so higher layers only see
// the model error taxonomy: lock waits, deadlocks, dropped connections and
// deadlines become model.TransientError, a duplicate PNR becomes
// model.ErrDuplicatePNR and a missing row becomes model.ErrNotFound.
package repository

import (
    "context"
    "database/sql"
    "database/sql/driver"
    "errors"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// MySQL server error numbers the stores care about.
const (
    errDupEntry        = 1062
    errLockWaitTimeout = 1205
    errDeadlock        = 1213
)

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == errDupEntry
}

// isTransient reports whether err is worth retrying as a whole.
func isTransient(err error) bool {
    if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
        return true
    }
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        return me.Number == errLockWaitTimeout || me.Number == errDeadlock
    }
    return false
}

// classify maps a driver error to the model taxonomy.  op names the store
// call for the error message.
func classify(op string, err error) error {
    switch {
    case err == nil:
        return nil
    case errors.Is(err, sql.ErrNoRows):
        return model.ErrNotFound
    case isTransient(err):
        return model.TransientError{Op: op, Err: err}
    }
    return err
}
