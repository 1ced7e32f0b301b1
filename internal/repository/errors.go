// Package repository holds the storage contracts of the engine and their
// MySQL implementation. Missing rows surface as model.ErrNotFound so that
// callers classify storage errors the same way as domain errors.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// MySQL error numbers the store retries on.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// notFound converts sql.ErrNoRows into model.ErrNotFound naming what was
// looked up. Other errors pass through.
func notFound(err error, what string, id uint64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
	}
	return err
}

// retryable reports whether MySQL aborted the transaction because of lock
// contention, in which case the whole unit of work can be replayed.
func retryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
	}
	return false
}
