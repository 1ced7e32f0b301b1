package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const seatColumns = `id, pool_id, section, row_label, seat_number, disabled`

// SeatRepo provides access to the seats table.
type SeatRepo struct{}

// CountTx returns the number of seat rows of a pool and how many are enabled.
func (SeatRepo) CountTx(ctx context.Context, tx *sqlx.Tx, poolID uint64) (int, int, error) {
	var row struct {
		Configured int `db:"configured"`
		Enabled    int `db:"enabled"`
	}
	err := tx.GetContext(ctx, &row,
		`SELECT COUNT(*) AS configured, COALESCE(SUM(disabled = 0), 0) AS enabled
		 FROM seats WHERE pool_id = ?`, poolID)
	return row.Configured, row.Enabled, err
}

// ListTx returns every seat of a pool ordered by id.
func (SeatRepo) ListTx(ctx context.Context, tx *sqlx.Tx, poolID uint64) ([]model.Seat, error) {
	var seats []model.Seat
	err := tx.SelectContext(ctx, &seats,
		`SELECT `+seatColumns+` FROM seats WHERE pool_id = ? ORDER BY id`, poolID)
	return seats, err
}

// LockTx takes exclusive row locks on the named seats. Rows are locked in
// id order so that two overlapping requests cannot deadlock on each other.
// Every hold acquisition goes through here before checking for conflicts.
func (SeatRepo) LockTx(ctx context.Context, tx *sqlx.Tx, poolID uint64, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(
		`SELECT `+seatColumns+` FROM seats WHERE pool_id = ? AND id IN (?) ORDER BY id FOR UPDATE`,
		poolID, seatIDs)
	if err != nil {
		return nil, err
	}
	var seats []model.Seat
	err = tx.SelectContext(ctx, &seats, tx.Rebind(q), args...)
	return seats, err
}
