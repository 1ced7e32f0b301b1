package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const holdColumns = `id, pool_id, seat_id, holder_id, booking_id, token, kind, expires_at, created_at`

// SeatHoldRepo provides data access to the seat_holds table. A hold is
// active while expires_at is in the future; expired rows stay until the
// sweeper or a release removes them. All timestamps are UTC and every
// method runs inside the caller's transaction.
type SeatHoldRepo struct{}

// ActiveForSeatsTx returns unexpired holds covering any of seatIDs.
func (SeatHoldRepo) ActiveForSeatsTx(ctx context.Context, tx *sqlx.Tx, poolID uint64, seatIDs []uint64, now time.Time) ([]model.SeatHold, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(
		`SELECT `+holdColumns+` FROM seat_holds
		 WHERE pool_id = ? AND seat_id IN (?) AND expires_at > ? ORDER BY id`,
		poolID, seatIDs, now)
	if err != nil {
		return nil, err
	}
	var holds []model.SeatHold
	err = tx.SelectContext(ctx, &holds, tx.Rebind(q), args...)
	return holds, err
}

// ActiveTx returns all unexpired holds of a pool.
func (SeatHoldRepo) ActiveTx(ctx context.Context, tx *sqlx.Tx, poolID uint64, now time.Time) ([]model.SeatHold, error) {
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds WHERE pool_id = ? AND expires_at > ? ORDER BY id`,
		poolID, now)
	return holds, err
}

// CreateMultipleTx inserts holds in one statement. Passing an empty slice
// has no effect.
func (SeatHoldRepo) CreateMultipleTx(ctx context.Context, tx *sqlx.Tx, holds []model.SeatHold) error {
	if len(holds) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO seat_holds (pool_id, seat_id, holder_id, booking_id, token, kind, expires_at) VALUES `)
	args := make([]any, 0, len(holds)*7)
	for i, h := range holds {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, h.PoolID, h.SeatID, h.HolderID, h.BookingID, h.Token, h.Kind, h.ExpiresAt.UTC())
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// ByTokenTx returns the holds created under a pre-booking token.
func (SeatHoldRepo) ByTokenTx(ctx context.Context, tx *sqlx.Tx, token string) ([]model.SeatHold, error) {
	if token == "" {
		return nil, nil
	}
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds WHERE token = ? ORDER BY id FOR UPDATE`, token)
	return holds, err
}

// ByBookingTx returns the holds owned by a booking.
func (SeatHoldRepo) ByBookingTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64) ([]model.SeatHold, error) {
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds WHERE booking_id = ? ORDER BY id`, bookingID)
	return holds, err
}

// BindTx hands the token's holds over to a booking.
func (SeatHoldRepo) BindTx(ctx context.Context, tx *sqlx.Tx, token string, bookingID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_holds SET booking_id = ?, token = '' WHERE token = ? AND token <> ''`,
		bookingID, token)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetExpiryTx rewrites kind and expiry of a booking's active holds. Rows
// already carrying the target values are left alone so the affected count
// reflects real changes.
func (SeatHoldRepo) SetExpiryTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64, kind model.HoldKind, expiresAt, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_holds SET kind = ?, expires_at = ?
		 WHERE booking_id = ? AND expires_at > ? AND NOT (kind = ? AND expires_at = ?)`,
		kind, expiresAt.UTC(), bookingID, now, kind, expiresAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// deleteTx removes the given holds and returns them.
func (SeatHoldRepo) deleteTx(ctx context.Context, tx *sqlx.Tx, holds []model.SeatHold) ([]model.SeatHold, error) {
	if len(holds) == 0 {
		return holds, nil
	}
	ids := make([]uint64, len(holds))
	for i, h := range holds {
		ids[i] = h.ID
	}
	q, args, err := sqlx.In(`DELETE FROM seat_holds WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return nil, err
	}
	return holds, nil
}

// DeleteByBookingTx releases every hold of a booking.
func (r SeatHoldRepo) DeleteByBookingTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64) ([]model.SeatHold, error) {
	holds, err := r.ByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	return r.deleteTx(ctx, tx, holds)
}

// DeleteByTokenTx releases every hold created under a token.
func (r SeatHoldRepo) DeleteByTokenTx(ctx context.Context, tx *sqlx.Tx, token string) ([]model.SeatHold, error) {
	holds, err := r.ByTokenTx(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	return r.deleteTx(ctx, tx, holds)
}

// DeleteLapsedUnboundTx removes up to limit lapsed holds that no booking
// claimed.
func (r SeatHoldRepo) DeleteLapsedUnboundTx(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]model.SeatHold, error) {
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds
		 WHERE booking_id IS NULL AND expires_at <= ? ORDER BY id LIMIT ? FOR UPDATE`,
		now, limit)
	if err != nil {
		return nil, err
	}
	return r.deleteTx(ctx, tx, holds)
}
