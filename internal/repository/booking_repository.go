package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const bookingColumns = `id, reference, holder_id, pool_id, quantity, total_price, booking_status,
	payment_status, payment_method, had_seat_timeout, confirmation_expires_at, payment_expires_at,
	confirmed_at, paid_at, cancelled_at, created_at, updated_at`

// liveBookingPredicate selects bookings that still count against capacity.
const liveBookingPredicate = `booking_status IN ('pending', 'confirmed') AND payment_status IN ('pending', 'paid')`

// BookingRepo provides data access to the bookings table.
type BookingRepo struct{}

// CreateTx inserts a booking and sets its generated id.
func (BookingRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, b *model.Booking) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (reference, holder_id, pool_id, quantity, total_price, booking_status,
		   payment_status, payment_method, had_seat_timeout, confirmation_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Reference, b.HolderID, b.PoolID, b.Quantity, b.TotalPrice, b.BookingStatus,
		b.PaymentStatus, b.PaymentMethod, b.HadSeatTimeout, b.ConfirmationExpiresAt.UTC(),
		b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetTx loads a booking without locking it.
func (BookingRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Booking, error) {
	var b model.Booking
	err := tx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return b, notFound(err, "booking", id)
}

// LockTx loads a booking and locks its row for the rest of the transaction.
func (BookingRepo) LockTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Booking, error) {
	var b model.Booking
	err := tx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
	return b, notFound(err, "booking", id)
}

// UpdateTx writes the mutable columns of a booking.
func (BookingRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, b model.Booking) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET booking_status = ?, payment_status = ?, payment_method = ?,
		   had_seat_timeout = ?, payment_expires_at = ?, confirmed_at = ?, paid_at = ?,
		   cancelled_at = ?, updated_at = ?
		 WHERE id = ?`,
		b.BookingStatus, b.PaymentStatus, b.PaymentMethod, b.HadSeatTimeout,
		b.PaymentExpiresAt, b.ConfirmedAt, b.PaidAt, b.CancelledAt, b.UpdatedAt.UTC(), b.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 for an update that changed nothing, so confirm the row exists.
		var one int
		err = tx.GetContext(ctx, &one, `SELECT 1 FROM bookings WHERE id = ?`, b.ID)
		return notFound(err, "booking", b.ID)
	}
	return nil
}

// LapsedIDsTx lists bookings past their current window.
func (BookingRepo) LapsedIDsTx(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := tx.SelectContext(ctx, &ids,
		`SELECT b.id FROM bookings b
		 WHERE (b.booking_status = 'pending' AND b.payment_status = 'pending'
		        AND (b.confirmation_expires_at <= ?
		             OR EXISTS (SELECT 1 FROM seat_holds h WHERE h.booking_id = b.id AND h.expires_at <= ?)))
		    OR (b.booking_status = 'confirmed' AND b.payment_status = 'pending' AND b.payment_expires_at < ?)
		 ORDER BY b.id LIMIT ?`,
		now, now, now, limit)
	return ids, err
}

// QuantityTx sums units over live and paid bookings of a pool.
func (BookingRepo) QuantityTx(ctx context.Context, tx *sqlx.Tx, poolID uint64) (int, int, error) {
	var row struct {
		Live int `db:"live"`
		Paid int `db:"paid"`
	}
	err := tx.GetContext(ctx, &row,
		`SELECT COALESCE(SUM(quantity), 0) AS live,
		        COALESCE(SUM(CASE WHEN payment_status = 'paid' THEN quantity ELSE 0 END), 0) AS paid
		 FROM bookings WHERE pool_id = ? AND `+liveBookingPredicate, poolID)
	return row.Live, row.Paid, err
}
