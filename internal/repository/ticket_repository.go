package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const ticketColumns = `id, booking_id, pool_id, seat_id, code, status, created_at`

// TicketRepo provides data access to the tickets table. Tickets are never
// deleted.
type TicketRepo struct{}

// CreateBulkTx inserts tickets in one statement.
func (TicketRepo) CreateBulkTx(ctx context.Context, tx *sqlx.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO tickets (booking_id, pool_id, seat_id, code, status, created_at) VALUES `)
	args := make([]any, 0, len(tickets)*6)
	for i, t := range tickets {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, t.BookingID, t.PoolID, t.SeatID, t.Code, t.Status, t.CreatedAt.UTC())
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// ByBookingTx lists a booking's tickets.
func (TicketRepo) ByBookingTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := tx.SelectContext(ctx, &tickets,
		`SELECT `+ticketColumns+` FROM tickets WHERE booking_id = ? ORDER BY id`, bookingID)
	return tickets, err
}

// UnbindSeatsTx turns a booking's seated tickets into general admission.
func (TicketRepo) UnbindSeatsTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE tickets SET seat_id = NULL WHERE booking_id = ?`, bookingID)
	return err
}

// SeatsTx lists distinct seats on tickets of live bookings of a pool.
func (TicketRepo) SeatsTx(ctx context.Context, tx *sqlx.Tx, poolID uint64) ([]TicketedSeat, error) {
	var seats []TicketedSeat
	err := tx.SelectContext(ctx, &seats,
		`SELECT t.seat_id AS seat_id, MAX(b.payment_status = 'paid') AS paid
		 FROM tickets t JOIN bookings b ON b.id = t.booking_id
		 WHERE t.pool_id = ? AND t.seat_id IS NOT NULL
		   AND b.booking_status IN ('pending', 'confirmed') AND b.payment_status IN ('pending', 'paid')
		 GROUP BY t.seat_id ORDER BY t.seat_id`, poolID)
	return seats, err
}
