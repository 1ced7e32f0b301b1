package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// defaultMaxAttempts bounds how often a unit of work is replayed after
// MySQL aborted it on a deadlock or lock wait timeout.
const defaultMaxAttempts = 3

// MySQLStore implements Store on MySQL/InnoDB. Atomic units run at READ
// COMMITTED with explicit SELECT ... FOR UPDATE row locks, so every plain
// read issued after a lock observes the latest committed rows.
type MySQLStore struct {
	db          *sqlx.DB
	maxAttempts int

	pools    PoolRepo
	seats    SeatRepo
	holds    SeatHoldRepo
	bookings BookingRepo
	tickets  TicketRepo
	waitlist WaitlistRepo
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore wraps an open connection pool.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db, maxAttempts: defaultMaxAttempts}
}

// DB exposes the underlying pool for health checks.
func (s *MySQLStore) DB() *sqlx.DB { return s.db }

func (s *MySQLStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.run(ctx, opts, fn)
		if err == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", s.maxAttempts, err)
}

func (s *MySQLStore) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}, fn)
}

func (s *MySQLStore) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &mysqlTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// mysqlTx adapts the per-table repositories to the Tx contract.
type mysqlTx struct {
	s  *MySQLStore
	tx *sqlx.Tx
}

func (t *mysqlTx) GetPool(ctx context.Context, id uint64) (model.Pool, error) {
	return t.s.pools.GetTx(ctx, t.tx, id)
}

func (t *mysqlTx) LockPool(ctx context.Context, id uint64) (model.Pool, error) {
	return t.s.pools.LockTx(ctx, t.tx, id)
}

func (t *mysqlTx) CountSeats(ctx context.Context, poolID uint64) (int, int, error) {
	return t.s.seats.CountTx(ctx, t.tx, poolID)
}

func (t *mysqlTx) ListSeats(ctx context.Context, poolID uint64) ([]model.Seat, error) {
	return t.s.seats.ListTx(ctx, t.tx, poolID)
}

func (t *mysqlTx) LockSeats(ctx context.Context, poolID uint64, seatIDs []uint64) ([]model.Seat, error) {
	return t.s.seats.LockTx(ctx, t.tx, poolID, seatIDs)
}

func (t *mysqlTx) ActiveHoldsForSeats(ctx context.Context, poolID uint64, seatIDs []uint64, now time.Time) ([]model.SeatHold, error) {
	return t.s.holds.ActiveForSeatsTx(ctx, t.tx, poolID, seatIDs, now)
}

func (t *mysqlTx) ActiveHolds(ctx context.Context, poolID uint64, now time.Time) ([]model.SeatHold, error) {
	return t.s.holds.ActiveTx(ctx, t.tx, poolID, now)
}

func (t *mysqlTx) InsertHolds(ctx context.Context, holds []model.SeatHold) error {
	return t.s.holds.CreateMultipleTx(ctx, t.tx, holds)
}

func (t *mysqlTx) HoldsByToken(ctx context.Context, token string) ([]model.SeatHold, error) {
	return t.s.holds.ByTokenTx(ctx, t.tx, token)
}

func (t *mysqlTx) HoldsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatHold, error) {
	return t.s.holds.ByBookingTx(ctx, t.tx, bookingID)
}

func (t *mysqlTx) BindHolds(ctx context.Context, token string, bookingID uint64) (int64, error) {
	return t.s.holds.BindTx(ctx, t.tx, token, bookingID)
}

func (t *mysqlTx) SetHoldExpiry(ctx context.Context, bookingID uint64, kind model.HoldKind, expiresAt, now time.Time) (int64, error) {
	return t.s.holds.SetExpiryTx(ctx, t.tx, bookingID, kind, expiresAt, now)
}

func (t *mysqlTx) DeleteHoldsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatHold, error) {
	return t.s.holds.DeleteByBookingTx(ctx, t.tx, bookingID)
}

func (t *mysqlTx) DeleteHoldsByToken(ctx context.Context, token string) ([]model.SeatHold, error) {
	return t.s.holds.DeleteByTokenTx(ctx, t.tx, token)
}

func (t *mysqlTx) DeleteLapsedUnboundHolds(ctx context.Context, now time.Time, limit int) ([]model.SeatHold, error) {
	return t.s.holds.DeleteLapsedUnboundTx(ctx, t.tx, now, limit)
}

func (t *mysqlTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.s.bookings.CreateTx(ctx, t.tx, b)
}

func (t *mysqlTx) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.s.bookings.GetTx(ctx, t.tx, id)
}

func (t *mysqlTx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.s.bookings.LockTx(ctx, t.tx, id)
}

func (t *mysqlTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	return t.s.bookings.UpdateTx(ctx, t.tx, b)
}

func (t *mysqlTx) LapsedBookingIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	return t.s.bookings.LapsedIDsTx(ctx, t.tx, now, limit)
}

func (t *mysqlTx) BookedQuantity(ctx context.Context, poolID uint64) (int, int, error) {
	return t.s.bookings.QuantityTx(ctx, t.tx, poolID)
}

func (t *mysqlTx) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	return t.s.tickets.CreateBulkTx(ctx, t.tx, tickets)
}

func (t *mysqlTx) TicketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	return t.s.tickets.ByBookingTx(ctx, t.tx, bookingID)
}

func (t *mysqlTx) UnbindTicketSeats(ctx context.Context, bookingID uint64) error {
	return t.s.tickets.UnbindSeatsTx(ctx, t.tx, bookingID)
}

func (t *mysqlTx) TicketedSeats(ctx context.Context, poolID uint64) ([]TicketedSeat, error) {
	return t.s.tickets.SeatsTx(ctx, t.tx, poolID)
}

func (t *mysqlTx) InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	return t.s.waitlist.CreateTx(ctx, t.tx, e)
}

func (t *mysqlTx) GetWaitlistEntry(ctx context.Context, id uint64) (model.WaitlistEntry, error) {
	return t.s.waitlist.GetTx(ctx, t.tx, id)
}

func (t *mysqlTx) LockWaitlistEntry(ctx context.Context, id uint64) (model.WaitlistEntry, error) {
	return t.s.waitlist.LockTx(ctx, t.tx, id)
}

func (t *mysqlTx) UpdateWaitlistEntry(ctx context.Context, e model.WaitlistEntry) error {
	return t.s.waitlist.UpdateTx(ctx, t.tx, e)
}

func (t *mysqlTx) WaitingEntries(ctx context.Context, poolID uint64) ([]model.WaitlistEntry, error) {
	return t.s.waitlist.WaitingTx(ctx, t.tx, poolID)
}

func (t *mysqlTx) OpenEntry(ctx context.Context, poolID, holderID uint64) (model.WaitlistEntry, error) {
	return t.s.waitlist.OpenTx(ctx, t.tx, poolID, holderID)
}

func (t *mysqlTx) OutstandingAllocation(ctx context.Context, poolID uint64, now time.Time) (int, error) {
	return t.s.waitlist.OutstandingTx(ctx, t.tx, poolID, now)
}

func (t *mysqlTx) WaitlistPosition(ctx context.Context, e model.WaitlistEntry) (int, error) {
	return t.s.waitlist.PositionTx(ctx, t.tx, e)
}

func (t *mysqlTx) LapsedNotifications(ctx context.Context, now time.Time, limit int) ([]model.WaitlistEntry, error) {
	return t.s.waitlist.LapsedNotificationsTx(ctx, t.tx, now, limit)
}

func (t *mysqlTx) PoolsWithWaiting(ctx context.Context) ([]uint64, error) {
	return t.s.waitlist.PoolsWithWaitingTx(ctx, t.tx)
}
