package repository

import (
	"context"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// Store runs units of work against the transactional store. Every
// mutating operation of the engine is exactly one Atomic call; there is no
// long-lived in-process lock.
type Store interface {
	// Atomic runs fn inside a transaction that takes row locks on the seats,
	// bookings, pools and entries it locks through Tx. The transaction
	// commits when fn returns nil and rolls back otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn inside a read-only transaction with relaxed isolation.
	// Results may be briefly stale.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// TicketedSeat is a seat attached to a ticket of a live booking.
type TicketedSeat struct {
	SeatID uint64 `db:"seat_id"`
	Paid   bool   `db:"paid"`
}

// Tx is the set of row operations available inside a unit of work. Lock*
// methods take exclusive row locks that are held until the unit ends.
type Tx interface {
	// Pools.
	GetPool(ctx context.Context, id uint64) (model.Pool, error)
	LockPool(ctx context.Context, id uint64) (model.Pool, error)

	// Seats.
	// CountSeats returns how many seat rows the pool has and how many of
	// them are enabled.
	CountSeats(ctx context.Context, poolID uint64) (configured, enabled int, err error)
	ListSeats(ctx context.Context, poolID uint64) ([]model.Seat, error)
	// LockSeats locks the named seats of the pool in id order and returns
	// those that exist.
	LockSeats(ctx context.Context, poolID uint64, seatIDs []uint64) ([]model.Seat, error)

	// Seat holds.
	ActiveHoldsForSeats(ctx context.Context, poolID uint64, seatIDs []uint64, now time.Time) ([]model.SeatHold, error)
	ActiveHolds(ctx context.Context, poolID uint64, now time.Time) ([]model.SeatHold, error)
	InsertHolds(ctx context.Context, holds []model.SeatHold) error
	HoldsByToken(ctx context.Context, token string) ([]model.SeatHold, error)
	HoldsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatHold, error)
	// BindHolds attaches the token's holds to bookingID and clears the token.
	BindHolds(ctx context.Context, token string, bookingID uint64) (int64, error)
	// SetHoldExpiry rewrites kind and expires_at of the booking's holds that
	// are still active at now.
	SetHoldExpiry(ctx context.Context, bookingID uint64, kind model.HoldKind, expiresAt, now time.Time) (int64, error)
	DeleteHoldsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatHold, error)
	DeleteHoldsByToken(ctx context.Context, token string) ([]model.SeatHold, error)
	// DeleteLapsedUnboundHolds removes up to limit lapsed holds no booking
	// owns.
	DeleteLapsedUnboundHolds(ctx context.Context, now time.Time, limit int) ([]model.SeatHold, error)

	// Bookings.
	InsertBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	LockBooking(ctx context.Context, id uint64) (model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error
	// LapsedBookingIDs returns up to limit bookings that sit past their
	// current window: pending ones past the confirmation window or with a
	// lapsed seat hold, and confirmed unpaid ones past the payment window.
	LapsedBookingIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	// BookedQuantity sums quantity over the pool's live bookings and over
	// its paid bookings.
	BookedQuantity(ctx context.Context, poolID uint64) (live, paid int, err error)

	// Tickets.
	InsertTickets(ctx context.Context, tickets []model.Ticket) error
	TicketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error)
	UnbindTicketSeats(ctx context.Context, bookingID uint64) error
	// TicketedSeats lists distinct seats on tickets of the pool's live bookings.
	TicketedSeats(ctx context.Context, poolID uint64) ([]TicketedSeat, error)

	// Waiting list.
	InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id uint64) (model.WaitlistEntry, error)
	LockWaitlistEntry(ctx context.Context, id uint64) (model.WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, e model.WaitlistEntry) error
	// WaitingEntries returns the pool's waiting entries in FIFO order.
	WaitingEntries(ctx context.Context, poolID uint64) ([]model.WaitlistEntry, error)
	// OpenEntry returns the holder's waiting or notified entry for the pool.
	OpenEntry(ctx context.Context, poolID, holderID uint64) (model.WaitlistEntry, error)
	// OutstandingAllocation sums allocated_quantity of notified entries whose
	// window is still open at now.
	OutstandingAllocation(ctx context.Context, poolID uint64, now time.Time) (int, error)
	// WaitlistPosition is the 1-based FIFO rank of a waiting entry.
	WaitlistPosition(ctx context.Context, e model.WaitlistEntry) (int, error)
	LapsedNotifications(ctx context.Context, now time.Time, limit int) ([]model.WaitlistEntry, error)
	PoolsWithWaiting(ctx context.Context) ([]uint64, error)
}
