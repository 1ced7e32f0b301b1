package model

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the commitment stage of a booking.
type BookingStatus uint8

const (
	BookingPending BookingStatus = iota + 1
	BookingConfirmed
	BookingCancelled
)

var bookingStatusNames = map[BookingStatus]string{
	BookingPending:   "pending",
	BookingConfirmed: "confirmed",
	BookingCancelled: "cancelled",
}

func (s BookingStatus) String() string {
	if n, ok := bookingStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s BookingStatus) MarshalText() ([]byte, error) { return marshalEnum(s, bookingStatusNames) }
func (s *BookingStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, bookingStatusNames, "booking status")
}
func (s *BookingStatus) Scan(src any) error {
	return scanEnum(src, s, bookingStatusNames, "booking status")
}
func (s BookingStatus) Value() (driver.Value, error) { return valueEnum(s, bookingStatusNames) }

// PaymentStatus tracks money movement for a booking.
type PaymentStatus uint8

const (
	PaymentPending PaymentStatus = iota + 1
	PaymentPaid
	PaymentCancelled
	PaymentFailed
)

var paymentStatusNames = map[PaymentStatus]string{
	PaymentPending:   "pending",
	PaymentPaid:      "paid",
	PaymentCancelled: "cancelled",
	PaymentFailed:    "failed",
}

func (s PaymentStatus) String() string {
	if n, ok := paymentStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s PaymentStatus) MarshalText() ([]byte, error) { return marshalEnum(s, paymentStatusNames) }
func (s *PaymentStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, paymentStatusNames, "payment status")
}
func (s *PaymentStatus) Scan(src any) error {
	return scanEnum(src, s, paymentStatusNames, "payment status")
}
func (s PaymentStatus) Value() (driver.Value, error) { return valueEnum(s, paymentStatusNames) }

// State is the lifecycle position derived from the two status columns.
// Pending -> Confirmed -> {Paid | Cancelled}, Pending -> Cancelled.
type State uint8

const (
	StateInvalid State = iota
	StatePending
	StateConfirmed
	StatePaid
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StatePaid:
		return "paid"
	case StateCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

// Booking is a purchase request for Quantity units of a pool.
//
// Fields:
//
//	ID                    – primary key identifier.
//	Reference             – short human-facing reference (BK-XXXXXXXXXX).
//	HolderID              – requester who owns the booking.
//	PoolID                – pool being purchased from.
//	Quantity              – number of units.
//	TotalPrice            – Quantity × pool price at creation.
//	BookingStatus         – pending, confirmed or cancelled.
//	PaymentStatus         – pending, paid, cancelled or failed.
//	PaymentMethod         – method supplied at pay time.
//	HadSeatTimeout        – payment was recorded after the seat holds lapsed.
//	ConfirmationExpiresAt – end of the confirmation window.
//	PaymentExpiresAt      – end of the payment window (set on confirm).
type Booking struct {
	ID                    uint64          `db:"id" json:"id"`
	Reference             string          `db:"reference" json:"reference"`
	HolderID              uint64          `db:"holder_id" json:"holder_id"`
	PoolID                uint64          `db:"pool_id" json:"pool_id"`
	Quantity              int             `db:"quantity" json:"quantity"`
	TotalPrice            decimal.Decimal `db:"total_price" json:"total_price"`
	BookingStatus         BookingStatus   `db:"booking_status" json:"booking_status"`
	PaymentStatus         PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentMethod         string          `db:"payment_method" json:"payment_method,omitempty"`
	HadSeatTimeout        bool            `db:"had_seat_timeout" json:"had_seat_timeout"`
	ConfirmationExpiresAt time.Time       `db:"confirmation_expires_at" json:"confirmation_expires_at"`
	PaymentExpiresAt      *time.Time      `db:"payment_expires_at" json:"payment_expires_at,omitempty"`
	ConfirmedAt           *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	PaidAt                *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CancelledAt           *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// NewBooking returns a pending booking whose confirmation window starts at now.
func NewBooking(holderID uint64, pool Pool, quantity int, now time.Time, confirmWindow time.Duration) Booking {
	return Booking{
		HolderID:              holderID,
		PoolID:                pool.ID,
		Quantity:              quantity,
		TotalPrice:            pool.PriceFor(quantity),
		BookingStatus:         BookingPending,
		PaymentStatus:         PaymentPending,
		ConfirmationExpiresAt: now.Add(confirmWindow),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// State derives the lifecycle position. Combinations the machine never
// produces map to StateInvalid.
func (b Booking) State() State {
	switch b.BookingStatus {
	case BookingPending:
		if b.PaymentStatus == PaymentPending {
			return StatePending
		}
	case BookingConfirmed:
		switch b.PaymentStatus {
		case PaymentPending:
			return StateConfirmed
		case PaymentPaid:
			return StatePaid
		}
	case BookingCancelled:
		if b.PaymentStatus == PaymentCancelled || b.PaymentStatus == PaymentFailed {
			return StateCancelled
		}
	}
	return StateInvalid
}

// Live reports whether the booking still counts against capacity.
func (b Booking) Live() bool {
	switch b.State() {
	case StatePending, StateConfirmed, StatePaid:
		return true
	default:
		return false
	}
}

// Confirm moves a pending booking to confirmed and opens the payment
// window. The confirmation window is half-open: confirming at exactly
// ConfirmationExpiresAt fails.
func (b *Booking) Confirm(now time.Time, paymentWindow time.Duration) error {
	switch b.State() {
	case StatePending:
		if !now.Before(b.ConfirmationExpiresAt) {
			return ErrWindowExpired
		}
		exp := now.Add(paymentWindow)
		b.BookingStatus = BookingConfirmed
		b.PaymentExpiresAt = &exp
		b.ConfirmedAt = &now
		b.UpdatedAt = now
		return nil
	case StateConfirmed, StatePaid:
		return InvalidStatef("booking %d is already confirmed", b.ID)
	case StateCancelled:
		return InvalidStatef("booking %d is cancelled", b.ID)
	default:
		return InvalidStatef("booking %d has no valid state", b.ID)
	}
}

// Pay records a successful payment. Paying at exactly PaymentExpiresAt is
// still accepted.
func (b *Booking) Pay(now time.Time, method string, hadSeatTimeout bool) error {
	switch b.State() {
	case StateConfirmed:
		if b.paymentLapsed(now) {
			return ErrWindowExpired
		}
		b.PaymentStatus = PaymentPaid
		b.PaymentMethod = method
		b.HadSeatTimeout = hadSeatTimeout
		b.PaidAt = &now
		b.UpdatedAt = now
		return nil
	case StatePaid:
		return InvalidStatef("booking %d is already paid", b.ID)
	case StatePending:
		return InvalidStatef("booking %d must be confirmed before payment", b.ID)
	case StateCancelled:
		return InvalidStatef("booking %d is cancelled", b.ID)
	default:
		return InvalidStatef("booking %d has no valid state", b.ID)
	}
}

// FailPayment records a rejected payment. The booking is cancelled so that
// its units return to the pool.
func (b *Booking) FailPayment(now time.Time, method string) error {
	switch b.State() {
	case StateConfirmed:
		if b.paymentLapsed(now) {
			return ErrWindowExpired
		}
		b.BookingStatus = BookingCancelled
		b.PaymentStatus = PaymentFailed
		b.PaymentMethod = method
		b.CancelledAt = &now
		b.UpdatedAt = now
		return nil
	case StatePaid:
		return InvalidStatef("booking %d is already paid", b.ID)
	case StatePending:
		return InvalidStatef("booking %d must be confirmed before payment", b.ID)
	case StateCancelled:
		return InvalidStatef("booking %d is cancelled", b.ID)
	default:
		return InvalidStatef("booking %d has no valid state", b.ID)
	}
}

// Cancel cancels a pending or confirmed booking on the holder's request.
func (b *Booking) Cancel(now time.Time) error {
	switch b.State() {
	case StatePending, StateConfirmed:
		b.markCancelled(now)
		return nil
	case StatePaid:
		return InvalidStatef("booking %d is paid and cannot be cancelled", b.ID)
	case StateCancelled:
		return InvalidStatef("booking %d is already cancelled", b.ID)
	default:
		return InvalidStatef("booking %d has no valid state", b.ID)
	}
}

// Expire cancels a booking whose current window has lapsed.
func (b *Booking) Expire(now time.Time) error {
	if !b.Lapsed(now) {
		return InvalidStatef("booking %d has not lapsed", b.ID)
	}
	b.markCancelled(now)
	return nil
}

// Lapsed reports whether the booking sits past its current window.
func (b Booking) Lapsed(now time.Time) bool {
	switch b.State() {
	case StatePending:
		return !now.Before(b.ConfirmationExpiresAt)
	case StateConfirmed:
		return b.paymentLapsed(now)
	case StatePaid, StateCancelled, StateInvalid:
		return false
	default:
		return false
	}
}

// HoldDeadline is the expiry given to the seat holds of a confirmed
// booking. Holds are active strictly before their expiry while payment is
// accepted up to and including PaymentExpiresAt, so the holds run one
// second past it. Zero when the booking has no payment window.
func (b Booking) HoldDeadline() time.Time {
	if b.PaymentExpiresAt == nil {
		return time.Time{}
	}
	return b.PaymentExpiresAt.Add(time.Second)
}

func (b Booking) paymentLapsed(now time.Time) bool {
	return b.PaymentExpiresAt != nil && now.After(*b.PaymentExpiresAt)
}

func (b *Booking) markCancelled(now time.Time) {
	b.BookingStatus = BookingCancelled
	b.PaymentStatus = PaymentCancelled
	b.CancelledAt = &now
	b.UpdatedAt = now
}
