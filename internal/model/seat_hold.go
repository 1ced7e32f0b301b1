package model

import (
	"database/sql/driver"
	"time"
)

// PermanentHoldExpiry is the expires_at given to holds of a paid booking.
// A promoted hold never lapses, so its seat stays booked.
var PermanentHoldExpiry = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// HoldKind distinguishes a hold created at reservation time from one that
// survived confirmation.
type HoldKind uint8

const (
	HoldTemporary HoldKind = iota + 1
	HoldConfirmed
)

var holdKindNames = map[HoldKind]string{
	HoldTemporary: "temporary",
	HoldConfirmed: "confirmed",
}

func (k HoldKind) String() string {
	if n, ok := holdKindNames[k]; ok {
		return n
	}
	return "unknown"
}

func (k HoldKind) MarshalText() ([]byte, error) { return marshalEnum(k, holdKindNames) }
func (k *HoldKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, k, holdKindNames, "hold kind")
}
func (k *HoldKind) Scan(src any) error          { return scanEnum(src, k, holdKindNames, "hold kind") }
func (k HoldKind) Value() (driver.Value, error) { return valueEnum(k, holdKindNames) }

// SeatHold is an exclusive, time-limited lock on one seat of a pool.
// Holds are either bound to a booking or, during the pre-booking flow,
// identified only by their token until a booking claims them.
//
// Fields:
//
//	ID        – primary key identifier.
//	PoolID    – pool of the seat.
//	SeatID    – seat being held.
//	HolderID  – requester who owns the hold.
//	BookingID – owning booking (nil while unclaimed).
//	Token     – correlation token of a pre-booking hold ("" once claimed).
//	Kind      – temporary or confirmed.
//	ExpiresAt – when the hold lapses.
//	CreatedAt – creation timestamp.
type SeatHold struct {
	ID        uint64    `db:"id" json:"id"`                 // seat_holds.id
	PoolID    uint64    `db:"pool_id" json:"pool_id"`       // seat_holds.pool_id
	SeatID    uint64    `db:"seat_id" json:"seat_id"`       // seat_holds.seat_id
	HolderID  uint64    `db:"holder_id" json:"holder_id"`   // seat_holds.holder_id
	BookingID *uint64   `db:"booking_id" json:"booking_id"` // seat_holds.booking_id (nullable)
	Token     string    `db:"token" json:"token,omitempty"` // seat_holds.token
	Kind      HoldKind  `db:"kind" json:"kind"`             // seat_holds.kind
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"` // seat_holds.expires_at
	CreatedAt time.Time `db:"created_at" json:"created_at"` // seat_holds.created_at
}

// Active reports whether the hold still blocks its seat at now.
func (h SeatHold) Active(now time.Time) bool { return h.ExpiresAt.After(now) }

// Permanent reports whether the hold belongs to a paid booking.
func (h SeatHold) Permanent() bool { return !h.ExpiresAt.Before(PermanentHoldExpiry) }

// Bound reports whether a booking owns the hold.
func (h SeatHold) Bound() bool { return h.BookingID != nil && *h.BookingID != 0 }

// SeatIDsOf returns the seat ids of holds in order.
func SeatIDsOf(holds []SeatHold) []uint64 {
	ids := make([]uint64, len(holds))
	for i, h := range holds {
		ids[i] = h.SeatID
	}
	return ids
}
