package model

import (
	"database/sql/driver"
	"time"
)

// WaitlistStatus is the lifecycle of a waiting-list entry.
type WaitlistStatus uint8

const (
	WaitlistWaiting WaitlistStatus = iota + 1
	WaitlistNotified
	WaitlistConverted
	WaitlistExpired
	WaitlistCancelled
)

var waitlistStatusNames = map[WaitlistStatus]string{
	WaitlistWaiting:   "waiting",
	WaitlistNotified:  "notified",
	WaitlistConverted: "converted",
	WaitlistExpired:   "expired",
	WaitlistCancelled: "cancelled",
}

func (s WaitlistStatus) String() string {
	if n, ok := waitlistStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s WaitlistStatus) MarshalText() ([]byte, error) { return marshalEnum(s, waitlistStatusNames) }
func (s *WaitlistStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, waitlistStatusNames, "waitlist status")
}
func (s *WaitlistStatus) Scan(src any) error {
	return scanEnum(src, s, waitlistStatusNames, "waitlist status")
}
func (s WaitlistStatus) Value() (driver.Value, error) { return valueEnum(s, waitlistStatusNames) }

// AllocationType says whether a notified entry was offered its whole
// quantity or only what was left.
type AllocationType uint8

const (
	AllocationNone AllocationType = iota
	AllocationFull
	AllocationPartial
)

var allocationTypeNames = map[AllocationType]string{
	AllocationNone:    "",
	AllocationFull:    "full",
	AllocationPartial: "partial",
}

func (a AllocationType) String() string { return allocationTypeNames[a] }

func (a AllocationType) MarshalText() ([]byte, error) { return marshalEnum(a, allocationTypeNames) }
func (a *AllocationType) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, a, allocationTypeNames, "allocation type")
}
func (a *AllocationType) Scan(src any) error {
	if src == nil {
		*a = AllocationNone
		return nil
	}
	return scanEnum(src, a, allocationTypeNames, "allocation type")
}
func (a AllocationType) Value() (driver.Value, error) { return valueEnum(a, allocationTypeNames) }

// Allocation is the offer made to a notified entry.
type Allocation struct {
	Type   AllocationType `json:"type"`
	Amount int            `json:"amount"`
}

// WaitlistEntry is a requester queued for units of a sold-out pool.
// Position is never stored; it is the entry's rank by JoinedAt among
// waiting entries of the same pool.
type WaitlistEntry struct {
	ID                    uint64         `db:"id" json:"id"`
	HolderID              uint64         `db:"holder_id" json:"holder_id"`
	PoolID                uint64         `db:"pool_id" json:"pool_id"`
	Quantity              int            `db:"quantity" json:"quantity"`
	Status                WaitlistStatus `db:"status" json:"status"`
	AllocationType        AllocationType `db:"allocation_type" json:"allocation_type,omitempty"`
	AllocatedQuantity     int            `db:"allocated_quantity" json:"allocated_quantity"`
	BookingID             *uint64        `db:"booking_id" json:"booking_id,omitempty"`
	JoinedAt              time.Time      `db:"joined_at" json:"joined_at"`
	NotifiedAt            *time.Time     `db:"notified_at" json:"notified_at,omitempty"`
	NotificationExpiresAt *time.Time     `db:"notification_expires_at" json:"notification_expires_at,omitempty"`
}

// Open reports whether the entry still waits for or holds an offer.
func (e WaitlistEntry) Open() bool {
	switch e.Status {
	case WaitlistWaiting, WaitlistNotified:
		return true
	case WaitlistConverted, WaitlistExpired, WaitlistCancelled:
		return false
	default:
		return false
	}
}

// Allocation returns the current offer, if any.
func (e WaitlistEntry) Allocation() Allocation {
	return Allocation{Type: e.AllocationType, Amount: e.AllocatedQuantity}
}

// Notify offers amount units to a waiting entry until now+window.
func (e *WaitlistEntry) Notify(amount int, now time.Time, window time.Duration) error {
	switch e.Status {
	case WaitlistWaiting:
		if amount <= 0 {
			return Validationf("allocation must be positive")
		}
		e.AllocationType = AllocationFull
		if amount < e.Quantity {
			e.AllocationType = AllocationPartial
		} else {
			amount = e.Quantity
		}
		exp := now.Add(window)
		e.Status = WaitlistNotified
		e.AllocatedQuantity = amount
		e.NotifiedAt = &now
		e.NotificationExpiresAt = &exp
		return nil
	case WaitlistNotified, WaitlistConverted, WaitlistExpired, WaitlistCancelled:
		return InvalidStatef("waitlist entry %d is %s", e.ID, e.Status)
	default:
		return InvalidStatef("waitlist entry %d has no valid state", e.ID)
	}
}

// Convert marks a notified entry as turned into bookingID. The response
// window is half-open like the confirmation window.
func (e *WaitlistEntry) Convert(bookingID uint64, now time.Time) error {
	switch e.Status {
	case WaitlistNotified:
		if e.NotificationLapsed(now) {
			return ErrWindowExpired
		}
		e.Status = WaitlistConverted
		e.BookingID = &bookingID
		return nil
	case WaitlistWaiting:
		return InvalidStatef("waitlist entry %d has not been offered units", e.ID)
	case WaitlistConverted, WaitlistExpired, WaitlistCancelled:
		return InvalidStatef("waitlist entry %d is %s", e.ID, e.Status)
	default:
		return InvalidStatef("waitlist entry %d has no valid state", e.ID)
	}
}

// Expire marks a notified entry whose window has lapsed.
func (e *WaitlistEntry) Expire(now time.Time) error {
	switch e.Status {
	case WaitlistNotified:
		if !e.NotificationLapsed(now) {
			return InvalidStatef("waitlist entry %d has not lapsed", e.ID)
		}
		e.Status = WaitlistExpired
		return nil
	case WaitlistWaiting, WaitlistConverted, WaitlistExpired, WaitlistCancelled:
		return InvalidStatef("waitlist entry %d is %s", e.ID, e.Status)
	default:
		return InvalidStatef("waitlist entry %d has no valid state", e.ID)
	}
}

// Leave withdraws an open entry.
func (e *WaitlistEntry) Leave() error {
	switch e.Status {
	case WaitlistWaiting, WaitlistNotified:
		e.Status = WaitlistCancelled
		return nil
	case WaitlistConverted, WaitlistExpired, WaitlistCancelled:
		return InvalidStatef("waitlist entry %d is %s", e.ID, e.Status)
	default:
		return InvalidStatef("waitlist entry %d has no valid state", e.ID)
	}
}

// NotificationLapsed reports whether a notified entry's offer has run out.
func (e WaitlistEntry) NotificationLapsed(now time.Time) bool {
	return e.NotificationExpiresAt != nil && !now.Before(*e.NotificationExpiresAt)
}
