package model

import (
	"database/sql/driver"
	"time"
)

// TicketStatus is the usage state of a ticket.
type TicketStatus uint8

const (
	TicketActive TicketStatus = iota + 1
	TicketUsed
)

var ticketStatusNames = map[TicketStatus]string{
	TicketActive: "active",
	TicketUsed:   "used",
}

func (s TicketStatus) String() string {
	if n, ok := ticketStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s TicketStatus) MarshalText() ([]byte, error) { return marshalEnum(s, ticketStatusNames) }
func (s *TicketStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, ticketStatusNames, "ticket status")
}
func (s *TicketStatus) Scan(src any) error {
	return scanEnum(src, s, ticketStatusNames, "ticket status")
}
func (s TicketStatus) Value() (driver.Value, error) { return valueEnum(s, ticketStatusNames) }

// Ticket is the per-unit record of a booking. Ticket artifacts (QR codes,
// PDFs) are rendered elsewhere from Code.
type Ticket struct {
	ID        uint64       `db:"id" json:"id"`                 // tickets.id
	BookingID uint64       `db:"booking_id" json:"booking_id"` // tickets.booking_id
	PoolID    uint64       `db:"pool_id" json:"pool_id"`       // tickets.pool_id
	SeatID    *uint64      `db:"seat_id" json:"seat_id"`       // tickets.seat_id (nullable)
	Code      string       `db:"code" json:"code"`             // tickets.code
	Status    TicketStatus `db:"status" json:"status"`         // tickets.status
	CreatedAt time.Time    `db:"created_at" json:"created_at"` // tickets.created_at
}
