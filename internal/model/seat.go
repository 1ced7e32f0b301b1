package model

// Seat is a physical seat in a section of a pool. A seat carries no
// occupancy state of its own: whether it is free, reserved or booked is
// derived from holds and tickets.
//
// Fields:
//
//	ID       – primary key identifier.
//	PoolID   – pool the seat belongs to.
//	Section  – section name (e.g. "A", "Balcony").
//	RowLabel – row within the section.
//	Number   – seat number within the row.
//	Disabled – seat cannot be sold.
type Seat struct {
	ID       uint64 `db:"id" json:"id"`               // seats.id
	PoolID   uint64 `db:"pool_id" json:"pool_id"`     // seats.pool_id
	Section  string `db:"section" json:"section"`     // seats.section
	RowLabel string `db:"row_label" json:"row_label"` // seats.row_label
	Number   uint32 `db:"seat_number" json:"number"`  // seats.seat_number
	Disabled bool   `db:"disabled" json:"disabled"`   // seats.disabled
}

// SeatStatus is the derived occupancy of a seat as shown to subscribers.
type SeatStatus uint8

const (
	SeatAvailable SeatStatus = iota + 1
	SeatReserved
	SeatBooked
)

var seatStatusNames = map[SeatStatus]string{
	SeatAvailable: "available",
	SeatReserved:  "reserved",
	SeatBooked:    "booked",
}

func (s SeatStatus) String() string {
	if n, ok := seatStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s SeatStatus) MarshalText() ([]byte, error) { return marshalEnum(s, seatStatusNames) }

func (s *SeatStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, seatStatusNames, "seat status")
}

// SeatState pairs a seat with its derived status.
type SeatState struct {
	Seat
	Status SeatStatus `json:"status"`
}
