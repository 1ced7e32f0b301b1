package broadcast

import (
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// EventType names a realtime message.
type EventType string

const (
	EventSeatStatus      EventType = "seat-status"
	EventAvailability    EventType = "availability"
	EventLowAvailability EventType = "low-availability"
	EventSoldOut         EventType = "sold-out"
)

// Envelope is what subscribers of a pool channel receive.
type Envelope struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// SeatStatusEvent reports seats that changed status.
type SeatStatusEvent struct {
	PoolID    uint64           `json:"poolId"`
	Seats     []uint64         `json:"seats"`
	Status    model.SeatStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

// AvailabilityEvent is a snapshot of a pool's counts.
type AvailabilityEvent struct {
	PoolID           uint64     `json:"poolId"`
	AvailableTickets int        `json:"availableTickets"`
	BookedTickets    int        `json:"bookedTickets"`
	Capacity         int        `json:"capacity"`
	Status           model.Tier `json:"status"`
	PercentageSold   int        `json:"percentageSold"`
	Timestamp        time.Time  `json:"timestamp"`
}

func availabilityEvent(a model.Availability, ts time.Time) AvailabilityEvent {
	return AvailabilityEvent{
		PoolID:           a.PoolID,
		AvailableTickets: a.Available,
		BookedTickets:    a.Booked,
		Capacity:         a.Capacity,
		Status:           a.Status,
		PercentageSold:   a.PercentageSold,
		Timestamp:        ts,
	}
}
