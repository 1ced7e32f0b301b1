// Package queue defines the booking lifecycle messages exchanged over the
// message broker and the consumer that hands them to ticket generation and
// notification delivery.
package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// BookingQueue is the durable queue lifecycle events are published to.
const BookingQueue = "booking.events"

// EventKind names the transition a BookingEvent reports.
type EventKind string

const (
	EventCreated       EventKind = "booking.created"
	EventConfirmed     EventKind = "booking.confirmed"
	EventPaid          EventKind = "booking.paid"
	EventPaymentFailed EventKind = "booking.payment_failed"
	EventCancelled     EventKind = "booking.cancelled"
	EventExpired       EventKind = "booking.expired"
)

// BookingEvent is published after a booking transition commits. It carries
// enough for a downstream consumer to render tickets or send a notice
// without querying the primary database.
type BookingEvent struct {
	ID             string          `json:"id"`
	Kind           EventKind       `json:"kind"`
	BookingID      uint64          `json:"booking_id"`
	Reference      string          `json:"reference"`
	HolderID       uint64          `json:"holder_id"`
	PoolID         uint64          `json:"pool_id"`
	Quantity       int             `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	BookingStatus  string          `json:"booking_status"`
	PaymentStatus  string          `json:"payment_status"`
	HadSeatTimeout bool            `json:"had_seat_timeout,omitempty"`
	SeatIDs        []uint64        `json:"seat_ids,omitempty"`
	TicketCodes    []string        `json:"ticket_codes,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewBookingEvent snapshots b for kind.
func NewBookingEvent(kind EventKind, b model.Booking, tickets []model.Ticket, at time.Time) BookingEvent {
	ev := BookingEvent{
		ID:             uuid.NewString(),
		Kind:           kind,
		BookingID:      b.ID,
		Reference:      b.Reference,
		HolderID:       b.HolderID,
		PoolID:         b.PoolID,
		Quantity:       b.Quantity,
		TotalPrice:     b.TotalPrice,
		BookingStatus:  b.BookingStatus.String(),
		PaymentStatus:  b.PaymentStatus.String(),
		HadSeatTimeout: b.HadSeatTimeout,
		OccurredAt:     at,
	}
	for _, t := range tickets {
		ev.TicketCodes = append(ev.TicketCodes, t.Code)
		if t.SeatID != nil {
			ev.SeatIDs = append(ev.SeatIDs, *t.SeatID)
		}
	}
	return ev
}
