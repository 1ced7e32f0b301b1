package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

func TestNewBookingEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	pool := model.Pool{ID: 3, Capacity: 10, Price: decimal.RequireFromString("12.50"), Published: true}
	b := model.NewBooking(9, pool, 2, at, 10*time.Minute)
	b.ID = 41
	b.Reference = "BK-ABCDEFGHJK"
	seat := uint64(77)
	tickets := []model.Ticket{
		{BookingID: 41, Code: "t1", SeatID: &seat},
		{BookingID: 41, Code: "t2"},
	}

	ev := NewBookingEvent(EventCreated, b, tickets, at)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventCreated, ev.Kind)
	assert.Equal(t, uint64(41), ev.BookingID)
	assert.Equal(t, uint64(9), ev.HolderID)
	assert.Equal(t, uint64(3), ev.PoolID)
	assert.True(t, decimal.RequireFromString("25").Equal(ev.TotalPrice))
	assert.Equal(t, "pending", ev.BookingStatus)
	assert.Equal(t, "pending", ev.PaymentStatus)
	assert.Equal(t, []uint64{77}, ev.SeatIDs)
	assert.Equal(t, []string{"t1", "t2"}, ev.TicketCodes)

	other := NewBookingEvent(EventCreated, b, tickets, at)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	body, err := json.Marshal(BookingEvent{ID: "x", Kind: EventPaid, BookingID: 5})
	require.NoError(t, err)

	var got BookingEvent
	require.NoError(t, Dispatch(ctx, body, func(_ context.Context, ev BookingEvent) error {
		got = ev
		return nil
	}))
	assert.Equal(t, EventPaid, got.Kind)
	assert.Equal(t, uint64(5), got.BookingID)

	boom := errors.New("render failed")
	err = Dispatch(ctx, body, func(context.Context, BookingEvent) error { return boom })
	assert.ErrorIs(t, err, boom)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"no kind", `{"booking_id":5}`},
		{"no booking", `{"kind":"booking.paid"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Dispatch(ctx, []byte(tt.body), func(context.Context, BookingEvent) error {
				called = true
				return nil
			})
			assert.Error(t, err)
			assert.False(t, called)
		})
	}

	assert.NoError(t, LogHandler(zap.NewNop())(ctx, got))
}
