package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func pendingBooking() Booking {
	pool := Pool{ID: 7, Capacity: 100, Price: decimal.RequireFromString("12.50")}
	return NewBooking(42, pool, 2, t0, 10*time.Minute)
}

func TestNewBooking(t *testing.T) {
	b := pendingBooking()
	assert.Equal(t, StatePending, b.State())
	assert.True(t, b.Live())
	assert.Equal(t, "25", b.TotalPrice.String())
	assert.Equal(t, t0.Add(10*time.Minute), b.ConfirmationExpiresAt)
	assert.Nil(t, b.PaymentExpiresAt)
}

func TestConfirmBoundary(t *testing.T) {
	b := pendingBooking()
	err := b.Confirm(b.ConfirmationExpiresAt, 24*time.Hour)
	require.ErrorIs(t, err, ErrWindowExpired)
	assert.Equal(t, StatePending, b.State())

	now := b.ConfirmationExpiresAt.Add(-time.Second)
	require.NoError(t, b.Confirm(now, 24*time.Hour))
	assert.Equal(t, StateConfirmed, b.State())
	require.NotNil(t, b.PaymentExpiresAt)
	assert.Equal(t, now.Add(24*time.Hour), *b.PaymentExpiresAt)

	hold := SeatHold{ExpiresAt: b.HoldDeadline()}
	assert.True(t, hold.Active(*b.PaymentExpiresAt), "holds outlive the last payable instant")
	assert.False(t, hold.Active(b.PaymentExpiresAt.Add(time.Second)))
}

func TestPayBoundary(t *testing.T) {
	b := pendingBooking()
	require.NoError(t, b.Confirm(t0, time.Hour))

	late := b
	require.ErrorIs(t, late.Pay(t0.Add(time.Hour+time.Second), "card", false), ErrWindowExpired)

	require.NoError(t, b.Pay(t0.Add(time.Hour), "card", false))
	assert.Equal(t, StatePaid, b.State())
	assert.Equal(t, "card", b.PaymentMethod)
}

func TestTransitionsRejectedByState(t *testing.T) {
	confirmed := pendingBooking()
	require.NoError(t, confirmed.Confirm(t0, time.Hour))
	paid := confirmed
	require.NoError(t, paid.Pay(t0, "card", false))
	cancelled := pendingBooking()
	require.NoError(t, cancelled.Cancel(t0))

	tests := []struct {
		name string
		b    Booking
		op   func(b *Booking) error
	}{
		{"confirm confirmed", confirmed, func(b *Booking) error { return b.Confirm(t0, time.Hour) }},
		{"confirm cancelled", cancelled, func(b *Booking) error { return b.Confirm(t0, time.Hour) }},
		{"pay pending", pendingBooking(), func(b *Booking) error { return b.Pay(t0, "card", false) }},
		{"pay paid", paid, func(b *Booking) error { return b.Pay(t0, "card", false) }},
		{"pay cancelled", cancelled, func(b *Booking) error { return b.Pay(t0, "card", false) }},
		{"cancel paid", paid, func(b *Booking) error { return b.Cancel(t0) }},
		{"cancel cancelled", cancelled, func(b *Booking) error { return b.Cancel(t0) }},
		{"fail pending", pendingBooking(), func(b *Booking) error { return b.FailPayment(t0, "card") }},
		{"expire fresh", pendingBooking(), func(b *Booking) error { return b.Expire(t0) }},
		{"invalid combination", Booking{BookingStatus: BookingPending, PaymentStatus: PaymentPaid},
			func(b *Booking) error { return b.Cancel(t0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.b
			assert.ErrorIs(t, tt.op(&b), ErrInvalidState)
		})
	}
}

func TestFailPaymentCancels(t *testing.T) {
	b := pendingBooking()
	require.NoError(t, b.Confirm(t0, time.Hour))
	require.NoError(t, b.FailPayment(t0.Add(time.Minute), "card"))
	assert.Equal(t, BookingCancelled, b.BookingStatus)
	assert.Equal(t, PaymentFailed, b.PaymentStatus)
	assert.Equal(t, StateCancelled, b.State())
	assert.False(t, b.Live())
}

func TestLapsedAndExpire(t *testing.T) {
	b := pendingBooking()
	assert.False(t, b.Lapsed(t0.Add(9*time.Minute)))
	assert.True(t, b.Lapsed(b.ConfirmationExpiresAt))
	require.NoError(t, b.Expire(b.ConfirmationExpiresAt))
	assert.Equal(t, BookingCancelled, b.BookingStatus)
	assert.Equal(t, PaymentCancelled, b.PaymentStatus)

	c := pendingBooking()
	require.NoError(t, c.Confirm(t0, time.Hour))
	assert.False(t, c.Lapsed(t0.Add(time.Hour)))
	assert.True(t, c.Lapsed(t0.Add(time.Hour+time.Nanosecond)))
}

func TestStatusTextRoundTrip(t *testing.T) {
	var s BookingStatus
	require.NoError(t, s.UnmarshalText([]byte("confirmed")))
	assert.Equal(t, BookingConfirmed, s)
	require.ErrorIs(t, s.UnmarshalText([]byte("paid")), ErrValidation)

	var p PaymentStatus
	require.NoError(t, p.Scan([]byte("failed")))
	assert.Equal(t, PaymentFailed, p)
	v, err := PaymentPaid.Value()
	require.NoError(t, err)
	assert.Equal(t, "paid", v)
}
