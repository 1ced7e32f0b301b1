package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/queue"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
	"github.com/iliyamo/seat-reservation-engine/internal/repository/memory"
	"github.com/iliyamo/seat-reservation-engine/internal/waitlist"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type promoterSpy struct {
	mu    sync.Mutex
	pools []uint64
	next  Promoter
}

func (p *promoterSpy) CapacityFreed(ctx context.Context, poolID uint64) {
	p.mu.Lock()
	p.pools = append(p.pools, poolID)
	p.mu.Unlock()
	if p.next != nil {
		p.next.CapacityFreed(ctx, poolID)
	}
}

func (p *promoterSpy) calls() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.pools...)
}

type notifierSpy struct {
	mu    sync.Mutex
	kinds []queue.EventKind
}

func (n *notifierSpy) PublishBookingEvent(_ context.Context, ev queue.BookingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, ev.Kind)
	return errors.New("broker down")
}

type harness struct {
	store    *memory.Store
	clock    *clock.Fake
	avail    *availability.Calculator
	ledger   *ledger.Ledger
	svc      *Service
	promoter *promoterSpy
	notes    *notifierSpy
	wl       *waitlist.Promoter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		clock:    clock.NewFake(t0),
		promoter: &promoterSpy{},
		notes:    &notifierSpy{},
	}
	h.avail = availability.New(h.store, h.clock, nil)
	h.ledger = ledger.New(h.store, h.clock, nil, h.avail, nil, ledger.Options{HoldDuration: 5 * time.Minute, MaxSeats: 10})
	h.wl = waitlist.New(h.store, h.clock, h.avail, nil, waitlist.Options{Window: time.Hour})
	h.promoter.next = h.wl
	h.svc = New(Deps{
		Store:        h.store,
		Clock:        h.clock,
		Ledger:       h.ledger,
		Availability: h.avail,
		Notifier:     h.notes,
		Promoter:     h.promoter,
	}, Options{ConfirmWindow: 10 * time.Minute, PaymentWindow: 24 * time.Hour, MaxQuantity: 10})
	return h
}

func (h *harness) seatedPool(n int) (model.Pool, []uint64) {
	pool := h.store.AddPool(model.Pool{Name: "Main hall", Capacity: n, Price: decimal.NewFromInt(50), Published: true})
	seats := make([]model.Seat, n)
	for i := range seats {
		seats[i] = model.Seat{Section: "A", RowLabel: "1", Number: uint32(i + 1)}
	}
	ids := make([]uint64, 0, n)
	for _, s := range h.store.AddSeats(pool.ID, seats...) {
		ids = append(ids, s.ID)
	}
	return pool, ids
}

func (h *harness) available(t *testing.T, poolID uint64) int {
	t.Helper()
	a, err := h.avail.Get(context.Background(), poolID)
	require.NoError(t, err)
	return a.Available
}

func (h *harness) seatStatus(t *testing.T, poolID uint64) map[uint64]model.SeatStatus {
	t.Helper()
	states, err := h.avail.SeatMap(context.Background(), poolID)
	require.NoError(t, err)
	out := map[uint64]model.SeatStatus{}
	for _, s := range states {
		out[s.ID] = s.Status
	}
	return out
}

func TestRoundTripWithSeats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(5)

	before := h.available(t, pool.ID)
	require.Equal(t, 5, before)

	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, SeatIDs: seats[:2]})
	require.NoError(t, err)
	b := res.Booking
	assert.Equal(t, model.StatePending, b.State())
	assert.Regexp(t, `^BK-[0-9A-Z]{10}$`, b.Reference)
	assert.True(t, decimal.NewFromInt(100).Equal(b.TotalPrice))
	assert.Equal(t, t0.Add(10*time.Minute), b.ConfirmationExpiresAt)
	assert.ElementsMatch(t, seats[:2], res.SeatIDs())
	assert.Equal(t, before-2, h.available(t, pool.ID))

	status := h.seatStatus(t, pool.ID)
	assert.Equal(t, model.SeatReserved, status[seats[0]])

	h.clock.Advance(time.Minute)
	b, err = h.svc.Confirm(ctx, b.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, b.State())
	require.NotNil(t, b.PaymentExpiresAt)
	assert.Equal(t, t0.Add(time.Minute+24*time.Hour), *b.PaymentExpiresAt)

	paid, err := h.svc.Pay(ctx, PayRequest{BookingID: b.ID, HolderID: 7, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, model.StatePaid, paid.Booking.State())
	assert.False(t, paid.Booking.HadSeatTimeout)
	require.Len(t, paid.Tickets, 2)
	for _, tk := range paid.Tickets {
		assert.NotEmpty(t, tk.Code)
		assert.NotNil(t, tk.SeatID)
	}

	status = h.seatStatus(t, pool.ID)
	assert.Equal(t, model.SeatBooked, status[seats[0]])
	assert.Equal(t, model.SeatBooked, status[seats[1]])
	assert.Equal(t, model.SeatAvailable, status[seats[2]])
	assert.Equal(t, before-2, h.available(t, pool.ID))

	// paid bookings stay paid
	_, err = h.svc.Cancel(ctx, b.ID, 7)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = h.svc.Pay(ctx, PayRequest{BookingID: b.ID, HolderID: 7, Method: "card"})
	assert.ErrorIs(t, err, model.ErrInvalidState)

	h.svc.Flush()
	h.notes.mu.Lock()
	defer h.notes.mu.Unlock()
	assert.ElementsMatch(t, []queue.EventKind{queue.EventCreated, queue.EventConfirmed, queue.EventPaid}, h.notes.kinds)
}

func TestCancelRestoresAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(4)
	before := h.available(t, pool.ID)

	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, SeatIDs: seats[1:3]})
	require.NoError(t, err)
	_, err = h.svc.Confirm(ctx, res.Booking.ID, 7)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, res.Booking.ID, 8)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	b, err := h.svc.Cancel(ctx, res.Booking.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, b.BookingStatus)
	assert.Equal(t, model.PaymentCancelled, b.PaymentStatus)
	assert.Equal(t, before, h.available(t, pool.ID))
	assert.Equal(t, []uint64{pool.ID}, h.promoter.calls())

	for _, st := range h.seatStatus(t, pool.ID) {
		assert.Equal(t, model.SeatAvailable, st)
	}

	_, err = h.svc.Cancel(ctx, res.Booking.ID, 7)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestConfirmWindowBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(4)

	early, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 1, SeatIDs: seats[:1]})
	require.NoError(t, err)
	late, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 1, SeatIDs: seats[1:2]})
	require.NoError(t, err)

	h.clock.Set(early.Booking.ConfirmationExpiresAt.Add(-time.Second))
	_, err = h.svc.Confirm(ctx, early.Booking.ID, 7)
	require.NoError(t, err)

	h.clock.Set(late.Booking.ConfirmationExpiresAt)
	_, err = h.svc.Confirm(ctx, late.Booking.ID, 7)
	require.ErrorIs(t, err, model.ErrWindowExpired)

	// touching the lapsed booking reclaimed it
	got, err := h.svc.Get(ctx, late.Booking.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Booking.BookingStatus)
	assert.Equal(t, model.PaymentCancelled, got.Booking.PaymentStatus)
	assert.Equal(t, model.SeatAvailable, h.seatStatus(t, pool.ID)[seats[1]])
	assert.Contains(t, h.promoter.calls(), pool.ID)
}

func TestPaymentWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(4)

	create := func(seat uint64) model.Booking {
		res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 1, SeatIDs: []uint64{seat}})
		require.NoError(t, err)
		b, err := h.svc.Confirm(ctx, res.Booking.ID, 7)
		require.NoError(t, err)
		return b
	}
	onTime := create(seats[0])
	tooLate := create(seats[1])

	_, err := h.svc.Pay(ctx, PayRequest{BookingID: create(seats[2]).ID, HolderID: 7, Method: ""})
	assert.ErrorIs(t, err, model.ErrValidation)

	// paying at the exact deadline is accepted and keeps the seat
	h.clock.Set(*onTime.PaymentExpiresAt)
	res, err := h.svc.Pay(ctx, PayRequest{BookingID: onTime.ID, HolderID: 7, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, model.StatePaid, res.Booking.State())
	assert.False(t, res.Booking.HadSeatTimeout)
	require.Len(t, res.Tickets, 1)
	require.NotNil(t, res.Tickets[0].SeatID)
	assert.Equal(t, seats[0], *res.Tickets[0].SeatID)
	assert.Equal(t, model.SeatBooked, h.seatStatus(t, pool.ID)[seats[0]])

	h.clock.Advance(time.Second)
	_, err = h.svc.Pay(ctx, PayRequest{BookingID: tooLate.ID, HolderID: 7, Method: "card"})
	require.ErrorIs(t, err, model.ErrWindowExpired)
	got, err := h.svc.Get(ctx, tooLate.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, got.Booking.State())
}

func TestSeatTimeoutKeepsUnitsBooked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(2)

	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, SeatIDs: seats})
	require.NoError(t, err)
	b, err := h.svc.Confirm(ctx, res.Booking.ID, 7)
	require.NoError(t, err)

	// Cut the holds short so they lapse inside the payment window.
	require.NoError(t, h.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.SetHoldExpiry(ctx, b.ID, model.HoldConfirmed, h.clock.Now().Add(time.Minute), h.clock.Now())
		return err
	}))
	h.clock.Advance(2 * time.Minute)

	paid, err := h.svc.Pay(ctx, PayRequest{BookingID: b.ID, HolderID: 7, Method: "card"})
	require.NoError(t, err)
	assert.True(t, paid.Booking.HadSeatTimeout)
	for _, tk := range paid.Tickets {
		assert.Nil(t, tk.SeatID)
	}

	a, err := h.avail.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Available)
	assert.Equal(t, 2, a.Booked)
	assert.Equal(t, 2, a.Paid)

	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 8, PoolID: pool.ID, Quantity: 1, SeatIDs: seats[:1]})
	assert.ErrorIs(t, err, model.ErrCapacity)
	_, err = h.ledger.Hold(ctx, pool.ID, 8, seats[1:])
	assert.ErrorIs(t, err, model.ErrCapacity)
}

func TestCapacityBelowSeatCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool := h.store.AddPool(model.Pool{Name: "Box", Capacity: 1, Price: decimal.NewFromInt(80), Published: true})
	var seats []uint64
	for _, s := range h.store.AddSeats(pool.ID,
		model.Seat{Section: "Box", RowLabel: "1", Number: 1},
		model.Seat{Section: "Box", RowLabel: "1", Number: 2},
	) {
		seats = append(seats, s.ID)
	}
	require.Equal(t, 1, h.available(t, pool.ID))

	g, err := h.ledger.Hold(ctx, pool.ID, 10, seats[:1])
	require.NoError(t, err)
	_, err = h.ledger.Hold(ctx, pool.ID, 11, seats[1:])
	assert.ErrorIs(t, err, model.ErrCapacity)
	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 11, PoolID: pool.ID, Quantity: 1, SeatIDs: seats[1:]})
	assert.ErrorIs(t, err, model.ErrCapacity)

	// The holder's own hold does not count against their booking.
	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 10, PoolID: pool.ID, Quantity: 1, HoldToken: g.Token})
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, res.Booking.State())
	assert.Equal(t, 0, h.available(t, pool.ID))

	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 11, PoolID: pool.ID, Quantity: 1, SeatIDs: seats[1:]})
	assert.ErrorIs(t, err, model.ErrCapacity)

	_, err = h.svc.Cancel(ctx, res.Booking.ID, 10)
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 11, PoolID: pool.ID, Quantity: 1, SeatIDs: seats[1:]})
	assert.NoError(t, err)
}

func TestFailedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(3)

	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, SeatIDs: seats[:2]})
	require.NoError(t, err)

	_, err = h.svc.Pay(ctx, PayRequest{BookingID: res.Booking.ID, HolderID: 7, Method: "card"})
	assert.ErrorIs(t, err, model.ErrInvalidState, "pending bookings cannot be paid")

	_, err = h.svc.Confirm(ctx, res.Booking.ID, 7)
	require.NoError(t, err)

	out, err := h.svc.Pay(ctx, PayRequest{BookingID: res.Booking.ID, HolderID: 7, Method: "card", Outcome: OutcomeFailed})
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, out.Booking.BookingStatus)
	assert.Equal(t, model.PaymentFailed, out.Booking.PaymentStatus)
	assert.Equal(t, 3, h.available(t, pool.ID))
	assert.Equal(t, []uint64{pool.ID}, h.promoter.calls())

	_, err = h.svc.Pay(ctx, PayRequest{BookingID: res.Booking.ID, HolderID: 7, Method: "card", Outcome: "maybe"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestConcurrentCreateSeatConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(5)

	requests := []CreateRequest{
		{HolderID: 1, PoolID: pool.ID, Quantity: 2, SeatIDs: []uint64{seats[0], seats[1]}},
		{HolderID: 2, PoolID: pool.ID, Quantity: 2, SeatIDs: []uint64{seats[1], seats[2]}},
	}
	errs := make([]error, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.Create(ctx, req)
		}()
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrSeatConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	require.NoError(t, h.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		holds, err := tx.ActiveHolds(ctx, pool.ID, h.clock.Now())
		require.NoError(t, err)
		assert.Len(t, holds, 2)
		perSeat := map[uint64]int{}
		for _, hd := range holds {
			perSeat[hd.SeatID]++
		}
		assert.Equal(t, 1, perSeat[seats[1]])
		return nil
	}))
	assert.Equal(t, 3, h.available(t, pool.ID))
}

func TestAggregatePool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool := h.store.AddPool(model.Pool{Name: "Standing", Capacity: 10, Price: decimal.RequireFromString("12.50"), Published: true})

	a, err := h.avail.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, a.Available)
	assert.Equal(t, model.TierAvailable, a.Status)

	for _, qty := range []int{3, 5} {
		res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: qty})
		require.NoError(t, err)
		assert.Len(t, res.Tickets, qty)
		_, err = h.svc.Confirm(ctx, res.Booking.ID, 7)
		require.NoError(t, err)
		_, err = h.svc.Pay(ctx, PayRequest{BookingID: res.Booking.ID, HolderID: 7, Method: "cash"})
		require.NoError(t, err)
	}

	a, err = h.avail.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Available)
	assert.Equal(t, model.TierVeryLimited, a.Status)

	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 8, PoolID: pool.ID, Quantity: 3})
	assert.ErrorIs(t, err, model.ErrCapacity)
	assert.True(t, model.IsRetryable(err))

	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 8, PoolID: pool.ID, Quantity: 1, SeatIDs: []uint64{1}})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(3)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"zero quantity", CreateRequest{HolderID: 1, PoolID: pool.ID, Quantity: 0}, model.ErrValidation},
		{"count mismatch", CreateRequest{HolderID: 1, PoolID: pool.ID, Quantity: 2, SeatIDs: seats[:1]}, model.ErrValidation},
		{"seats required", CreateRequest{HolderID: 1, PoolID: pool.ID, Quantity: 1}, model.ErrValidation},
		{"over the cap", CreateRequest{HolderID: 1, PoolID: pool.ID, Quantity: 11}, model.ErrValidation},
		{"unknown pool", CreateRequest{HolderID: 1, PoolID: 999, Quantity: 1}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 3, h.available(t, pool.ID))
}

func TestCreateFromHoldToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(4)

	g, err := h.ledger.Hold(ctx, pool.ID, 7, seats[2:4])
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 8, PoolID: pool.ID, Quantity: 2, HoldToken: g.Token})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, HoldToken: g.Token})
	require.NoError(t, err)
	assert.ElementsMatch(t, seats[2:4], res.SeatIDs())

	require.NoError(t, h.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		holds, err := tx.HoldsByBooking(ctx, res.Booking.ID)
		require.NoError(t, err)
		require.Len(t, holds, 2)
		for _, hd := range holds {
			assert.Empty(t, hd.Token)
			assert.Equal(t, res.Booking.ConfirmationExpiresAt, hd.ExpiresAt)
		}
		return nil
	}))

	_, err = h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, HoldToken: g.Token})
	assert.ErrorIs(t, err, model.ErrHoldInvalid)
}

func TestExpire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool, seats := h.seatedPool(2)

	res, err := h.svc.Create(ctx, CreateRequest{HolderID: 7, PoolID: pool.ID, Quantity: 2, SeatIDs: seats})
	require.NoError(t, err)

	_, done, err := h.svc.Expire(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.False(t, done)

	h.clock.Advance(10 * time.Minute)
	b, done, err := h.svc.Expire(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, model.StateCancelled, b.State())
	assert.Equal(t, 2, h.available(t, pool.ID))

	_, done, err = h.svc.Expire(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, h.promoter.calls(), "sweeps trigger promotion per pool")
}

func TestConvertWaitlistEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool := h.store.AddPool(model.Pool{Name: "Standing", Capacity: 2, Price: decimal.NewFromInt(10), Published: true})

	first, err := h.svc.Create(ctx, CreateRequest{HolderID: 1, PoolID: pool.ID, Quantity: 2})
	require.NoError(t, err)

	st, err := h.wl.Join(ctx, pool.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Position)

	_, _, err = h.svc.ConvertWaitlistEntry(ctx, ConvertRequest{EntryID: st.Entry.ID, HolderID: 2})
	assert.ErrorIs(t, err, model.ErrInvalidState, "not offered yet")

	_, err = h.svc.Cancel(ctx, first.Booking.ID, 1)
	require.NoError(t, err)

	st, err = h.wl.Get(ctx, st.Entry.ID, 2)
	require.NoError(t, err)
	require.Equal(t, model.WaitlistNotified, st.Entry.Status)
	assert.Equal(t, model.Allocation{Type: model.AllocationFull, Amount: 2}, st.Entry.Allocation())

	_, _, err = h.svc.ConvertWaitlistEntry(ctx, ConvertRequest{EntryID: st.Entry.ID, HolderID: 3})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	res, e, err := h.svc.ConvertWaitlistEntry(ctx, ConvertRequest{EntryID: st.Entry.ID, HolderID: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Booking.Quantity)
	assert.Equal(t, model.WaitlistConverted, e.Status)
	require.NotNil(t, e.BookingID)
	assert.Equal(t, res.Booking.ID, *e.BookingID)
	assert.Equal(t, 0, h.available(t, pool.ID))
}

func TestConvertAfterWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pool := h.store.AddPool(model.Pool{Name: "Standing", Capacity: 1, Published: true})

	st, err := h.wl.Join(ctx, pool.ID, 2, 1)
	require.NoError(t, err)
	_, err = h.wl.Process(ctx, pool.ID, nil)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	_, e, err := h.svc.ConvertWaitlistEntry(ctx, ConvertRequest{EntryID: st.Entry.ID, HolderID: 2})
	require.ErrorIs(t, err, model.ErrWindowExpired)
	assert.Equal(t, model.WaitlistExpired, e.Status)
	assert.Equal(t, 1, h.available(t, pool.ID))
}
