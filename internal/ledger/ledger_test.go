package ledger

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
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
	"github.com/iliyamo/seat-reservation-engine/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	clock *clock.Fake
	l     *Ledger
	pool  model.Pool
	seats []uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(t0)
	pool := st.AddPool(model.Pool{Name: "Hall A", Capacity: 4, Price: decimal.NewFromInt(20), Published: true})
	seats := st.AddSeats(pool.ID,
		model.Seat{Section: "A", RowLabel: "1", Number: 1},
		model.Seat{Section: "A", RowLabel: "1", Number: 2},
		model.Seat{Section: "A", RowLabel: "1", Number: 3},
		model.Seat{Section: "A", RowLabel: "1", Number: 4, Disabled: true},
	)
	ids := make([]uint64, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	return &fixture{
		store: st,
		clock: clk,
		l:     New(st, clk, nil, availability.New(st, clk, nil), nil, Options{HoldDuration: 10 * time.Minute, MaxSeats: 3}),
		pool:  pool,
		seats: ids,
	}
}

func (f *fixture) acquire(ctx context.Context, req AcquireRequest) (Grant, error) {
	var g Grant
	err := f.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		g, err = f.l.Acquire(ctx, tx, req)
		return err
	})
	return g, err
}

func (f *fixture) activeHolds(t *testing.T) []model.SeatHold {
	t.Helper()
	var holds []model.SeatHold
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		holds, err = tx.ActiveHolds(ctx, f.pool.ID, f.clock.Now())
		return err
	}))
	return holds
}

func TestAcquireConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exp := t0.Add(10 * time.Minute)

	g, err := f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: 7, SeatIDs: []uint64{f.seats[1], f.seats[0]}, ExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, []uint64{f.seats[0], f.seats[1]}, g.SeatIDs)
	assert.Len(t, g.Token, 2*tokenBytes)

	_, err = f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: 8, SeatIDs: []uint64{f.seats[1], f.seats[2]}, ExpiresAt: exp})
	var conflict *model.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []uint64{f.seats[1]}, conflict.SeatIDs)
	assert.True(t, model.IsRetryable(err))

	_, err = f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: 8, SeatIDs: []uint64{f.seats[3]}, ExpiresAt: exp})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "disabled", conflict.Reason)

	// nothing partial was written by the failed attempts
	assert.Len(t, f.activeHolds(t), 2)

	// once the first holds lapse the seat is free again
	f.clock.Set(exp)
	_, err = f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: 8, SeatIDs: []uint64{f.seats[1]}, ExpiresAt: exp.Add(time.Minute)})
	require.NoError(t, err)
}

func TestAcquireValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exp := t0.Add(time.Minute)

	tests := []struct {
		name  string
		seats []uint64
		exp   time.Time
	}{
		{"empty", nil, exp},
		{"duplicate", []uint64{f.seats[0], f.seats[0]}, exp},
		{"too many", f.seats, exp},
		{"unknown seat", []uint64{f.seats[0], 999}, exp},
		{"past expiry", []uint64{f.seats[0]}, t0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: 1, SeatIDs: tt.seats, ExpiresAt: tt.exp})
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
	assert.Empty(t, f.activeHolds(t))
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exp := t0.Add(10 * time.Minute)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range callers {
		wg.Add(1)
		go func(holder uint64) {
			defer wg.Done()
			seats := []uint64{f.seats[0], f.seats[1]}
			if holder%2 == 0 {
				seats = []uint64{f.seats[1], f.seats[2]}
			}
			_, err := f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: holder, SeatIDs: seats, ExpiresAt: exp})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, model.ErrSeatConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)

	perSeat := map[uint64]int{}
	for _, h := range f.activeHolds(t) {
		perSeat[h.SeatID]++
	}
	for seat, n := range perSeat {
		assert.Equal(t, 1, n, "seat %d", seat)
	}
}

func TestClaimAndPromote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.l.Hold(ctx, f.pool.ID, 7, []uint64{f.seats[0], f.seats[1]})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), g.ExpiresAt)

	claim := func(req ClaimRequest) ([]uint64, error) {
		var seats []uint64
		err := f.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			seats, err = f.l.Claim(ctx, tx, req)
			return err
		})
		return seats, err
	}

	_, err = claim(ClaimRequest{Token: g.Token, PoolID: f.pool.ID, HolderID: 8, BookingID: 1})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = claim(ClaimRequest{Token: g.Token, PoolID: f.pool.ID, HolderID: 7, BookingID: 1, SeatIDs: []uint64{f.seats[0]}})
	assert.ErrorIs(t, err, model.ErrHoldInvalid)
	assert.ErrorIs(t, err, model.ErrWindowExpired)

	seats, err := claim(ClaimRequest{Token: g.Token, PoolID: f.pool.ID, HolderID: 7, BookingID: 1, SeatIDs: []uint64{f.seats[1], f.seats[0]}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{f.seats[0], f.seats[1]}, seats)

	// the token is spent
	_, err = claim(ClaimRequest{Token: g.Token, PoolID: f.pool.ID, HolderID: 7, BookingID: 2})
	assert.ErrorIs(t, err, model.ErrHoldInvalid)

	promote := func() int64 {
		var n int64
		require.NoError(t, f.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			n, err = f.l.Promote(ctx, tx, 1)
			return err
		}))
		return n
	}
	assert.EqualValues(t, 2, promote())
	assert.EqualValues(t, 0, promote())

	for _, h := range f.activeHolds(t) {
		assert.True(t, h.Permanent())
		assert.Equal(t, model.HoldConfirmed, h.Kind)
	}
}

func TestClaimExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.l.Hold(ctx, f.pool.ID, 7, []uint64{f.seats[2]})
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	err = f.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := f.l.Claim(ctx, tx, ClaimRequest{Token: g.Token, PoolID: f.pool.ID, HolderID: 7, BookingID: 1})
		return err
	})
	assert.ErrorIs(t, err, model.ErrHoldInvalid)
}

func TestReleaseHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.l.Hold(ctx, f.pool.ID, 7, []uint64{f.seats[0]})
	require.NoError(t, err)

	assert.ErrorIs(t, f.l.ReleaseHold(ctx, g.Token, 8), model.ErrUnauthorized)
	require.NoError(t, f.l.ReleaseHold(ctx, g.Token, 7))
	assert.Empty(t, f.activeHolds(t))
	assert.ErrorIs(t, f.l.ReleaseHold(ctx, g.Token, 7), model.ErrNotFound)
}

func TestValidateAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exp := t0.Add(5 * time.Minute)

	_, err := f.acquire(ctx, AcquireRequest{PoolID: f.pool.ID, HolderID: 7, BookingID: 3, SeatIDs: []uint64{f.seats[0], f.seats[1]}, ExpiresAt: exp})
	require.NoError(t, err)

	validate := func() bool {
		var ok bool
		require.NoError(t, f.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			_, ok, err = f.l.Validate(ctx, tx, 3, 2)
			return err
		}))
		return ok
	}
	assert.True(t, validate())

	f.clock.Set(exp)
	assert.False(t, validate())

	var r Released
	require.NoError(t, f.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		r, err = f.l.Release(ctx, tx, 3)
		return err
	}))
	assert.Len(t, r.Holds, 2)
	assert.ElementsMatch(t, []uint64{f.seats[0], f.seats[1]}, r.Freed)
}

func TestHoldRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small := f.store.AddPool(model.Pool{Name: "Box", Capacity: 1, Price: decimal.NewFromInt(50), Published: true})
	seats := f.store.AddSeats(small.ID,
		model.Seat{Section: "Box", RowLabel: "1", Number: 1},
		model.Seat{Section: "Box", RowLabel: "1", Number: 2},
	)

	_, err := f.l.Hold(ctx, small.ID, 7, []uint64{seats[0].ID, seats[1].ID})
	assert.ErrorIs(t, err, model.ErrCapacity)

	g, err := f.l.Hold(ctx, small.ID, 7, []uint64{seats[0].ID})
	require.NoError(t, err)

	_, err = f.l.Hold(ctx, small.ID, 8, []uint64{seats[1].ID})
	assert.ErrorIs(t, err, model.ErrCapacity)

	// A taken seat reports the conflict rather than the capacity.
	_, err = f.l.Hold(ctx, small.ID, 8, []uint64{seats[0].ID})
	var conflict *model.SeatConflictError
	assert.ErrorAs(t, err, &conflict)

	require.NoError(t, f.l.ReleaseHold(ctx, g.Token, 7))
	_, err = f.l.Hold(ctx, small.ID, 8, []uint64{seats[1].ID})
	assert.NoError(t, err)
}
