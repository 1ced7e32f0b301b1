package waitlist

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newPromoter(t *testing.T, capacity int) (*Promoter, *clock.Fake, model.Pool) {
	t.Helper()
	store := memory.New()
	clk := clock.NewFake(t0)
	pool := store.AddPool(model.Pool{Name: "Standing", Capacity: capacity, Price: decimal.NewFromInt(10), Published: true})
	p := New(store, clk, availability.New(store, clk, nil), nil, Options{Window: 30 * time.Minute, MaxQuantity: 4})
	return p, clk, pool
}

func join(t *testing.T, p *Promoter, poolID, holderID uint64, qty int) model.WaitlistEntry {
	t.Helper()
	st, err := p.Join(context.Background(), poolID, holderID, qty)
	require.NoError(t, err)
	return st.Entry
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	p, _, pool := newPromoter(t, 0)

	st, err := p.Join(ctx, pool.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistWaiting, st.Entry.Status)
	assert.Equal(t, 1, st.Position)

	st, err = p.Join(ctx, pool.ID, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position)

	_, err = p.Join(ctx, pool.ID, 1, 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	for _, qty := range []int{0, -1, 5} {
		_, err = p.Join(ctx, pool.ID, 3, qty)
		assert.ErrorIs(t, err, model.ErrValidation, "quantity %d", qty)
	}
	_, err = p.Join(ctx, pool.ID, 0, 1)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = p.Join(ctx, 999, 3, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestProcessFullThenPartial(t *testing.T) {
	ctx := context.Background()
	p, _, pool := newPromoter(t, 3)
	a := join(t, p, pool.ID, 1, 2)
	b := join(t, p, pool.ID, 2, 2)
	c := join(t, p, pool.ID, 3, 1)

	res, err := p.Process(ctx, pool.ID, nil)
	require.NoError(t, err)
	require.Len(t, res.Notified, 2)
	assert.Equal(t, 3, res.Offered)
	assert.Equal(t, 0, res.Remaining)

	assert.Equal(t, a.ID, res.Notified[0].ID)
	assert.Equal(t, model.AllocationFull, res.Notified[0].AllocationType)
	assert.Equal(t, 2, res.Notified[0].AllocatedQuantity)
	require.NotNil(t, res.Notified[0].NotificationExpiresAt)
	assert.Equal(t, t0.Add(30*time.Minute), *res.Notified[0].NotificationExpiresAt)

	assert.Equal(t, b.ID, res.Notified[1].ID)
	assert.Equal(t, model.AllocationPartial, res.Notified[1].AllocationType)
	assert.Equal(t, 1, res.Notified[1].AllocatedQuantity)

	st, err := p.Get(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistWaiting, st.Entry.Status)
	assert.Equal(t, 1, st.Position)

	// Units already offered are not offered again.
	res, err = p.Process(ctx, pool.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Notified)
	assert.Equal(t, 0, res.Offered)
}

func TestProcessOverride(t *testing.T) {
	ctx := context.Background()
	p, _, pool := newPromoter(t, 0)
	join(t, p, pool.ID, 1, 2)
	join(t, p, pool.ID, 2, 1)

	res, err := p.Process(ctx, pool.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Notified)

	five := 5
	res, err = p.Process(ctx, pool.ID, &five)
	require.NoError(t, err)
	require.Len(t, res.Notified, 2)
	assert.Equal(t, 3, res.Offered)
	assert.Equal(t, 2, res.Remaining)
	for _, e := range res.Notified {
		assert.Equal(t, model.AllocationFull, e.AllocationType)
	}
}

func TestGetOwnership(t *testing.T) {
	p, _, pool := newPromoter(t, 0)
	e := join(t, p, pool.ID, 1, 1)

	_, err := p.Get(context.Background(), e.ID, 2)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = p.Get(context.Background(), 12345, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLeaveNotifiedPassesUnitsOn(t *testing.T) {
	ctx := context.Background()
	p, _, pool := newPromoter(t, 2)
	a := join(t, p, pool.ID, 1, 2)
	b := join(t, p, pool.ID, 2, 1)

	res, err := p.Process(ctx, pool.ID, nil)
	require.NoError(t, err)
	require.Len(t, res.Notified, 1)
	assert.Equal(t, a.ID, res.Notified[0].ID)

	_, err = p.Leave(ctx, a.ID, 2)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	left, err := p.Leave(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistCancelled, left.Status)

	st, err := p.Get(ctx, b.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistNotified, st.Entry.Status)
	assert.Equal(t, 1, st.Entry.AllocatedQuantity)
	assert.Zero(t, st.Position)

	_, err = p.Leave(ctx, a.ID, 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestExpireNotifications(t *testing.T) {
	ctx := context.Background()
	p, clk, pool := newPromoter(t, 1)
	a := join(t, p, pool.ID, 1, 1)
	b := join(t, p, pool.ID, 2, 1)

	_, err := p.Process(ctx, pool.ID, nil)
	require.NoError(t, err)

	clk.Advance(29 * time.Minute)
	expired, err := p.ExpireNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	clk.Advance(time.Minute)
	expired, err = p.ExpireNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, a.ID, expired[0].ID)
	assert.Equal(t, model.WaitlistExpired, expired[0].Status)

	n, err := p.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := p.Get(ctx, b.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistNotified, st.Entry.Status)
}

func TestProcessAllSkipsPoolsWithoutWaiters(t *testing.T) {
	p, _, pool := newPromoter(t, 5)
	n, err := p.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	join(t, p, pool.ID, 1, 3)
	n, err = p.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
