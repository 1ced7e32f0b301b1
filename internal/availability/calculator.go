// Package availability computes how many units of a pool can still be sold.
//
// A pool with seat rows is measured seat by seat; a pool without them is
// measured by summing booking quantities against its capacity. The two
// views are never mixed for the same pool.
package availability

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
)

// Counts are the raw figures a snapshot is derived from.
type Counts struct {
	Source   model.Source
	Capacity int
	// Total is the number of sellable seats, or Capacity for aggregate pools.
	Total  int
	Booked int
	Paid   int
	Held   int
}

// Compute turns raw counts into a clamped snapshot.
func Compute(c Counts) model.Availability {
	raw := c.Total - c.Booked - c.Held
	available := max(0, min(raw, c.Capacity, c.Capacity-(c.Booked+c.Held)))

	pct := 0
	if c.Capacity > 0 {
		pct = int(math.Round(float64(c.Booked) / float64(c.Capacity) * 100))
		pct = min(pct, 100)
	}
	return model.Availability{
		Source:         c.Source,
		Capacity:       c.Capacity,
		Booked:         c.Booked,
		Paid:           c.Paid,
		Held:           c.Held,
		Available:      available,
		Status:         model.TierFor(available),
		PercentageSold: pct,
	}
}

// Calculator reads pool state from the store.
type Calculator struct {
	store repository.Store
	clock clock.Clock
	log   *zap.Logger
}

// New returns a Calculator.
func New(store repository.Store, clk clock.Clock, log *zap.Logger) *Calculator {
	return &Calculator{store: store, clock: clk, log: logger.OrNop(log).Named("availability")}
}

// Get returns the current snapshot of a pool. It reads with relaxed
// isolation and may trail concurrent writers briefly.
func (c *Calculator) Get(ctx context.Context, poolID uint64) (model.Availability, error) {
	var out model.Availability
	err := c.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		out, err = c.ComputeTx(ctx, tx, pool)
		return err
	})
	if err != nil {
		return model.Availability{}, err
	}
	metrics.SetAvailable(poolID, out.Available)
	return out, nil
}

// Batch returns snapshots for several pools in request order. Each pool
// picks its own counting strategy. Unknown pools are left out.
func (c *Calculator) Batch(ctx context.Context, poolIDs []uint64) ([]model.Availability, error) {
	seen := make(map[uint64]bool, len(poolIDs))
	out := make([]model.Availability, 0, len(poolIDs))
	err := c.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, id := range poolIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			pool, err := tx.GetPool(ctx, id)
			if errors.Is(err, model.ErrNotFound) {
				c.log.Debug("batch availability: unknown pool", zap.Uint64("pool_id", id))
				continue
			}
			if err != nil {
				return err
			}
			a, err := c.ComputeTx(ctx, tx, pool)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, a := range out {
		metrics.SetAvailable(a.PoolID, a.Available)
	}
	return out, nil
}

// ComputeTx measures a pool inside an existing unit of work. Booking
// creation uses it so the capacity check sees the same rows it locks.
func (c *Calculator) ComputeTx(ctx context.Context, tx repository.Tx, pool model.Pool) (model.Availability, error) {
	return c.computeTx(ctx, tx, pool, "")
}

// ComputeForTokenTx is ComputeTx with the pre-booking holds of token left
// out of Held, so a buyer claiming those holds is not counted against
// their own seats.
func (c *Calculator) ComputeForTokenTx(ctx context.Context, tx repository.Tx, pool model.Pool, token string) (model.Availability, error) {
	return c.computeTx(ctx, tx, pool, token)
}

func (c *Calculator) computeTx(ctx context.Context, tx repository.Tx, pool model.Pool, exclude string) (model.Availability, error) {
	now := c.clock.Now()
	counts, err := c.countsTx(ctx, tx, pool, now, exclude)
	if err != nil {
		return model.Availability{}, err
	}
	a := Compute(counts)
	a.PoolID = pool.ID
	a.ComputedAt = now
	return a, nil
}

// SeatLevel reports whether the pool has seat rows.
func SeatLevel(ctx context.Context, tx repository.Tx, poolID uint64) (bool, error) {
	configured, _, err := tx.CountSeats(ctx, poolID)
	return configured > 0, err
}

func (c *Calculator) countsTx(ctx context.Context, tx repository.Tx, pool model.Pool, now time.Time, exclude string) (Counts, error) {
	configured, enabled, err := tx.CountSeats(ctx, pool.ID)
	if err != nil {
		return Counts{}, err
	}
	live, paidUnits, err := tx.BookedQuantity(ctx, pool.ID)
	if err != nil {
		return Counts{}, err
	}
	if configured == 0 {
		return Counts{
			Source:   model.SourceAggregate,
			Capacity: pool.Capacity,
			Total:    pool.Capacity,
			Booked:   live,
			Paid:     paidUnits,
		}, nil
	}

	ticketed, err := tx.TicketedSeats(ctx, pool.ID)
	if err != nil {
		return Counts{}, err
	}
	holds, err := tx.ActiveHolds(ctx, pool.ID, now)
	if err != nil {
		return Counts{}, err
	}

	booked := make(map[uint64]bool, len(ticketed))
	paid := 0
	for _, ts := range ticketed {
		booked[ts.SeatID] = true
		if ts.Paid {
			paid++
		}
	}
	// Holds on seats already counted through their booking's tickets are
	// not counted twice.
	held := map[uint64]bool{}
	for _, h := range holds {
		if exclude != "" && h.Token == exclude {
			continue
		}
		if !booked[h.SeatID] {
			held[h.SeatID] = true
		}
	}

	capacity := pool.Capacity
	if capacity <= 0 {
		capacity = enabled
	}
	return Counts{
		Source:   model.SourceSeats,
		Capacity: capacity,
		Total:    enabled,
		// Tickets unbound after a seat timeout keep their units but no
		// seat, so live quantity is the floor for booked units.
		Booked: max(len(booked), live),
		Paid:   max(paid, paidUnits),
		Held:   len(held),
	}, nil
}

// SeatMap lists every seat of a pool with its derived status.
func (c *Calculator) SeatMap(ctx context.Context, poolID uint64) ([]model.SeatState, error) {
	var out []model.SeatState
	err := c.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetPool(ctx, poolID); err != nil {
			return err
		}
		seats, err := tx.ListSeats(ctx, poolID)
		if err != nil {
			return err
		}
		holds, err := tx.ActiveHolds(ctx, poolID, c.clock.Now())
		if err != nil {
			return err
		}
		status := make(map[uint64]model.SeatStatus, len(holds))
		for _, h := range holds {
			if h.Permanent() {
				status[h.SeatID] = model.SeatBooked
			} else if status[h.SeatID] != model.SeatBooked {
				status[h.SeatID] = model.SeatReserved
			}
		}
		out = make([]model.SeatState, 0, len(seats))
		for _, s := range seats {
			st, ok := status[s.ID]
			if !ok {
				st = model.SeatAvailable
			}
			out = append(out, model.SeatState{Seat: s, Status: st})
		}
		return nil
	})
	return out, err
}
