// Package sweeper reclaims bookings, holds and waiting-list offers that
// nobody touched before their window closed.
package sweeper

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
	"github.com/iliyamo/seat-reservation-engine/internal/booking"
	"github.com/iliyamo/seat-reservation-engine/internal/broadcast"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
	"github.com/iliyamo/seat-reservation-engine/internal/waitlist"
)

// Deps are the collaborators of a Sweeper. Broadcaster is optional.
type Deps struct {
	Store        repository.Store
	Clock        clock.Clock
	Bookings     *booking.Service
	Ledger       *ledger.Ledger
	Waitlist     *waitlist.Promoter
	Availability *availability.Calculator
	Broadcaster  *broadcast.Broadcaster
	Logger       *zap.Logger
}

// Sweeper runs expiry passes.
type Sweeper struct {
	store    repository.Store
	clock    clock.Clock
	bookings *booking.Service
	ledger   *ledger.Ledger
	waitlist *waitlist.Promoter
	avail    *availability.Calculator
	bc       *broadcast.Broadcaster
	log      *zap.Logger
	batch    int
}

// New returns a Sweeper handling at most batch entities of each kind per
// pass.
func New(d Deps, batch int) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		store:    d.Store,
		clock:    d.Clock,
		bookings: d.Bookings,
		ledger:   d.Ledger,
		waitlist: d.Waitlist,
		avail:    d.Availability,
		bc:       d.Broadcaster,
		log:      logger.OrNop(d.Logger).Named("sweeper"),
		batch:    batch,
	}
}

// Result counts what one pass reclaimed.
type Result struct {
	Bookings      int      `json:"bookings"`
	Holds         int      `json:"holds"`
	Notifications int      `json:"notifications"`
	Failures      int      `json:"failures"`
	Pools         []uint64 `json:"pools"`
}

// Total is the number of reclaimed entities.
func (r Result) Total() int { return r.Bookings + r.Holds + r.Notifications }

// Sweep reclaims lapsed bookings, lapsed pre-booking holds and lapsed
// waiting-list offers, then runs a promotion pass for every pool that
// regained capacity. Each booking and each offer is handled in its own
// unit of work; a failure is logged, counted and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	defer metrics.ObserveSince("sweep", time.Now())
	var (
		res   Result
		pools = map[uint64]bool{}
	)

	var ids []uint64
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ids, err = tx.LapsedBookingIDs(ctx, s.clock.Now(), s.batch)
		return err
	})
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		b, freed, err := s.bookings.Expire(ctx, id)
		if err != nil {
			res.Failures++
			s.log.Warn("expire booking failed", zap.Uint64("booking_id", id), zap.Error(err))
			continue
		}
		if freed {
			res.Bookings++
			pools[b.PoolID] = true
		}
	}

	var released []ledger.Released
	err = s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		released, err = s.ledger.ReclaimUnbound(ctx, tx, s.batch)
		return err
	})
	if err != nil {
		res.Failures++
		s.log.Warn("reclaim unbound holds failed", zap.Error(err))
	}
	for _, r := range released {
		res.Holds += len(r.Holds)
		pools[r.PoolID] = true
		s.bc.SeatStatus(ctx, r.PoolID, r.Freed, model.SeatAvailable)
		s.bc.Refresh(ctx, s.avail, r.PoolID)
	}

	expired, err := s.waitlist.ExpireNotifications(ctx)
	if err != nil {
		res.Failures++
		s.log.Warn("expire waitlist notifications failed", zap.Error(err))
	}
	for _, e := range expired {
		res.Notifications++
		pools[e.PoolID] = true
	}

	res.Pools = make([]uint64, 0, len(pools))
	for id := range pools {
		res.Pools = append(res.Pools, id)
	}
	slices.Sort(res.Pools)
	for _, id := range res.Pools {
		s.waitlist.CapacityFreed(ctx, id)
	}

	metrics.SweepReclaimedTotal.WithLabelValues("booking").Add(float64(res.Bookings))
	metrics.SweepReclaimedTotal.WithLabelValues("hold").Add(float64(res.Holds))
	metrics.SweepReclaimedTotal.WithLabelValues("notification").Add(float64(res.Notifications))
	if res.Total() > 0 || res.Failures > 0 {
		s.log.Info("sweep pass",
			zap.Int("bookings", res.Bookings),
			zap.Int("holds", res.Holds),
			zap.Int("notifications", res.Notifications),
			zap.Int("failures", res.Failures),
			zap.Uint64s("pools", res.Pools))
	}
	return res, nil
}

// Job adapts Sweep to a worker loop.
func (s *Sweeper) Job(ctx context.Context) (int, error) {
	res, err := s.Sweep(ctx)
	return res.Total(), err
}
