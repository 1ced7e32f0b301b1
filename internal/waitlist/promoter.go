// Package waitlist queues requesters for sold-out pools and offers them
// capacity in join order when it frees up.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
)

// Options tune the promoter.
type Options struct {
	// Window is how long a notified entry has to convert.
	Window time.Duration
	// MaxQuantity caps the units one entry may ask for. Zero means no cap.
	MaxQuantity int
	// BatchSize bounds the lapsed notifications expired per pass.
	BatchSize int
}

// Promoter manages waiting-list entries.
type Promoter struct {
	store repository.Store
	clock clock.Clock
	avail *availability.Calculator
	log   *zap.Logger
	opts  Options
}

// New returns a Promoter.
func New(store repository.Store, clk clock.Clock, avail *availability.Calculator, log *zap.Logger, opts Options) *Promoter {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Promoter{
		store: store,
		clock: clk,
		avail: avail,
		log:   logger.OrNop(log).Named("waitlist"),
		opts:  opts,
	}
}

// Status is an entry with its current queue position. Position is zero
// for entries that are no longer waiting.
type Status struct {
	Entry    model.WaitlistEntry `json:"entry"`
	Position int                 `json:"position,omitempty"`
}

// Join queues holderID for quantity units of a pool. A holder has at most
// one open entry per pool.
func (p *Promoter) Join(ctx context.Context, poolID, holderID uint64, quantity int) (Status, error) {
	if holderID == 0 {
		return Status{}, model.Validationf("holder is required")
	}
	if quantity < 1 {
		return Status{}, model.Validationf("quantity must be at least 1")
	}
	if p.opts.MaxQuantity > 0 && quantity > p.opts.MaxQuantity {
		return Status{}, model.Validationf("quantity must not exceed %d", p.opts.MaxQuantity)
	}

	var st Status
	err := p.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockPool(ctx, poolID); err != nil {
			return err
		}
		open, err := tx.OpenEntry(ctx, poolID, holderID)
		switch {
		case err == nil:
			return model.InvalidStatef("holder already has entry %d (%s) for pool %d", open.ID, open.Status, poolID)
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		e := model.WaitlistEntry{
			HolderID: holderID,
			PoolID:   poolID,
			Quantity: quantity,
			Status:   model.WaitlistWaiting,
			JoinedAt: p.clock.Now(),
		}
		if err := tx.InsertWaitlistEntry(ctx, &e); err != nil {
			return fmt.Errorf("insert waitlist entry: %w", err)
		}
		pos, err := tx.WaitlistPosition(ctx, e)
		if err != nil {
			return err
		}
		st = Status{Entry: e, Position: pos}
		return nil
	})
	if err != nil {
		return Status{}, err
	}
	p.log.Info("joined waiting list",
		zap.Uint64("entry_id", st.Entry.ID),
		zap.Uint64("pool_id", poolID),
		zap.Int("quantity", quantity),
		zap.Int("position", st.Position))
	return st, nil
}

// Get returns an entry of holderID and its position.
func (p *Promoter) Get(ctx context.Context, entryID, holderID uint64) (Status, error) {
	var st Status
	err := p.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.GetWaitlistEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if e.HolderID != holderID {
			return fmt.Errorf("waitlist entry %d: %w", entryID, model.ErrUnauthorized)
		}
		st.Entry = e
		if e.Status == model.WaitlistWaiting {
			st.Position, err = tx.WaitlistPosition(ctx, e)
		}
		return err
	})
	return st, err
}

// Leave withdraws an open entry. Units offered to a notified entry go to
// the next in line.
func (p *Promoter) Leave(ctx context.Context, entryID, holderID uint64) (model.WaitlistEntry, error) {
	var (
		e       model.WaitlistEntry
		offered bool
	)
	err := p.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if e, err = tx.LockWaitlistEntry(ctx, entryID); err != nil {
			return err
		}
		if e.HolderID != holderID {
			return fmt.Errorf("waitlist entry %d: %w", entryID, model.ErrUnauthorized)
		}
		offered = e.Status == model.WaitlistNotified
		if err := e.Leave(); err != nil {
			return err
		}
		return tx.UpdateWaitlistEntry(ctx, e)
	})
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	p.log.Info("left waiting list", zap.Uint64("entry_id", e.ID), zap.Uint64("pool_id", e.PoolID))
	if offered {
		p.CapacityFreed(ctx, e.PoolID)
	}
	return e, nil
}

// Result summarizes one promotion pass over a pool.
type Result struct {
	PoolID    uint64                `json:"pool_id"`
	Offered   int                   `json:"offered"`
	Remaining int                   `json:"remaining"`
	Notified  []model.WaitlistEntry `json:"notified"`
}

// Process offers the pool's free units to waiting entries in join order.
// An entry that fits is notified with a full allocation; the first entry
// that does not fit gets what is left as a partial allocation and the walk
// stops there.
//
// Without an override the units on offer are the pool's availability less
// what unexpired notifications already hold, so repeated passes never
// offer the same units twice.
func (p *Promoter) Process(ctx context.Context, poolID uint64, override *int) (Result, error) {
	defer metrics.ObserveSince("waitlist_process", time.Now())
	res := Result{PoolID: poolID}
	err := p.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		res = Result{PoolID: poolID}
		pool, err := tx.LockPool(ctx, poolID)
		if err != nil {
			return err
		}
		waiting, err := tx.WaitingEntries(ctx, poolID)
		if err != nil || len(waiting) == 0 {
			return err
		}

		now := p.clock.Now()
		free := 0
		if override != nil {
			free = *override
		} else {
			a, err := p.avail.ComputeTx(ctx, tx, pool)
			if err != nil {
				return err
			}
			held, err := tx.OutstandingAllocation(ctx, poolID, now)
			if err != nil {
				return err
			}
			free = a.Available - held
		}

		remaining := free
		for _, e := range waiting {
			if remaining <= 0 {
				break
			}
			amount := min(e.Quantity, remaining)
			if err := e.Notify(amount, now, p.opts.Window); err != nil {
				return err
			}
			if err := tx.UpdateWaitlistEntry(ctx, e); err != nil {
				return err
			}
			remaining -= amount
			res.Notified = append(res.Notified, e)
			if e.AllocationType == model.AllocationPartial {
				break
			}
		}
		res.Offered = free - remaining
		res.Remaining = max(remaining, 0)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	for _, e := range res.Notified {
		metrics.WaitlistNotifiedTotal.WithLabelValues(e.AllocationType.String()).Inc()
		p.log.Info("waitlist entry notified",
			zap.Uint64("entry_id", e.ID),
			zap.Uint64("pool_id", poolID),
			zap.Uint64("holder_id", e.HolderID),
			zap.String("allocation", e.AllocationType.String()),
			zap.Int("amount", e.AllocatedQuantity),
			zap.Timep("expires_at", e.NotificationExpiresAt))
	}
	return res, nil
}

// CapacityFreed runs a promotion pass for a pool whose units were just
// released. Errors are logged only.
func (p *Promoter) CapacityFreed(ctx context.Context, poolID uint64) {
	if _, err := p.Process(ctx, poolID, nil); err != nil {
		p.log.Warn("promotion after release failed", zap.Uint64("pool_id", poolID), zap.Error(err))
	}
}

// ProcessAll runs a promotion pass for every pool with waiting entries. A
// failing pool is logged and skipped. It returns how many entries were
// notified.
func (p *Promoter) ProcessAll(ctx context.Context) (int, error) {
	var pools []uint64
	err := p.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		pools, err = tx.PoolsWithWaiting(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	notified := 0
	for _, id := range pools {
		if ctx.Err() != nil {
			return notified, ctx.Err()
		}
		res, err := p.Process(ctx, id, nil)
		if err != nil {
			p.log.Warn("promotion pass failed", zap.Uint64("pool_id", id), zap.Error(err))
			continue
		}
		notified += len(res.Notified)
	}
	return notified, nil
}

// ExpireNotifications marks notified entries whose response window has
// lapsed as expired, each in its own unit of work, and returns them. The
// caller decides whether to re-run promotion for their pools.
func (p *Promoter) ExpireNotifications(ctx context.Context) ([]model.WaitlistEntry, error) {
	var lapsed []model.WaitlistEntry
	err := p.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		lapsed, err = tx.LapsedNotifications(ctx, p.clock.Now(), p.opts.BatchSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	var expired []model.WaitlistEntry
	for _, candidate := range lapsed {
		var (
			e    model.WaitlistEntry
			done bool
		)
		err := p.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			if e, err = tx.LockWaitlistEntry(ctx, candidate.ID); err != nil {
				return err
			}
			// Converted or withdrawn since the scan.
			if e.Status != model.WaitlistNotified || !e.NotificationLapsed(p.clock.Now()) {
				return nil
			}
			if err := e.Expire(p.clock.Now()); err != nil {
				return err
			}
			done = true
			return tx.UpdateWaitlistEntry(ctx, e)
		})
		if err != nil {
			p.log.Warn("expire notification failed", zap.Uint64("entry_id", candidate.ID), zap.Error(err))
			continue
		}
		if done {
			expired = append(expired, e)
		}
	}
	return expired, nil
}
