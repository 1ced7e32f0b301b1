// Package broadcast fans out seat and availability changes to realtime
// subscribers. Publishing happens after the state change has committed,
// runs in the background and never reports failure to the caller.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// Options tune a Broadcaster.
type Options struct {
	// ChannelPrefix is prepended to the pool id: "<prefix>.<poolID>".
	ChannelPrefix string
	// Timeout bounds a single publish.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChannelPrefix == "" {
		o.ChannelPrefix = "pool"
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	return o
}

// Broadcaster is safe for concurrent use. A nil *Broadcaster drops
// everything.
type Broadcaster struct {
	pub   Publisher
	opts  Options
	log   *zap.Logger
	clock clock.Clock

	wg sync.WaitGroup

	mu       sync.Mutex
	lastSeen map[uint64]int
}

// New returns a Broadcaster publishing through pub.
func New(pub Publisher, opts Options, log *zap.Logger, clk clock.Clock) *Broadcaster {
	if pub == nil {
		pub = Nop{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Broadcaster{
		pub:      pub,
		opts:     opts.withDefaults(),
		log:      logger.OrNop(log).Named("broadcast"),
		clock:    clk,
		lastSeen: map[uint64]int{},
	}
}

// Channel returns the channel name of a pool.
func (b *Broadcaster) Channel(poolID uint64) string {
	return fmt.Sprintf("%s.%d", b.opts.ChannelPrefix, poolID)
}

// SeatStatus announces that seats moved to status.
func (b *Broadcaster) SeatStatus(ctx context.Context, poolID uint64, seatIDs []uint64, status model.SeatStatus) {
	if b == nil || len(seatIDs) == 0 {
		return
	}
	b.emit(ctx, poolID, EventSeatStatus, SeatStatusEvent{
		PoolID:    poolID,
		Seats:     append([]uint64(nil), seatIDs...),
		Status:    status,
		Timestamp: b.clock.Now(),
	})
}

// Availability announces a pool snapshot, plus a low-availability or
// sold-out event when the available count crosses a cutoff.
func (b *Broadcaster) Availability(ctx context.Context, a model.Availability) {
	if b == nil {
		return
	}
	ev := availabilityEvent(a, b.clock.Now())
	b.emit(ctx, a.PoolID, EventAvailability, ev)

	for _, t := range b.crossings(a.PoolID, a.Available) {
		b.emit(ctx, a.PoolID, t, ev)
	}
}

// crossings records available as the pool's latest count and returns the
// threshold events it triggers.
func (b *Broadcaster) crossings(poolID uint64, available int) []EventType {
	b.mu.Lock()
	prev, known := b.lastSeen[poolID]
	b.lastSeen[poolID] = available
	b.mu.Unlock()

	switch {
	case available <= 0:
		if !known || prev > 0 {
			return []EventType{EventSoldOut}
		}
	case available < model.LimitedThreshold:
		if !known || prev >= model.LimitedThreshold {
			return []EventType{EventLowAvailability}
		}
	}
	return nil
}

func (b *Broadcaster) emit(ctx context.Context, poolID uint64, typ EventType, data any) {
	payload, err := json.Marshal(Envelope{ID: uuid.NewString(), Type: typ, Data: data})
	if err != nil {
		b.log.Error("encode realtime event", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	channel := b.Channel(poolID)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.opts.Timeout)
		defer cancel()
		if err := b.pub.Publish(pctx, channel, payload); err != nil {
			metrics.BroadcastFailuresTotal.WithLabelValues(b.pub.Name()).Inc()
			b.log.Warn("realtime publish failed",
				zap.String("channel", channel),
				zap.String("type", string(typ)),
				zap.Error(err))
		}
	}()
}

// Flush waits for in-flight publishes.
func (b *Broadcaster) Flush() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

// Snapshotter computes the current availability of a pool.
type Snapshotter interface {
	Get(ctx context.Context, poolID uint64) (model.Availability, error)
}

// Refresh recomputes a pool's availability through src and announces it.
// Errors are logged only.
func (b *Broadcaster) Refresh(ctx context.Context, src Snapshotter, poolID uint64) {
	if b == nil || src == nil {
		return
	}
	a, err := src.Get(ctx, poolID)
	if err != nil {
		b.log.Warn("availability refresh failed", zap.Uint64("pool_id", poolID), zap.Error(err))
		return
	}
	b.Availability(ctx, a)
}
