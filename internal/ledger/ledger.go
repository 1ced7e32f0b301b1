// Package ledger owns seat holds: the exclusive, time-limited locks that
// keep two requesters from buying the same seat.
//
// The Tx-level methods run inside the caller's unit of work so that a
// booking and its holds commit or roll back together. Hold and ReleaseHold
// are the pre-booking entry points and open their own unit of work.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/broadcast"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
)

// tokenBytes is the entropy of a pre-booking token (hex encoded to 64 chars).
const tokenBytes = 32

// Options tune a Ledger.
type Options struct {
	// HoldDuration is the lifetime of a pre-booking hold.
	HoldDuration time.Duration
	// MaxSeats caps the seats of one acquisition. Zero means no cap.
	MaxSeats int
}

// Counter measures a pool's availability, inside a unit of work or on its own.
type Counter interface {
	broadcast.Snapshotter
	ComputeTx(ctx context.Context, tx repository.Tx, pool model.Pool) (model.Availability, error)
}

// Ledger grants, validates, promotes and releases seat holds.
type Ledger struct {
	store repository.Store
	clock clock.Clock
	bc    *broadcast.Broadcaster
	src   Counter
	log   *zap.Logger
	opts  Options
}

// New returns a Ledger. src bounds pre-booking holds by pool capacity and
// feeds broadcasts. bc may be nil, in which case nothing is announced.
func New(store repository.Store, clk clock.Clock, bc *broadcast.Broadcaster, src Counter, log *zap.Logger, opts Options) *Ledger {
	if opts.HoldDuration <= 0 {
		opts.HoldDuration = 10 * time.Minute
	}
	return &Ledger{
		store: store,
		clock: clk,
		bc:    bc,
		src:   src,
		log:   logger.OrNop(log).Named("ledger"),
		opts:  opts,
	}
}

// AcquireRequest names the seats to lock. A zero BookingID asks for a
// pre-booking hold identified by a fresh token.
type AcquireRequest struct {
	PoolID    uint64
	HolderID  uint64
	BookingID uint64
	SeatIDs   []uint64
	ExpiresAt time.Time
}

// Grant describes holds that were just created.
type Grant struct {
	Token     string    `json:"token,omitempty"`
	PoolID    uint64    `json:"pool_id"`
	SeatIDs   []uint64  `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Acquire locks the requested seat rows, checks that none is disabled or
// covered by an unexpired hold, and inserts one temporary hold per seat.
// Check and insert happen under the same row locks, so of two overlapping
// acquisitions exactly one succeeds.
func (l *Ledger) Acquire(ctx context.Context, tx repository.Tx, req AcquireRequest) (Grant, error) {
	ids, err := l.normalize(req.SeatIDs)
	if err != nil {
		return Grant{}, err
	}
	now := l.clock.Now()
	if !req.ExpiresAt.After(now) {
		return Grant{}, model.Validationf("hold expiry must be in the future")
	}

	seats, err := tx.LockSeats(ctx, req.PoolID, ids)
	if err != nil {
		return Grant{}, fmt.Errorf("lock seats: %w", err)
	}
	if len(seats) != len(ids) {
		return Grant{}, model.Validationf("seats %v do not all belong to pool %d", missingSeats(ids, seats), req.PoolID)
	}
	var disabled []uint64
	for _, s := range seats {
		if s.Disabled {
			disabled = append(disabled, s.ID)
		}
	}
	if len(disabled) > 0 {
		metrics.SeatConflictsTotal.Inc()
		return Grant{}, &model.SeatConflictError{SeatIDs: disabled, Reason: "disabled"}
	}

	held, err := tx.ActiveHoldsForSeats(ctx, req.PoolID, ids, now)
	if err != nil {
		return Grant{}, fmt.Errorf("check holds: %w", err)
	}
	if len(held) > 0 {
		metrics.SeatConflictsTotal.Inc()
		taken := model.SeatIDsOf(held)
		slices.Sort(taken)
		return Grant{}, &model.SeatConflictError{SeatIDs: slices.Compact(taken)}
	}

	g := Grant{PoolID: req.PoolID, SeatIDs: ids, ExpiresAt: req.ExpiresAt}
	var bookingID *uint64
	if req.BookingID != 0 {
		id := req.BookingID
		bookingID = &id
	} else if g.Token, err = randomToken(tokenBytes); err != nil {
		return Grant{}, err
	}

	holds := make([]model.SeatHold, len(ids))
	for i, seatID := range ids {
		holds[i] = model.SeatHold{
			PoolID:    req.PoolID,
			SeatID:    seatID,
			HolderID:  req.HolderID,
			BookingID: bookingID,
			Token:     g.Token,
			Kind:      model.HoldTemporary,
			ExpiresAt: req.ExpiresAt,
			CreatedAt: now,
		}
	}
	if err := tx.InsertHolds(ctx, holds); err != nil {
		return Grant{}, fmt.Errorf("insert holds: %w", err)
	}
	return g, nil
}

// ClaimRequest binds pre-booking holds to a booking.
type ClaimRequest struct {
	Token     string
	PoolID    uint64
	HolderID  uint64
	BookingID uint64
	// SeatIDs, when given, must match the token's seats exactly.
	SeatIDs []uint64
}

// Claim validates that the token names unexpired holds of the holder on
// exactly the requested seats and binds them to the booking. The token is
// cleared. It returns the claimed seat ids in ascending order.
func (l *Ledger) Claim(ctx context.Context, tx repository.Tx, req ClaimRequest) ([]uint64, error) {
	if req.Token == "" {
		return nil, model.Validationf("hold token is required")
	}
	holds, err := tx.HoldsByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	if len(holds) == 0 {
		return nil, model.ErrHoldInvalid
	}
	now := l.clock.Now()
	for _, h := range holds {
		if h.HolderID != req.HolderID {
			return nil, fmt.Errorf("hold token: %w", model.ErrUnauthorized)
		}
		if h.PoolID != req.PoolID || h.Bound() || !h.Active(now) {
			return nil, model.ErrHoldInvalid
		}
	}

	got := model.SeatIDsOf(holds)
	slices.Sort(got)
	if len(req.SeatIDs) > 0 {
		want := slices.Clone(req.SeatIDs)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return nil, model.ErrHoldInvalid
		}
	}

	n, err := tx.BindHolds(ctx, req.Token, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("bind holds: %w", err)
	}
	if int(n) != len(holds) {
		return nil, model.ErrHoldInvalid
	}
	return got, nil
}

// Extend moves the booking's still-active holds to kind and expiresAt.
func (l *Ledger) Extend(ctx context.Context, tx repository.Tx, bookingID uint64, kind model.HoldKind, expiresAt time.Time) (int64, error) {
	return tx.SetHoldExpiry(ctx, bookingID, kind, expiresAt, l.clock.Now())
}

// Promote locks the booking's active holds permanently. Promoting an
// already promoted set changes nothing.
func (l *Ledger) Promote(ctx context.Context, tx repository.Tx, bookingID uint64) (int64, error) {
	return l.Extend(ctx, tx, bookingID, model.HoldConfirmed, model.PermanentHoldExpiry)
}

// Validate returns the booking's holds that are still active and whether
// they cover exactly want seats.
func (l *Ledger) Validate(ctx context.Context, tx repository.Tx, bookingID uint64, want int) ([]model.SeatHold, bool, error) {
	holds, err := tx.HoldsByBooking(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	now := l.clock.Now()
	active := holds[:0:0]
	for _, h := range holds {
		if h.Active(now) {
			active = append(active, h)
		}
	}
	return active, want > 0 && len(active) == want && len(active) == len(holds), nil
}

// Released reports what a release removed.
type Released struct {
	PoolID uint64
	Holds  []model.SeatHold
	// Freed are seats of removed holds that no other active hold covers.
	Freed []uint64
}

// Release deletes every hold of a booking.
func (l *Ledger) Release(ctx context.Context, tx repository.Tx, bookingID uint64) (Released, error) {
	holds, err := tx.DeleteHoldsByBooking(ctx, bookingID)
	if err != nil {
		return Released{}, fmt.Errorf("release booking %d holds: %w", bookingID, err)
	}
	return l.released(ctx, tx, holds)
}

// ReleaseToken deletes the pre-booking holds of a token.
func (l *Ledger) ReleaseToken(ctx context.Context, tx repository.Tx, token string) (Released, error) {
	holds, err := tx.DeleteHoldsByToken(ctx, token)
	if err != nil {
		return Released{}, fmt.Errorf("release token holds: %w", err)
	}
	return l.released(ctx, tx, holds)
}

// ReclaimUnbound deletes up to limit lapsed pre-booking holds and reports
// them per pool.
func (l *Ledger) ReclaimUnbound(ctx context.Context, tx repository.Tx, limit int) ([]Released, error) {
	holds, err := tx.DeleteLapsedUnboundHolds(ctx, l.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("reclaim unbound holds: %w", err)
	}
	var pools []uint64
	byPool := map[uint64][]model.SeatHold{}
	for _, h := range holds {
		if _, ok := byPool[h.PoolID]; !ok {
			pools = append(pools, h.PoolID)
		}
		byPool[h.PoolID] = append(byPool[h.PoolID], h)
	}
	out := make([]Released, 0, len(pools))
	for _, id := range pools {
		r, err := l.released(ctx, tx, byPool[id])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *Ledger) released(ctx context.Context, tx repository.Tx, holds []model.SeatHold) (Released, error) {
	if len(holds) == 0 {
		return Released{}, nil
	}
	r := Released{PoolID: holds[0].PoolID, Holds: holds}
	seats := model.SeatIDsOf(holds)
	still, err := tx.ActiveHoldsForSeats(ctx, r.PoolID, seats, l.clock.Now())
	if err != nil {
		return Released{}, err
	}
	covered := make(map[uint64]bool, len(still))
	for _, h := range still {
		covered[h.SeatID] = true
	}
	for _, id := range seats {
		if !covered[id] {
			covered[id] = true
			r.Freed = append(r.Freed, id)
		}
	}
	return r, nil
}

// Hold places a pre-booking hold on seats of a seat-level pool. The
// returned token is later passed to booking creation. Held seats count
// against the pool capacity, which may be lower than its seat count.
func (l *Ledger) Hold(ctx context.Context, poolID, holderID uint64, seatIDs []uint64) (Grant, error) {
	defer metrics.ObserveSince("hold", time.Now())
	var g Grant
	err := l.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		// Pool row first, then seat rows: the same order as booking creation.
		pool, err := tx.LockPool(ctx, poolID)
		if err != nil {
			return err
		}
		if !pool.Published {
			return model.InvalidStatef("pool %d is not open for sale", poolID)
		}
		a, err := l.src.ComputeTx(ctx, tx, pool)
		if err != nil {
			return fmt.Errorf("compute availability: %w", err)
		}
		g, err = l.Acquire(ctx, tx, AcquireRequest{
			PoolID:    poolID,
			HolderID:  holderID,
			SeatIDs:   seatIDs,
			ExpiresAt: l.clock.Now().Add(l.opts.HoldDuration),
		})
		if err != nil {
			return err
		}
		if a.Available < len(g.SeatIDs) {
			return fmt.Errorf("pool %d has %d units left, %d requested: %w",
				poolID, a.Available, len(g.SeatIDs), model.ErrCapacity)
		}
		return nil
	})
	if err != nil {
		return Grant{}, err
	}
	l.log.Debug("seats held",
		zap.Uint64("pool_id", poolID),
		zap.Uint64("holder_id", holderID),
		zap.Int("seats", len(g.SeatIDs)))
	l.bc.SeatStatus(ctx, poolID, g.SeatIDs, model.SeatReserved)
	l.bc.Refresh(ctx, l.src, poolID)
	return g, nil
}

// ReleaseHold drops an unclaimed pre-booking hold owned by holderID.
func (l *Ledger) ReleaseHold(ctx context.Context, token string, holderID uint64) error {
	var r Released
	err := l.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		holds, err := tx.HoldsByToken(ctx, token)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return fmt.Errorf("hold: %w", model.ErrNotFound)
		}
		for _, h := range holds {
			if h.HolderID != holderID {
				return fmt.Errorf("hold: %w", model.ErrUnauthorized)
			}
		}
		r, err = l.ReleaseToken(ctx, tx, token)
		return err
	})
	if err != nil {
		return err
	}
	l.bc.SeatStatus(ctx, r.PoolID, r.Freed, model.SeatAvailable)
	l.bc.Refresh(ctx, l.src, r.PoolID)
	return nil
}

// normalize rejects empty, zero, duplicated or oversized seat lists and
// returns the ids in ascending order, the order rows are locked in.
func (l *Ledger) normalize(seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, model.Validationf("at least one seat is required")
	}
	if l.opts.MaxSeats > 0 && len(seatIDs) > l.opts.MaxSeats {
		return nil, model.Validationf("at most %d seats per request", l.opts.MaxSeats)
	}
	ids := slices.Clone(seatIDs)
	slices.Sort(ids)
	for i, id := range ids {
		if id == 0 {
			return nil, model.Validationf("seat id must be positive")
		}
		if i > 0 && ids[i-1] == id {
			return nil, model.Validationf("seat %d requested twice", id)
		}
	}
	return ids, nil
}

func missingSeats(want []uint64, got []model.Seat) []uint64 {
	found := make(map[uint64]bool, len(got))
	for _, s := range got {
		found[s.ID] = true
	}
	var out []uint64
	for _, id := range want {
		if !found[id] {
			out = append(out, id)
		}
	}
	return out
}

// randomToken returns n random bytes as a hex string.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate hold token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
