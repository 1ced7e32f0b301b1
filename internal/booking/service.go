// Package booking drives a purchase request through
// pending -> confirmed -> paid, or to cancelled on timeout or request.
//
// Every operation is one unit of work against the store. Realtime
// broadcasts, lifecycle events and waiting-list promotion run only after
// that unit has committed, and their failures never reach the caller.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
	"github.com/iliyamo/seat-reservation-engine/internal/broadcast"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/queue"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
)

// Promoter is told when a pool regains capacity.
type Promoter interface {
	CapacityFreed(ctx context.Context, poolID uint64)
}

// Notifier hands lifecycle events to ticket generation and notification
// delivery.
type Notifier interface {
	PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

// Options tune the state machine.
type Options struct {
	ConfirmWindow time.Duration
	PaymentWindow time.Duration
	// MaxQuantity caps units per booking. Zero means no cap.
	MaxQuantity int
	// NotifyTimeout bounds one lifecycle event publish.
	NotifyTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConfirmWindow <= 0 {
		o.ConfirmWindow = 10 * time.Minute
	}
	if o.PaymentWindow <= 0 {
		o.PaymentWindow = 24 * time.Hour
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 5 * time.Second
	}
	return o
}

// Deps are the collaborators of a Service. Broadcaster, Notifier and
// Promoter are optional.
type Deps struct {
	Store        repository.Store
	Clock        clock.Clock
	Ledger       *ledger.Ledger
	Availability *availability.Calculator
	Broadcaster  *broadcast.Broadcaster
	Notifier     Notifier
	Promoter     Promoter
	Logger       *zap.Logger
}

// Service is the booking state machine.
type Service struct {
	store    repository.Store
	clock    clock.Clock
	ledger   *ledger.Ledger
	avail    *availability.Calculator
	bc       *broadcast.Broadcaster
	notifier Notifier
	promoter Promoter
	log      *zap.Logger
	opts     Options

	wg sync.WaitGroup
}

// New returns a Service.
func New(d Deps, opts Options) *Service {
	return &Service{
		store:    d.Store,
		clock:    d.Clock,
		ledger:   d.Ledger,
		avail:    d.Availability,
		bc:       d.Broadcaster,
		notifier: d.Notifier,
		promoter: d.Promoter,
		log:      logger.OrNop(d.Logger).Named("booking"),
		opts:     opts.withDefaults(),
	}
}

// Result is a booking together with its tickets.
type Result struct {
	Booking model.Booking  `json:"booking"`
	Tickets []model.Ticket `json:"tickets"`
}

// SeatIDs returns the seats the booking's tickets are bound to.
func (r Result) SeatIDs() []uint64 { return ticketSeats(r.Tickets) }

// CreateRequest asks for Quantity units of a pool. On a seat-level pool
// either SeatIDs or HoldToken names the seats.
type CreateRequest struct {
	HolderID  uint64   `json:"-"`
	PoolID    uint64   `json:"pool_id"`
	Quantity  int      `json:"quantity"`
	SeatIDs   []uint64 `json:"seat_ids,omitempty"`
	HoldToken string   `json:"hold_token,omitempty"`
}

// Create validates the request, checks capacity, acquires or claims seat
// holds tied to the new booking and persists it as pending. A conflict or
// capacity shortfall rolls everything back.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Result, error) {
	defer metrics.ObserveSince("create", time.Now())
	var res Result
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = s.createTx(ctx, tx, req)
		return err
	})
	if err != nil {
		s.countFailure(err)
		return Result{}, err
	}
	metrics.BookingsTotal.WithLabelValues("created").Inc()
	s.log.Info("booking created",
		zap.Uint64("booking_id", res.Booking.ID),
		zap.String("reference", res.Booking.Reference),
		zap.Uint64("pool_id", res.Booking.PoolID),
		zap.Int("quantity", res.Booking.Quantity))
	s.after(ctx, effects{
		poolID:   res.Booking.PoolID,
		reserved: res.SeatIDs(),
		event:    queue.EventCreated,
		result:   res,
	})
	return res, nil
}

func (s *Service) createTx(ctx context.Context, tx repository.Tx, req CreateRequest) (Result, error) {
	if err := s.validate(req); err != nil {
		return Result{}, err
	}
	pool, err := tx.GetPool(ctx, req.PoolID)
	if err != nil {
		return Result{}, err
	}
	if !pool.Published {
		return Result{}, model.InvalidStatef("pool %d is not open for sale", pool.ID)
	}
	seatLevel, err := availability.SeatLevel(ctx, tx, pool.ID)
	if err != nil {
		return Result{}, err
	}

	switch {
	case seatLevel && len(req.SeatIDs) == 0 && req.HoldToken == "":
		return Result{}, model.Validationf("pool %d sells seats: seat_ids or hold_token is required", pool.ID)
	case !seatLevel && (len(req.SeatIDs) > 0 || req.HoldToken != ""):
		return Result{}, model.Validationf("pool %d has no seat map", pool.ID)
	}

	// Every create serializes on the pool row so that two buyers cannot
	// both see the last units. Seat locks alone do not cover capacity
	// below the seat count or units left without a seat.
	if pool, err = tx.LockPool(ctx, pool.ID); err != nil {
		return Result{}, err
	}
	var a model.Availability
	if req.HoldToken != "" {
		// The token's own holds are about to become this booking.
		a, err = s.avail.ComputeForTokenTx(ctx, tx, pool, req.HoldToken)
	} else {
		a, err = s.avail.ComputeTx(ctx, tx, pool)
	}
	if err != nil {
		return Result{}, err
	}
	if a.Available < req.Quantity {
		return Result{}, fmt.Errorf("pool %d has %d units left, %d requested: %w",
			pool.ID, a.Available, req.Quantity, model.ErrCapacity)
	}

	now := s.clock.Now()
	b := model.NewBooking(req.HolderID, pool, req.Quantity, now, s.opts.ConfirmWindow)
	b.Reference = newReference()
	if err := tx.InsertBooking(ctx, &b); err != nil {
		return Result{}, fmt.Errorf("insert booking: %w", err)
	}

	var seats []uint64
	switch {
	case req.HoldToken != "":
		seats, err = s.ledger.Claim(ctx, tx, ledger.ClaimRequest{
			Token:     req.HoldToken,
			PoolID:    pool.ID,
			HolderID:  req.HolderID,
			BookingID: b.ID,
			SeatIDs:   req.SeatIDs,
		})
		if err != nil {
			return Result{}, err
		}
		if len(seats) != req.Quantity {
			return Result{}, model.Validationf("hold covers %d seats, quantity is %d", len(seats), req.Quantity)
		}
		if _, err := s.ledger.Extend(ctx, tx, b.ID, model.HoldTemporary, b.ConfirmationExpiresAt); err != nil {
			return Result{}, err
		}
	case seatLevel:
		g, err := s.ledger.Acquire(ctx, tx, ledger.AcquireRequest{
			PoolID:    pool.ID,
			HolderID:  req.HolderID,
			BookingID: b.ID,
			SeatIDs:   req.SeatIDs,
			ExpiresAt: b.ConfirmationExpiresAt,
		})
		if err != nil {
			return Result{}, err
		}
		seats = g.SeatIDs
	}

	if err := tx.InsertTickets(ctx, newTickets(b, seats, b.Quantity, now)); err != nil {
		return Result{}, fmt.Errorf("insert tickets: %w", err)
	}
	tickets, err := tx.TicketsByBooking(ctx, b.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Booking: b, Tickets: tickets}, nil
}

func (s *Service) validate(req CreateRequest) error {
	if req.HolderID == 0 {
		return model.Validationf("holder is required")
	}
	if req.Quantity < 1 {
		return model.Validationf("quantity must be at least 1")
	}
	if s.opts.MaxQuantity > 0 && req.Quantity > s.opts.MaxQuantity {
		return model.Validationf("quantity must not exceed %d", s.opts.MaxQuantity)
	}
	if len(req.SeatIDs) > 0 && len(req.SeatIDs) != req.Quantity {
		return model.Validationf("%d seats given for quantity %d", len(req.SeatIDs), req.Quantity)
	}
	return nil
}

// Confirm moves a pending booking to confirmed and extends its holds to
// the end of the payment window. A booking touched after its confirmation
// window is cancelled on the spot and ErrWindowExpired is returned.
func (s *Service) Confirm(ctx context.Context, bookingID, holderID uint64) (model.Booking, error) {
	defer metrics.ObserveSince("confirm", time.Now())
	var (
		b       model.Booking
		fx      effects
		expired bool
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if b, err = s.lockOwned(ctx, tx, bookingID, holderID); err != nil {
			return err
		}
		now := s.clock.Now()
		if err := b.Confirm(now, s.opts.PaymentWindow); err != nil {
			if errors.Is(err, model.ErrWindowExpired) {
				expired = true
				fx, _, err = s.expireTx(ctx, tx, &b, now)
			}
			return err
		}
		if _, err := s.ledger.Extend(ctx, tx, b.ID, model.HoldConfirmed, b.HoldDeadline()); err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return model.Booking{}, err
	}
	if expired {
		s.after(ctx, fx)
		return b, fmt.Errorf("booking %d confirmation window: %w", b.ID, model.ErrWindowExpired)
	}
	metrics.BookingsTotal.WithLabelValues("confirmed").Inc()
	s.log.Info("booking confirmed", zap.Uint64("booking_id", b.ID), zap.Timep("payment_expires_at", b.PaymentExpiresAt))
	s.after(ctx, effects{poolID: b.PoolID, event: queue.EventConfirmed, result: Result{Booking: b}})
	return b, nil
}

// Outcome is the result reported by the payment gateway.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// PayRequest records a payment attempt.
type PayRequest struct {
	BookingID uint64  `json:"-"`
	HolderID  uint64  `json:"-"`
	Method    string  `json:"method"`
	Outcome   Outcome `json:"outcome"`
}

// Pay records the payment outcome of a confirmed booking.
//
// On success the seat holds are re-validated: if they are intact they are
// locked permanently, otherwise the payment still stands but the booking
// is flagged HadSeatTimeout and its tickets lose their seats. Missing
// tickets are created. A failed payment cancels the booking and returns
// its units to the pool.
func (s *Service) Pay(ctx context.Context, req PayRequest) (Result, error) {
	defer metrics.ObserveSince("pay", time.Now())
	if strings.TrimSpace(req.Method) == "" {
		return Result{}, model.Validationf("payment method is required")
	}
	if req.Outcome == "" {
		req.Outcome = OutcomeSuccess
	}
	if req.Outcome != OutcomeSuccess && req.Outcome != OutcomeFailed {
		return Result{}, model.Validationf("unknown payment outcome %q", req.Outcome)
	}

	var (
		fx      effects
		expired bool
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := s.lockOwned(ctx, tx, req.BookingID, req.HolderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if req.Outcome == OutcomeFailed {
			fx, err = s.failTx(ctx, tx, b, req.Method, now)
		} else {
			fx, err = s.payTx(ctx, tx, b, req.Method, now)
		}
		if errors.Is(err, model.ErrWindowExpired) {
			expired = true
			fx, _, err = s.expireTx(ctx, tx, &b, now)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.after(ctx, fx)
	if expired {
		return fx.result, fmt.Errorf("booking %d payment window: %w", req.BookingID, model.ErrWindowExpired)
	}

	b := fx.result.Booking
	if req.Outcome == OutcomeFailed {
		metrics.BookingsTotal.WithLabelValues("payment_failed").Inc()
		s.log.Info("payment failed", zap.Uint64("booking_id", b.ID), zap.String("method", b.PaymentMethod))
	} else {
		metrics.BookingsTotal.WithLabelValues("paid").Inc()
		s.log.Info("booking paid",
			zap.Uint64("booking_id", b.ID),
			zap.String("method", b.PaymentMethod),
			zap.Bool("had_seat_timeout", b.HadSeatTimeout))
	}
	return fx.result, nil
}

func (s *Service) payTx(ctx context.Context, tx repository.Tx, b model.Booking, method string, now time.Time) (effects, error) {
	tickets, err := tx.TicketsByBooking(ctx, b.ID)
	if err != nil {
		return effects{}, err
	}
	seated := ticketSeats(tickets)

	timedOut := false
	var held []model.SeatHold
	if len(seated) > 0 {
		var ok bool
		if held, ok, err = s.ledger.Validate(ctx, tx, b.ID, len(seated)); err != nil {
			return effects{}, err
		}
		timedOut = !ok
	}
	if err := b.Pay(now, method, timedOut); err != nil {
		return effects{}, err
	}

	fx := effects{poolID: b.PoolID, event: queue.EventPaid}
	if timedOut {
		// The seats may already belong to someone else; the booking keeps
		// its units as general admission.
		r, err := s.ledger.Release(ctx, tx, b.ID)
		if err != nil {
			return effects{}, err
		}
		if err := tx.UnbindTicketSeats(ctx, b.ID); err != nil {
			return effects{}, err
		}
		fx.freed = r.Freed
		seated = nil
	} else if len(seated) > 0 {
		if _, err := s.ledger.Promote(ctx, tx, b.ID); err != nil {
			return effects{}, err
		}
		fx.booked = model.SeatIDsOf(held)
	}

	if missing := b.Quantity - len(tickets); missing > 0 {
		var spare []uint64
		if !timedOut {
			spare = unticketed(held, seated)
		}
		if err := tx.InsertTickets(ctx, newTickets(b, spare, missing, now)); err != nil {
			return effects{}, fmt.Errorf("insert tickets: %w", err)
		}
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return effects{}, err
	}
	if tickets, err = tx.TicketsByBooking(ctx, b.ID); err != nil {
		return effects{}, err
	}
	fx.result = Result{Booking: b, Tickets: tickets}
	return fx, nil
}

func (s *Service) failTx(ctx context.Context, tx repository.Tx, b model.Booking, method string, now time.Time) (effects, error) {
	if err := b.FailPayment(now, method); err != nil {
		return effects{}, err
	}
	r, err := s.ledger.Release(ctx, tx, b.ID)
	if err != nil {
		return effects{}, err
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return effects{}, err
	}
	return effects{
		poolID:        b.PoolID,
		freed:         r.Freed,
		capacityFreed: true,
		event:         queue.EventPaymentFailed,
		result:        Result{Booking: b},
	}, nil
}

// Cancel cancels a pending or confirmed booking of holderID, releases its
// holds and offers the units to the waiting list. Paid bookings cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, bookingID, holderID uint64) (model.Booking, error) {
	defer metrics.ObserveSince("cancel", time.Now())
	var fx effects
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := s.lockOwned(ctx, tx, bookingID, holderID)
		if err != nil {
			return err
		}
		if err := b.Cancel(s.clock.Now()); err != nil {
			return err
		}
		r, err := s.ledger.Release(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		fx = effects{
			poolID:        b.PoolID,
			freed:         r.Freed,
			capacityFreed: true,
			event:         queue.EventCancelled,
			result:        Result{Booking: b},
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	metrics.BookingsTotal.WithLabelValues("cancelled").Inc()
	s.log.Info("booking cancelled", zap.Uint64("booking_id", bookingID))
	s.after(ctx, fx)
	return fx.result.Booking, nil
}

// Expire cancels a booking that sits past its current window, or a
// pending booking whose seat hold has lapsed. It reports false when the
// booking turned out not to need reclaiming. The waiting list is not
// triggered; sweep passes do that once per pool.
func (s *Service) Expire(ctx context.Context, bookingID uint64) (model.Booking, bool, error) {
	var (
		b     model.Booking
		fx    effects
		freed bool
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if b, err = tx.LockBooking(ctx, bookingID); err != nil {
			return err
		}
		fx, freed, err = s.expireTx(ctx, tx, &b, s.clock.Now())
		return err
	})
	if err != nil || !freed {
		return b, false, err
	}
	fx.capacityFreed = false
	s.after(ctx, fx)
	return b, true, nil
}

// expireTx reclaims b when it sits past its current window or, while
// pending, holds a lapsed seat hold. It reports whether b was reclaimed.
func (s *Service) expireTx(ctx context.Context, tx repository.Tx, b *model.Booking, now time.Time) (effects, bool, error) {
	switch {
	case b.Lapsed(now):
		if err := b.Expire(now); err != nil {
			return effects{}, false, err
		}
	case b.State() == model.StatePending:
		holds, err := tx.HoldsByBooking(ctx, b.ID)
		if err != nil {
			return effects{}, false, err
		}
		lapsed := false
		for _, h := range holds {
			lapsed = lapsed || !h.Active(now)
		}
		if !lapsed {
			return effects{}, false, nil
		}
		if err := b.Cancel(now); err != nil {
			return effects{}, false, err
		}
	default:
		return effects{}, false, nil
	}

	r, err := s.ledger.Release(ctx, tx, b.ID)
	if err != nil {
		return effects{}, false, err
	}
	if err := tx.UpdateBooking(ctx, *b); err != nil {
		return effects{}, false, err
	}
	metrics.BookingsTotal.WithLabelValues("expired").Inc()
	s.log.Info("booking expired", zap.Uint64("booking_id", b.ID), zap.Uint64("pool_id", b.PoolID))
	return effects{
		poolID:        b.PoolID,
		freed:         r.Freed,
		capacityFreed: true,
		event:         queue.EventExpired,
		result:        Result{Booking: *b},
	}, true, nil
}

// Get returns a booking of holderID with its tickets.
func (s *Service) Get(ctx context.Context, bookingID, holderID uint64) (Result, error) {
	var res Result
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.HolderID != holderID {
			return fmt.Errorf("booking %d: %w", bookingID, model.ErrUnauthorized)
		}
		tickets, err := tx.TicketsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		res = Result{Booking: b, Tickets: tickets}
		return nil
	})
	return res, err
}

// ConvertRequest turns a notified waiting-list entry into a booking.
type ConvertRequest struct {
	EntryID   uint64   `json:"-"`
	HolderID  uint64   `json:"-"`
	SeatIDs   []uint64 `json:"seat_ids,omitempty"`
	HoldToken string   `json:"hold_token,omitempty"`
}

// ConvertWaitlistEntry books the units offered to a notified entry,
// re-validating availability, and marks the entry converted. An entry
// touched after its response window is expired and the next entries are
// offered its units.
func (s *Service) ConvertWaitlistEntry(ctx context.Context, req ConvertRequest) (Result, model.WaitlistEntry, error) {
	defer metrics.ObserveSince("convert", time.Now())
	var (
		res     Result
		e       model.WaitlistEntry
		expired bool
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if e, err = tx.LockWaitlistEntry(ctx, req.EntryID); err != nil {
			return err
		}
		if e.HolderID != req.HolderID {
			return fmt.Errorf("waitlist entry %d: %w", e.ID, model.ErrUnauthorized)
		}
		now := s.clock.Now()
		if e.Status == model.WaitlistNotified && e.NotificationLapsed(now) {
			expired = true
			if err := e.Expire(now); err != nil {
				return err
			}
			return tx.UpdateWaitlistEntry(ctx, e)
		}
		if e.Status != model.WaitlistNotified {
			return model.InvalidStatef("waitlist entry %d is %s", e.ID, e.Status)
		}

		res, err = s.createTx(ctx, tx, CreateRequest{
			HolderID:  e.HolderID,
			PoolID:    e.PoolID,
			Quantity:  e.AllocatedQuantity,
			SeatIDs:   req.SeatIDs,
			HoldToken: req.HoldToken,
		})
		if err != nil {
			return err
		}
		if err := e.Convert(res.Booking.ID, now); err != nil {
			return err
		}
		return tx.UpdateWaitlistEntry(ctx, e)
	})
	if err != nil {
		s.countFailure(err)
		return Result{}, model.WaitlistEntry{}, err
	}
	if expired {
		s.triggerPromoter(ctx, e.PoolID)
		return Result{}, e, fmt.Errorf("waitlist entry %d response window: %w", e.ID, model.ErrWindowExpired)
	}
	metrics.BookingsTotal.WithLabelValues("created").Inc()
	s.log.Info("waitlist entry converted",
		zap.Uint64("entry_id", e.ID),
		zap.Uint64("booking_id", res.Booking.ID),
		zap.Int("quantity", res.Booking.Quantity))
	s.after(ctx, effects{
		poolID:   res.Booking.PoolID,
		reserved: res.SeatIDs(),
		event:    queue.EventCreated,
		result:   res,
	})
	return res, e, nil
}

// Flush waits for in-flight lifecycle event publishes.
func (s *Service) Flush() { s.wg.Wait() }

func (s *Service) lockOwned(ctx context.Context, tx repository.Tx, bookingID, holderID uint64) (model.Booking, error) {
	b, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.HolderID != holderID {
		return model.Booking{}, fmt.Errorf("booking %d: %w", bookingID, model.ErrUnauthorized)
	}
	return b, nil
}

func (s *Service) countFailure(err error) {
	switch {
	case errors.Is(err, model.ErrSeatConflict):
		metrics.BookingsTotal.WithLabelValues("conflict").Inc()
	case errors.Is(err, model.ErrCapacity):
		metrics.BookingsTotal.WithLabelValues("capacity").Inc()
	}
}

// effects are the post-commit consequences of a transition.
type effects struct {
	poolID        uint64
	reserved      []uint64
	booked        []uint64
	freed         []uint64
	capacityFreed bool
	event         queue.EventKind
	result        Result
}

func (s *Service) after(ctx context.Context, fx effects) {
	if fx.poolID == 0 {
		return
	}
	s.bc.SeatStatus(ctx, fx.poolID, fx.reserved, model.SeatReserved)
	s.bc.SeatStatus(ctx, fx.poolID, fx.booked, model.SeatBooked)
	s.bc.SeatStatus(ctx, fx.poolID, fx.freed, model.SeatAvailable)
	s.bc.Refresh(ctx, s.avail, fx.poolID)
	if fx.capacityFreed {
		s.triggerPromoter(ctx, fx.poolID)
	}
	if fx.event != "" {
		s.notify(ctx, queue.NewBookingEvent(fx.event, fx.result.Booking, fx.result.Tickets, s.clock.Now()))
	}
}

func (s *Service) triggerPromoter(ctx context.Context, poolID uint64) {
	if s.promoter != nil {
		s.promoter.CapacityFreed(ctx, poolID)
	}
}

func (s *Service) notify(ctx context.Context, ev queue.BookingEvent) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.PublishBookingEvent(nctx, ev); err != nil {
			s.log.Warn("lifecycle event not published",
				zap.String("kind", string(ev.Kind)),
				zap.Uint64("booking_id", ev.BookingID),
				zap.Error(err))
		}
	}()
}

// newReference returns a booking reference such as BK-7K2QF9XMWA.
func newReference() string {
	return "BK-" + strings.ToUpper(shortuuid.New()[:10])
}

// newTickets builds n active tickets, binding the first len(seats) of them
// to seats in order.
func newTickets(b model.Booking, seats []uint64, n int, now time.Time) []model.Ticket {
	out := make([]model.Ticket, n)
	for i := range out {
		out[i] = model.Ticket{
			BookingID: b.ID,
			PoolID:    b.PoolID,
			Code:      shortuuid.New(),
			Status:    model.TicketActive,
			CreatedAt: now,
		}
		if i < len(seats) {
			seat := seats[i]
			out[i].SeatID = &seat
		}
	}
	return out
}

func ticketSeats(tickets []model.Ticket) []uint64 {
	var out []uint64
	for _, t := range tickets {
		if t.SeatID != nil {
			out = append(out, *t.SeatID)
		}
	}
	return out
}

// unticketed returns the held seats no ticket is bound to yet.
func unticketed(held []model.SeatHold, ticketed []uint64) []uint64 {
	has := make(map[uint64]bool, len(ticketed))
	for _, id := range ticketed {
		has[id] = true
	}
	var out []uint64
	for _, h := range held {
		if !has[h.SeatID] {
			out = append(out, h.SeatID)
		}
	}
	return out
}
