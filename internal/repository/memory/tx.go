package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
)

type tx struct {
	st       *state
	readOnly bool
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func missing(what string, id uint64) error {
	return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func idSet(ids []uint64) map[uint64]bool {
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Pools

func (t *tx) GetPool(_ context.Context, id uint64) (model.Pool, error) {
	p, ok := t.st.pools[id]
	if !ok {
		return model.Pool{}, missing("pool", id)
	}
	return p, nil
}

func (t *tx) LockPool(ctx context.Context, id uint64) (model.Pool, error) {
	return t.GetPool(ctx, id)
}

// Seats

func (t *tx) CountSeats(_ context.Context, poolID uint64) (int, int, error) {
	var configured, enabled int
	for _, s := range t.st.seats {
		if s.PoolID != poolID {
			continue
		}
		configured++
		if !s.Disabled {
			enabled++
		}
	}
	return configured, enabled, nil
}

func (t *tx) ListSeats(_ context.Context, poolID uint64) ([]model.Seat, error) {
	var out []model.Seat
	for _, id := range sortedKeys(t.st.seats) {
		if s := t.st.seats[id]; s.PoolID == poolID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *tx) LockSeats(_ context.Context, poolID uint64, seatIDs []uint64) ([]model.Seat, error) {
	want := idSet(seatIDs)
	var out []model.Seat
	for _, id := range sortedKeys(t.st.seats) {
		if s := t.st.seats[id]; s.PoolID == poolID && want[id] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Seat holds

func (t *tx) holdsWhere(keep func(model.SeatHold) bool) []model.SeatHold {
	var out []model.SeatHold
	for _, id := range sortedKeys(t.st.holds) {
		if h := t.st.holds[id]; keep(h) {
			out = append(out, h)
		}
	}
	return out
}

func (t *tx) ActiveHoldsForSeats(_ context.Context, poolID uint64, seatIDs []uint64, now time.Time) ([]model.SeatHold, error) {
	want := idSet(seatIDs)
	return t.holdsWhere(func(h model.SeatHold) bool {
		return h.PoolID == poolID && want[h.SeatID] && h.Active(now)
	}), nil
}

func (t *tx) ActiveHolds(_ context.Context, poolID uint64, now time.Time) ([]model.SeatHold, error) {
	return t.holdsWhere(func(h model.SeatHold) bool {
		return h.PoolID == poolID && h.Active(now)
	}), nil
}

func (t *tx) InsertHolds(_ context.Context, holds []model.SeatHold) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, h := range holds {
		h.ID = t.st.next("seat_holds")
		t.st.holds[h.ID] = h
	}
	return nil
}

func (t *tx) HoldsByToken(_ context.Context, token string) ([]model.SeatHold, error) {
	if token == "" {
		return nil, nil
	}
	return t.holdsWhere(func(h model.SeatHold) bool { return h.Token == token }), nil
}

func (t *tx) HoldsByBooking(_ context.Context, bookingID uint64) ([]model.SeatHold, error) {
	return t.holdsWhere(func(h model.SeatHold) bool {
		return h.BookingID != nil && *h.BookingID == bookingID
	}), nil
}

func (t *tx) BindHolds(ctx context.Context, token string, bookingID uint64) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	holds, _ := t.HoldsByToken(ctx, token)
	for _, h := range holds {
		id := bookingID
		h.BookingID = &id
		h.Token = ""
		t.st.holds[h.ID] = h
	}
	return int64(len(holds)), nil
}

func (t *tx) SetHoldExpiry(ctx context.Context, bookingID uint64, kind model.HoldKind, expiresAt, now time.Time) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	holds, _ := t.HoldsByBooking(ctx, bookingID)
	var n int64
	for _, h := range holds {
		if !h.Active(now) || (h.Kind == kind && h.ExpiresAt.Equal(expiresAt)) {
			continue
		}
		h.Kind = kind
		h.ExpiresAt = expiresAt
		t.st.holds[h.ID] = h
		n++
	}
	return n, nil
}

func (t *tx) deleteHolds(holds []model.SeatHold) ([]model.SeatHold, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	for _, h := range holds {
		delete(t.st.holds, h.ID)
	}
	return holds, nil
}

func (t *tx) DeleteHoldsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatHold, error) {
	holds, _ := t.HoldsByBooking(ctx, bookingID)
	return t.deleteHolds(holds)
}

func (t *tx) DeleteHoldsByToken(ctx context.Context, token string) ([]model.SeatHold, error) {
	holds, _ := t.HoldsByToken(ctx, token)
	return t.deleteHolds(holds)
}

func (t *tx) DeleteLapsedUnboundHolds(_ context.Context, now time.Time, limit int) ([]model.SeatHold, error) {
	holds := t.holdsWhere(func(h model.SeatHold) bool { return !h.Bound() && !h.Active(now) })
	if limit > 0 && len(holds) > limit {
		holds = holds[:limit]
	}
	return t.deleteHolds(holds)
}

// Bookings

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, other := range t.st.bookings {
		if b.Reference != "" && other.Reference == b.Reference {
			return fmt.Errorf("memory: duplicate booking reference %q", b.Reference)
		}
	}
	b.ID = t.st.next("bookings")
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return model.Booking{}, missing("booking", id)
	}
	return b, nil
}

func (t *tx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *tx) UpdateBooking(_ context.Context, b model.Booking) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.bookings[b.ID]; !ok {
		return missing("booking", b.ID)
	}
	t.st.bookings[b.ID] = b
	return nil
}

func (t *tx) LapsedBookingIDs(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	lapsedHold := map[uint64]bool{}
	for _, h := range t.st.holds {
		if h.Bound() && !h.Active(now) {
			lapsedHold[*h.BookingID] = true
		}
	}
	var ids []uint64
	for _, id := range sortedKeys(t.st.bookings) {
		b := t.st.bookings[id]
		if b.Lapsed(now) || (b.State() == model.StatePending && lapsedHold[id]) {
			ids = append(ids, id)
			if limit > 0 && len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (t *tx) BookedQuantity(_ context.Context, poolID uint64) (int, int, error) {
	var live, paid int
	for _, b := range t.st.bookings {
		if b.PoolID != poolID || !b.Live() {
			continue
		}
		live += b.Quantity
		if b.State() == model.StatePaid {
			paid += b.Quantity
		}
	}
	return live, paid, nil
}

// Tickets

func (t *tx) InsertTickets(_ context.Context, tickets []model.Ticket) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, tk := range tickets {
		tk.ID = t.st.next("tickets")
		t.st.tickets[tk.ID] = tk
	}
	return nil
}

func (t *tx) TicketsByBooking(_ context.Context, bookingID uint64) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, id := range sortedKeys(t.st.tickets) {
		if tk := t.st.tickets[id]; tk.BookingID == bookingID {
			out = append(out, tk)
		}
	}
	return out, nil
}

func (t *tx) UnbindTicketSeats(_ context.Context, bookingID uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, tk := range t.st.tickets {
		if tk.BookingID == bookingID && tk.SeatID != nil {
			tk.SeatID = nil
			t.st.tickets[id] = tk
		}
	}
	return nil
}

func (t *tx) TicketedSeats(_ context.Context, poolID uint64) ([]repository.TicketedSeat, error) {
	seen := map[uint64]int{}
	var out []repository.TicketedSeat
	for _, id := range sortedKeys(t.st.tickets) {
		tk := t.st.tickets[id]
		if tk.PoolID != poolID || tk.SeatID == nil {
			continue
		}
		b, ok := t.st.bookings[tk.BookingID]
		if !ok || !b.Live() {
			continue
		}
		paid := b.State() == model.StatePaid
		if i, dup := seen[*tk.SeatID]; dup {
			out[i].Paid = out[i].Paid || paid
			continue
		}
		seen[*tk.SeatID] = len(out)
		out = append(out, repository.TicketedSeat{SeatID: *tk.SeatID, Paid: paid})
	}
	return out, nil
}

// Waiting list

func (t *tx) InsertWaitlistEntry(_ context.Context, e *model.WaitlistEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	e.ID = t.st.next("waitlist_entries")
	t.st.entries[e.ID] = *e
	return nil
}

func (t *tx) GetWaitlistEntry(_ context.Context, id uint64) (model.WaitlistEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return model.WaitlistEntry{}, missing("waitlist entry", id)
	}
	return e, nil
}

func (t *tx) LockWaitlistEntry(ctx context.Context, id uint64) (model.WaitlistEntry, error) {
	return t.GetWaitlistEntry(ctx, id)
}

func (t *tx) UpdateWaitlistEntry(_ context.Context, e model.WaitlistEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.entries[e.ID]; !ok {
		return missing("waitlist entry", e.ID)
	}
	t.st.entries[e.ID] = e
	return nil
}

func fifoBefore(a, b model.WaitlistEntry) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

func (t *tx) WaitingEntries(_ context.Context, poolID uint64) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range t.st.entries {
		if e.PoolID == poolID && e.Status == model.WaitlistWaiting {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return fifoBefore(out[i], out[j]) })
	return out, nil
}

func (t *tx) OpenEntry(_ context.Context, poolID, holderID uint64) (model.WaitlistEntry, error) {
	for _, id := range sortedKeys(t.st.entries) {
		e := t.st.entries[id]
		if e.PoolID == poolID && e.HolderID == holderID && e.Open() {
			return e, nil
		}
	}
	return model.WaitlistEntry{}, fmt.Errorf("open waitlist entry for holder %d: %w", holderID, model.ErrNotFound)
}

func (t *tx) OutstandingAllocation(_ context.Context, poolID uint64, now time.Time) (int, error) {
	var sum int
	for _, e := range t.st.entries {
		if e.PoolID == poolID && e.Status == model.WaitlistNotified && !e.NotificationLapsed(now) {
			sum += e.AllocatedQuantity
		}
	}
	return sum, nil
}

func (t *tx) WaitlistPosition(_ context.Context, e model.WaitlistEntry) (int, error) {
	if e.Status != model.WaitlistWaiting {
		return 0, nil
	}
	pos := 1
	for _, other := range t.st.entries {
		if other.PoolID == e.PoolID && other.Status == model.WaitlistWaiting && fifoBefore(other, e) {
			pos++
		}
	}
	return pos, nil
}

func (t *tx) LapsedNotifications(_ context.Context, now time.Time, limit int) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, id := range sortedKeys(t.st.entries) {
		e := t.st.entries[id]
		if e.Status == model.WaitlistNotified && e.NotificationLapsed(now) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (t *tx) PoolsWithWaiting(_ context.Context) ([]uint64, error) {
	pools := map[uint64]bool{}
	for _, e := range t.st.entries {
		if e.Status == model.WaitlistWaiting {
			pools[e.PoolID] = true
		}
	}
	return sortedKeys(pools), nil
}
