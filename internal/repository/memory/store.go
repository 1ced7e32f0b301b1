// Package memory is an in-process implementation of repository.Store. Units
// of work are fully serialized and run against a private copy of the data
// that replaces the shared copy only on success, which gives the same
// all-or-nothing and no-lost-update guarantees the engine expects from the
// relational store.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
)

var errReadOnly = errors.New("memory: write inside a read-only view")

type state struct {
	pools    map[uint64]model.Pool
	seats    map[uint64]model.Seat
	holds    map[uint64]model.SeatHold
	bookings map[uint64]model.Booking
	tickets  map[uint64]model.Ticket
	entries  map[uint64]model.WaitlistEntry
	seq      map[string]uint64
}

func newState() *state {
	return &state{
		pools:    map[uint64]model.Pool{},
		seats:    map[uint64]model.Seat{},
		holds:    map[uint64]model.SeatHold{},
		bookings: map[uint64]model.Booking{},
		tickets:  map[uint64]model.Ticket{},
		entries:  map[uint64]model.WaitlistEntry{},
		seq:      map[string]uint64{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		pools:    cloneMap(s.pools),
		seats:    cloneMap(s.seats),
		holds:    cloneMap(s.holds),
		bookings: cloneMap(s.bookings),
		tickets:  cloneMap(s.tickets),
		entries:  cloneMap(s.entries),
		seq:      cloneMap(s.seq),
	}
}

func (s *state) next(table string) uint64 {
	s.seq[table]++
	return s.seq[table]
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store { return &Store{st: newState()} }

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{st: s.st, readOnly: true})
}

// AddPool stores a pool, assigning an id when p.ID is zero.
func (s *Store) AddPool(p model.Pool) model.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.next("pools")
	} else if p.ID > s.st.seq["pools"] {
		s.st.seq["pools"] = p.ID
	}
	s.st.pools[p.ID] = p
	return p
}

// AddSeats stores seats for a pool and returns them with ids assigned.
func (s *Store) AddSeats(poolID uint64, seats ...model.Seat) []model.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Seat, 0, len(seats))
	for _, seat := range seats {
		seat.PoolID = poolID
		if seat.ID == 0 {
			seat.ID = s.st.next("seats")
		} else if seat.ID > s.st.seq["seats"] {
			s.st.seq["seats"] = seat.ID
		}
		s.st.seats[seat.ID] = seat
		out = append(out, seat)
	}
	return out
}
