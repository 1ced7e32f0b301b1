package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Envelope
	chs  []string
	err  error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Publish(_ context.Context, channel string, payload []byte) error {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, env)
	r.chs = append(r.chs, channel)
	return r.err
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

var ts = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func snapshot(poolID uint64, available int) model.Availability {
	return model.Availability{PoolID: poolID, Capacity: 20, Available: available, Booked: 20 - available, Status: model.TierFor(available)}
}

func TestSeatStatusPublishesToPoolChannel(t *testing.T) {
	rec := &recorder{}
	b := New(rec, Options{}, nil, clock.NewFake(ts))

	b.SeatStatus(context.Background(), 5, []uint64{1, 2}, model.SeatReserved)
	b.Flush()

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "pool.5", rec.chs[0])
	assert.Equal(t, EventSeatStatus, rec.msgs[0].Type)
	data := rec.msgs[0].Data.(map[string]any)
	assert.Equal(t, "reserved", data["status"])
	assert.Equal(t, []any{1.0, 2.0}, data["seats"])
}

func TestAvailabilityThresholdCrossings(t *testing.T) {
	rec := &recorder{}
	b := New(rec, Options{ChannelPrefix: "venue"}, nil, clock.NewFake(ts))
	ctx := context.Background()

	b.Availability(ctx, snapshot(1, 15))
	b.Flush()
	assert.Equal(t, []EventType{EventAvailability}, rec.types())

	b.Availability(ctx, snapshot(1, 8))
	b.Flush()
	assert.ElementsMatch(t, []EventType{EventAvailability, EventAvailability, EventLowAvailability}, rec.types())

	// Still below the cutoff: no repeat.
	b.Availability(ctx, snapshot(1, 6))
	b.Flush()
	assert.Len(t, rec.types(), 4)

	b.Availability(ctx, snapshot(1, 0))
	b.Flush()
	types := rec.types()
	assert.Len(t, types, 6)
	assert.Contains(t, types[4:], EventSoldOut)
	assert.Equal(t, "venue.1", rec.chs[0])
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	b := New(rec, Options{}, nil, clock.NewFake(ts))
	assert.NotPanics(t, func() {
		b.SeatStatus(context.Background(), 1, []uint64{9}, model.SeatAvailable)
		b.Flush()
	})
	assert.Len(t, rec.msgs, 1)
}

func TestNilBroadcasterIsNoop(t *testing.T) {
	var b *Broadcaster
	assert.NotPanics(t, func() {
		b.SeatStatus(context.Background(), 1, []uint64{1}, model.SeatBooked)
		b.Availability(context.Background(), snapshot(1, 3))
		b.Flush()
	})
}

func TestRedisPublisher(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectPublish("pool.3", []byte(`{"x":1}`)).SetVal(2)

	p := NewRedisPublisher(rdb)
	require.NoError(t, p.Publish(context.Background(), "pool.3", []byte(`{"x":1}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("nope")}
	err := Multi{ok, bad}.Publish(context.Background(), "pool.1", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder: nope")
	assert.Len(t, ok.msgs, 1)
}
