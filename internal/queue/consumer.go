package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/logger"
)

// Handler processes one decoded event. A returned error rejects the
// delivery without requeueing it.
type Handler func(ctx context.Context, ev BookingEvent) error

// LogHandler records each event as a structured log line. It stands in for
// the ticket and notification services, which consume the same queue.
func LogHandler(log *zap.Logger) Handler {
	log = logger.OrNop(log).Named("booking-events")
	return func(_ context.Context, ev BookingEvent) error {
		log.Info("booking event",
			zap.String("kind", string(ev.Kind)),
			zap.String("event_id", ev.ID),
			zap.Uint64("booking_id", ev.BookingID),
			zap.String("reference", ev.Reference),
			zap.Uint64("holder_id", ev.HolderID),
			zap.Uint64("pool_id", ev.PoolID),
			zap.Int("quantity", ev.Quantity),
			zap.String("total", ev.TotalPrice.StringFixed(2)),
			zap.Strings("tickets", ev.TicketCodes),
			zap.Time("occurred_at", ev.OccurredAt))
		return nil
	}
}

// StartBookingConsumer connects to the broker at url, declares the
// booking.events queue and feeds deliveries to handle. It reconnects with
// exponential backoff and returns only when ctx is done.
func StartBookingConsumer(ctx context.Context, url string, handle Handler, log *zap.Logger) error {
	log = logger.OrNop(log).Named("booking-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, handle, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, handle Handler, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := Dispatch(ctx, d.Body, handle); err != nil {
				log.Warn("handle message failed", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Dispatch decodes body and passes it to handle.
func Dispatch(ctx context.Context, body []byte, handle Handler) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" || ev.BookingID == 0 {
		return errors.New("event without kind or booking id")
	}
	return handle(ctx, ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
