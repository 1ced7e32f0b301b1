// Package queue_publisher publishes booking lifecycle events to RabbitMQ.
// Errors are logged and returned so callers can ignore them without
// interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/logger"
	q "github.com/iliyamo/seat-reservation-engine/internal/queue"
)

// QueuePublisher keeps one broker connection and reopens it after a
// failure. It is safe for concurrent use.
type QueuePublisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New returns a publisher for the broker at url. The connection is opened
// on first use.
func New(url string, log *zap.Logger) *QueuePublisher {
	return &QueuePublisher{url: url, log: logger.OrNop(log).Named("queue-publisher")}
}

// PublishBookingEvent publishes ev to the booking.events queue as a
// persistent message.
func (p *QueuePublisher) PublishBookingEvent(ctx context.Context, ev q.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.Error(err))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.BookingQueue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		p.reset()
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

func (p *QueuePublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.BookingQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *QueuePublisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
