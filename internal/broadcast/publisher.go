package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

// Publisher delivers a payload to the subscribers of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Name() string
}

// RedisPublisher fans out over Redis PUBLISH.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher { return &RedisPublisher{rdb: rdb} }

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.rdb.Publish(ctx, channel, payload).Err()
}

// PubNubPublisher pushes to PubNub channels for browser clients.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

// NewPubNubPublisher configures a PubNub client with server-side keys.
func NewPubNubPublisher(publishKey, subscribeKey, secretKey, userID string) *PubNubPublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	return &PubNubPublisher{pn: pubnub.NewPubNub(cfg)}
}

func (p *PubNubPublisher) Name() string { return "pubnub" }

func (p *PubNubPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	_, status, err := p.pn.Publish().
		Channel(channel).
		Message(json.RawMessage(payload)).
		Execute()
	if err != nil {
		return err
	}
	if status.StatusCode >= 400 {
		return fmt.Errorf("pubnub publish to %s: status %d", channel, status.StatusCode)
	}
	return nil
}

// Multi publishes to every publisher and reports all failures.
type Multi []Publisher

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Name() string                                  { return "nop" }
func (Nop) Publish(context.Context, string, []byte) error { return nil }
