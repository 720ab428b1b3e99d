package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// SignalBus implements domain.SignalBus on Redis Pub/Sub. Delivery is
// at-most-once; consumers that miss an update recover on their next read
// from the store.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw payload to a channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw payloads from the given channels.
// Glob-style channel names use pattern subscriptions. The subscription and
// the returned channel close when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channels) {
		pubsub = sb.rdb.PSubscribe(ctx, channels...)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channels...)
	}

	// Wait for the subscription confirmation before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", strings.Join(channels, ","), err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func hasPattern(channels []string) bool {
	for _, c := range channels {
		if strings.ContainsAny(c, "*?[") {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
