package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "chat:pubsub:"

// RedisBroker fans events out across relay instances. Publish goes to Redis;
// Run delivers whatever any instance published to this instance's hub.
type RedisBroker struct {
	rdb   *redis.Client
	hub   *Hub
	log   *slog.Logger
	ready chan struct{}
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, log *slog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, hub: hub, log: log, ready: make(chan struct{})}
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, redisChannelPrefix+event.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Ready is closed once Run is subscribed to Redis.
func (b *RedisBroker) Ready() <-chan struct{} {
	return b.ready
}

// Run blocks until ctx is done. It must be called once.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	close(b.ready)
	b.log.Info("Redis broker subscribed", "pattern", redisChannelPrefix+"*")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.log.Debug("Context done, stopping redis broker")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Warn("Dropping undecodable event", "redis_channel", msg.Channel, "error", err)
				continue
			}
			evt.Channel = strings.TrimPrefix(msg.Channel, redisChannelPrefix)
			b.hub.Broadcast(evt)
		}
	}
}
