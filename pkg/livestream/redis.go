package livestream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by ingest instances.
const DefaultChannel = "alertledger:live"

// RedisRelay mirrors local publishes onto a Redis channel and feeds
// events published by other instances into the local hub, so every
// observer sees the full fleet-wide live feed. The hub alone remains
// fully functional when Redis is absent.
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	self    string
}

type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// NewRedisRelay binds hub to a Redis channel. self identifies this
// instance so it does not re-deliver its own events.
func NewRedisRelay(rdb *redis.Client, hub *Hub, channel, self string) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{rdb: rdb, hub: hub, channel: channel, self: self}
}

// Publish fans evt out locally and mirrors it to Redis. The mirror is
// best-effort: a Redis fault never fails the caller.
func (r *RedisRelay) Publish(evt Event) {
	r.hub.Publish(evt)
	payload, err := json.Marshal(relayEnvelope{Origin: r.self, Event: evt})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Printf("[livestream] redis mirror failed: %v", err)
	}
}

// Run consumes the Redis channel until ctx is done, re-publishing events
// from other instances into the local hub.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("livestream: subscribe %s: %w", r.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[livestream] bad relay payload: %v", err)
				continue
			}
			if env.Origin == r.self {
				continue
			}
			r.hub.Publish(env.Event)
		}
	}
}
