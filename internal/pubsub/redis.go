package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
)

const publishTimeout = 2 * time.Second

// roomPatterns covers every room namespace the hub can publish to.
var roomPatterns = []string{"order:*", "user:*", string(realtime.PresenceRoom)}

// envelope wraps a serialized event with the id of the instance that
// published it, so the publisher's own re-delivery can be skipped.
type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// LocalDeliverer is the hub-side sink for events published on other
// instances.
type LocalDeliverer interface {
	DeliverLocal(room realtime.Room, payload []byte)
}

// OrderInvalidator drops a locally cached order. A state change committed on
// another instance makes this instance's copy stale.
type OrderInvalidator interface {
	Delete(orderID string)
}

// RedisBridge fans events out across backend instances over Redis pub/sub,
// one channel per room. Redis carries notifications only, never
// authoritative order state.
type RedisBridge struct {
	rdb    *redis.Client
	local  LocalDeliverer
	cache  OrderInvalidator
	origin string
}

func NewRedisBridge(rdb *redis.Client, local LocalDeliverer, cache OrderInvalidator) *RedisBridge {
	return &RedisBridge{
		rdb:    rdb,
		local:  local,
		cache:  cache,
		origin: uuid.NewString(),
	}
}

// Publish pushes the event onto the room's channel. Bounded by a timeout so
// a slow Redis never stalls the publishing request.
func (b *RedisBridge) Publish(ctx context.Context, room realtime.Room, payload []byte) error {
	data, err := json.Marshal(envelope{Origin: b.origin, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, string(room), data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", room, err)
	}
	return nil
}

// Run subscribes to every room namespace and re-delivers foreign events
// locally until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, roomPatterns...)
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("pubsub: closing subscription: %v", err)
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) handleMessage(channel string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("pubsub: dropping malformed message on %s: %v", channel, err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.local.DeliverLocal(realtime.Room(channel), env.Payload)
	b.invalidateStale(env.Payload)
}

// invalidateStale evicts the cached copy of an order that another instance
// just changed, so the next local read goes to the database.
func (b *RedisBridge) invalidateStale(payload []byte) {
	if b.cache == nil {
		return
	}
	var e realtime.Event
	if err := json.Unmarshal(payload, &e); err != nil || e.OrderID == "" {
		return
	}
	switch e.Type {
	case realtime.EventStatusChanged, realtime.EventCourierAssigned:
		b.cache.Delete(e.OrderID)
	}
}
