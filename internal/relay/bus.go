// Package relay replicates broadcasts across relay instances over Redis
// pub/sub. The bus is optional; the core never depends on it.
package relay

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// BusMessage is one replicated broadcast. Origin identifies the publishing
// instance so subscribers can skip their own traffic; Payload is the
// already-encoded wire frame, delivered to local members verbatim.
type BusMessage struct {
	Origin  string `json:"origin"`
	Room    string `json:"room"`
	Payload []byte `json:"payload"`
}

// Bus is a thin pub/sub wrapper over a Redis client, one channel per room.
type Bus struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewBus connects to Redis and verifies connectivity.
func NewBus(ctx context.Context, addr string, db int, log zerolog.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Bus{rdb: rdb, log: log.With().Str("component", "bus").Logger()}, nil
}

// Publish replicates one broadcast to the room's channel.
func (b *Bus) Publish(ctx context.Context, m BusMessage) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, busChannel(m.Room), raw).Err()
}

// Subscribe listens on every room channel and invokes fn for each message
// until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, fn func(BusMessage)) {
	pubsub := b.rdb.PSubscribe(ctx, busChannel("*"))
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var bm BusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				b.log.Debug().Err(err).Msg("malformed bus message")
				continue
			}
			if bm.Room != "" {
				fn(bm)
			}
		}
	}
}

// Close shuts down the Redis connection.
func (b *Bus) Close() {
	_ = b.rdb.Close()
}

func busChannel(room string) string {
	return "room:" + room
}
