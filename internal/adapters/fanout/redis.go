// Package fanout shares room frames between relay instances over redis
// pub/sub.
package fanout

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

const DefaultChannel = "signage:rooms"

type message struct {
	Origin string          `json:"origin"`
	Room   domain.RoomKey  `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// Redis publishes every local frame and delivers frames published by other
// instances. Frames carrying this instance's origin are skipped.
type Redis struct {
	rdb     *redis.Client
	channel string
	origin  string
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{rdb: rdb, channel: channel, origin: uuid.NewString()}
}

func (r *Redis) Origin() string { return r.origin }

func (r *Redis) Publish(ctx context.Context, key domain.RoomKey, frame core.Frame) error {
	b, err := json.Marshal(message{Origin: r.origin, Room: key, Frame: json.RawMessage(frame)})
	if err != nil {
		return fmt.Errorf("marshal fanout message: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, string(b)).Err(); err != nil {
		return core.E(core.KindNetwork, "fanout.publish", err)
	}
	return nil
}

// Run subscribes and calls deliver for every foreign frame until ctx ends.
// ready, when set, is closed once the subscription is confirmed.
func (r *Redis) Run(ctx context.Context, deliver func(key domain.RoomKey, frame core.Frame), ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return core.E(core.KindNetwork, "fanout.subscribe", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Info().Str("module", "adapters.fanout").Str("channel", r.channel).Str("origin", r.origin).Msg("subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Warn().Str("module", "adapters.fanout").Err(err).Msg("drop malformed message")
				continue
			}
			if m.Origin == r.origin {
				continue
			}
			deliver(m.Room, core.Frame(m.Frame))
		}
	}
}
