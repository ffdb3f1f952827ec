package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campusbook/internal/metrics"
)

// DefaultChannel is the pub/sub channel carrying reservation updates.
const DefaultChannel = EventReservationUpdate

// RedisFeed subscribes to reservation updates over Redis pub/sub.
type RedisFeed struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRedisFeed(client *redis.Client, channel string, logger zerolog.Logger) *RedisFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisFeed{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "realtime").Str("channel", channel).Logger(),
	}
}

// Subscribe confirms the Redis subscription before returning, so a dead
// connection surfaces here instead of as a silent feed.
func (f *RedisFeed) Subscribe(ctx context.Context, roomID int64) (*Subscription, error) {
	ps := f.client.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	sub := newSubscription(roomID)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(sub.ch)

		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn().Err(err).Str("payload", msg.Payload).Msg("malformed event")
				continue
			}
			ev.Type = EventReservationUpdate
			ev.ReceivedAt = time.Now()
			metrics.IncRealtimeEvent("redis")

			if sub.matches(ev) {
				sub.offer(ev)
			}
		}
	}()

	sub.bind(ctx, func() {
		if err := ps.Close(); err != nil {
			f.logger.Debug().Err(err).Msg("close pubsub")
		}
		<-done
	})

	f.logger.Debug().Int64("room_id", roomID).Str("subscription", sub.id).Msg("subscribed")
	return sub, nil
}

// RedisPublisher emits reservation updates over Redis pub/sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(struct {
		RoomID int64 `json:"roomId"`
	}{RoomID: ev.RoomID})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// MultiPublisher fans an event out to several publishers. Every publisher is
// tried; the first error is returned.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
