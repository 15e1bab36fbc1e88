package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/logger"
)

type envelope struct {
	PIN     string          `json:"pin"`
	Payload json.RawMessage `json:"payload"`
}

// Fanout carries group broadcasts over a Redis pub/sub channel so every instance delivers to
// its own members.
type Fanout struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewFanout(client *redis.Client, channel string, log *logger.Logger) *Fanout {
	if channel == "" {
		channel = "quiz:groups"
	}
	return &Fanout{
		client:  client,
		channel: channel,
		log:     log.With("component", "fanout"),
	}
}

func (f *Fanout) Publish(ctx context.Context, pin string, payload []byte) error {
	raw, err := json.Marshal(envelope{PIN: pin, Payload: payload})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, raw).Err()
}

// Start subscribes to the channel and hands each received frame to deliver until ctx is done.
func (f *Fanout) Start(ctx context.Context, deliver func(pin string, payload []byte)) error {
	if deliver == nil {
		return fmt.Errorf("deliver callback required")
	}

	sub := f.client.Subscribe(ctx, f.channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					f.log.Warn("bad fanout payload", "error", err)
					continue
				}
				deliver(env.PIN, env.Payload)
			}
		}
	}()
	return nil
}
