package nudge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iudanet/famsync/pkg/api"
)

const (
	defaultChannel  = "famsync:nudge"
	maxBackoffDelay = 30 * time.Second
)

// RedisFanout relays nudges between server replicas through Redis Pub/Sub.
// Publish only goes to Redis; every replica, the publishing one included,
// receives the message in Run and hands it to its local hub.
type RedisFanout struct {
	client  *redis.Client
	hub     *Hub
	logger  *slog.Logger
	channel string
}

// NewRedisFanout creates a fan-out over client. An empty channel uses the default.
func NewRedisFanout(client *redis.Client, hub *Hub, channel string, logger *slog.Logger) *RedisFanout {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisFanout{
		client:  client,
		hub:     hub,
		logger:  logger,
		channel: channel,
	}
}

// Publish sends n to every replica.
func (f *RedisFanout) Publish(ctx context.Context, n api.Nudge) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode nudge: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run consumes the channel until ctx is done, resubscribing with backoff
// when the subscription breaks.
func (f *RedisFanout) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := f.client.Subscribe(ctx, f.channel)
		err := f.consume(ctx, pubsub)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		f.logger.Warn("Redis subscription interrupted, retrying",
			"error", err,
			"backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoffDelay)
		}
	}
}

func (f *RedisFanout) consume(ctx context.Context, pubsub *redis.PubSub) error {
	defer pubsub.Close()

	// Ждем подтверждения подписки, чтобы ошибки соединения всплыли сразу
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			if err := f.dispatch(msg.Payload); err != nil {
				f.logger.Warn("Failed to process nudge message", "error", err)
			}
		}
	}
}

func (f *RedisFanout) dispatch(payload string) error {
	var n api.Nudge
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return fmt.Errorf("decode nudge: %w", err)
	}
	if n.FamilyID == "" {
		return errors.New("nudge without family")
	}
	f.hub.Broadcast(n)
	return nil
}
