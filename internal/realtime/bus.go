package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the Redis pub/sub channel notifications travel on.
const DefaultChannel = "botstudio:notifications"

// Deliverer receives notifications that arrived on a bus.
type Deliverer interface {
	Deliver(n *domain.Notification)
}

// LocalBus delivers straight to an in-process hub. It serves single-instance deployments.
type LocalBus struct {
	hub Deliverer
}

func NewLocalBus(hub Deliverer) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(ctx context.Context, n *domain.Notification) error {
	b.hub.Deliver(n)
	return nil
}

// RedisBus publishes notifications to every API instance through Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     logrus.FieldLogger
}

func NewRedisBus(client *redis.Client, channel string, log logrus.FieldLogger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		log:     log.WithField("component", "redis_bus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Run relays messages from Redis to hub until ctx is done.
func (b *RedisBus) Run(ctx context.Context, hub Deliverer) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.WithField("channel", b.channel).Info("subscribed to notification bus")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n domain.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				b.log.WithError(err).Warn("discarding malformed notification message")
				continue
			}
			hub.Deliver(&n)
		}
	}
}
