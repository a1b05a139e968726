// Package redisbus relays queue events between service instances over
// Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces every organization channel.
const ChannelPrefix = "navbat:queue:"

const defaultPublishTimeout = 2 * time.Second

// Channel returns the pub/sub channel for an organization.
func Channel(orgID string) string {
	return ChannelPrefix + orgID
}

// envelope wraps an event with the id of the instance that published it.
type envelope struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

// Bus publishes local events to Redis and replays events published by
// other instances into a local broadcaster.
type Bus struct {
	client         *redis.Client
	local          ports.EventBroadcaster
	origin         string
	publishTimeout time.Duration
	logger         *slog.Logger
}

var _ ports.EventBroadcaster = (*Bus)(nil)

// NewBus creates a bus. Events received from other instances are handed
// to local.
func NewBus(client *redis.Client, local ports.EventBroadcaster, logger *slog.Logger) *Bus {
	return &Bus{
		client:         client,
		local:          local,
		origin:         uuid.NewString(),
		publishTimeout: defaultPublishTimeout,
		logger:         logger.With("component", "redis_bus"),
	}
}

// Origin returns the instance id stamped on published events.
func (b *Bus) Origin() string {
	return b.origin
}

// Broadcast publishes the event on the organization's channel.
func (b *Bus) Broadcast(event domain.Event) error {
	data, err := b.encode(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, Channel(event.OrganizationID), data).Err(); err != nil {
		return fmt.Errorf("publish %s for organization %s: %w", event.Type, event.OrganizationID, err)
	}
	return nil
}

// Run subscribes to every organization channel and relays foreign events
// until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", ChannelPrefix, err)
	}
	b.logger.Info("redis bus subscribed", "pattern", ChannelPrefix+"*", "origin", b.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("redis bus stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage(msg.Payload)
		}
	}
}

// Ping checks the Redis connection.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Bus) encode(event domain.Event) ([]byte, error) {
	data, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return data, nil
}

func (b *Bus) handleMessage(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("dropping malformed bus message", "error", err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	if err := b.local.Broadcast(env.Event); err != nil {
		b.logger.Error("failed to relay bus event",
			"event_type", env.Event.Type,
			"org_id", env.Event.OrganizationID,
			"error", err,
		)
	}
}
