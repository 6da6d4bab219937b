// Package redisnotify implements the cache's NotificationSource and
// MemoryPressureSource capabilities over Redis Pub/Sub, so stores in
// many processes can be refetched (or shrunk) from one published
// signal.
package redisnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"eve.evalgo.org/operation/diagnostics"
	"eve.evalgo.org/operation/events"
	"eve.evalgo.org/operation/subscription"
)

// Config configures the Redis-backed sources.
type Config struct {
	// RedisURL defaults to OPERATION_REDIS_URL, then
	// redis://localhost:6379/0.
	RedisURL string
	// ChannelPrefix namespaces the Pub/Sub channels (defaults to
	// "operation:").
	ChannelPrefix string
}

// Source delivers notifications and pressure signals published on
// Redis channels.
type Source struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, config Config) (*Source, error) {
	redisURL := config.RedisURL
	if redisURL == "" {
		redisURL = os.Getenv("OPERATION_REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.ChannelPrefix
	if prefix == "" {
		prefix = "operation:"
	}

	return &Source{client: client, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (s *Source) Close() error {
	return s.client.Close()
}

// Subscribe delivers every message published on the named notification
// channel to onPost until the returned subscription is cancelled.
// Payloads are JSON objects; a non-JSON payload arrives with the raw
// text under "payload".
func (s *Source) Subscribe(name string, onPost func(events.Notification)) *subscription.Subscription {
	pubsub := s.client.Subscribe(context.Background(), s.prefix+name)
	go func() {
		for msg := range pubsub.Channel() {
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				payload = map[string]interface{}{"payload": msg.Payload}
			}
			onPost(events.Notification{Name: name, Payload: payload})
		}
	}()
	return subscription.New(func() {
		if err := pubsub.Close(); err != nil {
			diagnostics.Warnf("redisnotify: closing subscription for %q: %v", name, err)
		}
	})
}

// Post publishes payload on the named notification channel.
func (s *Source) Post(ctx context.Context, name string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	return s.client.Publish(ctx, s.prefix+name, string(data)).Err()
}

// pressureChannel is where PressureSource listens and EmitPressure
// publishes, relative to the configured prefix.
const pressureChannel = "memory-pressure"

// PressureSource adapts the same Redis connection into a
// MemoryPressureSource: publish "warning" or "critical" on the pressure
// channel and every connected cache sheds its idle stores.
func (s *Source) PressureSource() events.MemoryPressureSource {
	return pressureSource{s}
}

type pressureSource struct{ s *Source }

func (p pressureSource) Subscribe(onPressure func(events.PressureLevel)) *subscription.Subscription {
	return p.s.Subscribe(pressureChannel, func(n events.Notification) {
		raw, _ := n.Payload["level"].(string)
		if raw == "" {
			raw, _ = n.Payload["payload"].(string)
		}
		switch level := events.PressureLevel(raw); level {
		case events.PressureNormal, events.PressureWarning, events.PressureCritical:
			onPressure(level)
		default:
			diagnostics.Warnf("redisnotify: ignoring unknown pressure level %q", raw)
		}
	})
}

// EmitPressure publishes level on the pressure channel.
func (s *Source) EmitPressure(ctx context.Context, level events.PressureLevel) error {
	return s.Post(ctx, pressureChannel, map[string]interface{}{"level": string(level)})
}
