package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis publisher
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

// RedisPublisher publishes every event on one pub/sub channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	owned   bool
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.Channel == "" {
		cfg.Channel = "endpointkit:events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:        cfg.Password,
		DB:              cfg.DB,
		DisableIdentity: true,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{client: client, channel: cfg.Channel, owned: true}, nil
}

// NewRedisPublisherFromClient publishes through an existing client. The
// client is not closed by Close.
func NewRedisPublisherFromClient(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Channel returns the pub/sub channel
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish implements Publisher
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Close closes the client when the publisher created it
func (p *RedisPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}
