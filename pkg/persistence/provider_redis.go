package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter stores blobs as plain Redis string values
type RedisAdapter struct {
	client    *redis.Client
	keyPrefix string
	owned     bool
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Host is the Redis server host (default: localhost)
	Host string

	// Port is the Redis server port (default: 6379)
	Port int

	// Password for Redis authentication (optional)
	Password string

	// DB is the Redis database number (default: 0)
	DB int

	// KeyPrefix is prepended to every key
	KeyPrefix string
}

// NewRedisAdapter connects to Redis and verifies the connection
func NewRedisAdapter(config *RedisConfig) (*RedisAdapter, error) {
	if config == nil {
		config = &RedisConfig{}
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:        config.Password,
		DB:              config.DB,
		DisableIdentity: true,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	adapter := NewRedisAdapterFromClient(client, config.KeyPrefix)
	adapter.owned = true
	return adapter, nil
}

// NewRedisAdapterFromClient wraps an existing client. The caller keeps
// ownership of the client; Close does not close it.
func NewRedisAdapterFromClient(client *redis.Client, keyPrefix string) *RedisAdapter {
	return &RedisAdapter{client: client, keyPrefix: keyPrefix}
}

// Client returns the underlying Redis client
func (r *RedisAdapter) Client() *redis.Client {
	return r.client
}

// Read fetches the blob stored under key
func (r *RedisAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s from Redis: %w", key, err)
	}
	return val, true, nil
}

// Write stores blob under key without expiry
func (r *RedisAdapter) Write(ctx context.Context, key string, blob []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", key, err)
	}
	return nil
}

// Close closes the client when the adapter created it
func (r *RedisAdapter) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
