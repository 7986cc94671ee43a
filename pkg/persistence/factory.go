package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitechdev/EndpointKit/pkg/config"
)

// NewFromConfig creates the adapter selected by cfg.Provider
func NewFromConfig(ctx context.Context, cfg config.PersistenceConfig) (Adapter, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "memory":
		return NewMemoryAdapter(), nil
	case "file":
		return NewFileAdapter(cfg.File.Dir)
	case "redis":
		return NewRedisAdapter(&RedisConfig{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "memcache":
		return NewMemcacheAdapter(&MemcacheConfig{
			Servers:      cfg.Memcache.Servers,
			MaxIdleConns: cfg.Memcache.MaxIdleConns,
			Timeout:      cfg.Memcache.Timeout,
		})
	case "sqlite":
		return NewSQLiteAdapter(ctx, &SQLiteConfig{
			DSN:       cfg.SQLite.DSN,
			TableName: cfg.SQLite.TableName,
		})
	default:
		return nil, fmt.Errorf("unsupported persistence provider: %s", cfg.Provider)
	}
}
