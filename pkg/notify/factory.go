package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitechdev/EndpointKit/pkg/config"
	"github.com/bitechdev/EndpointKit/pkg/logger"
)

// NewFromConfig creates the forwarders enabled in cfg. Redis forwarding
// reuses the persistence Redis connection settings.
func NewFromConfig(ctx context.Context, cfg *config.Config) ([]*Forwarder, error) {
	var forwarders []*Forwarder

	if cfg.Notify.NATS.Enabled {
		pub, err := NewNATSPublisher(NATSConfig{
			URL:           cfg.Notify.NATS.URL,
			SubjectPrefix: cfg.Notify.NATS.SubjectPrefix,
		})
		if err != nil {
			return nil, err
		}
		forwarders = append(forwarders, NewForwarder("nats", pub, DefaultForwarderConfig()))
		logger.Info("Forwarding monitor events to NATS subjects %s.*", pub.subjectPrefix)
	}

	if cfg.Notify.Redis.Enabled {
		r := cfg.Persistence.Redis
		pub, err := NewRedisPublisher(ctx, RedisConfig{
			Host:     r.Host,
			Port:     r.Port,
			Password: r.Password,
			DB:       r.DB,
			Channel:  cfg.Notify.Redis.Channel,
		})
		if err != nil {
			return nil, errors.Join(err, CloseAll(ctx, forwarders))
		}
		forwarders = append(forwarders, NewForwarder("redis", pub, DefaultForwarderConfig()))
		logger.Info("Forwarding monitor events to Redis channel %s", pub.Channel())
	}

	return forwarders, nil
}

// CloseAll drains and closes every forwarder
func CloseAll(ctx context.Context, forwarders []*Forwarder) error {
	var errs []error
	for _, f := range forwarders {
		if err := f.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}

