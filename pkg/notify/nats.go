package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS publisher
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g., "endpointkit.events"
	Name          string
}

// NATSPublisher publishes each event on "<prefix>.<type>"
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "endpointkit.events"
	}
	if cfg.Name == "" {
		cfg.Name = "endpointkit-notify"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, subjectPrefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(eventType string) string {
	return p.subjectPrefix + "." + eventType
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	if err := p.nc.Publish(p.Subject(eventType), payload); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
