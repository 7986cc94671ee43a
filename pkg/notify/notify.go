// Package notify forwards monitor events to message brokers so other
// services can react to alerts and optimizations.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

var (
	ErrStopped   = errors.New("notify: forwarder is stopped")
	ErrQueueFull = errors.New("notify: queue is full")
)

// Publisher delivers one encoded event
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
	Close() error
}

// ForwarderConfig sizes the publishing queue
type ForwarderConfig struct {
	Workers    int
	BufferSize int
}

// DefaultForwarderConfig returns a single worker with a small buffer
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{Workers: 1, BufferSize: 256}
}

// Stats counts forwarded events
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Forwarder is a monitor.Listener that publishes events asynchronously.
// Handle never blocks: events arriving while the queue is full are dropped
// and counted.
type Forwarder struct {
	name string
	pub  Publisher
	pool *workerPool

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewForwarder creates a started forwarder publishing through pub
func NewForwarder(name string, pub Publisher, cfg ForwarderConfig) *Forwarder {
	f := &Forwarder{name: name, pub: pub}
	f.pool = newWorkerPool(cfg.Workers, cfg.BufferSize, f.publish)
	f.pool.Start()
	return f
}

// Name identifies the forwarder in logs
func (f *Forwarder) Name() string {
	return f.name
}

// Handle implements monitor.Listener
func (f *Forwarder) Handle(ctx context.Context, ev *monitor.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}

	err = f.pool.Submit(&message{id: ev.ID, eventType: string(ev.Type), payload: payload})
	if errors.Is(err, ErrQueueFull) {
		f.dropped.Add(1)
		logger.Debug("Dropping %s event %s, %s queue is full", ev.Type, ev.ID, f.name)
		return nil
	}
	return err
}

func (f *Forwarder) publish(ctx context.Context, msg *message) error {
	if err := f.pub.Publish(ctx, msg.eventType, msg.payload); err != nil {
		f.failed.Add(1)
		return err
	}
	f.published.Add(1)
	return nil
}

// Stats returns the forwarding counters
func (f *Forwarder) Stats() Stats {
	return Stats{
		Published: f.published.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
	}
}

// Close drains queued events and closes the publisher
func (f *Forwarder) Close(ctx context.Context) error {
	stopErr := f.pool.Stop(ctx)
	return errors.Join(stopErr, f.pub.Close())
}
