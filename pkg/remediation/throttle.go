package remediation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

// minRateDivisor bounds how far repeated throttle events can lower the limit
const minRateDivisor = 16

// Throttle is a process-wide request gate. Throttle events halve the rate,
// circuit-break events reject everything for the cooldown, and a started
// event or Reset restores the configured rate.
type Throttle struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	base      rate.Limit
	burst     int
	cooldown  time.Duration
	openUntil time.Time
	now       func() time.Time
}

// NewThrottle creates a gate allowing rps requests per second with burst
func NewThrottle(rps float64, burst int, circuitCooldown time.Duration) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		base:     rate.Limit(rps),
		burst:    burst,
		cooldown: circuitCooldown,
		now:      time.Now,
	}
}

// Handle implements monitor.Listener
func (t *Throttle) Handle(ctx context.Context, ev *monitor.Event) error {
	switch ev.Type {
	case monitor.EventThrottle:
		t.halve(ev)
	case monitor.EventCircuitBreak:
		t.open(ev)
	case monitor.EventStarted:
		t.Reset()
	}
	return nil
}

func (t *Throttle) halve(ev *monitor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.limiter.Limit()
	next := current / 2
	if floor := t.base / minRateDivisor; next < floor {
		next = floor
	}
	if next == current {
		return
	}
	t.limiter.SetLimitAt(t.now(), next)
	logger.Warn("Request rate lowered to %.2f/s after %s=%.2f", float64(next), ev.Metric, ev.Value)
}

func (t *Throttle) open(ev *monitor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openUntil = t.now().Add(t.cooldown)
	logger.Warn("Circuit opened for %s after %s=%.2f", t.cooldown, ev.Metric, ev.Value)
}

// Reset closes the circuit and restores the configured rate
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openUntil = time.Time{}
	t.limiter.SetLimitAt(t.now(), t.base)
}

// Allow reports whether one request may proceed now
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Before(t.openUntil) {
		return false
	}
	return t.limiter.AllowN(now, 1)
}

// Limit returns the current rate in requests per second
func (t *Throttle) Limit() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.limiter.Limit())
}

// Open reports whether the circuit is currently open
func (t *Throttle) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Before(t.openUntil)
}

// RetryAfter returns how long the circuit stays open, or zero
func (t *Throttle) RetryAfter() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d := t.openUntil.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}
