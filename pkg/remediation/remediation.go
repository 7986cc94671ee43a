// Package remediation turns monitor events into concrete effects: cache
// shedding and TTL tuning, heap release and request throttling.
package remediation

import (
	"fmt"
	"sync"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/config"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

// Config holds remediation tuning
type Config struct {
	// ShedFraction is the share of entries evicted on clear-old-cache
	ShedFraction float64

	// TTLFactor multiplies the default TTL on increase-ttl when the action
	// carries no "factor"
	TTLFactor float64
	MaxTTL    time.Duration

	RateLimitRPS    float64
	RateLimitBurst  int
	CircuitCooldown time.Duration

	// ActionCooldown suppresses repeats of the same action type
	ActionCooldown time.Duration
}

// DefaultConfig returns the defaults used by the application config
func DefaultConfig() Config {
	return Config{
		ShedFraction:    0.25,
		TTLFactor:       1.5,
		MaxTTL:          24 * time.Hour,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		CircuitCooldown: 30 * time.Second,
		ActionCooldown:  30 * time.Second,
	}
}

// FromConfig converts the application configuration section
func FromConfig(c config.RemediationConfig) Config {
	cfg := DefaultConfig()
	cfg.ShedFraction = c.ShedFraction
	cfg.TTLFactor = c.TTLFactor
	cfg.MaxTTL = c.MaxTTL
	cfg.RateLimitRPS = c.RateLimitRPS
	cfg.RateLimitBurst = c.RateLimitBurst
	cfg.CircuitCooldown = c.CircuitCooldown
	cfg.ActionCooldown = c.ActionCooldown
	return cfg
}

// Subscriber is the part of monitor.Engine listeners register with
type Subscriber interface {
	Subscribe(pattern string, l monitor.Listener) (monitor.SubscriptionID, error)
}

// Register subscribes every non-nil listener to the events it handles
func Register(sub Subscriber, shedder *CacheShedder, gc *GCTrigger, throttle *Throttle) error {
	type binding struct {
		pattern  string
		listener monitor.Listener
	}
	var bindings []binding
	if shedder != nil {
		bindings = append(bindings,
			binding{"optimize." + monitor.OptimizeClearOldCache, shedder},
			binding{"optimize." + monitor.OptimizeIncreaseTTL, shedder},
			binding{"optimize." + monitor.OptimizeWarmCache, shedder},
		)
	}
	if gc != nil {
		bindings = append(bindings, binding{"optimize." + monitor.OptimizeGarbageCollect, gc})
	}
	if throttle != nil {
		bindings = append(bindings,
			binding{string(monitor.EventThrottle), throttle},
			binding{string(monitor.EventCircuitBreak), throttle},
			binding{string(monitor.EventStarted), throttle},
		)
	}

	for _, b := range bindings {
		if _, err := sub.Subscribe(b.pattern, b.listener); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", b.pattern, err)
		}
	}
	return nil
}

// cooldown rate-limits repeated actions per key
type cooldown struct {
	mu     sync.Mutex
	period time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newCooldown(period time.Duration, now func() time.Time) *cooldown {
	return &cooldown{period: period, last: make(map[string]time.Time), now: now}
}

// allow reports whether key may run now and records the run
func (c *cooldown) allow(key string) bool {
	if c.period <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.period {
		return false
	}
	c.last[key] = now
	return true
}
