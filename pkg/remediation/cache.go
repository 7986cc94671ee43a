package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/cache"
	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

// CacheTarget is the part of cache.Store the shedder acts on
type CacheTarget interface {
	EvictExpired(ctx context.Context) int
	EvictOlderThan(ctx context.Context, age time.Duration) int
	Shed(ctx context.Context, fraction float64) int
	DefaultTTL() time.Duration
	SetDefaultTTL(ttl time.Duration)
	WarmUp(ctx context.Context, items []cache.WarmUpItem) error
}

// WarmLoader supplies the items preloaded on warm-cache
type WarmLoader func(ctx context.Context) ([]cache.WarmUpItem, error)

// CacheShedder handles the cache related optimize actions
type CacheShedder struct {
	target   CacheTarget
	cfg      Config
	loader   WarmLoader
	cooldown *cooldown
}

// ShedderOption configures a CacheShedder
type ShedderOption func(*CacheShedder)

// WithWarmLoader sets the loader used on warm-cache. Without one the action
// is ignored.
func WithWarmLoader(l WarmLoader) ShedderOption {
	return func(s *CacheShedder) {
		s.loader = l
	}
}

// WithShedderClock replaces time.Now for the action cooldown
func WithShedderClock(now func() time.Time) ShedderOption {
	return func(s *CacheShedder) {
		s.cooldown.now = now
	}
}

// NewCacheShedder creates a shedder acting on target
func NewCacheShedder(target CacheTarget, cfg Config, opts ...ShedderOption) *CacheShedder {
	s := &CacheShedder{
		target:   target,
		cfg:      cfg,
		cooldown: newCooldown(cfg.ActionCooldown, time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle implements monitor.Listener
func (s *CacheShedder) Handle(ctx context.Context, ev *monitor.Event) error {
	if ev.Type != monitor.EventOptimize {
		return nil
	}
	switch ev.ActionType {
	case monitor.OptimizeClearOldCache, monitor.OptimizeIncreaseTTL, monitor.OptimizeWarmCache:
	default:
		return nil
	}
	if !s.cooldown.allow(ev.ActionType) {
		logger.Debug("Skipping %s, still cooling down", ev.ActionType)
		return nil
	}

	switch ev.ActionType {
	case monitor.OptimizeClearOldCache:
		return s.clearOld(ctx, ev)
	case monitor.OptimizeIncreaseTTL:
		return s.increaseTTL(ev)
	default:
		return s.warm(ctx)
	}
}

func (s *CacheShedder) clearOld(ctx context.Context, ev *monitor.Event) error {
	expired := s.target.EvictExpired(ctx)

	stale := 0
	if raw, ok := ev.ActionConfig["maxAge"]; ok {
		age, err := durationValue(raw)
		if err != nil {
			return fmt.Errorf("invalid maxAge for %s: %w", ev.ActionType, err)
		}
		if age > 0 {
			stale = s.target.EvictOlderThan(ctx, age)
		}
	}

	shed := s.target.Shed(ctx, s.cfg.ShedFraction)
	logger.Info("Cache cleanup after %s=%.2f: %d expired, %d stale, %d shed", ev.Metric, ev.Value, expired, stale, shed)
	return nil
}

func (s *CacheShedder) increaseTTL(ev *monitor.Event) error {
	current := s.target.DefaultTTL()
	if current <= 0 {
		// Entries already never expire
		return nil
	}

	factor := s.cfg.TTLFactor
	if raw, ok := ev.ActionConfig["factor"]; ok {
		f, err := floatValue(raw)
		if err != nil {
			return fmt.Errorf("invalid factor for %s: %w", ev.ActionType, err)
		}
		factor = f
	}
	if factor <= 1 {
		return nil
	}

	next := time.Duration(float64(current) * factor)
	if s.cfg.MaxTTL > 0 && next > s.cfg.MaxTTL {
		next = s.cfg.MaxTTL
	}
	if next == current {
		return nil
	}
	s.target.SetDefaultTTL(next)
	logger.Info("Default cache TTL raised from %s to %s", current, next)
	return nil
}

func (s *CacheShedder) warm(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	items, err := s.loader(ctx)
	if err != nil {
		return fmt.Errorf("failed to load warm-up items: %w", err)
	}
	if err := s.target.WarmUp(ctx, items); err != nil {
		return err
	}
	logger.Info("Cache warmed with %d items", len(items))
	return nil
}

func durationValue(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case string:
		return time.ParseDuration(t)
	case int:
		return time.Duration(t) * time.Millisecond, nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func floatValue(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
