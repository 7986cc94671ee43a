package remediation

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

// GCTrigger forces a collection and returns freed memory to the OS on
// garbage-collect actions
type GCTrigger struct {
	cooldown *cooldown
	free     func()
}

// NewGCTrigger creates a trigger that runs at most once per cooldown
func NewGCTrigger(cooldownPeriod time.Duration) *GCTrigger {
	return &GCTrigger{
		cooldown: newCooldown(cooldownPeriod, time.Now),
		free:     debug.FreeOSMemory,
	}
}

// Handle implements monitor.Listener
func (g *GCTrigger) Handle(ctx context.Context, ev *monitor.Event) error {
	if ev.Type != monitor.EventOptimize || ev.ActionType != monitor.OptimizeGarbageCollect {
		return nil
	}
	if !g.cooldown.allow(ev.ActionType) {
		return nil
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	g.free()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	logger.Info("Garbage collection forced by %s: heap %d -> %d bytes", ev.Strategy, before.HeapAlloc, after.HeapAlloc)
	return nil
}
