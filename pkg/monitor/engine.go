// Package monitor samples process resources and request/cache activity,
// keeps rolling statistics per metric, evaluates thresholds and dispatches
// optimization strategies as events.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/persistence"
	"github.com/bitechdev/EndpointKit/pkg/stats"
)

// maxTrackedEndpoints bounds per-endpoint statistics; further endpoints are
// folded into otherEndpoint
const (
	maxTrackedEndpoints = 1000
	otherEndpoint       = "(other)"
)

type requestCounters struct {
	total   int64
	success int64
	failure int64
}

type cacheCounters struct {
	hits      int64
	misses    int64
	evictions int64
}

type endpointStats struct {
	requests  int64
	failures  int64
	durations *stats.Window
}

// Engine is the metrics engine. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	sampler ResourceSampler
	adapter persistence.Adapter
	now     func() time.Time

	mu           sync.RWMutex
	windows      map[string]*stats.Window
	createdAt    time.Time
	requests     requestCounters
	cache        cacheCounters
	endpoints    map[string]*endpointStats
	lastResource ResourceSample
	lastLagMs    float64

	rulesMu    sync.RWMutex
	thresholds []Threshold
	strategies []Strategy

	subs *subscriptionManager

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// New creates an engine. The sampler defaults to the current process; when
// the process cannot be inspected only Go runtime figures are reported.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		now:       time.Now,
		windows:   make(map[string]*stats.Window),
		endpoints: make(map[string]*endpointStats),
		subs:      newSubscriptionManager(),
		timers:    make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.createdAt = e.now()

	if e.sampler == nil {
		ps, err := NewProcessSampler(context.Background())
		if err != nil {
			logger.Warn("Process sampling unavailable, reporting runtime figures only: %v", err)
			e.sampler = RuntimeSampler{}
		} else {
			e.sampler = ps
		}
	}

	if cfg.DefaultStrategies {
		for _, s := range DefaultStrategies() {
			if err := e.AddStrategy(s); err != nil {
				return nil, err
			}
		}
	}

	return e, nil
}

// Subscribe registers a listener for events whose type matches pattern.
// Listeners run synchronously on the emitting goroutine and must not block.
func (e *Engine) Subscribe(pattern string, l Listener) (SubscriptionID, error) {
	return e.subs.Subscribe(pattern, l)
}

// Unsubscribe removes a listener
func (e *Engine) Unsubscribe(id SubscriptionID) error {
	return e.subs.Unsubscribe(id)
}

// AddThreshold registers a threshold after validating it
func (e *Engine) AddThreshold(t Threshold) error {
	if err := t.validate(); err != nil {
		return err
	}
	t.Operator = t.Operator.normalize()

	e.rulesMu.Lock()
	e.thresholds = append(e.thresholds, t)
	e.rulesMu.Unlock()
	return nil
}

// Thresholds returns the registered thresholds
func (e *Engine) Thresholds() []Threshold {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return append([]Threshold(nil), e.thresholds...)
}

// AddStrategy registers a strategy. Strategies stay sorted by descending
// priority; equal priorities keep registration order.
func (e *Engine) AddStrategy(s Strategy) error {
	if err := s.validate(); err != nil {
		return err
	}
	s = s.clone()
	for i := range s.Conditions {
		s.Conditions[i].Operator = s.Conditions[i].Operator.normalize()
	}

	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()

	for _, existing := range e.strategies {
		if existing.Name == s.Name {
			return &ConfigError{Field: "Strategy.Name", Reason: fmt.Sprintf("%q is already registered", s.Name)}
		}
	}
	e.strategies = append(e.strategies, s)
	sort.SliceStable(e.strategies, func(i, j int) bool {
		return e.strategies[i].Priority > e.strategies[j].Priority
	})
	return nil
}

// SetStrategyEnabled toggles a strategy and reports whether it exists
func (e *Engine) SetStrategyEnabled(name string, enabled bool) bool {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()

	for i := range e.strategies {
		if e.strategies[i].Name == name {
			e.strategies[i].Enabled = enabled
			return true
		}
	}
	return false
}

// Strategies returns copies of the registered strategies in evaluation order
func (e *Engine) Strategies() []Strategy {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()

	out := make([]Strategy, len(e.strategies))
	for i, s := range e.strategies {
		out[i] = s.clone()
	}
	return out
}

// RecordRequest records one handled request. A negative responseSize means
// the size is unknown and is not recorded.
func (e *Engine) RecordRequest(duration time.Duration, success bool, responseSize int64) {
	e.recordRequest("", duration, success, responseSize)
}

// RecordEndpointRequest records a request and attributes it to endpoint for
// slow endpoint reporting
func (e *Engine) RecordEndpointRequest(endpoint string, duration time.Duration, success bool, responseSize int64) {
	e.recordRequest(endpoint, duration, success, responseSize)
}

func (e *Engine) recordRequest(endpoint string, duration time.Duration, success bool, responseSize int64) {
	ms := durationMs(duration)
	now := e.now()

	e.mu.Lock()
	e.windowLocked(MetricRequestDuration).Add(now, ms)
	if responseSize >= 0 {
		e.windowLocked(MetricResponseSize).Add(now, float64(responseSize))
	}
	e.requests.total++
	if success {
		e.requests.success++
	} else {
		e.requests.failure++
	}
	if endpoint != "" {
		ep := e.endpointLocked(endpoint)
		ep.requests++
		if !success {
			ep.failures++
		}
		ep.durations.Add(now, ms)
	}
	e.mu.Unlock()

	ctx := context.Background()
	e.checkThreshold(ctx, MetricRequestDuration, ms)
	if responseSize >= 0 {
		e.checkThreshold(ctx, MetricResponseSize, float64(responseSize))
	}
}

// RecordCacheAccess records one cache lookup. Once HitRateMinSamples lookups
// have been seen, the running hit rate is evaluated as cache.hitRate.
func (e *Engine) RecordCacheAccess(hit bool, lookup time.Duration) {
	now := e.now()

	e.mu.Lock()
	if hit {
		e.cache.hits++
	} else {
		e.cache.misses++
	}
	e.windowLocked(MetricCacheLookup).Add(now, durationMs(lookup))
	total := e.cache.hits + e.cache.misses
	rate := float64(e.cache.hits) / float64(total) * 100
	evaluate := total >= e.cfg.HitRateMinSamples
	if evaluate {
		e.windowLocked(MetricCacheHitRate).Add(now, rate)
	}
	e.mu.Unlock()

	if evaluate {
		e.checkThreshold(context.Background(), MetricCacheHitRate, rate)
	}
}

// RecordCacheEviction counts one cache eviction
func (e *Engine) RecordCacheEviction() {
	e.mu.Lock()
	e.cache.evictions++
	e.mu.Unlock()
}

// RecordMetric appends a value for an arbitrary metric and evaluates the
// thresholds and strategies that reference it
func (e *Engine) RecordMetric(ctx context.Context, metric string, value float64) {
	e.mu.Lock()
	e.windowLocked(metric).Add(e.now(), value)
	e.mu.Unlock()

	e.checkThreshold(ctx, metric, value)
}

// SampleResources takes one resource sample, records it and evaluates the
// built-in limits, thresholds and strategies
func (e *Engine) SampleResources(ctx context.Context) error {
	return e.collect(ctx, nil)
}

// History returns the samples held for metric, oldest first
func (e *Engine) History(metric string) []stats.Sample {
	e.mu.RLock()
	defer e.mu.RUnlock()

	w, ok := e.windows[metric]
	if !ok {
		return nil
	}
	return w.Samples()
}

// Start launches the sampler. The sampler keeps ctx values but not its
// cancellation; only Stop ends it. Calling Start on a running or disabled
// engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return nil
	}
	if !e.cfg.Enabled {
		e.runMu.Unlock()
		logger.Info("Resource monitoring is disabled")
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.run(context.WithoutCancel(ctx), e.stopCh)
	e.runMu.Unlock()

	logger.Info("Resource monitoring started (interval %s, history %d)", e.cfg.SamplingInterval, e.cfg.HistorySize)
	e.emit(ctx, newEvent(EventStarted, "", 0, e.now()))
	return nil
}

// Stop halts the sampler and cancels delayed actions that have not fired.
// Calling Stop on a stopped engine only cancels pending actions.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		e.cancelPending()
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.cancelPending()
		logger.Warn("Resource monitoring stop timed out")
		return ctx.Err()
	}

	e.cancelPending()
	logger.Info("Resource monitoring stopped")
	e.emit(ctx, newEvent(EventStopped, "", 0, e.now()))
	return nil
}

// Running reports whether the sampler is active
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

func (e *Engine) run(ctx context.Context, stopCh chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SamplingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case tick := <-ticker.C:
			// Delay between the tick firing and this goroutine running it
			lag := durationMs(time.Since(tick))
			e.tick(ctx, lag)
		}
	}
}

func (e *Engine) tick(ctx context.Context, lagMs float64) {
	defer logger.CatchPanic("monitor.tick")

	if err := e.collect(ctx, &lagMs); err != nil {
		logger.Debug("Resource sample incomplete: %v", err)
	}
}

type metricValue struct {
	metric string
	value  float64
	limit  float64
}

func (e *Engine) collect(ctx context.Context, lagMs *float64) error {
	sample, err := e.sampler.Sample(ctx)
	now := e.now()

	values := []metricValue{
		{MetricCPU, sample.CPU, e.cfg.Thresholds.CPU},
		{MetricMemory, sample.Memory, e.cfg.Thresholds.Memory},
		{MetricHeap, sample.Heap, e.cfg.Thresholds.Heap},
	}
	if lagMs != nil {
		values = append(values, metricValue{MetricEventLoop, *lagMs, e.cfg.Thresholds.EventLoop})
	}

	e.mu.Lock()
	for _, mv := range values {
		e.windowLocked(mv.metric).Add(now, mv.value)
	}
	e.lastResource = sample
	if lagMs != nil {
		e.lastLagMs = *lagMs
	}
	e.mu.Unlock()

	for _, mv := range values {
		if mv.limit > 0 && mv.value > mv.limit {
			e.raiseAlert(ctx, mv.metric, mv.value, mv.limit)
		}
		e.checkThreshold(ctx, mv.metric, mv.value)
	}
	return err
}

// checkThreshold dispatches every matching threshold for metric, then runs
// the enabled strategies that reference it
func (e *Engine) checkThreshold(ctx context.Context, metric string, value float64) {
	e.rulesMu.RLock()
	var thresholds []Threshold
	for _, t := range e.thresholds {
		if t.Metric == metric {
			thresholds = append(thresholds, t)
		}
	}
	var strategies []Strategy
	for _, s := range e.strategies {
		if s.Enabled && s.references(metric) {
			strategies = append(strategies, s)
		}
	}
	e.rulesMu.RUnlock()

	for _, t := range thresholds {
		if !t.Operator.Compare(value, t.Value) {
			continue
		}
		switch t.Action {
		case ActionAlert:
			e.raiseAlert(ctx, metric, value, t.Value)
		case ActionWarn:
			e.emitThreshold(ctx, EventWarning, metric, value, t.Value)
		case ActionError:
			e.emitThreshold(ctx, EventError, metric, value, t.Value)
		case ActionThrottle:
			e.emitThreshold(ctx, EventThrottle, metric, value, t.Value)
		case ActionCircuitBreak:
			e.emitThreshold(ctx, EventCircuitBreak, metric, value, t.Value)
		}
	}

	for _, s := range strategies {
		if s.holds(metric, value) {
			e.executeStrategy(ctx, s, metric, value)
		}
	}
}

func (e *Engine) emitThreshold(ctx context.Context, t EventType, metric string, value, limit float64) {
	ev := newEvent(t, metric, value, e.now())
	ev.Threshold = limit
	e.emit(ctx, ev)
}

func (e *Engine) raiseAlert(ctx context.Context, metric string, value, limit float64) {
	logger.Warn("Monitor alert: %s=%.2f crossed %.2f", metric, value, limit)
	if e.cfg.OnAlert != nil {
		e.callOnAlert(metric, value, limit)
	}
	e.emitThreshold(ctx, EventAlert, metric, value, limit)
}

func (e *Engine) callOnAlert(metric string, value, limit float64) {
	defer logger.CatchPanic("monitor.OnAlert")
	e.cfg.OnAlert(metric, value, limit)
}

// executeStrategy raises one optimize event per action, each after its own delay
func (e *Engine) executeStrategy(ctx context.Context, s Strategy, metric string, value float64) {
	logger.Info("Optimization strategy %s triggered by %s=%.2f", s.Name, metric, value)

	for _, a := range s.Actions {
		ev := newEvent(EventOptimize, metric, value, e.now())
		ev.Strategy = s.Name
		ev.ActionType = a.Type
		ev.ActionConfig = cloneConfig(a.Config)

		if a.Delay <= 0 {
			e.emit(ctx, ev)
			continue
		}
		e.schedule(a.Delay, ev)
	}
}

func (e *Engine) schedule(delay time.Duration, ev *Event) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		e.timersMu.Lock()
		_, pending := e.timers[t]
		delete(e.timers, t)
		e.timersMu.Unlock()

		if !pending {
			return
		}
		ev.Timestamp = e.now()
		e.emit(context.Background(), ev)
	})
	e.timers[t] = struct{}{}
}

// PendingActions returns the number of delayed actions not yet emitted
func (e *Engine) PendingActions() int {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	return len(e.timers)
}

func (e *Engine) cancelPending() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	for t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[*time.Timer]struct{})
}

// emit delivers ev to every matching listener in subscription order
func (e *Engine) emit(ctx context.Context, ev *Event) {
	for _, l := range e.subs.matching(ev) {
		e.deliver(ctx, l, ev)
	}
}

func (e *Engine) deliver(ctx context.Context, l Listener, ev *Event) {
	defer logger.CatchPanic("monitor.listener")

	if err := l.Handle(ctx, ev); err != nil {
		logger.Warn("Monitor listener failed on %s event: %v", ev.Type, err)
	}
}

func (e *Engine) windowLocked(metric string) *stats.Window {
	w, ok := e.windows[metric]
	if !ok {
		w = stats.NewWindow(e.cfg.HistorySize)
		e.windows[metric] = w
	}
	return w
}

func (e *Engine) endpointLocked(endpoint string) *endpointStats {
	ep, ok := e.endpoints[endpoint]
	if ok {
		return ep
	}
	if len(e.endpoints) >= maxTrackedEndpoints {
		endpoint = otherEndpoint
		if ep, ok = e.endpoints[endpoint]; ok {
			return ep
		}
	}
	ep = &endpointStats{durations: stats.NewWindow(e.cfg.HistorySize)}
	e.endpoints[endpoint] = ep
	return ep
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
