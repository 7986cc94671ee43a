package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	mu     sync.Mutex
	sample ResourceSample
	err    error
}

func (f *fakeSampler) Sample(ctx context.Context) (ResourceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, f.err
}

func (f *fakeSampler) set(s ResourceSample) {
	f.mu.Lock()
	f.sample = s
	f.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type collector struct {
	mu     sync.Mutex
	events []*Event
}

func (c *collector) Handle(ctx context.Context, ev *Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *collector) all() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

func (c *collector) ofType(t EventType) []*Event {
	var out []*Event
	for _, ev := range c.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// quietConfig disables built-in limits and strategies so tests only see
// what they register themselves
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Thresholds = ResourceThresholds{}
	cfg.DefaultStrategies = false
	cfg.SamplingInterval = 10 * time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, sampler *fakeSampler, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithSampler(sampler)}, opts...)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e
}

func TestStrategyFiresOnceWhenConditionHolds(t *testing.T) {
	sampler := &fakeSampler{}
	e := newTestEngine(t, quietConfig(), sampler)

	require.NoError(t, e.AddStrategy(Strategy{
		Name:       "memory-pressure",
		Enabled:    true,
		Conditions: []Condition{{Metric: MetricMemory, Operator: OpGreater, Value: 80}},
		Actions:    []Action{{Type: OptimizeClearOldCache, Config: map[string]any{"maxAge": "1h"}}},
	}))

	events := &collector{}
	_, err := e.Subscribe("optimize", events)
	require.NoError(t, err)

	sampler.set(ResourceSample{Memory: 85})
	require.NoError(t, e.SampleResources(context.Background()))

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, EventOptimize, got[0].Type)
	assert.Equal(t, "memory-pressure", got[0].Strategy)
	assert.Equal(t, OptimizeClearOldCache, got[0].ActionType)
	assert.Equal(t, MetricMemory, got[0].Metric)
	assert.Equal(t, 85.0, got[0].Value)
	assert.Equal(t, "1h", got[0].ActionConfig["maxAge"])

	sampler.set(ResourceSample{Memory: 60})
	require.NoError(t, e.SampleResources(context.Background()))
	assert.Len(t, events.all(), 1)
}

func TestDisabledStrategyDoesNotFire(t *testing.T) {
	sampler := &fakeSampler{sample: ResourceSample{Memory: 95}}
	cfg := quietConfig()
	cfg.DefaultStrategies = true
	e := newTestEngine(t, cfg, sampler)

	require.True(t, e.SetStrategyEnabled("high-memory", false))
	assert.False(t, e.SetStrategyEnabled("missing", false))

	events := &collector{}
	_, err := e.Subscribe("optimize.*", events)
	require.NoError(t, err)

	require.NoError(t, e.SampleResources(context.Background()))
	assert.Empty(t, events.all())
}

func TestDefaultStrategiesRegistered(t *testing.T) {
	cfg := quietConfig()
	cfg.DefaultStrategies = true
	e := newTestEngine(t, cfg, &fakeSampler{})

	names := make([]string, 0)
	for _, s := range e.Strategies() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"high-memory", "high-latency", "low-hit-rate"}, names)
}

func TestStrategyPriorityOrder(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	cond := []Condition{{Metric: "queue.depth", Operator: OpGreaterEqual, Value: 10}}
	for _, s := range []Strategy{
		{Name: "low", Priority: 1},
		{Name: "high-a", Priority: 5},
		{Name: "mid", Priority: 3},
		{Name: "high-b", Priority: 5},
	} {
		s.Enabled = true
		s.Conditions = cond
		s.Actions = []Action{{Type: s.Name}}
		require.NoError(t, e.AddStrategy(s))
	}

	events := &collector{}
	_, err := e.Subscribe("optimize", events)
	require.NoError(t, err)

	e.RecordMetric(context.Background(), "queue.depth", 10)

	var order []string
	for _, ev := range events.all() {
		order = append(order, ev.Strategy)
	}
	assert.Equal(t, []string{"high-a", "high-b", "mid", "low"}, order)
}

func TestAddStrategyRejectsDuplicatesAndInvalid(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	valid := Strategy{
		Name:       "s",
		Enabled:    true,
		Conditions: []Condition{{Metric: MetricCPU, Operator: OpGreater, Value: 1}},
		Actions:    []Action{{Type: OptimizeGarbageCollect}},
	}
	require.NoError(t, e.AddStrategy(valid))

	var cfgErr *ConfigError
	assert.ErrorAs(t, e.AddStrategy(valid), &cfgErr)

	tests := []struct {
		name   string
		mutate func(s *Strategy)
	}{
		{"empty name", func(s *Strategy) { s.Name = "" }},
		{"no conditions", func(s *Strategy) { s.Conditions = nil }},
		{"no actions", func(s *Strategy) { s.Actions = nil }},
		{"bad operator", func(s *Strategy) { s.Conditions = []Condition{{Metric: MetricCPU, Operator: "~", Value: 1}} }},
		{"negative delay", func(s *Strategy) { s.Actions = []Action{{Type: "x", Delay: -time.Second}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid.clone()
			s.Name = "other"
			tt.mutate(&s)
			err := e.AddStrategy(s)
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestStrategyIsolatedFromCallerMutation(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	cfg := map[string]any{"factor": 2.0}
	s := Strategy{
		Name:       "ttl",
		Enabled:    true,
		Conditions: []Condition{{Metric: MetricCacheHitRate, Operator: OpLess, Value: 50}},
		Actions:    []Action{{Type: OptimizeIncreaseTTL, Config: cfg}},
	}
	require.NoError(t, e.AddStrategy(s))
	cfg["factor"] = 9.0
	s.Conditions[0].Value = 99

	got := e.Strategies()
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Actions[0].Config["factor"])
	assert.Equal(t, 50.0, got[0].Conditions[0].Value)
}

func TestThresholdActions(t *testing.T) {
	tests := []struct {
		action ThresholdAction
		want   EventType
	}{
		{ActionWarn, EventWarning},
		{ActionError, EventError},
		{ActionAlert, EventAlert},
		{ActionThrottle, EventThrottle},
		{ActionCircuitBreak, EventCircuitBreak},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			e := newTestEngine(t, quietConfig(), &fakeSampler{})
			require.NoError(t, e.AddThreshold(Threshold{
				Metric:   MetricRequestDuration,
				Operator: ">",
				Value:    500,
				Action:   tt.action,
			}))

			events := &collector{}
			_, err := e.Subscribe("*", events)
			require.NoError(t, err)

			e.RecordRequest(100*time.Millisecond, true, 10)
			assert.Empty(t, events.all())

			e.RecordRequest(800*time.Millisecond, true, 10)
			got := events.all()
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Type)
			assert.Equal(t, MetricRequestDuration, got[0].Metric)
			assert.Equal(t, 800.0, got[0].Value)
			assert.Equal(t, 500.0, got[0].Threshold)
		})
	}
}

func TestThresholdOperatorAliases(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})
	require.NoError(t, e.AddThreshold(Threshold{Metric: "m", Operator: "≥", Value: 5, Action: ActionWarn}))
	assert.Equal(t, OpGreaterEqual, e.Thresholds()[0].Operator)

	var cfgErr *ConfigError
	assert.ErrorAs(t, e.AddThreshold(Threshold{Metric: "m", Operator: "=>", Value: 5, Action: ActionWarn}), &cfgErr)
	assert.ErrorAs(t, e.AddThreshold(Threshold{Metric: "m", Operator: ">", Value: 5, Action: "page"}), &cfgErr)
	assert.ErrorAs(t, e.AddThreshold(Threshold{Operator: ">", Value: 5, Action: ActionWarn}), &cfgErr)
}

func TestOperatorCompare(t *testing.T) {
	tests := []struct {
		op    Operator
		value float64
		want  bool
	}{
		{">", 6, true},
		{">", 5, false},
		{">=", 5, true},
		{"<", 4, true},
		{"<=", 5, true},
		{"==", 5, true},
		{"=", 5, true},
		{"!=", 5, false},
		{"<>", 4, true},
		{"≤", 6, false},
		{"bogus", 5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.Compare(tt.value, 5), "%s %v", tt.op, tt.value)
	}
}

func TestResourceLimitsRaiseAlerts(t *testing.T) {
	sampler := &fakeSampler{sample: ResourceSample{CPU: 95, Memory: 50, Heap: 91}}
	cfg := quietConfig()
	cfg.Thresholds = ResourceThresholds{CPU: 80, Memory: 85, Heap: 90}

	var mu sync.Mutex
	var alerted []string
	cfg.OnAlert = func(metric string, value, threshold float64) {
		mu.Lock()
		alerted = append(alerted, metric)
		mu.Unlock()
	}
	e := newTestEngine(t, cfg, sampler)

	events := &collector{}
	_, err := e.Subscribe("alert", events)
	require.NoError(t, err)

	require.NoError(t, e.SampleResources(context.Background()))

	mu.Lock()
	assert.Equal(t, []string{MetricCPU, MetricHeap}, alerted)
	mu.Unlock()
	require.Len(t, events.all(), 2)
	assert.Equal(t, 80.0, events.all()[0].Threshold)
}

func TestPanickingListenersAndAlertHandler(t *testing.T) {
	sampler := &fakeSampler{sample: ResourceSample{CPU: 99}}
	cfg := quietConfig()
	cfg.Thresholds.CPU = 50
	cfg.OnAlert = func(string, float64, float64) { panic("alert handler") }
	e := newTestEngine(t, cfg, sampler)

	_, err := e.Subscribe("*", ListenerFunc(func(ctx context.Context, ev *Event) error {
		panic("listener")
	}))
	require.NoError(t, err)
	_, err = e.Subscribe("*", ListenerFunc(func(ctx context.Context, ev *Event) error {
		return errors.New("listener failed")
	}))
	require.NoError(t, err)

	events := &collector{}
	_, err = e.Subscribe("alert", events)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		require.NoError(t, e.SampleResources(context.Background()))
	})
	assert.Len(t, events.all(), 1)
}

func TestSubscriptionPatterns(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "alert", true},
		{"alert", "alert", true},
		{"alert", "warning", false},
		{"optimize.*", "optimize.garbage-collect", true},
		{"optimize.*", "optimize", false},
		{"optimize.warm-cache", "optimize.garbage-collect", false},
		{"*.warm-cache", "optimize.warm-cache", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.key), "%s vs %s", tt.pattern, tt.key)
	}

	ev := &Event{Type: EventOptimize, ActionType: OptimizeGarbageCollect}
	assert.Equal(t, "optimize.garbage-collect", routingKey(ev))
	assert.Equal(t, "alert", routingKey(&Event{Type: EventAlert}))
}

func TestSubscribeOrderAndUnsubscribe(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	var mu sync.Mutex
	var order []int
	listener := func(n int) Listener {
		return ListenerFunc(func(ctx context.Context, ev *Event) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		})
	}

	ids := make([]SubscriptionID, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := e.Subscribe("warning", listener(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, e.Unsubscribe(ids[2]))
	assert.Error(t, e.Unsubscribe(ids[2]))

	_, err := e.Subscribe("", listener(9))
	assert.Error(t, err)
	_, err = e.Subscribe("warning", nil)
	assert.Error(t, err)

	require.NoError(t, e.AddThreshold(Threshold{Metric: "m", Operator: ">", Value: 0, Action: ActionWarn}))
	e.RecordMetric(context.Background(), "m", 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 3, 4}, order)
}

func TestDelayedActionsCancelledOnStop(t *testing.T) {
	sampler := &fakeSampler{}
	cfg := quietConfig()
	cfg.SamplingInterval = time.Hour
	e := newTestEngine(t, cfg, sampler)

	require.NoError(t, e.AddStrategy(Strategy{
		Name:       "later",
		Enabled:    true,
		Conditions: []Condition{{Metric: MetricMemory, Operator: OpGreater, Value: 50}},
		Actions: []Action{
			{Type: OptimizeGarbageCollect},
			{Type: OptimizeClearOldCache, Delay: time.Hour},
		},
	}))

	events := &collector{}
	_, err := e.Subscribe("optimize.*", events)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	sampler.set(ResourceSample{Memory: 70})
	require.NoError(t, e.SampleResources(context.Background()))

	assert.Len(t, events.all(), 1)
	assert.GreaterOrEqual(t, e.PendingActions(), 1)

	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, 0, e.PendingActions())
}

func TestDelayedActionFires(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	require.NoError(t, e.AddStrategy(Strategy{
		Name:       "soon",
		Enabled:    true,
		Conditions: []Condition{{Metric: "m", Operator: OpGreater, Value: 0}},
		Actions:    []Action{{Type: OptimizeWarmCache, Delay: 20 * time.Millisecond}},
	}))

	events := &collector{}
	_, err := e.Subscribe("optimize.warm-cache", events)
	require.NoError(t, err)

	e.RecordMetric(context.Background(), "m", 1)
	assert.Empty(t, events.all())
	assert.Eventually(t, func() bool { return len(events.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, e.PendingActions())
}

func TestStartStopIdempotent(t *testing.T) {
	sampler := &fakeSampler{sample: ResourceSample{CPU: 10, Memory: 20, Heap: 30}}
	e := newTestEngine(t, quietConfig(), sampler)

	events := &collector{}
	_, err := e.Subscribe("*", events)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.Running())

	assert.Eventually(t, func() bool { return len(e.History(MetricCPU)) >= 2 }, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, e.History(MetricEventLoop))

	require.NoError(t, e.Stop(context.Background()))
	require.NoError(t, e.Stop(context.Background()))
	assert.False(t, e.Running())

	assert.Len(t, events.ofType(EventStarted), 1)
	assert.Len(t, events.ofType(EventStopped), 1)

	// Restart after stop
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop(context.Background()))
	assert.Len(t, events.ofType(EventStarted), 2)
}

func TestSamplerOutlivesStartContext(t *testing.T) {
	sampler := &fakeSampler{sample: ResourceSample{CPU: 10}}
	e := newTestEngine(t, quietConfig(), sampler)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Start(ctx))
	<-ctx.Done()

	before := len(e.History(MetricCPU))
	assert.Eventually(t, func() bool { return len(e.History(MetricCPU)) > before+2 }, time.Second, 5*time.Millisecond,
		"sampling must continue after the start context expires")
	assert.True(t, e.Running())

	require.NoError(t, e.Stop(context.Background()))
	assert.False(t, e.Running())
}

func TestStartWithCancelledContext(t *testing.T) {
	sampler := &fakeSampler{sample: ResourceSample{Memory: 20}}
	e := newTestEngine(t, quietConfig(), sampler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Start(ctx))

	assert.Eventually(t, func() bool { return len(e.History(MetricMemory)) >= 2 }, time.Second, 5*time.Millisecond)

	// Stop then restart with a live context resumes sampling
	require.NoError(t, e.Stop(context.Background()))
	stopped := len(e.History(MetricMemory))
	require.NoError(t, e.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(e.History(MetricMemory)) > stopped }, time.Second, 5*time.Millisecond)
}

func TestDisabledEngineDoesNotStart(t *testing.T) {
	cfg := quietConfig()
	cfg.Enabled = false
	e := newTestEngine(t, cfg, &fakeSampler{})

	events := &collector{}
	_, err := e.Subscribe("*", events)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	assert.False(t, e.Running())
	assert.Empty(t, events.all())
}

func TestHistoryBoundedByHistorySize(t *testing.T) {
	cfg := quietConfig()
	cfg.HistorySize = 3
	e := newTestEngine(t, cfg, &fakeSampler{})

	for i := 1; i <= 5; i++ {
		e.RecordMetric(context.Background(), "m", float64(i))
	}
	history := e.History("m")
	require.Len(t, history, 3)
	assert.Equal(t, 3.0, history[0].Value)
	assert.Equal(t, 5.0, history[2].Value)
	assert.Nil(t, e.History("unknown"))
}

func TestHitRateEvaluatedAfterMinSamples(t *testing.T) {
	cfg := quietConfig()
	cfg.HitRateMinSamples = 4
	e := newTestEngine(t, cfg, &fakeSampler{})

	require.NoError(t, e.AddThreshold(Threshold{Metric: MetricCacheHitRate, Operator: "<", Value: 50, Action: ActionWarn}))
	events := &collector{}
	_, err := e.Subscribe("warning", events)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e.RecordCacheAccess(false, time.Millisecond)
	}
	assert.Empty(t, events.all())
	assert.Empty(t, e.History(MetricCacheHitRate))

	e.RecordCacheAccess(true, time.Millisecond)
	require.Len(t, events.all(), 1)
	assert.Equal(t, 25.0, events.all()[0].Value)
	assert.Len(t, e.History(MetricCacheLookup), 4)
}

func TestNegativeResponseSizeNotRecorded(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	e.RecordRequest(10*time.Millisecond, true, -1)
	e.RecordRequest(10*time.Millisecond, true, 512)

	assert.Len(t, e.History(MetricRequestDuration), 2)
	require.Len(t, e.History(MetricResponseSize), 1)
	assert.Equal(t, 512.0, e.History(MetricResponseSize)[0].Value)
}

func TestEndpointTrackingBounded(t *testing.T) {
	e := newTestEngine(t, quietConfig(), &fakeSampler{})

	for i := 0; i < maxTrackedEndpoints+5; i++ {
		e.RecordEndpointRequest(fmt.Sprintf("/items/%d", i), time.Millisecond, true, 0)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.endpoints, maxTrackedEndpoints+1)
	assert.Equal(t, int64(5), e.endpoints[otherEndpoint].requests)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero interval", func(c *Config) { c.SamplingInterval = 0 }},
		{"zero history", func(c *Config) { c.HistorySize = 0 }},
		{"negative limit", func(c *Config) { c.Thresholds.CPU = -1 }},
		{"negative hit rate samples", func(c *Config) { c.HitRateMinSamples = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, WithSampler(&fakeSampler{}))
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}

	_, err := New(DefaultConfig(), WithSampler(&fakeSampler{}))
	assert.NoError(t, err)
}

func TestRuntimeSampler(t *testing.T) {
	s, err := RuntimeSampler{}.Sample(context.Background())
	require.NoError(t, err)
	assert.Greater(t, s.HeapSys, uint64(0))
	assert.Greater(t, s.Goroutines, 0)
	assert.GreaterOrEqual(t, s.Heap, 0.0)
	assert.LessOrEqual(t, s.Heap, 100.0)
}

func TestProcessSamplerPeekSkipsCPU(t *testing.T) {
	s, err := NewProcessSampler(context.Background())
	if err != nil {
		t.Skipf("process inspection unavailable: %v", err)
	}

	peek, err := s.Peek(context.Background())
	if err != nil {
		t.Skipf("process inspection unavailable: %v", err)
	}
	assert.Equal(t, 0.0, peek.CPU)
	assert.Greater(t, peek.RSS, uint64(0))
	assert.Greater(t, peek.HeapSys, uint64(0))
}
