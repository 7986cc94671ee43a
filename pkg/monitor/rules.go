package monitor

import (
	"time"
)

// Metric names recorded by the engine
const (
	MetricCPU             = "cpu"
	MetricMemory          = "memory"
	MetricHeap            = "heap"
	MetricEventLoop       = "eventLoop"
	MetricRequestDuration = "request.duration"
	MetricResponseSize    = "response.size"
	MetricCacheHitRate    = "cache.hitRate"
	MetricCacheLookup     = "cache.lookupTime"
)

// Operator compares a metric value against a limit
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// normalize maps accepted aliases onto the canonical operators
func (o Operator) normalize() Operator {
	switch o {
	case "=":
		return OpEqual
	case "≥":
		return OpGreaterEqual
	case "≤":
		return OpLessEqual
	case "≠", "<>":
		return OpNotEqual
	}
	return o
}

func (o Operator) valid() bool {
	switch o.normalize() {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Compare reports whether "value op limit" holds
func (o Operator) Compare(value, limit float64) bool {
	switch o.normalize() {
	case OpGreater:
		return value > limit
	case OpGreaterEqual:
		return value >= limit
	case OpLess:
		return value < limit
	case OpLessEqual:
		return value <= limit
	case OpEqual:
		return value == limit
	case OpNotEqual:
		return value != limit
	}
	return false
}

// ThresholdAction is what a satisfied threshold triggers
type ThresholdAction string

const (
	ActionWarn         ThresholdAction = "warn"
	ActionError        ThresholdAction = "error"
	ActionAlert        ThresholdAction = "alert"
	ActionThrottle     ThresholdAction = "throttle"
	ActionCircuitBreak ThresholdAction = "circuit-break"
)

// Threshold raises an event when a metric satisfies the comparison
type Threshold struct {
	Metric   string          `json:"metric"`
	Operator Operator        `json:"operator"`
	Value    float64         `json:"value"`
	Action   ThresholdAction `json:"action"`
}

func (t Threshold) validate() error {
	if t.Metric == "" {
		return &ConfigError{Field: "Threshold.Metric", Reason: "must not be empty"}
	}
	if !t.Operator.valid() {
		return &ConfigError{Field: "Threshold.Operator", Reason: "unknown operator " + string(t.Operator)}
	}
	switch t.Action {
	case ActionWarn, ActionError, ActionAlert, ActionThrottle, ActionCircuitBreak:
	default:
		return &ConfigError{Field: "Threshold.Action", Reason: "unknown action " + string(t.Action)}
	}
	return nil
}

// Condition is one AND-combined clause of a strategy
type Condition struct {
	Metric   string   `json:"metric"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// Action is emitted as an optimize event after Delay
type Action struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
	Delay  time.Duration  `json:"delay,omitempty"`
}

// Strategy maps metric conditions to remediation actions. Strategies are
// evaluated in descending Priority order.
type Strategy struct {
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	Priority   int         `json:"priority"`
}

func (s Strategy) validate() error {
	if s.Name == "" {
		return &ConfigError{Field: "Strategy.Name", Reason: "must not be empty"}
	}
	if len(s.Conditions) == 0 {
		return &ConfigError{Field: "Strategy.Conditions", Reason: "at least one condition is required"}
	}
	if len(s.Actions) == 0 {
		return &ConfigError{Field: "Strategy.Actions", Reason: "at least one action is required"}
	}
	for _, c := range s.Conditions {
		if c.Metric == "" {
			return &ConfigError{Field: "Strategy.Conditions.Metric", Reason: "must not be empty"}
		}
		if !c.Operator.valid() {
			return &ConfigError{Field: "Strategy.Conditions.Operator", Reason: "unknown operator " + string(c.Operator)}
		}
	}
	for _, a := range s.Actions {
		if a.Type == "" {
			return &ConfigError{Field: "Strategy.Actions.Type", Reason: "must not be empty"}
		}
		if a.Delay < 0 {
			return &ConfigError{Field: "Strategy.Actions.Delay", Reason: "must not be negative"}
		}
	}
	return nil
}

// references reports whether any condition watches metric
func (s Strategy) references(metric string) bool {
	for _, c := range s.Conditions {
		if c.Metric == metric {
			return true
		}
	}
	return false
}

// holds evaluates the conditions for a fresh value of metric. Conditions on
// other metrics are not re-checked against older samples and count as met.
func (s Strategy) holds(metric string, value float64) bool {
	for _, c := range s.Conditions {
		if c.Metric != metric {
			continue
		}
		if !c.Operator.Compare(value, c.Value) {
			return false
		}
	}
	return true
}

// clone deep-copies the strategy so the registered version cannot be changed
// through caller-held slices or maps
func (s Strategy) clone() Strategy {
	out := s
	out.Conditions = append([]Condition(nil), s.Conditions...)
	out.Actions = make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		out.Actions[i] = a
		out.Actions[i].Config = cloneConfig(a.Config)
	}
	return out
}

func cloneConfig(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Action types emitted by the built-in strategies
const (
	OptimizeClearOldCache  = "clear-old-cache"
	OptimizeGarbageCollect = "garbage-collect"
	OptimizeWarmCache      = "warm-cache"
	OptimizeIncreasePool   = "increase-pool-size"
	OptimizeKeys           = "optimize-keys"
	OptimizeIncreaseTTL    = "increase-ttl"
)

// DefaultStrategies returns the built-in strategies. They are plain data and
// can be disabled with Engine.SetStrategyEnabled.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:       "high-memory",
			Enabled:    true,
			Priority:   30,
			Conditions: []Condition{{Metric: MetricMemory, Operator: OpGreater, Value: 80}},
			Actions: []Action{
				{Type: OptimizeClearOldCache, Config: map[string]any{"maxAge": "1h"}},
				{Type: OptimizeGarbageCollect},
			},
		},
		{
			Name:       "high-latency",
			Enabled:    true,
			Priority:   20,
			Conditions: []Condition{{Metric: MetricRequestDuration, Operator: OpGreater, Value: 1000}},
			Actions: []Action{
				{Type: OptimizeWarmCache},
				{Type: OptimizeIncreasePool, Config: map[string]any{"increment": 5}},
			},
		},
		{
			Name:       "low-hit-rate",
			Enabled:    true,
			Priority:   10,
			Conditions: []Condition{{Metric: MetricCacheHitRate, Operator: OpLess, Value: 50}},
			Actions: []Action{
				{Type: OptimizeKeys},
				{Type: OptimizeIncreaseTTL, Config: map[string]any{"factor": 1.5}},
			},
		},
	}
}
