package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened
type EventType string

const (
	EventWarning      EventType = "warning"
	EventError        EventType = "error"
	EventAlert        EventType = "alert"
	EventThrottle     EventType = "throttle"
	EventCircuitBreak EventType = "circuit-break"
	EventOptimize     EventType = "optimize"
	EventStarted      EventType = "started"
	EventStopped      EventType = "stopped"
)

// Event is emitted to listeners. Optimize events carry the strategy action.
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Metric       string         `json:"metric,omitempty"`
	Value        float64        `json:"value"`
	Threshold    float64        `json:"threshold,omitempty"`
	Strategy     string         `json:"strategy,omitempty"`
	ActionType   string         `json:"actionType,omitempty"`
	ActionConfig map[string]any `json:"actionConfig,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func newEvent(t EventType, metric string, value float64, at time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Metric:    metric,
		Value:     value,
		Timestamp: at,
	}
}

// Listener processes an event. Returned errors are logged; nothing is retried.
type Listener interface {
	Handle(ctx context.Context, event *Event) error
}

// ListenerFunc is a function adapter for Listener
type ListenerFunc func(ctx context.Context, event *Event) error

// Handle implements Listener
func (f ListenerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
