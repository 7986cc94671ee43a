package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bitechdev/EndpointKit/pkg/logger"
)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID string

type subscription struct {
	id       SubscriptionID
	seq      uint64
	pattern  string
	listener Listener
}

// subscriptionManager manages listeners and pattern matching
type subscriptionManager struct {
	mu            sync.RWMutex
	subscriptions map[SubscriptionID]*subscription
	nextID        atomic.Uint64
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subscriptions: make(map[SubscriptionID]*subscription),
	}
}

// Subscribe adds a new subscription
func (sm *subscriptionManager) Subscribe(pattern string, listener Listener) (SubscriptionID, error) {
	if pattern == "" {
		return "", fmt.Errorf("pattern cannot be empty")
	}
	if listener == nil {
		return "", fmt.Errorf("listener cannot be nil")
	}

	seq := sm.nextID.Add(1)
	id := SubscriptionID(fmt.Sprintf("sub-%d", seq))

	sm.mu.Lock()
	sm.subscriptions[id] = &subscription{
		id:       id,
		seq:      seq,
		pattern:  pattern,
		listener: listener,
	}
	sm.mu.Unlock()

	logger.Debug("Subscribed to monitor events '%s' with ID: %s", pattern, id)
	return id, nil
}

// Unsubscribe removes a subscription
func (sm *subscriptionManager) Unsubscribe(id SubscriptionID) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.subscriptions[id]; !exists {
		return fmt.Errorf("subscription not found: %s", id)
	}

	delete(sm.subscriptions, id)
	return nil
}

// matching returns the listeners interested in ev, in subscription order.
// A pattern matches either the event type or its routing key.
func (sm *subscriptionManager) matching(ev *Event) []Listener {
	key := routingKey(ev)

	sm.mu.RLock()
	subs := make([]*subscription, 0, len(sm.subscriptions))
	for _, sub := range sm.subscriptions {
		if matchPattern(sub.pattern, string(ev.Type)) || matchPattern(sub.pattern, key) {
			subs = append(subs, sub)
		}
	}
	sm.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	listeners := make([]Listener, len(subs))
	for i, sub := range subs {
		listeners[i] = sub.listener
	}
	return listeners
}

// Count returns the number of active subscriptions
func (sm *subscriptionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscriptions)
}

// routingKey is "optimize.<action>" for optimize events and the bare
// type otherwise
func routingKey(ev *Event) string {
	if ev.Type == EventOptimize && ev.ActionType != "" {
		return string(ev.Type) + "." + ev.ActionType
	}
	return string(ev.Type)
}

// matchPattern implements glob-style matching on dot separated segments.
//   - "*" matches everything
//   - "circuit-break" matches exactly "circuit-break"
//   - "optimize.*" matches "optimize.anything"
func matchPattern(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	eventParts := strings.Split(eventType, ".")
	if len(patternParts) != len(eventParts) {
		return false
	}

	for i := range patternParts {
		if patternParts[i] != "*" && patternParts[i] != eventParts[i] {
			return false
		}
	}
	return true
}
