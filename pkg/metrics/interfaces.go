package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/logger"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordHTTPRequest records metrics for an HTTP request
	RecordHTTPRequest(method, path, status string, duration time.Duration)

	// IncRequestsInFlight increments the in-flight requests counter
	IncRequestsInFlight()

	// DecRequestsInFlight decrements the in-flight requests counter
	DecRequestsInFlight()

	// RecordCacheAccess records one cache lookup and its latency
	RecordCacheAccess(hit bool, lookup time.Duration)

	// RecordCacheEviction records one evicted entry
	RecordCacheEviction()

	// RecordMonitorEvent counts an emitted monitor event
	RecordMonitorEvent(eventType, action string)

	// RecordPanic counts a recovered panic
	RecordPanic(location string)

	// Handler returns an HTTP handler for exposing metrics (e.g., /metrics endpoint)
	Handler() http.Handler
}

// globalProvider is the global metrics provider
var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider
func GetProvider() Provider {
	if globalProvider == nil {
		// Return no-op provider if none is set
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *NoOpProvider) IncRequestsInFlight()                                                  {}
func (n *NoOpProvider) DecRequestsInFlight()                                                  {}
func (n *NoOpProvider) RecordCacheAccess(hit bool, lookup time.Duration)                      {}
func (n *NoOpProvider) RecordCacheEviction()                                                  {}
func (n *NoOpProvider) RecordMonitorEvent(eventType, action string)                           {}
func (n *NoOpProvider) RecordPanic(location string)                                           {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
