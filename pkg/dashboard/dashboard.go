// Package dashboard exposes the cache and monitor state over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bitechdev/EndpointKit/pkg/cache"
	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/metrics"
	"github.com/bitechdev/EndpointKit/pkg/middleware"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
	"github.com/bitechdev/EndpointKit/pkg/tracing"
)

// CacheAPI is the part of *cache.Store the dashboard reads
type CacheAPI interface {
	Stats() cache.Statistics
	SaveToDisk(ctx context.Context) error
}

// EngineAPI is the part of *monitor.Engine the dashboard reads
type EngineAPI interface {
	GetMetrics(ctx context.Context) monitor.Snapshot
	GenerateReport(ctx context.Context, start, end time.Time) (*monitor.Report, error)
}

// Handler serves the dashboard routes
type Handler struct {
	cache   CacheAPI
	engine  EngineAPI
	metrics metrics.Provider
}

// Option configures a Handler
type Option func(*Handler)

// WithMetricsProvider serves provider.Handler() on /metrics
func WithMetricsProvider(p metrics.Provider) Option {
	return func(h *Handler) {
		h.metrics = p
	}
}

// NewHandler creates the dashboard handler. Either source may be nil, in
// which case its routes answer 404.
func NewHandler(c CacheAPI, e EngineAPI, opts ...Option) *Handler {
	h := &Handler{cache: c, engine: e, metrics: metrics.GetProvider()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the mux router with recovery, tracing and request metrics.
// Routes added to the returned router later get the same middleware.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery, tracing.Middleware)
	if p, ok := h.metrics.(*metrics.PrometheusProvider); ok {
		r.Use(p.Middleware(routeTemplate))
	}

	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/metrics", h.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/report", h.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", h.handleCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/save", h.handleCacheSave).Methods(http.MethodPost)

	return r
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusNotFound, "monitor_disabled", "Resource monitoring is not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.GetMetrics(r.Context()))
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusNotFound, "monitor_disabled", "Resource monitoring is not configured")
		return
	}

	start, err := parseTime(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
		return
	}
	end, err := parseTime(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
		return
	}

	report, err := h.engine.GenerateReport(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_period", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "cache_disabled", "Cache is not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) handleCacheSave(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "cache_disabled", "Cache is not configured")
		return
	}

	err := h.cache.SaveToDisk(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"saved": true})
	case errors.Is(err, cache.ErrNoAdapter):
		writeError(w, http.StatusConflict, "not_persistent", "Cache has no persistence backend")
	case errors.Is(err, cache.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "cache_closed", "Cache is closed")
	default:
		logger.Error("Cache snapshot via dashboard failed: %v", err)
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error())
	}
}

// routeTemplate labels request metrics with the matched route
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write dashboard response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
