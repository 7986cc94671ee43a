// Package server runs an http.Server with request draining and ordered
// shutdown callbacks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/config"
	"github.com/bitechdev/EndpointKit/pkg/logger"
)

// GracefulServer wraps http.Server with graceful shutdown capabilities
type GracefulServer struct {
	server           *http.Server
	shutdownTimeout  time.Duration
	drainTimeout     time.Duration
	inFlightRequests atomic.Int64
	isShuttingDown   atomic.Bool
	shutdownOnce     sync.Once
	shutdownComplete chan struct{}

	mu        sync.Mutex
	listener  net.Listener
	serveErr  chan error
	callbacks []ShutdownCallback
}

// Config holds configuration for the graceful server
type Config struct {
	// Addr is the server address (e.g., ":8080")
	Addr string

	// Handler is the HTTP handler
	Handler http.Handler

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout is the time to wait for in-flight requests to complete
	// before forcing shutdown. Default: 25 seconds
	DrainTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// FromConfig builds a server configuration from the dashboard section
func FromConfig(c config.DashboardConfig, handler http.Handler) Config {
	return Config{
		Addr:            c.Addr,
		Handler:         handler,
		ShutdownTimeout: c.ShutdownTimeout,
		DrainTimeout:    c.ShutdownTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
	}
}

// NewGracefulServer creates a new graceful server
func NewGracefulServer(config Config) *GracefulServer {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.DrainTimeout == 0 {
		config.DrainTimeout = 25 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 120 * time.Second
	}

	gs := &GracefulServer{
		shutdownTimeout:  config.ShutdownTimeout,
		drainTimeout:     config.DrainTimeout,
		shutdownComplete: make(chan struct{}),
	}
	gs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      gs.TrackRequestsMiddleware(config.Handler),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return gs
}

// TrackRequestsMiddleware tracks in-flight requests and blocks new requests during shutdown
func (gs *GracefulServer) TrackRequestsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if shutting down
		if gs.isShuttingDown.Load() {
			http.Error(w, `{"error":"service_unavailable","message":"Server is shutting down"}`, http.StatusServiceUnavailable)
			return
		}

		gs.inFlightRequests.Add(1)
		defer gs.inFlightRequests.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// Start binds the address and serves in the background
func (gs *GracefulServer) Start() error {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.listener != nil {
		return fmt.Errorf("server already started on %s", gs.listener.Addr())
	}

	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", gs.server.Addr, err)
	}
	gs.listener = ln
	gs.serveErr = make(chan error, 1)

	go func() {
		logger.Info("Starting server on %s", ln.Addr())
		if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			gs.serveErr <- err
		}
		close(gs.serveErr)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (gs *GracefulServer) Addr() string {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.listener != nil {
		return gs.listener.Addr().String()
	}
	return gs.server.Addr
}

// ListenAndServe starts the server and blocks until ctx is cancelled or the
// server fails, then shuts down gracefully
func (gs *GracefulServer) ListenAndServe(ctx context.Context) error {
	if err := gs.Start(); err != nil {
		return err
	}

	select {
	case err, ok := <-gs.serveErr:
		if ok && err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("Context done, initiating graceful shutdown")
		// Detach from the cancelled context so shutdown gets its full timeout
		return gs.Shutdown(context.WithoutCancel(ctx))
	}
}

// Shutdown performs graceful shutdown with request draining, then runs the
// registered callbacks in registration order
func (gs *GracefulServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	gs.shutdownOnce.Do(func() {
		logger.Info("Starting graceful shutdown...")

		// New requests will be rejected
		gs.isShuttingDown.Store(true)

		shutdownCtx, cancel := context.WithTimeout(ctx, gs.shutdownTimeout)
		defer cancel()

		drainCtx, drainCancel := context.WithTimeout(shutdownCtx, gs.drainTimeout)
		defer drainCancel()

		var errs []error
		if err := gs.drainRequests(drainCtx); err != nil {
			logger.Error("Error draining requests: %v", err)
			errs = append(errs, err)
		}

		logger.Info("Shutting down HTTP server...")
		if err := gs.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server: %v", err)
			errs = append(errs, err)
		}

		if err := gs.executeShutdownCallbacks(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		shutdownErr = errors.Join(errs...)
		logger.Info("Graceful shutdown complete")
		close(gs.shutdownComplete)
	})

	return shutdownErr
}

// drainRequests waits for in-flight requests to complete
func (gs *GracefulServer) drainRequests(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		inFlight := gs.inFlightRequests.Load()

		if inFlight == 0 {
			logger.Info("All requests drained in %v", time.Since(startTime))
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Warn("Drain timeout exceeded with %d requests still in flight", inFlight)
			return fmt.Errorf("drain timeout exceeded: %d requests still in flight", inFlight)
		case <-ticker.C:
			logger.Debug("Waiting for %d in-flight requests to complete...", inFlight)
		}
	}
}

// InFlightRequests returns the current number of in-flight requests
func (gs *GracefulServer) InFlightRequests() int64 {
	return gs.inFlightRequests.Load()
}

// IsShuttingDown returns true if the server is shutting down
func (gs *GracefulServer) IsShuttingDown() bool {
	return gs.isShuttingDown.Load()
}

// Wait blocks until shutdown is complete
func (gs *GracefulServer) Wait() {
	<-gs.shutdownComplete
}

// HealthCheckHandler returns a handler that responds to health checks
// Returns 200 OK when healthy, 503 Service Unavailable when shutting down
func (gs *GracefulServer) HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gs.IsShuttingDown() {
			http.Error(w, `{"status":"shutting_down"}`, http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(`{"status":"healthy"}`))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	}
}

// ReadinessHandler returns a handler for readiness checks
// Includes in-flight request count
func (gs *GracefulServer) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gs.IsShuttingDown() {
			http.Error(w, `{"ready":false,"reason":"shutting_down"}`, http.StatusServiceUnavailable)
			return
		}

		inFlight := gs.InFlightRequests()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"ready":true,"in_flight_requests":%d}`, inFlight)
	}
}

// ShutdownCallback is a function called during shutdown
type ShutdownCallback func(context.Context) error

// OnShutdown registers a callback run after the HTTP server has stopped.
// Useful for stopping the monitor, flushing the cache snapshot, closing brokers.
func (gs *GracefulServer) OnShutdown(cb ShutdownCallback) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.callbacks = append(gs.callbacks, cb)
}

// executeShutdownCallbacks runs all registered shutdown callbacks
func (gs *GracefulServer) executeShutdownCallbacks(ctx context.Context) error {
	gs.mu.Lock()
	callbacks := make([]ShutdownCallback, len(gs.callbacks))
	copy(callbacks, gs.callbacks)
	gs.mu.Unlock()

	var errs []error
	for i, cb := range callbacks {
		logger.Debug("Executing shutdown callback %d/%d", i+1, len(callbacks))
		if err := cb(ctx); err != nil {
			logger.Error("Shutdown callback %d failed: %v", i+1, err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown callbacks failed: %w", errors.Join(errs...))
	}
	return nil
}
