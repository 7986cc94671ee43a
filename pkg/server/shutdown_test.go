package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/config"
)

func TestGracefulServerTrackRequests(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr: ":0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}),
	})

	handler := srv.server.Handler

	// Start some requests
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
		}()
	}

	// Wait a bit for requests to start
	time.Sleep(10 * time.Millisecond)

	// Check in-flight count
	inFlight := srv.InFlightRequests()
	if inFlight == 0 {
		t.Error("Should have in-flight requests")
	}

	// Wait for all requests to complete
	wg.Wait()

	// Check that counter is back to zero
	inFlight = srv.InFlightRequests()
	if inFlight != 0 {
		t.Errorf("In-flight requests should be 0, got %d", inFlight)
	}
}

func TestGracefulServerRejectsRequestsDuringShutdown(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr: ":0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})

	handler := srv.server.Handler

	// Mark as shutting down
	srv.isShuttingDown.Store(true)

	// Try to make a request
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Should get 503
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestHealthCheckHandler(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr:    ":0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})

	handler := srv.HealthCheckHandler()

	// Healthy
	t.Run("Healthy", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}

		if w.Body.String() != `{"status":"healthy"}` {
			t.Errorf("Unexpected body: %s", w.Body.String())
		}
	})

	// Shutting down
	t.Run("ShuttingDown", func(t *testing.T) {
		srv.isShuttingDown.Store(true)

		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", w.Code)
		}
	})
}

func TestReadinessHandler(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr:    ":0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})

	handler := srv.ReadinessHandler()

	// Ready with no in-flight requests
	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}

		body := w.Body.String()
		if body != `{"ready":true,"in_flight_requests":0}` {
			t.Errorf("Unexpected body: %s", body)
		}
	})

	// Not ready during shutdown
	t.Run("NotReady", func(t *testing.T) {
		srv.isShuttingDown.Store(true)

		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", w.Code)
		}
	})
}

func TestShutdownCallbacks(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr:    "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})

	var order []int
	srv.OnShutdown(func(ctx context.Context) error {
		order = append(order, 1)
		return nil
	})
	srv.OnShutdown(func(ctx context.Context) error {
		order = append(order, 2)
		return errors.New("flush failed")
	})
	srv.OnShutdown(func(ctx context.Context) error {
		order = append(order, 3)
		return nil
	})

	err := srv.Shutdown(context.Background())
	if err == nil {
		t.Error("Shutdown() should report the failing callback")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Callbacks ran in unexpected order: %v", order)
	}

	// Second shutdown is a no-op
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Second Shutdown() error = %v", err)
	}
	if len(order) != 3 {
		t.Errorf("Callbacks ran again: %v", order)
	}
}

func TestStartServesAndShutsDown(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		}),
	})

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(); err == nil {
		t.Error("Second Start() should fail")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("Unexpected body: %s", body)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	srv.Wait()

	if _, err := http.Get("http://" + srv.Addr() + "/ping"); err == nil {
		t.Error("Server should not accept connections after shutdown")
	}
}

func TestListenAndServeStopsOnContext(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr:    "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})

	stopped := false
	srv.OnShutdown(func(ctx context.Context) error {
		stopped = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return")
	}
	if !stopped {
		t.Error("Shutdown callbacks were not executed")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.DashboardConfig{Addr: ":9464", ShutdownTimeout: 5 * time.Second, ReadTimeout: time.Second}, nil)
	if cfg.Addr != ":9464" || cfg.ShutdownTimeout != 5*time.Second || cfg.DrainTimeout != 5*time.Second || cfg.ReadTimeout != time.Second {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

func TestDrainRequests(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr:         ":0",
		Handler:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		DrainTimeout: 1 * time.Second,
	})

	// Simulate in-flight requests
	srv.inFlightRequests.Add(3)

	// Start draining in background
	go func() {
		time.Sleep(100 * time.Millisecond)
		// Simulate requests completing
		srv.inFlightRequests.Add(-3)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := srv.drainRequests(ctx)
	if err != nil {
		t.Errorf("drainRequests() error = %v", err)
	}

	if srv.InFlightRequests() != 0 {
		t.Errorf("In-flight requests should be 0, got %d", srv.InFlightRequests())
	}
}

func TestDrainRequestsTimeout(t *testing.T) {
	srv := NewGracefulServer(Config{
		Addr:         ":0",
		Handler:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		DrainTimeout: 100 * time.Millisecond,
	})

	// Simulate in-flight requests that don't complete
	srv.inFlightRequests.Add(5)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := srv.drainRequests(ctx)
	if err == nil {
		t.Error("drainRequests() should timeout with error")
	}

	// Cleanup
	srv.inFlightRequests.Add(-5)
}
