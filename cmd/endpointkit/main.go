package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/cache"
	"github.com/bitechdev/EndpointKit/pkg/config"
	"github.com/bitechdev/EndpointKit/pkg/dashboard"
	"github.com/bitechdev/EndpointKit/pkg/errortracking"
	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/metrics"
	"github.com/bitechdev/EndpointKit/pkg/middleware"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
	"github.com/bitechdev/EndpointKit/pkg/notify"
	"github.com/bitechdev/EndpointKit/pkg/persistence"
	"github.com/bitechdev/EndpointKit/pkg/remediation"
	"github.com/bitechdev/EndpointKit/pkg/server"
	"github.com/bitechdev/EndpointKit/pkg/tracing"
)

func main() {
	// Load configuration
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	// Initialize logger with configuration
	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	defer logger.Sync()

	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		logger.Error("Failed to initialize error tracking: %v", err)
		os.Exit(1)
	}
	logger.InitErrorTracking(tracker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("EndpointKit failed: %v", err)
		_ = logger.CloseErrorTracking()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var cleanup []server.ShutdownCallback
	runCleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	shutdownTracer, err := tracing.InitTracer(tracing.FromConfig(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup = append(cleanup, func(ctx context.Context) error {
		return logger.CloseErrorTracking()
	}, shutdownTracer)

	adapter, err := persistence.NewFromConfig(ctx, cfg.Persistence)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	cleanup = append(cleanup, func(context.Context) error { return adapter.Close() })

	var provider *metrics.PrometheusProvider
	if cfg.Metrics.Enabled {
		provider = metrics.NewPrometheusProvider(metrics.FromConfig(cfg.Metrics))
		metrics.SetProvider(provider)
	}
	m := metrics.GetProvider()

	engine, err := monitor.New(monitor.FromConfig(cfg.Monitor), monitor.WithAdapter(adapter))
	if err != nil {
		_ = runCleanup(ctx)
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	store, err := cache.New(cache.FromConfig(cfg.Cache),
		cache.WithAdapter(adapter),
		cache.WithAccessObserver(func(hit bool, lookup time.Duration) {
			engine.RecordCacheAccess(hit, lookup)
			m.RecordCacheAccess(hit, lookup)
		}),
		cache.WithEvictionObserver(func(string) {
			engine.RecordCacheEviction()
			m.RecordCacheEviction()
		}),
	)
	if err != nil {
		_ = runCleanup(ctx)
		return fmt.Errorf("failed to create cache: %w", err)
	}
	cleanup = append(cleanup, store.Close)

	var throttle *remediation.Throttle
	if cfg.Remediation.Enabled {
		rc := remediation.FromConfig(cfg.Remediation)
		throttle = remediation.NewThrottle(rc.RateLimitRPS, rc.RateLimitBurst, rc.CircuitCooldown)
		err = remediation.Register(engine,
			remediation.NewCacheShedder(store, rc),
			remediation.NewGCTrigger(rc.ActionCooldown),
			throttle,
		)
		if err != nil {
			_ = runCleanup(ctx)
			return err
		}
	}

	forwarders, err := notify.NewFromConfig(ctx, cfg)
	if err != nil {
		_ = runCleanup(ctx)
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}
	cleanup = append(cleanup, func(ctx context.Context) error { return notify.CloseAll(ctx, forwarders) })
	for _, f := range forwarders {
		if _, err := engine.Subscribe("*", f); err != nil {
			_ = runCleanup(ctx)
			return fmt.Errorf("failed to subscribe %s forwarder: %w", f.Name(), err)
		}
	}

	if provider != nil {
		if err := provider.RegisterCache(store); err != nil {
			_ = runCleanup(ctx)
			return fmt.Errorf("failed to register cache metrics: %w", err)
		}
		if err := provider.RegisterEngine(engine); err != nil {
			_ = runCleanup(ctx)
			return fmt.Errorf("failed to register monitor metrics: %w", err)
		}
		if _, err := engine.Subscribe("*", metrics.EventListener(provider)); err != nil {
			_ = runCleanup(ctx)
			return err
		}
	}

	if err := engine.Start(ctx); err != nil {
		_ = runCleanup(ctx)
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	cleanup = append(cleanup, engine.Stop)

	if !cfg.Dashboard.Enabled {
		logger.Info("Dashboard disabled, running until interrupted")
		<-ctx.Done()
		return runCleanup(context.WithoutCancel(ctx))
	}

	router := dashboard.NewHandler(store, engine, dashboard.WithMetricsProvider(m)).Router()

	var h http.Handler = middleware.Instrument(engine, nil)(router)
	if throttle != nil {
		h = middleware.Throttle(throttle)(h)
	}
	srv := server.NewGracefulServer(server.FromConfig(cfg.Dashboard, h))
	router.Handle("/health", srv.HealthCheckHandler()).Methods(http.MethodGet)
	router.Handle("/ready", srv.ReadinessHandler()).Methods(http.MethodGet)

	srv.OnShutdown(runCleanup)

	logger.Info("EndpointKit dashboard listening on %s", cfg.Dashboard.Addr)
	if err := srv.ListenAndServe(ctx); err != nil {
		if !srv.IsShuttingDown() {
			_ = runCleanup(context.WithoutCancel(ctx))
		}
		return err
	}
	return nil
}
