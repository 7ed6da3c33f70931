package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/siege/internal/adapters/broadcast"
	"github.com/okian/siege/internal/adapters/http/api"
	"github.com/okian/siege/internal/adapters/http/swagger"
	"github.com/okian/siege/internal/adapters/http/ws"
	"github.com/okian/siege/internal/adapters/repository"
	app "github.com/okian/siege/internal/app"
	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogJSON)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "siege service failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	hub := ws.NewHub()
	opts, cleanup, err := buildOptions(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := app.New(cfg, append(opts, app.WithLogger(log))...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, hub),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			svc.Stop(context.WithoutCancel(ctx))
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	svc.Stop(shutdownCtx)

	log.Info(ctx, "server stopped")
	return nil
}

// buildOptions connects the optional NATS, Redis and SQLite backends named
// in cfg. cleanup releases whatever was opened.
func buildOptions(ctx context.Context, cfg *config.Config, hub *ws.Hub) ([]app.Option, func(), error) {
	log := logger.Get().Named("main")
	opts := []app.Option{app.WithMessenger(hub)}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATS.URL != "" {
		nc, err := broadcast.DialNATS(cfg.NATS.URL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, func() { _ = nc.Drain() })
		opts = append(opts, app.WithMessenger(broadcast.NewNATSMessenger(nc, cfg.NATS.SubjectPrefix)))
		log.Info(ctx, "broadcasting over nats", logger.String("url", cfg.NATS.URL))
	}

	if cfg.Redis.Addr != "" {
		store, err := repository.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			repository.WithRedisKey(cfg.Redis.Key),
		)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		opts = append(opts, app.WithLeaderboard(store))
		log.Info(ctx, "using redis leaderboard", logger.String("addr", cfg.Redis.Addr))
	}

	if cfg.SQLite.Path != "" {
		store, err := repository.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("open sqlite: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		opts = append(opts, app.WithRankingSink("sqlite", store))
		log.Info(ctx, "recording rankings to sqlite", logger.String("path", cfg.SQLite.Path))
	}
	return opts, cleanup, nil
}

// newHandler registers the docs and the business API on one mux.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, hub *ws.Hub) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithHub(hub),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the gauges derived from service stats.
// GetStats already updates the leaderboard gauge.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
