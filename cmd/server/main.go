/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock sync server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, env, flags)
  2. Build the zap logger
  3. Initialize SQLite store and the remote platform
  4. Open the engine (replays every SKU in the journal)
  5. Configure HTTP router and start the scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port, overrides server.addr
  -db      SQLite database path, overrides store.path
           Use ":memory:" for in-memory database

ENVIRONMENT:
  Every config key can be overridden with STOCKSYNC_<SECTION>_<KEY>, e.g.
  STOCKSYNC_REMOTE_DRIVER=redis, STOCKSYNC_LOG_LEVEL=debug.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and redis connections
  5. Exit

EXAMPLES:
  # Run with file database and the in-process remote
  ./server -db="./data/stocksync.db"

  # Run against a shared redis remote
  STOCKSYNC_REMOTE_DRIVER=redis ./server -config=config.yaml

SEE ALSO:
  - config/config.go: Configuration
  - api/server.go: Router configuration
  - api/scheduler.go: Periodic cycles
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/stock-sync/api"
	"github.com/warp/stock-sync/config"
	"github.com/warp/stock-sync/inventory"
	"github.com/warp/stock-sync/logging"
	"github.com/warp/stock-sync/metrics"
	"github.com/warp/stock-sync/remote"
	"github.com/warp/stock-sync/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stocksync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides server.addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides store.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != 0 {
		cfg.Server.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	policy, err := cfg.ReconcilePolicy()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize remote platform
	platform, closeRemote, err := newRemote(cfg.Remote)
	if err != nil {
		return err
	}
	defer closeRemote()

	recorder := metrics.New()
	engine := inventory.NewEngine(store, platform,
		inventory.WithLogger(logger),
		inventory.WithRecorder(recorder),
		inventory.WithPolicy(policy))

	ctx := context.Background()
	if err := engine.Open(ctx); err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	for _, sku := range cfg.SKUs {
		if _, err := engine.Listing(ctx, inventory.SKU(sku)); err != nil {
			return fmt.Errorf("open listing %s: %w", sku, err)
		}
	}
	logger.Info("engine opened",
		zap.Int("listings", len(engine.SKUs())),
		zap.String("remote", cfg.Remote.Driver),
		zap.String("db", cfg.Store.Path))

	// Create router
	handler := api.NewHandler(engine, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Metrics:     recorder.Handler(),
	})

	scheduler := api.NewReconciliationScheduler(engine, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Concurrency = cfg.Scheduler.Concurrency
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newRemote(cfg config.RemoteConfig) (inventory.RemotePlatform, func(), error) {
	switch cfg.Driver {
	case config.RemoteRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return remote.NewRedis(client, cfg.RedisPrefix), func() { client.Close() }, nil
	default:
		return remote.NewMemory(), func() {}, nil
	}
}
