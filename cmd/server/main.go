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

	"go.uber.org/zap"

	"carechat/config"
	"carechat/infrastructure"
	"carechat/internal/api"
	"carechat/internal/cache"
	"carechat/internal/chat"
	"carechat/internal/chat/storage"
	"carechat/internal/database"
	"carechat/internal/realtime"
)

// App is the assembled process.
type App struct {
	Server   *api.Server
	Registry *realtime.Registry
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infrastructure.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	kv, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to cache", zap.Error(err))
	}
	defer closeCache()

	app := InitializeApp(cfg, logger, store, kv)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// websocket connections are hijacked and not tracked by http.Server
	app.Registry.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return storage.NewMemoryStorage(), func() {}, nil
	case config.StoreDriverPostgres:
		db, err := database.Open(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(db.DB, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Error("Error closing database connection", zap.Error(err))
			}
		}
		return storage.NewPostgresStorage(db, logger), closeDB, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (chat.Cache, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, using process-local cache")
		return cache.NewMemoryCache(), func() {}, nil
	}
	rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	closeRedis := func() {
		if err := rc.Close(); err != nil {
			logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	return rc, closeRedis, nil
}
