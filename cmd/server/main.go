package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatapp/backend/internal/archive"
	"chatapp/backend/internal/config"
	"chatapp/backend/internal/database"
	"chatapp/backend/internal/handler"
	"chatapp/backend/internal/hub"
	"chatapp/backend/internal/limiter"
	"chatapp/backend/internal/presence"
	"chatapp/backend/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2

	shutdownTimeout = 10 * time.Second
)

// @title           ChatApp Relay API
// @version         1.0
// @description     Presence, message relay and pub/sub endpoints of the ChatApp backend.
// @host            localhost:8080
// @BasePath        /
func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return exitRuntime, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return exitRuntime, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
	}

	h := hub.NewHub(logger)
	var publisher hub.Publisher = h
	brokerDone := make(chan error, 1)
	if cfg.Broker == "redis" {
		broker := hub.NewRedisBroker(rdb, h, logger)
		publisher = broker
		go func() { brokerDone <- broker.Run(ctx) }()
	}

	var store presence.Store = presence.NewGormStore(db)
	if cfg.PresenceBackend == presence.BackendRedis {
		store = presence.NewRedisStore(rdb)
	}

	var history handler.Archive
	if cfg.ArchiveWorkers > 0 {
		recorder := archive.NewRecorder(db, cfg.ArchiveWorkers, cfg.ArchiveQueueSize, logger)
		defer func() {
			logger.Info("Flushing message archive...")
			recorder.Close()
		}()
		history = recorder
	}

	var rateLimiter *limiter.Manager
	if cfg.RateLimited() {
		strategy, err := limiter.NewStrategy(cfg.RateStrategy)
		if err != nil {
			return exitConfig, err
		}
		rateLimiter = limiter.NewManager(rdb, strategy)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewRouter(server.Deps{
			Hub:              h,
			Publisher:        publisher,
			Presence:         store,
			Archive:          history,
			Limiter:          rateLimiter,
			RateLimit:        cfg.RateLimit,
			RateWindow:       cfg.RateWindow,
			SubscriberBuffer: cfg.SubscriberBuffer,
			Log:              logger,
		}),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Relay is running", "address", srv.Addr, "broker", cfg.Broker, "presence", cfg.PresenceBackend)
		logger.Info("Swagger UI is available", "url", "http://localhost:"+cfg.Port+"/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		return exitRuntime, fmt.Errorf("http server failed: %w", err)
	case err := <-brokerDone:
		if err != nil {
			return exitRuntime, err
		}
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Relay stopped cleanly")
	return exitOK, nil
}
