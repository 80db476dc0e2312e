package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"uho/internal/api"
	"uho/internal/app"
	"uho/internal/auth"
	"uho/internal/config"
	"uho/internal/htmlcache"
	"uho/internal/logging"
	"uho/internal/pages"
	"uho/internal/ratelimit"
	"uho/internal/view"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := app.Open(ctx, cfg, true)
	if err != nil {
		logger.Fatal("open backends", zap.Error(err))
	}
	defer deps.Close()

	if err := deps.Store.RunMigrations(ctx); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	if cfg.CacheWatchDir != "" {
		go func() {
			if err := htmlcache.Watch(ctx, cfg.CacheWatchDir, deps.Cache, logger); err != nil {
				logger.Error("cache watcher stopped", zap.Error(err))
			}
		}()
	}

	pagesSvc := pages.New(deps.Store, view.NewRegistry(), deps.Cache, logger)

	dispatcher := api.NewDispatcher(logger)
	dispatcher.Register("jobs", api.NewJobsHandler(deps.Queue))
	dispatcher.Register("pages", api.NewPagesHandler(pagesSvc))
	dispatcher.Register("cache", api.NewCacheHandler(pagesSvc))

	limiter := ratelimit.NewTokenBucket(deps.Redis, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	server := api.New(logger, dispatcher, pagesSvc, auth.NewVerifier(cfg.JWTSecret), limiter)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", zap.String("port", cfg.HTTPPort), zap.String("queue", cfg.QueueBackend), zap.String("cache", cfg.CacheBackend))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
