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

	"github.com/redis/go-redis/v9"

	"github.com/hackportal/hackportal-backend/internal/app"
	"github.com/hackportal/hackportal-backend/internal/cache"
	"github.com/hackportal/hackportal-backend/internal/event"
	"github.com/hackportal/hackportal-backend/internal/mapper"
	"github.com/hackportal/hackportal-backend/internal/observability"
	platformcache "github.com/hackportal/hackportal-backend/internal/platform/cache"
	"github.com/hackportal/hackportal-backend/internal/platform/db"
	"github.com/hackportal/hackportal-backend/internal/pool"
	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/uow"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("hackportal stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	dial, err := db.Dialer(cfg.PGDSN, cfg.DBConnectTimeout)
	if err != nil {
		return err
	}
	if err := db.Ping(ctx, dial); err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	dbpool, err := pool.New(dial, pool.Config{
		Capacity:     cfg.DBPoolSize,
		IdleCapacity: cfg.DBIdleSize,
		Observer:     metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := dbpool.Close(context.Background()); err != nil {
			logger.Warn("pool close", slog.Any("error", err))
		}
	}()
	if err := metrics.RegisterPool(dbpool); err != nil {
		return err
	}

	checks := map[string]app.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return db.Ping(ctx, dial) },
	}

	var redisClient *redis.Client
	if cfg.CacheBackend == cache.BackendRedis {
		redisClient, err = platformcache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		checks["redis"] = func(ctx context.Context) error { return platformcache.Ping(ctx, redisClient) }
	}

	backend, err := cache.NewBackend(cfg.CacheBackend, cfg.CacheMemoryConfig(), redisClient)
	if err != nil {
		return err
	}
	cacheService := cache.NewService(backend, logger, cache.WithObserver(metrics))
	cacheService.SetEnabled(cfg.CacheEnabled && cfg.CacheBackend != cache.BackendNone)

	roles := rbac.NewRegistry()
	if err := rbac.RegisterDefaults(roles); err != nil {
		return err
	}

	unit := uow.New(dbpool, cacheService, logger, uow.WithObserver(metrics))
	mappers, err := event.NewMappers(unit, roles, logger, mapper.WithScopedDefault(cfg.HackathonScopedDefault))
	if err != nil {
		return err
	}
	checks["schema"] = func(ctx context.Context) error {
		_, err := mappers.Hackathons.GetCount(ctx, rbac.RoleAdmin, &mapper.QueryOptions{IgnoreCache: true})
		return err
	}

	server := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:  logger,
			Config:  cfg,
			Metrics: metrics,
			Roles:   roles,
			Checks:  checks,
		}),
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}

	go func() {
		logger.Info("starting ops server",
			slog.String("addr", cfg.OpsAddr),
			slog.String("cache_backend", cfg.CacheBackend),
			slog.Bool("cache_enabled", cacheService.Enabled()),
			slog.Int("pool_size", cfg.DBPoolSize))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
