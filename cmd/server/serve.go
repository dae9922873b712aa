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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"relo/internal/cache"
	"relo/internal/chat"
	"relo/internal/config"
	"relo/internal/db"
	"relo/internal/notification"
	"relo/internal/observability"
	"relo/internal/server"
	"relo/internal/user"
)

const shutdownTimeout = 10 * time.Second

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runMigrate(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}
	logger.Info("database schema initialized")
	return nil
}

func runServe(ctx context.Context, addr string, migrate bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}

	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("connected to postgres")

	if migrate {
		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		logger.Info("database schema initialized")
	}

	var unread cache.Cache = cache.NewMemoryCache()
	pingRedis := func(context.Context) error { return nil }
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
		unread = cache.NewRedisCache(redisClient)
		pingRedis = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := server.New(cfg, server.Stores{
		Users:         user.NewRepository(database.Conn),
		Chat:          chat.NewRepository(database.Conn),
		Notifications: notification.NewRepository(database.Conn),
		Cache:         unread,
		Ping: func(ctx context.Context) error {
			if err := database.Conn.PingContext(ctx); err != nil {
				return err
			}
			return pingRedis(ctx)
		},
	}, logger, reg)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		app.Registry.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
