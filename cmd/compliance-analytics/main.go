package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"compliance-analytics/internal/auth"
	"compliance-analytics/internal/cache"
	"compliance-analytics/internal/config"
	"compliance-analytics/internal/db"
	httphandler "compliance-analytics/internal/http"
	"compliance-analytics/internal/http/middleware"
	"compliance-analytics/internal/logger"
	"compliance-analytics/internal/observability"
	"compliance-analytics/internal/repository"
	"compliance-analytics/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	observability.Init()

	store := newCacheStore(cfg.Cache, appLogger)
	scopeRepo := repository.NewScopeRepository(database)
	analyticsRepo := repository.NewAnalyticsRepository(database, store, cfg.Cache.TTL, appLogger)
	analyticsService := service.NewAnalyticsService(scopeRepo, analyticsRepo, cfg.Analytics.DefaultScanGoal, appLogger)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(analyticsService, cfg.Analytics.MaxRangeDays, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.AllowedOrigins, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting compliance analytics service")

	if err := router.Run(addr); err != nil {
		appLogger.Error().Err(err).Msg("failed to start server")
		os.Exit(1)
	}
}

// newCacheStore uses redis when configured and reachable, otherwise an in-process store.
func newCacheStore(cfg config.CacheConfig, log zerolog.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR not set, using in-memory schedule cache")
		return cache.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using in-memory schedule cache")
		_ = client.Close()
		return cache.NewMemoryStore()
	}
	return cache.NewRedisStore(client)
}
