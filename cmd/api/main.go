package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/event-analytics/internal/adapter/api"
	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/adapter/pii"
	"github.com/V4T54L/event-analytics/internal/adapter/repository/memory"
	"github.com/V4T54L/event-analytics/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/event-analytics/internal/adapter/repository/redis"
	"github.com/V4T54L/event-analytics/internal/domain"
	"github.com/V4T54L/event-analytics/internal/pkg/config"
	"github.com/V4T54L/event-analytics/internal/pkg/logger"
	"github.com/V4T54L/event-analytics/internal/pkg/tracing"
	"github.com/V4T54L/event-analytics/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New(nil)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, logger, tracing.Config{
		ServiceName: api.ServiceName,
		Endpoint:    cfg.OTelEndpoint,
		Probability: cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// --- Stores ---
	apps, events, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var cache domain.ResultCache = redisrepo.NopCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  cfg.CacheOpTimeout,
			ReadTimeout:  cfg.CacheOpTimeout,
			WriteTimeout: cfg.CacheOpTimeout,
		})
		resultCache := redisrepo.NewResultCache(redisClient, logger, m, cfg.CacheOpTimeout)
		defer resultCache.Close()
		cache = resultCache
	} else {
		logger.Info("REDIS_ADDR not set, result caching disabled")
	}

	// --- Initialize Use Cases and Services ---
	piiRedactor := pii.NewRedactor(cfg.RedactionFields(), logger)
	credentialService := usecase.NewCredentialService(apps, logger, m, cfg.APIKeyExpiry, cfg.BcryptCost)
	collectUseCase := usecase.NewCollectEventUseCase(events, piiRedactor, logger)
	analyticsService := usecase.NewAnalyticsService(events, cache, cfg.CacheTTL, logger, m)

	limiters := api.NewLimiters(cfg)
	go limiters.Auth.Run(ctx, time.Minute)
	go limiters.Analytics.Run(ctx, time.Minute)

	// --- Start Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminMux,
	}

	go func() {
		logger.Info("starting metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// --- Initialize API Server ---
	router := api.NewRouter(cfg, logger, m, limiters, credentialService, collectUseCase, analyticsService)
	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting api server", "addr", apiServer.Addr, "store", cfg.StoreDriver)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}

// openStore returns the repositories for the configured driver and a function
// that releases them.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.AppRepository, domain.EventRepository, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewAppRepository(), memory.NewEventRepository(), func() {}, nil
	}

	db, err := sqlx.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DBQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	apps := postgres.NewAppRepository(db, logger, cfg.DBQueryTimeout)
	events := postgres.NewEventRepository(db, logger, cfg.DBQueryTimeout)
	return apps, events, func() { db.Close() }, nil
}
