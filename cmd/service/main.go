package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/cache"
	"github.com/kjstillabower/weather-cache-gateway/internal/client"
	"github.com/kjstillabower/weather-cache-gateway/internal/config"
	httphandler "github.com/kjstillabower/weather-cache-gateway/internal/http"
	"github.com/kjstillabower/weather-cache-gateway/internal/monitor"
	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
	"github.com/kjstillabower/weather-cache-gateway/internal/scheduler"
	"github.com/kjstillabower/weather-cache-gateway/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.LogLevel != "" {
		// .env and YAML may set a level the bootstrap logger did not see.
		if l, err := observability.NewLoggerAt(cfg.LogLevel); err == nil {
			logger = l
		}
	}

	logger.Info("configuration loaded",
		zap.String("env", cfg.EnvName),
		zap.String("version", cfg.Version),
		zap.String("port", cfg.ServerPort),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.String("DATABASE_URL", observability.SetOrNot(cfg.DatabaseURL)),
		zap.String("OPENWEATHER_API_KEY", observability.SetOrNot(cfg.WeatherAPIKey)),
	)

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout, cfg.WeatherAPIUnits)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if !weatherClient.HasAPIKey() {
		logger.Warn("OPENWEATHER_API_KEY not set; only cache hits can be served")
	}

	ctx := context.Background()
	store := buildStore(ctx, cfg, logger)
	observability.SetTrackedLocations(cfg.TrackedLocations)

	mon := monitor.New(store, cfg.ProbeTimeout, logger)
	weatherService := service.NewWeatherService(weatherClient, store, mon, cfg.CacheTTL, cfg.CityMaxLength)

	sched := scheduler.New(logger)
	if err := sched.AddProbe(cfg.ProbeInterval, mon); err != nil {
		logger.Fatal("schedule probe", zap.Error(err))
	}
	if cfg.CacheWarm && len(cfg.TrackedLocations) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger)
		if err := sched.AddWarming(cfg.CacheWarmInterval, warmer, mon, cfg.TrackedLocations); err != nil {
			logger.Fatal("schedule cache warming", zap.Error(err))
		}
	}

	// Requests are served before the first probe finishes; until then the
	// store counts as unavailable.
	probed := mon.Start(ctx)
	go func() {
		<-probed
		sched.Start()
	}()

	handler := httphandler.NewHandler(weatherService, mon, cfg.Version, logger)
	router := httphandler.NewRouter(handler, logger, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	sched.Stop()
	if err := store.Close(); err != nil {
		logger.Error("cache store close", zap.Error(err))
	}
	logger.Info("shutdown complete")

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// buildStore constructs the configured cache backend. Construction failures
// never abort startup: the gateway runs with an unavailable store and the
// failure surfaces through /db-test.
func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) cache.Store {
	var (
		store cache.Store
		err   error
	)
	switch cfg.CacheBackend {
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			err = fmt.Errorf("DATABASE_URL not set: %w", cache.ErrNotConfigured)
			break
		}
		var pg *cache.PostgresStore
		pg, err = cache.NewPostgresStore(ctx, cfg.DatabaseURL, cache.PostgresOptions{
			MaxConns:    cfg.DatabaseMaxConns,
			SSLInsecure: cfg.DatabaseSSLInsecure,
		})
		if err == nil {
			store = pg
		}
	case config.BackendSQLite:
		var sq *cache.SQLiteStore
		sq, err = cache.NewSQLiteStore(cfg.SQLitePath, int(cfg.DatabaseMaxConns))
		if err == nil {
			store = sq
		}
	case config.BackendMemcached:
		var mc *cache.MemcachedCache
		mc, err = cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err == nil {
			store = mc
		}
	default:
		store = cache.NewInMemoryCache()
	}

	if err != nil {
		logger.Error("cache store unavailable", zap.String("backend", cfg.CacheBackend), zap.String("code", cache.ErrorCode(err)), zap.Error(err))
		return cache.NewUnavailableStore(cfg.CacheBackend, err)
	}
	logger.Info("cache backend", zap.String("backend", store.Backend()))
	return store
}
