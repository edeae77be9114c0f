package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/cache"
	"github.com/kjstillabower/weather-cache-gateway/internal/client"
	"github.com/kjstillabower/weather-cache-gateway/internal/models"
	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
	"github.com/kjstillabower/weather-cache-gateway/internal/validation"
)

// DefaultFreshnessWindow is how long a stored payload is served without refetching.
const DefaultFreshnessWindow = 30 * time.Minute

// ErrAPIKeyNotConfigured is returned on a miss when no provider key is configured.
var ErrAPIKeyNotConfigured = errors.New("API key not configured")

// ConnectivityChecker reports whether the cache store is usable.
type ConnectivityChecker interface {
	Connected() bool
}

// WeatherService serves weather for a city from the cache store while it is
// fresh and from the provider otherwise, annotating every payload with how
// it was retrieved.
type WeatherService struct {
	client     client.WeatherClient
	store      cache.Store
	conn       ConnectivityChecker
	window     time.Duration
	cityMaxLen int
	now        func() time.Time
	stampede   *stampedeTracker
}

// NewWeatherService creates a WeatherService. window <= 0 uses
// DefaultFreshnessWindow; cityMaxLen 0 disables the length check.
func NewWeatherService(client client.WeatherClient, store cache.Store, conn ConnectivityChecker, window time.Duration, cityMaxLen int) *WeatherService {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &WeatherService{
		client:     client,
		store:      store,
		conn:       conn,
		window:     window,
		cityMaxLen: cityMaxLen,
		now:        time.Now,
		stampede:   newStampedeTracker(),
	}
}

// GetWeather returns the annotated payload for city. Validation errors,
// ErrAPIKeyNotConfigured and provider errors are returned; store errors never are.
func (s *WeatherService) GetWeather(ctx context.Context, city string) (models.WeatherPayload, error) {
	city, err := validation.ValidateCity(city, s.cityMaxLen)
	if err != nil {
		return nil, err
	}
	key := validation.NormalizeCity(city)
	logger := observability.LoggerFromContext(ctx).With(zap.String("city", key))
	start := time.Now()
	observability.RecordWeatherQuery(key)

	connected := s.conn.Connected()
	if connected {
		if payload, ok := s.lookup(ctx, logger, key); ok {
			logger.Debug("weather served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
			return payload, nil
		}
	} else {
		observability.CacheLookupsTotal.WithLabelValues("unavailable").Inc()
	}

	if !s.client.HasAPIKey() {
		return nil, ErrAPIKeyNotConfigured
	}

	if n := s.stampede.begin(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(observability.MetricLocationLabel(key)).Inc()
		logger.Debug("concurrent miss", zap.Int("in_progress", n))
	}
	defer s.stampede.end(key)

	payload, err := s.client.Fetch(ctx, city)
	if err != nil {
		logger.Warn("upstream fetch failed",
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return nil, fmt.Errorf("fetch weather for %s: %w", key, err)
	}

	info := models.CacheInfo{Timestamp: s.now().UTC()}
	if connected {
		s.save(ctx, logger, key, payload, &info)
	} else {
		observability.CacheWritesTotal.WithLabelValues("skipped").Inc()
		info.SavedToCache = boolPtr(false)
		info.DatabaseUnavailable = true
	}

	logger.Debug("weather served", zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return payload.Annotate(info), nil
}

// lookup returns a fresh stored payload. Stale entries and lookup errors are misses.
func (s *WeatherService) lookup(ctx context.Context, logger *zap.Logger, key string) (models.WeatherPayload, bool) {
	getStart := time.Now()
	entry, ok, err := s.store.Get(ctx, key)
	elapsed := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(elapsed)
		logger.Warn("cache lookup failed", zap.String("code", cache.ErrorCode(err)), zap.Error(err))
		return nil, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(elapsed)
	if !ok {
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !entry.FreshAt(s.now(), s.window) {
		observability.CacheLookupsTotal.WithLabelValues("stale").Inc()
		logger.Debug("cache entry stale", zap.Time("updated_at", entry.UpdatedAt))
		return nil, false
	}
	observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Payload.Annotate(models.CacheInfo{Cached: true, Timestamp: entry.UpdatedAt.UTC()}), true
}

// save writes payload and records the outcome in info. Failure never fails the request.
func (s *WeatherService) save(ctx context.Context, logger *zap.Logger, key string, payload models.WeatherPayload, info *models.CacheInfo) {
	putStart := time.Now()
	err := s.store.Put(ctx, key, payload)
	elapsed := time.Since(putStart).Seconds()
	if err != nil {
		observability.CacheWritesTotal.WithLabelValues("failed").Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("put", "error").Observe(elapsed)
		logger.Warn("cache write failed", zap.String("code", cache.ErrorCode(err)), zap.Error(err))
		info.SavedToCache = boolPtr(false)
		info.CacheError = err.Error()
		return
	}
	observability.CacheWritesTotal.WithLabelValues("saved").Inc()
	observability.CacheOperationDurationSeconds.WithLabelValues("put", "success").Observe(elapsed)
	info.SavedToCache = boolPtr(true)
}

func boolPtr(b bool) *bool { return &b }
