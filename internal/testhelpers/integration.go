//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-cache-gateway/internal/cache"
	"github.com/kjstillabower/weather-cache-gateway/internal/client"
	"github.com/kjstillabower/weather-cache-gateway/internal/monitor"
	"github.com/kjstillabower/weather-cache-gateway/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // postgres, sqlite, memcached or in_memory
	DatabaseURL   string
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MemcachedAddr: memcachedAddr,
	}
}

// Gateway is a fully wired gateway for integration tests.
type Gateway struct {
	Service *service.WeatherService
	Monitor *monitor.Monitor
	Store   cache.Store
}

// SetupIntegrationGateway builds the store for cfg.CacheBackend (sqlite in a
// temp dir by default), probes it and wires the gateway against the real provider.
func SetupIntegrationGateway(t *testing.T, cfg IntegrationTestConfig) *Gateway {
	t.Helper()

	var store cache.Store
	switch cfg.CacheBackend {
	case cache.BackendPostgres:
		if cfg.DatabaseURL == "" {
			t.Skip("DATABASE_URL not set for postgres backend")
		}
		pg, err := cache.NewPostgresStore(context.Background(), cfg.DatabaseURL, cache.PostgresOptions{MaxConns: 4, SSLInsecure: true})
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		store = pg
	case cache.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err != nil {
			t.Fatalf("NewMemcachedCache() error = %v", err)
		}
		store = mc
	case cache.BackendMemory:
		store = cache.NewInMemoryCache()
	default:
		sq, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "integration.db"), 4)
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		store = sq
	}
	t.Cleanup(func() { _ = store.Close() })

	mon := monitor.New(store, 5*time.Second, nil)
	if status := mon.Probe(context.Background()); !status.Connected {
		t.Logf("store %s not connected: %+v", store.Backend(), status.Error)
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second, "")
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	return &Gateway{
		Service: service.NewWeatherService(weatherClient, store, mon, service.DefaultFreshnessWindow, 200),
		Monitor: mon,
		Store:   store,
	}
}
