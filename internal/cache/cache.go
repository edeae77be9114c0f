package cache

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
	"github.com/kjstillabower/weather-cache-gateway/internal/validation"
)

// Backend names accepted by config.
const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendMemory    = "in_memory"
)

// Store is a keyed persistent store of the last fetched payload per city.
// Keys are case-insensitive. Errors are returned to the caller, never swallowed.
type Store interface {
	// Get returns the entry for city, or false when absent.
	Get(ctx context.Context, city string) (models.CacheEntry, bool, error)
	// Put inserts or replaces the payload for city and sets updated_at to now. Last writer wins.
	Put(ctx context.Context, city string, payload models.WeatherPayload) error
	// Probe acquires a connection, runs a liveness query, ensures the schema
	// exists and releases the connection. Returns the server version.
	Probe(ctx context.Context) (string, error)
	// Backend names the implementation for status reporting.
	Backend() string
	// Close releases pooled connections.
	Close() error
}

// ErrNotConfigured is returned by a store that could not be constructed.
var ErrNotConfigured = errors.New("cache store not configured")

func cacheKey(city string) string {
	return validation.NormalizeCity(city)
}

// unavailableStore stands in for a backend whose construction failed, so the
// failure is reported by probes instead of aborting startup.
type unavailableStore struct {
	backend string
	err     error
}

// NewUnavailableStore returns a Store whose every operation fails with err.
func NewUnavailableStore(backend string, err error) Store {
	if err == nil {
		err = ErrNotConfigured
	}
	return &unavailableStore{backend: backend, err: err}
}

func (s *unavailableStore) Get(context.Context, string) (models.CacheEntry, bool, error) {
	return models.CacheEntry{}, false, s.err
}

func (s *unavailableStore) Put(context.Context, string, models.WeatherPayload) error {
	return s.err
}

func (s *unavailableStore) Probe(context.Context) (string, error) {
	return "", s.err
}

func (s *unavailableStore) Backend() string { return s.backend }

func (s *unavailableStore) Close() error { return nil }
