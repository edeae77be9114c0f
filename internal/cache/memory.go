package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
)

// InMemoryCache implements Store with a mutex-guarded map. Payloads are kept
// encoded so callers can annotate what they get back without touching the store.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	raw       []byte
	updatedAt time.Time
}

// NewInMemoryCache creates a new in-memory store.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// Get implements Store.Get.
func (c *InMemoryCache) Get(ctx context.Context, city string) (models.CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.CacheEntry{}, false, err
	}
	key := cacheKey(city)
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.CacheEntry{}, false, nil
	}
	payload, err := models.DecodePayload(entry.raw)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	return models.CacheEntry{City: key, Payload: payload, UpdatedAt: entry.updatedAt}, true, nil
}

// Put implements Store.Put.
func (c *InMemoryCache) Put(ctx context.Context, city string, payload models.WeatherPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[cacheKey(city)] = memoryEntry{raw: raw, updatedAt: c.now()}
	c.mu.Unlock()
	return nil
}

// Probe implements Store.Probe. The map is always reachable.
func (c *InMemoryCache) Probe(ctx context.Context) (string, error) {
	return "in-memory", ctx.Err()
}

func (c *InMemoryCache) Backend() string { return BackendMemory }

func (c *InMemoryCache) Close() error { return nil }
