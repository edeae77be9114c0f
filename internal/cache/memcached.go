package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
)

const (
	keyPrefix = "weather:"
	// memcached rejects keys longer than 250 bytes.
	maxKeyLen = 250
)

// MemcachedCache implements Store using memcached. Entries never expire; the
// freshness window is enforced by the caller from updated_at.
type MemcachedCache struct {
	client *memcache.Client
	now    func() time.Time
}

type memcachedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, now: time.Now}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key escapes the city so spaces and control bytes never reach the wire,
// hashing names that would exceed the memcached key limit.
func (c *MemcachedCache) key(city string) string {
	k := keyPrefix + url.QueryEscape(cacheKey(city))
	if len(k) <= maxKeyLen {
		return k
	}
	sum := sha256.Sum256([]byte(cacheKey(city)))
	return keyPrefix + "sha256:" + hex.EncodeToString(sum[:])
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, city string) (models.CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.CacheEntry{}, false, err
	}
	item, err := c.client.Get(c.key(city))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, err
	}
	var env memcachedEnvelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return models.CacheEntry{}, false, err
	}
	payload, err := models.DecodePayload(env.Data)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	return models.CacheEntry{City: cacheKey(city), Payload: payload, UpdatedAt: env.UpdatedAt}, true, nil
}

// Put implements Store.Put. A single Set replaces payload and timestamp together.
func (c *MemcachedCache) Put(ctx context.Context, city string, payload models.WeatherPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	value, err := json.Marshal(memcachedEnvelope{Data: raw, UpdatedAt: c.now().UTC()})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:   c.key(city),
		Value: value,
	})
}

// Probe implements Store.Probe. Memcached has no schema; reachability is a ping.
func (c *MemcachedCache) Probe(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.client.Ping(); err != nil {
		return "", err
	}
	return "memcached", nil
}

func (c *MemcachedCache) Backend() string { return BackendMemcached }

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
