package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS weather_cache (
	city TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	// MaxConns bounds the pool. 0 keeps the pgxpool default.
	MaxConns int32
	// SSLInsecure accepts self-signed server certificates.
	SSLInsecure bool
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore parses dsn and builds a lazily connecting pool. It does not
// contact the server; the first Probe does.
func NewPostgresStore(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.SSLInsecure {
		relaxTLS(&cfg.ConnConfig.Config)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// relaxTLS disables certificate verification on every TLS attempt, including
// sslmode fallbacks. Plaintext fallbacks are left as configured.
func relaxTLS(cfg *pgconn.Config) {
	if cfg.TLSConfig != nil {
		cfg.TLSConfig.InsecureSkipVerify = true
		cfg.TLSConfig.VerifyPeerCertificate = nil
		cfg.TLSConfig.VerifyConnection = nil
	}
	for _, fb := range cfg.Fallbacks {
		if fb.TLSConfig != nil {
			fb.TLSConfig.InsecureSkipVerify = true
			fb.TLSConfig.VerifyPeerCertificate = nil
			fb.TLSConfig.VerifyConnection = nil
		}
	}
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, city string) (models.CacheEntry, bool, error) {
	key := cacheKey(city)
	var entry models.CacheEntry
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data, updated_at FROM weather_cache WHERE city = $1`, key,
	).Scan(&raw, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("select weather_cache: %w", err)
	}
	entry.Payload, err = models.DecodePayload(raw)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	entry.City = key
	return entry, true, nil
}

// Put implements Store.Put. updated_at is taken from the database clock.
func (s *PostgresStore) Put(ctx context.Context, city string, payload models.WeatherPayload) error {
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO weather_cache (city, data, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (city) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		cacheKey(city), raw,
	)
	if err != nil {
		return fmt.Errorf("upsert weather_cache: %w", err)
	}
	return nil
}

// Probe implements Store.Probe.
func (s *PostgresStore) Probe(ctx context.Context) (string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Release()

	var version string
	if err := conn.QueryRow(ctx, `SELECT version()`).Scan(&version); err != nil {
		return "", err
	}
	if _, err := conn.Exec(ctx, pgSchema); err != nil {
		return "", fmt.Errorf("ensure weather_cache table: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) Backend() string { return BackendPostgres }

// Close drains the pool, waiting for acquired connections to be released.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
