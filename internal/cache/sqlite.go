package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS weather_cache (
	city TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// NewSQLiteStore opens path without touching the file; the first Probe creates the table.
func NewSQLiteStore(path string, maxConns int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required: %w", ErrNotConfigured)
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	return &SQLiteStore{sqlDB: sqlDB, now: time.Now}, nil
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, city string) (models.CacheEntry, bool, error) {
	key := cacheKey(city)
	var raw string
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data, updated_at FROM weather_cache WHERE city = ?`, key,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("select weather_cache: %w", err)
	}
	payload, err := models.DecodePayload([]byte(raw))
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	return models.CacheEntry{City: key, Payload: payload, UpdatedAt: fromMillis(updatedAt)}, true, nil
}

// Put implements Store.Put.
func (s *SQLiteStore) Put(ctx context.Context, city string, payload models.WeatherPayload) error {
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO weather_cache (city, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(city) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		cacheKey(city), string(raw), toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert weather_cache: %w", err)
	}
	return nil
}

// Probe implements Store.Probe.
func (s *SQLiteStore) Probe(ctx context.Context) (string, error) {
	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	var version string
	if err := conn.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&version); err != nil {
		return "", err
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return "", fmt.Errorf("ensure weather_cache table: %w", err)
	}
	return "SQLite " + version, nil
}

func (s *SQLiteStore) Backend() string { return BackendSQLite }

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
