//go:build integration
// +build integration

package cache

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
)

// TestPostgresStore_Integration runs against DATABASE_URL. The weather_cache
// table is created by Probe if missing.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, dsn, PostgresOptions{MaxConns: 4, SSLInsecure: true})
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()

	version, err := s.Probe(ctx)
	if err != nil {
		t.Fatalf("Probe() error = %v (code %s)", err, ErrorCode(err))
	}
	if !strings.Contains(version, "PostgreSQL") {
		t.Errorf("Probe() version = %q, want PostgreSQL banner", version)
	}

	city := "integration-" + time.Now().Format("150405.000000")
	before := time.Now().Add(-time.Minute)
	if err := s.Put(ctx, city, models.WeatherPayload{"temp": 1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, strings.ToUpper(city), models.WeatherPayload{"temp": 2}); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	entry, ok, err := s.Get(ctx, city)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v; want hit", ok, err)
	}
	if entry.UpdatedAt.Before(before) {
		t.Errorf("UpdatedAt = %v, want recent", entry.UpdatedAt)
	}
	if fmt.Sprint(entry.Payload["temp"]) != "2" {
		t.Errorf("payload = %v, want last writer", entry.Payload)
	}
	_, _ = s.pool.Exec(ctx, "DELETE FROM weather_cache WHERE city = $1", entry.City)
}
