package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"ENV_NAME", "PORT", "DATABASE_URL", "OPENWEATHER_API_KEY", "CACHE_BACKEND",
	"CACHE_TTL", "SQLITE_PATH", "MEMCACHED_ADDRS", "LOG_LEVEL", "APP_VERSION",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func TestLoad_DefaultsWithoutFiles(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "80" {
		t.Errorf("ServerPort = %q, want 80", cfg.ServerPort)
	}
	if cfg.CacheBackend != BackendPostgres {
		t.Errorf("CacheBackend = %q, want postgres", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %v, want 30m", cfg.CacheTTL)
	}
	if cfg.DatabaseMaxConns != 10 || !cfg.DatabaseSSLInsecure {
		t.Errorf("database defaults = max %d insecure %v", cfg.DatabaseMaxConns, cfg.DatabaseSSLInsecure)
	}
	if cfg.WeatherAPITimeout != 0 || cfg.RequestTimeout != 0 {
		t.Errorf("timeouts = api %v request %v, want both disabled", cfg.WeatherAPITimeout, cfg.RequestTimeout)
	}
	if cfg.ProbeInterval != 0 {
		t.Errorf("ProbeInterval = %v, want disabled", cfg.ProbeInterval)
	}
	if cfg.CityMaxLength != 200 {
		t.Errorf("CityMaxLength = %d, want 200", cfg.CityMaxLength)
	}
	if cfg.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", cfg.Version, DefaultVersion)
	}
	if cfg.WeatherAPIKey != "" || cfg.DatabaseURL != "" {
		t.Error("credentials must be empty when nothing provides them")
	}
}

func TestLoad_MissingAPIKeyIsNotAnError(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "" {
		t.Errorf("WeatherAPIKey = %q, want empty", cfg.WeatherAPIKey)
	}
}

func TestLoad_ReadsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
version: "1.4.0"
server:
  port: "9090"
weather_api:
  url: "https://api.example.com/weather"
  timeout: "3s"
  units: "Metric"
request:
  timeout: "8s"
  city_max_length: 64
cache:
  backend: "SQLite"
  ttl: "10m"
  warm: true
  warm_interval: "15m"
  sqlite:
    path: "/tmp/cache.db"
database:
  max_conns: 4
  ssl_insecure: false
  probe_timeout: "2s"
  probe_interval: "1m"
shutdown:
  timeout: "5s"
metrics:
  tracked_locations: ["kyiv", "lviv"]
`)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Version", cfg.Version, "1.4.0"},
		{"ServerPort", cfg.ServerPort, "9090"},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "https://api.example.com/weather"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 3 * time.Second},
		{"WeatherAPIUnits", cfg.WeatherAPIUnits, "metric"},
		{"RequestTimeout", cfg.RequestTimeout, 8 * time.Second},
		{"CityMaxLength", cfg.CityMaxLength, 64},
		{"CacheBackend", cfg.CacheBackend, BackendSQLite},
		{"CacheTTL", cfg.CacheTTL, 10 * time.Minute},
		{"CacheWarm", cfg.CacheWarm, true},
		{"CacheWarmInterval", cfg.CacheWarmInterval, 15 * time.Minute},
		{"SQLitePath", cfg.SQLitePath, "/tmp/cache.db"},
		{"DatabaseMaxConns", cfg.DatabaseMaxConns, int32(4)},
		{"DatabaseSSLInsecure", cfg.DatabaseSSLInsecure, false},
		{"ProbeTimeout", cfg.ProbeTimeout, 2 * time.Second},
		{"ProbeInterval", cfg.ProbeInterval, time.Minute},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 5 * time.Second},
		{"TrackedLocations", len(cfg.TrackedLocations), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: from-secrets\ndatabase_url: postgres://secrets\n")
	chdir(t, dir)

	t.Setenv("PORT", "3000")
	t.Setenv("OPENWEATHER_API_KEY", "from-env")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("CACHE_TTL", "45m")
	t.Setenv("APP_VERSION", "database-test-v2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000", cfg.ServerPort)
	}
	if cfg.WeatherAPIKey != "from-env" || cfg.DatabaseURL != "postgres://env" {
		t.Error("environment credentials must win over secrets file")
	}
	if cfg.CacheBackend != BackendMemcached || cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("cache = %q %q", cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.CacheTTL != 45*time.Minute {
		t.Errorf("CacheTTL = %v, want 45m", cfg.CacheTTL)
	}
	if cfg.Version != "database-test-v2" {
		t.Errorf("Version = %q", cfg.Version)
	}
}

func TestLoad_SecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\ndatabase_url: postgres://u:p@db/weather\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
	if cfg.DatabaseURL != "postgres://u:p@db/weather" {
		t.Errorf("DatabaseURL = %q, want value from secrets file", cfg.DatabaseURL)
	}
}

func TestLoad_DotEnvFillsUnsetVariables(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENWEATHER_API_KEY=from-dotenv\nPORT=4000\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)
	t.Setenv("PORT", "5000")
	// godotenv sets the key process-wide; make sure it is removed afterwards.
	t.Cleanup(func() { os.Unsetenv("OPENWEATHER_API_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want from-dotenv", cfg.WeatherAPIKey)
	}
	if cfg.ServerPort != "5000" {
		t.Errorf("ServerPort = %q, .env must not override the environment", cfg.ServerPort)
	}
}

func TestLoad_ExplicitEnvFileNotFound(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
cache:
  ttl: "invalid"
shutdown:
  timeout: "-5s"
`)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %v, want default 30m", cfg.CacheTTL)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", "", map[string]string{"PORT": "http"}, "PORT"},
		{"port out of range", "", map[string]string{"PORT": "70000"}, "PORT"},
		{"unknown backend", "", map[string]string{"CACHE_BACKEND": "redis"}, "cache.backend"},
		{"bad units", "weather_api:\n  units: kelvin\n", nil, "weather_api.units"},
		{"negative city length", "request:\n  city_max_length: -1\n", nil, "city_max_length"},
		{"warm interval without warm", "cache:\n  warm_interval: 5m\n", nil, "cache.warm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			if tt.yaml != "" {
				writeEnvFile(t, dir, tt.yaml)
			}
			chdir(t, dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error, got config %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("CACHE_TTL", "soon")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("Load() error = %v, want parse env error", err)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeSecretsFile(t, dir, "not valid: yaml: [[[")
	chdir(t, dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid secrets YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "secrets") {
		t.Errorf("Load() error = %v, want message about secrets", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "not: valid: yaml: [[[")
	chdir(t, dir)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	chdir(t, findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIURL == "" || cfg.ServerPort == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"  ", time.Minute},
		{"2s", 2 * time.Second},
		{"0s", 0},
		{"-1s", time.Minute},
		{"nope", time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://api.example.com"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  backend: "in_memory"
  ttl: "5m"
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
