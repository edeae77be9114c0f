package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted for cache.backend / CACHE_BACKEND.
const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendMemory    = "in_memory"
)

// DefaultVersion is reported by health and root responses when none is configured.
const DefaultVersion = "weather-cache-gateway-dev"

// Config holds service configuration loaded from .env, YAML and the environment.
type Config struct {
	EnvName string
	Version string

	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration // 0 = transport defaults
	WeatherAPIUnits   string

	RequestTimeout time.Duration // 0 = disabled
	CityMaxLength  int

	CacheBackend      string
	CacheTTL          time.Duration
	CacheWarm         bool
	CacheWarmInterval time.Duration // 0 = warm once at startup

	DatabaseURL         string
	DatabaseMaxConns    int32
	DatabaseSSLInsecure bool
	ProbeTimeout        time.Duration
	ProbeInterval       time.Duration // 0 = startup and on-demand probes only

	SQLitePath string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ShutdownTimeout time.Duration

	LogLevel string

	TrackedLocations []string
}

type fileConfig struct {
	Version string `yaml:"version"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Units   string `yaml:"units"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout       string `yaml:"timeout"`
		CityMaxLength *int   `yaml:"city_max_length"`
	} `yaml:"request"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		Warm         bool   `yaml:"warm"`
		WarmInterval string `yaml:"warm_interval"`
		SQLite       struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Database struct {
		MaxConns      int32  `yaml:"max_conns"`
		SSLInsecure   *bool  `yaml:"ssl_insecure"`
		ProbeTimeout  string `yaml:"probe_timeout"`
		ProbeInterval string `yaml:"probe_interval"`
	} `yaml:"database"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	DatabaseURL   string `yaml:"database_url"`
}

// envConfig holds the environment overrides. Empty values leave file settings in place.
type envConfig struct {
	EnvName        string        `env:"ENV_NAME"`
	Port           string        `env:"PORT"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	WeatherAPIKey  string        `env:"OPENWEATHER_API_KEY"`
	CacheBackend   string        `env:"CACHE_BACKEND"`
	CacheTTL       time.Duration `env:"CACHE_TTL"`
	SQLitePath     string        `env:"SQLITE_PATH"`
	MemcachedAddrs string        `env:"MEMCACHED_ADDRS"`
	LogLevel       string        `env:"LOG_LEVEL"`
	Version        string        `env:"APP_VERSION"`
}

// Load reads configuration. Call from project root.
//
//  1. .env, if present, fills unset environment variables.
//  2. config/{ENV_NAME}.yaml (default dev). A missing file is only an error
//     when ENV_NAME was set explicitly.
//  3. config/secrets.yaml supplies credentials absent from the environment.
//  4. Environment variables override everything.
//
// The API key is optional here; a missing key is reported per request.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var ev envConfig
	if err := env.Parse(&ev); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envName := strings.TrimSpace(ev.EnvName)
	explicitEnv := envName != ""
	if !explicitEnv {
		envName = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", envName+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if explicitEnv {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{EnvName: envName}

	cfg.Version = firstNonEmpty(ev.Version, fc.Version, DefaultVersion)
	cfg.ServerPort = firstNonEmpty(ev.Port, fc.Server.Port, "80")
	cfg.LogLevel = strings.TrimSpace(ev.LogLevel)

	cfg.WeatherAPIKey = firstNonEmpty(ev.WeatherAPIKey, sec.WeatherAPIKey)
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 0)
	cfg.WeatherAPIUnits = strings.ToLower(strings.TrimSpace(fc.WeatherAPI.Units))

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 0)
	cfg.CityMaxLength = 200
	if fc.Request.CityMaxLength != nil {
		cfg.CityMaxLength = *fc.Request.CityMaxLength
	}

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(ev.CacheBackend, fc.Cache.Backend, BackendPostgres))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	if ev.CacheTTL > 0 {
		cfg.CacheTTL = ev.CacheTTL
	}
	cfg.CacheWarm = fc.Cache.Warm
	cfg.CacheWarmInterval = parseDuration(fc.Cache.WarmInterval, 0)

	cfg.DatabaseURL = firstNonEmpty(ev.DatabaseURL, sec.DatabaseURL)
	cfg.DatabaseMaxConns = fc.Database.MaxConns
	if cfg.DatabaseMaxConns <= 0 {
		cfg.DatabaseMaxConns = 10
	}
	cfg.DatabaseSSLInsecure = true
	if fc.Database.SSLInsecure != nil {
		cfg.DatabaseSSLInsecure = *fc.Database.SSLInsecure
	}
	cfg.ProbeTimeout = parseDuration(fc.Database.ProbeTimeout, 10*time.Second)
	cfg.ProbeInterval = parseDuration(fc.Database.ProbeInterval, 0)

	cfg.SQLitePath = firstNonEmpty(ev.SQLitePath, fc.Cache.SQLite.Path, "weather_cache.db")

	cfg.MemcachedAddrs = firstNonEmpty(ev.MemcachedAddrs, fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if it is empty,
// unparsable or negative.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.ServerPort)
	}
	switch cfg.CacheBackend {
	case BackendPostgres, BackendSQLite, BackendMemcached, BackendMemory:
	default:
		return fmt.Errorf("cache.backend must be one of postgres, sqlite, memcached, in_memory, got %q", cfg.CacheBackend)
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	switch cfg.WeatherAPIUnits {
	case "", "standard", "metric", "imperial":
	default:
		return fmt.Errorf("weather_api.units must be standard, metric or imperial, got %q", cfg.WeatherAPIUnits)
	}
	if cfg.CityMaxLength < 0 {
		return fmt.Errorf("request.city_max_length must not be negative")
	}
	if cfg.CacheWarmInterval > 0 && !cfg.CacheWarm {
		return fmt.Errorf("cache.warm_interval requires cache.warm")
	}
	return nil
}
