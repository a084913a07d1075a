package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Blob backends accepted by BlobBackend.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
	BackendHTTP      = "http"
)

// Allowed fixed UTC offsets, in minutes (UTC-12:00 .. UTC+14:00).
const (
	minOffsetMinutes = -12 * 60
	maxOffsetMinutes = 14 * 60
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration // 0 = no deadline on weather requests

	WeatherAPIKey     string // not validated; an empty key surfaces as an upstream failure
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration // 0 = transport default

	SnapshotExpiry        time.Duration
	TimezoneOffsetMinutes *int

	BlobBackend string
	BlobToken   string
	BlobAPIURL  string
	BlobTimeout time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisURL string

	RateLimitRPS   int // 0 disables the limiter
	RateLimitBurst int

	ShutdownTimeout  time.Duration
	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port           string `yaml:"port"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Snapshot struct {
		Expiry                string `yaml:"expiry"`
		TimezoneOffsetMinutes *int   `yaml:"timezone_offset_minutes"`
	} `yaml:"snapshot"`

	Blob struct {
		Backend   string `yaml:"backend"`
		APIURL    string `yaml:"api_url"`
		Timeout   string `yaml:"timeout"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL string `yaml:"url"`
		} `yaml:"redis"`
	} `yaml:"blob"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	BlobToken     string `yaml:"blob_read_write_token"`
}

// envOverrides are applied last. nil fields were not set in the environment.
type envOverrides struct {
	Port                  *string        `envconfig:"PORT"`
	WeatherAPIKey         *string        `envconfig:"WEATHER_API_KEY"`
	WeatherAPIURL         *string        `envconfig:"WEATHER_API_URL"`
	WeatherAPITimeout     *time.Duration `envconfig:"WEATHER_API_TIMEOUT"`
	TimezoneOffsetMinutes *int           `envconfig:"TIMEZONE_OFFSET_MINUTES"`
	BlobBackend           *string        `envconfig:"BLOB_BACKEND"`
	BlobToken             *string        `envconfig:"BLOB_READ_WRITE_TOKEN"`
	BlobAPIURL            *string        `envconfig:"BLOB_API_URL"`
	MemcachedAddrs        *string        `envconfig:"MEMCACHED_ADDRS"`
	RedisURL              *string        `envconfig:"REDIS_URL"`
	RateLimitRPS          *int           `envconfig:"RATE_LIMIT_RPS"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml when present, loads
// a .env file when present, then applies environment overrides. Missing files are not errors,
// so a bare environment (serverless) is a valid configuration. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	found, err := readYAML(configPath, &fc)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	// An explicitly named environment must have its file.
	if !found && os.Getenv("ENV_NAME") != "" {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var sec secretsFile
	if _, err := readYAML(filepath.Join(cwd, "config", "secrets.yaml"), &sec); err != nil {
		return nil, fmt.Errorf("secrets file: %w", err)
	}

	cfg := fromFile(fc, sec)

	var ov envOverrides
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	applyOverrides(cfg, ov)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAML decodes path into out. found is false when the file does not exist.
func readYAML(path string, out interface{}) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("parse: %w", err)
	}
	return true, nil
}

func fromFile(fc fileConfig, sec secretsFile) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDurationOrZero(fc.Server.RequestTimeout, 0)

	cfg.WeatherAPIKey = sec.WeatherAPIKey
	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 0)

	cfg.SnapshotExpiry = parseDuration(fc.Snapshot.Expiry, 2*time.Minute)
	cfg.TimezoneOffsetMinutes = fc.Snapshot.TimezoneOffsetMinutes

	cfg.BlobBackend = strings.TrimSpace(strings.ToLower(fc.Blob.Backend))
	if cfg.BlobBackend == "" {
		cfg.BlobBackend = BackendInMemory
	}
	cfg.BlobToken = sec.BlobToken
	cfg.BlobAPIURL = strings.TrimSpace(fc.Blob.APIURL)
	cfg.BlobTimeout = parseDurationOrZero(fc.Blob.Timeout, 0)

	cfg.MemcachedAddrs = strings.TrimSpace(fc.Blob.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Blob.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Blob.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RedisURL = strings.TrimSpace(fc.Blob.Redis.URL)
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	return cfg
}

func applyOverrides(cfg *Config, ov envOverrides) {
	if ov.Port != nil && *ov.Port != "" {
		cfg.ServerPort = *ov.Port
	}
	if ov.WeatherAPIKey != nil {
		cfg.WeatherAPIKey = *ov.WeatherAPIKey
	}
	if ov.WeatherAPIURL != nil && *ov.WeatherAPIURL != "" {
		cfg.WeatherAPIURL = *ov.WeatherAPIURL
	}
	if ov.WeatherAPITimeout != nil {
		cfg.WeatherAPITimeout = *ov.WeatherAPITimeout
	}
	if ov.TimezoneOffsetMinutes != nil {
		cfg.TimezoneOffsetMinutes = ov.TimezoneOffsetMinutes
	}
	if ov.BlobBackend != nil && *ov.BlobBackend != "" {
		cfg.BlobBackend = strings.TrimSpace(strings.ToLower(*ov.BlobBackend))
	}
	if ov.BlobToken != nil {
		cfg.BlobToken = *ov.BlobToken
	}
	if ov.BlobAPIURL != nil {
		cfg.BlobAPIURL = strings.TrimSpace(*ov.BlobAPIURL)
	}
	if ov.MemcachedAddrs != nil && *ov.MemcachedAddrs != "" {
		cfg.MemcachedAddrs = strings.TrimSpace(*ov.MemcachedAddrs)
	}
	if ov.RedisURL != nil && *ov.RedisURL != "" {
		cfg.RedisURL = strings.TrimSpace(*ov.RedisURL)
	}
	if ov.RateLimitRPS != nil {
		cfg.RateLimitRPS = *ov.RateLimitRPS
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values. It fills a rate-limit
// burst when only the rate is set and keeps RequestTimeout above WeatherAPITimeout when both are set.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout < 0 {
		return fmt.Errorf("weather_api.timeout must not be negative")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative")
	}
	if cfg.RequestTimeout > 0 && cfg.WeatherAPITimeout > 0 && cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}

	switch cfg.BlobBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	case BackendHTTP:
		if cfg.BlobAPIURL == "" {
			return fmt.Errorf("blob.api_url (BLOB_API_URL) required for the http blob backend")
		}
	default:
		return fmt.Errorf("blob.backend must be in_memory, memcached, redis or http, got %q", cfg.BlobBackend)
	}

	if off := cfg.TimezoneOffsetMinutes; off != nil && (*off < minOffsetMinutes || *off > maxOffsetMinutes) {
		return fmt.Errorf("timezone offset %d minutes out of range [%d, %d]", *off, minOffsetMinutes, maxOffsetMinutes)
	}

	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("reliability.rate_limit_rps must not be negative")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}
	return nil
}
