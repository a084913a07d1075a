package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// configEnvVars are cleared for every test so the host environment cannot leak in.
var configEnvVars = []string{
	"ENV_NAME", "PORT", "WEATHER_API_KEY", "WEATHER_API_URL", "WEATHER_API_TIMEOUT",
	"TIMEZONE_OFFSET_MINUTES", "BLOB_BACKEND", "BLOB_READ_WRITE_TOKEN", "BLOB_API_URL",
	"MEMCACHED_ADDRS", "REDIS_URL", "RATE_LIMIT_RPS",
}

// inTempProject clears config env vars and changes into an empty temp directory.
func inTempProject(t *testing.T) string {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

const minimalEnvYAML = `
server:
  port: "9090"
weather_api:
  url: "https://api.example.com"
snapshot:
  expiry: "2m"
blob:
  backend: in_memory
shutdown:
  timeout: "10s"
`

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	inTempProject(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.WeatherAPIKey != "" {
		t.Errorf("WeatherAPIKey = %q, want empty", cfg.WeatherAPIKey)
	}
	if cfg.WeatherAPITimeout != 0 {
		t.Errorf("WeatherAPITimeout = %v, want 0 (transport default)", cfg.WeatherAPITimeout)
	}
	if cfg.SnapshotExpiry != 2*time.Minute {
		t.Errorf("SnapshotExpiry = %v, want 2m", cfg.SnapshotExpiry)
	}
	if cfg.BlobBackend != BackendInMemory {
		t.Errorf("BlobBackend = %q, want in_memory", cfg.BlobBackend)
	}
	if cfg.TimezoneOffsetMinutes != nil {
		t.Errorf("TimezoneOffsetMinutes = %d, want nil", *cfg.TimezoneOffsetMinutes)
	}
	if cfg.RateLimitRPS != 0 {
		t.Errorf("RateLimitRPS = %d, want 0 (disabled)", cfg.RateLimitRPS)
	}
}

// TestLoad_MissingAPIKeyIsNotAnError verifies the key is passed through unvalidated.
func TestLoad_MissingAPIKeyIsNotAnError(t *testing.T) {
	dir := inTempProject(t)
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil without WEATHER_API_KEY", err)
	}
	if cfg.WeatherAPIKey != "" {
		t.Errorf("WeatherAPIKey = %q, want empty", cfg.WeatherAPIKey)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090 from file", cfg.ServerPort)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	dir := inTempProject(t)
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\nblob_read_write_token: tok\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
	if cfg.BlobToken != "tok" {
		t.Errorf("BlobToken = %q, want tok", cfg.BlobToken)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := inTempProject(t)
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: from-file\n")
	t.Setenv("WEATHER_API_KEY", "from-env")
	t.Setenv("PORT", "3000")
	t.Setenv("TIMEZONE_OFFSET_MINUTES", "330")
	t.Setenv("BLOB_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("BLOB_READ_WRITE_TOKEN", "env-token")
	t.Setenv("WEATHER_API_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_RPS", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-env" {
		t.Errorf("WeatherAPIKey = %q, want from-env", cfg.WeatherAPIKey)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000", cfg.ServerPort)
	}
	if cfg.TimezoneOffsetMinutes == nil || *cfg.TimezoneOffsetMinutes != 330 {
		t.Errorf("TimezoneOffsetMinutes = %v, want 330", cfg.TimezoneOffsetMinutes)
	}
	if cfg.BlobBackend != BackendRedis {
		t.Errorf("BlobBackend = %q, want redis", cfg.BlobBackend)
	}
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.BlobToken != "env-token" {
		t.Errorf("BlobToken = %q, want env-token", cfg.BlobToken)
	}
	if cfg.WeatherAPITimeout != 3*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 3s", cfg.WeatherAPITimeout)
	}
	if cfg.RateLimitRPS != 20 || cfg.RateLimitBurst != 20 {
		t.Errorf("RateLimit = %d/%d, want 20/20 (burst defaults to rps)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := inTempProject(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=from-dotenv\nTIMEZONE_OFFSET_MINUTES=-180\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want from-dotenv", cfg.WeatherAPIKey)
	}
	if cfg.TimezoneOffsetMinutes == nil || *cfg.TimezoneOffsetMinutes != -180 {
		t.Errorf("TimezoneOffsetMinutes = %v, want -180", cfg.TimezoneOffsetMinutes)
	}
}

func TestLoad_TimezoneOffsetFromFile(t *testing.T) {
	dir := inTempProject(t)
	writeEnvFile(t, dir, "snapshot:\n  timezone_offset_minutes: 330\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TimezoneOffsetMinutes == nil || *cfg.TimezoneOffsetMinutes != 330 {
		t.Errorf("TimezoneOffsetMinutes = %v, want 330", cfg.TimezoneOffsetMinutes)
	}
}

func TestLoad_NamedEnvFileNotFound(t *testing.T) {
	inTempProject(t)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing named env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	dir := inTempProject(t)
	writeEnvFile(t, dir, "snapshot:\n  expiry: \"invalid\"\nshutdown:\n  timeout: \"\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SnapshotExpiry != 2*time.Minute {
		t.Errorf("SnapshotExpiry = %v, want default 2m", cfg.SnapshotExpiry)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	dir := inTempProject(t)
	writeEnvFile(t, dir, "server: [unclosed\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	dir := inTempProject(t)
	writeSecretsFile(t, dir, "weather_api_key: [unclosed\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid secrets YAML, got nil")
	}
}

func TestLoad_InvalidOffsetEnv(t *testing.T) {
	inTempProject(t)
	t.Setenv("TIMEZONE_OFFSET_MINUTES", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for non-numeric offset, got nil")
	}
}

func TestValidate(t *testing.T) {
	offset := func(v int) *int { return &v }
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.BlobBackend = "s3" }, "blob.backend"},
		{"http without url", func(c *Config) { c.BlobBackend = BackendHTTP }, "BLOB_API_URL"},
		{"http with url", func(c *Config) { c.BlobBackend = BackendHTTP; c.BlobAPIURL = "https://blob.example.com/api" }, ""},
		{"offset too low", func(c *Config) { c.TimezoneOffsetMinutes = offset(-721) }, "out of range"},
		{"offset too high", func(c *Config) { c.TimezoneOffsetMinutes = offset(841) }, "out of range"},
		{"offset at bounds", func(c *Config) { c.TimezoneOffsetMinutes = offset(840) }, ""},
		{"negative upstream timeout", func(c *Config) { c.WeatherAPITimeout = -time.Second }, "weather_api.timeout"},
		{"negative rate", func(c *Config) { c.RateLimitRPS = -1 }, "rate_limit_rps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fromFile(fileConfig{}, secretsFile{})
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RequestTimeoutAboveUpstreamTimeout(t *testing.T) {
	cfg := fromFile(fileConfig{}, secretsFile{})
	cfg.WeatherAPITimeout = 5 * time.Second
	cfg.RequestTimeout = 2 * time.Second
	if err := validate(cfg); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.RequestTimeout != 6*time.Second {
		t.Errorf("RequestTimeout = %v, want 6s", cfg.RequestTimeout)
	}
}

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

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
// Run with -v to see skip reasons. These gaps do not affect coverage targets.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("readYAML_read_error", func(t *testing.T) {
		t.Skip("read-error path (non-IsNotExist) requires simulated ReadFile failure; would need OS-specific tricks, not worth portability cost")
	})
	t.Run("Load_getwd_error", func(t *testing.T) {
		t.Skip("os.Getwd fails only when the working directory is removed underneath the process")
	})
}
