//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-snapshot-service/internal/blob"
	"github.com/kjstillabower/weather-snapshot-service/internal/client"
	"github.com/kjstillabower/weather-snapshot-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	BlobBackend   string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisURL      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		BlobBackend:   os.Getenv("INTEGRATION_BLOB_BACKEND"),
		MemcachedAddr: memcachedAddr,
		RedisURL:      redisURL,
	}
}

// SetupIntegrationService creates a snapshot service against the real weather API.
// Returns the service, its blob store (for seeding), and a cleanup function.
// Unreachable memcached or redis falls back to the in-memory store.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.SnapshotService, blob.Store, func()) {
	t.Helper()
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	store, cleanup := setupStore(t, cfg)
	svc := service.NewSnapshotService(weatherClient, store, service.Options{})
	return svc, store, cleanup
}

func setupStore(t *testing.T, cfg IntegrationTestConfig) (blob.Store, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch cfg.BlobBackend {
	case "memcached":
		mc, err := blob.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping(ctx) == nil {
			t.Logf("Using memcached blob store at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("memcached not available, using in-memory store")
	case "redis":
		rs, err := blob.NewRedisStore(cfg.RedisURL)
		if err == nil && rs.Ping(ctx) == nil {
			t.Logf("Using redis blob store at %s", cfg.RedisURL)
			return rs, func() { _ = rs.Close() }
		}
		t.Logf("redis not available, using in-memory store")
	}
	return blob.NewInMemoryStore(""), func() {}
}

// ClearSnapshot overwrites the stored snapshot with content that fails to decode,
// so the next request is treated as a miss.
func ClearSnapshot(ctx context.Context, t *testing.T, store blob.Store) {
	t.Helper()
	err := store.Put(ctx, service.CacheKey, []byte("{}"), blob.PutOptions{Access: blob.AccessPublic, AllowOverwrite: true})
	if err != nil {
		t.Fatalf("ClearSnapshot() error = %v", err)
	}
}
