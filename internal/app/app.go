// Package app wires configuration into a ready-to-serve router. The long-running server
// and the serverless entry point build the same stack through New.
package app

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-snapshot-service/internal/blob"
	"github.com/kjstillabower/weather-snapshot-service/internal/client"
	"github.com/kjstillabower/weather-snapshot-service/internal/config"
	"github.com/kjstillabower/weather-snapshot-service/internal/degraded"
	httphandler "github.com/kjstillabower/weather-snapshot-service/internal/http"
	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
	"github.com/kjstillabower/weather-snapshot-service/internal/service"
)

// App is the assembled service.
type App struct {
	Router  http.Handler
	Store   blob.Store
	Service *service.SnapshotService

	closer io.Closer
}

// New builds the blob store, weather client, snapshot service and router from cfg.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, closer, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("weather client: %w", err)
	}

	svc := service.NewSnapshotService(weatherClient, store, service.Options{
		TimezoneOffsetMinutes: cfg.TimezoneOffsetMinutes,
		CacheWriteToken:       cfg.BlobToken,
		Expiry:                cfg.SnapshotExpiry,
	})

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if p, ok := store.(blob.Pinger); ok {
		healthConfig.BlobPing = p.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	window := cfg.DegradedWindow
	observability.RegisterErrorRateGauge(func() float64 { return degraded.ErrorFraction(window) })

	handler := httphandler.NewHandler(svc, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RateLimiter:    limiter,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	return &App{
		Router:  router,
		Store:   store,
		Service: svc,
		closer:  closer,
	}, nil
}

// Close releases blob store connections. Safe to call on stores without connections.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func newStore(cfg *config.Config, logger *zap.Logger) (blob.Store, io.Closer, error) {
	switch cfg.BlobBackend {
	case config.BackendMemcached:
		mc, err := blob.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached blob store: %w", err)
		}
		logger.Info("blob backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc, nil
	case config.BackendRedis:
		rs, err := blob.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis blob store: %w", err)
		}
		logger.Info("blob backend: redis")
		return rs, rs, nil
	case config.BackendHTTP:
		hs, err := blob.NewHTTPStore(cfg.BlobAPIURL, cfg.BlobToken, &http.Client{Timeout: cfg.BlobTimeout})
		if err != nil {
			return nil, nil, fmt.Errorf("http blob store: %w", err)
		}
		logger.Info("blob backend: http", zap.String("api_url", cfg.BlobAPIURL))
		return hs, nil, nil
	case config.BackendInMemory, "":
		logger.Info("blob backend: in_memory")
		return blob.NewInMemoryStore(cfg.BlobToken), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
