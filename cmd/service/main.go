package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-snapshot-service/internal/app"
	"github.com/kjstillabower/weather-snapshot-service/internal/config"
	httphandler "github.com/kjstillabower/weather-snapshot-service/internal/http"
	"github.com/kjstillabower/weather-snapshot-service/internal/lifecycle"
	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.WeatherAPIKey == "" {
		logger.Warn("WEATHER_API_KEY is empty; upstream fetches will fail until it is set")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("app", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("blob_backend", cfg.BlobBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered", zap.Int64("in_flight", httphandler.InFlightCount()))
	err = lifecycle.Shutdown(context.Background(), logger, cfg.ShutdownTimeout,
		lifecycle.Step{Name: "server", Run: srv.Shutdown},
		lifecycle.Step{Name: "in_flight", Run: func(ctx context.Context) error {
			return httphandler.WaitForInFlight(ctx, inFlightCheckInterval)
		}},
		lifecycle.Step{Name: "blob_store", Run: func(context.Context) error { return a.Close() }},
		lifecycle.Step{Name: "telemetry", Run: func(ctx context.Context) error {
			return observability.FlushTelemetry(ctx, logger)
		}},
	)
	if err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
