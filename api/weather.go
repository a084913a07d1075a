// Package handler is the serverless entry point. The platform routes /api/weather here.
package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-snapshot-service/internal/app"
	"github.com/kjstillabower/weather-snapshot-service/internal/config"
	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
)

var (
	mu       sync.Mutex
	instance *app.App
)

// Handler serves the weather snapshot. The stack is built from the environment on first use
// and reused across warm invocations. A failed build is retried on the next request.
func Handler(w http.ResponseWriter, r *http.Request) {
	a, err := load()
	serve(w, r, a, err)
}

func load() (*app.App, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}
	a, err := build()
	if err != nil {
		return nil, err
	}
	instance = a
	return a, nil
}

func build() (*app.App, error) {
	logger, err := observability.NewLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("app", zap.Error(err))
		return nil, err
	}
	return a, nil
}

func serve(w http.ResponseWriter, r *http.Request, a *app.App, err error) {
	if err != nil || a == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unexpected server error"})
		return
	}
	a.Router.ServeHTTP(w, r)
}
