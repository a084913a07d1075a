package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
)

// RouterConfig configures optional protections on the weather routes.
type RouterConfig struct {
	// RateLimiter, when non-nil, bounds weather requests. nil disables limiting.
	RateLimiter *rate.Limiter
	// RequestTimeout bounds a weather request. 0 leaves requests without a deadline.
	RequestTimeout time.Duration
}

// NewRouter wires the weather, health and metrics routes behind the shared middleware chain.
// The weather routes accept any method.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(RecoveryMiddleware(logger))

	weather := RateLimitMiddleware(cfg.RateLimiter)(
		TimeoutMiddleware(cfg.RequestTimeout)(http.HandlerFunc(h.GetWeather)),
	)
	router.Handle("/api/weather", weather)
	router.Handle("/weather", weather)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	return router
}
