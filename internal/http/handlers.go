package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-snapshot-service/internal/client"
	"github.com/kjstillabower/weather-snapshot-service/internal/degraded"
	"github.com/kjstillabower/weather-snapshot-service/internal/lifecycle"
	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
	"github.com/kjstillabower/weather-snapshot-service/internal/service"
)

// Error bodies returned by the weather endpoint.
const (
	MsgUpstreamFailure = "Failed to fetch weather data"
	MsgUnexpected      = "Unexpected server error"
)

// SnapshotProvider is the service dependency of the weather endpoint.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context) (service.Result, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// BlobPing, when set, is called to check blob store reachability.
	BlobPing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	snapshots        SnapshotProvider
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(snapshots SnapshotProvider, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		snapshots:    snapshots,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetWeather handles /api/weather for any method. The request body and query are ignored.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	result, err := h.snapshots.GetSnapshot(r.Context())
	if err != nil {
		degraded.RecordError()
		observability.SnapshotErrorsTotal.WithLabelValues(service.ErrorCategory(err)).Inc()
		h.writeSnapshotError(w, r, err)
		return
	}
	degraded.RecordSuccess()
	if result.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if len(result.Body) == 0 {
		writeJSON(w, http.StatusOK, result.Snapshot)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}

// writeSnapshotError answers 500 with the upstream message when the weather API returned a
// non-success status, and the generic message for everything else.
func (h *Handler) writeSnapshotError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MsgUnexpected
	if errors.Is(err, client.ErrUpstreamFailure) {
		msg = MsgUpstreamFailure
	}
	h.requestLogger(r).Error("snapshot request failed", zap.Error(err), zap.String("response", msg))
	writeError(w, http.StatusInternalServerError, msg)
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return zap.NewNop()
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	blobHealthy, blobChecked := h.checkBlobStore(r.Context())
	result := h.computeHealthStatus(blobHealthy)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status && h.logger != nil {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if blobChecked {
		if blobHealthy {
			checks["blobStore"] = "healthy"
		} else {
			checks["blobStore"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// checkBlobStore pings the blob store when a ping function is configured.
func (h *Handler) checkBlobStore(ctx context.Context) (healthy, checked bool) {
	if h.healthConfig == nil || h.healthConfig.BlobPing == nil {
		return true, false
	}
	return h.healthConfig.BlobPing(ctx) == nil, true
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > error-rate degraded > blob store unreachable > healthy.
func (h *Handler) computeHealthStatus(blobHealthy bool) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if degraded.IsDegraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	if !blobHealthy {
		return healthResult{"degraded", http.StatusServiceUnavailable, "blob_store_unreachable"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": message} body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
