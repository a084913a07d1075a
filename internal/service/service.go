package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-snapshot-service/internal/blob"
	"github.com/kjstillabower/weather-snapshot-service/internal/client"
	"github.com/kjstillabower/weather-snapshot-service/internal/models"
	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
)

// CacheKey is the single blob key the snapshot lives under.
const CacheKey = "weather-data"

// DefaultExpiry is how long a cached snapshot is served before refetching.
const DefaultExpiry = 2 * time.Minute

// Options unifies the deployment variants: a fixed timezone offset for timestamps
// and a write token for the blob store.
type Options struct {
	// TimezoneOffsetMinutes shifts the snapshot clock to a fixed UTC offset (330 = UTC+5:30).
	// nil stamps in UTC and takes is_day from the process-local clock.
	TimezoneOffsetMinutes *int
	// CacheWriteToken is supplied with every blob write; empty means none.
	CacheWriteToken string
	// Expiry overrides DefaultExpiry when positive.
	Expiry time.Duration
}

// Result is a served snapshot. Body is the JSON to send: on a hit the stored bytes unmodified,
// on a refresh the bytes just written. Snapshot is the typed view of Body; a stored blob may carry
// fields it cannot represent. Cached is true when Body came from the blob store.
type Result struct {
	Body     json.RawMessage
	Snapshot models.WeatherSnapshot
	Cached   bool
}

// SnapshotService serves the current weather snapshot for the fixed coordinate using
// cache-aside over a blob store with upstream API fallback. It holds no mutable state:
// concurrent misses each fetch upstream and each overwrite the blob.
type SnapshotService struct {
	client client.WeatherClient
	store  blob.Store
	opts   Options
	now    func() time.Time
}

// NewSnapshotService creates a SnapshotService with the provided dependencies.
func NewSnapshotService(client client.WeatherClient, store blob.Store, opts Options) *SnapshotService {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	return &SnapshotService{
		client: client,
		store:  store,
		opts:   opts,
		now:    time.Now,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetSnapshot returns the cached snapshot while it is younger than the expiry, otherwise
// fetches upstream, normalizes, writes the result back and returns it.
// Upstream non-2xx answers are returned wrapping client.ErrUpstreamFailure; a failed
// write is returned as an error even though the snapshot was built.
func (s *SnapshotService) GetSnapshot(ctx context.Context) (Result, error) {
	start := time.Now()
	logger := loggerFromContext(ctx)
	now := s.now()

	lookup := s.lookup(ctx)
	outcome := lookup.outcome(now, s.opts.Expiry)
	observability.SnapshotLookupsTotal.WithLabelValues(string(outcome)).Inc()
	if lookup.found {
		observability.SnapshotAgeSeconds.Observe(now.Sub(lookup.observedAt).Seconds())
	}

	switch outcome {
	case outcomeFresh:
		if logger != nil {
			logger.Debug("snapshot served", zap.Bool("cached", true), zap.String("time", lookup.snapshot.CurrentWeather.Time), zap.Duration("duration", time.Since(start)))
		}
		return Result{Body: lookup.content, Snapshot: lookup.snapshot, Cached: true}, nil
	case outcomeStale:
		if logger != nil {
			logger.Debug("cached snapshot expired, fetching upstream", zap.Duration("age", now.Sub(lookup.observedAt)))
		}
	default:
		if logger != nil {
			logger.Debug("cache miss, fetching upstream", zap.NamedError("reason", lookup.reason))
		}
	}

	conditions, err := s.client.GetCurrentConditions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch current conditions: %w", err)
	}

	snapshot := normalize(conditions, now, s.stampLocation(), s.dayLocation())
	content, err := s.write(ctx, snapshot)
	if err != nil {
		return Result{}, err
	}

	if logger != nil {
		logger.Debug("snapshot served", zap.Bool("cached", false), zap.String("time", snapshot.CurrentWeather.Time), zap.Duration("duration", time.Since(start)))
	}
	return Result{Body: content, Snapshot: snapshot, Cached: false}, nil
}

// write serializes the snapshot, overwrites the cache key and returns the bytes written.
func (s *SnapshotService) write(ctx context.Context, snapshot models.WeatherSnapshot) ([]byte, error) {
	content, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	putStart := time.Now()
	err = s.store.Put(ctx, CacheKey, content, blob.PutOptions{
		Access:         blob.AccessPublic,
		Token:          s.opts.CacheWriteToken,
		AllowOverwrite: true,
		ContentType:    "application/json",
	})
	duration := time.Since(putStart).Seconds()
	if err != nil {
		observability.BlobOperationDuration.WithLabelValues("put", "error").Observe(duration)
		observability.BlobErrorsTotal.WithLabelValues("put", ErrorCategory(err)).Inc()
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	observability.BlobOperationDuration.WithLabelValues("put", "success").Observe(duration)
	return content, nil
}

// ErrorCategory labels a snapshot failure for metrics. Blob store failures are recognized
// first; everything else is classified as an upstream or transport error.
func ErrorCategory(err error) string {
	if c := blob.CategorizeError(err); c != "" {
		return c
	}
	return string(client.CategorizeError(err))
}

// stampLocation is the zone snapshot timestamps are written and parsed in.
func (s *SnapshotService) stampLocation() *time.Location {
	if s.opts.TimezoneOffsetMinutes != nil {
		return fixedZone(*s.opts.TimezoneOffsetMinutes)
	}
	return time.UTC
}

// dayLocation is the zone whose hour decides is_day.
func (s *SnapshotService) dayLocation() *time.Location {
	if s.opts.TimezoneOffsetMinutes != nil {
		return fixedZone(*s.opts.TimezoneOffsetMinutes)
	}
	return time.Local
}

func fixedZone(offsetMinutes int) *time.Location {
	sign := "+"
	m := offsetMinutes
	if m < 0 {
		sign = "-"
		m = -m
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", sign, m/60, m%60), offsetMinutes*60)
}
