package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-snapshot-service/internal/models"
	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
)

type lookupOutcome string

const (
	outcomeFresh lookupOutcome = "fresh"
	outcomeStale lookupOutcome = "stale"
	outcomeMiss  lookupOutcome = "miss"
)

var errNoTimestamp = errors.New("snapshot has no current_weather.time")

// cacheLookup is the result of reading the cached snapshot. found is false when any step
// failed; reason then carries the failure for logging. It is never surfaced to callers.
// content holds the stored bytes exactly as read, which is what a hit serves.
type cacheLookup struct {
	content    json.RawMessage
	snapshot   models.WeatherSnapshot
	observedAt time.Time
	found      bool
	reason     error
}

// storedStamp is the only part of a stored snapshot freshness depends on.
type storedStamp struct {
	CurrentWeather struct {
		Time string `json:"time"`
	} `json:"current_weather"`
}

// outcome classifies the lookup. Fresh requires an age strictly below expiry.
func (l cacheLookup) outcome(now time.Time, expiry time.Duration) lookupOutcome {
	if !l.found {
		return outcomeMiss
	}
	if now.Sub(l.observedAt) < expiry {
		return outcomeFresh
	}
	return outcomeStale
}

func missed(err error) cacheLookup {
	return cacheLookup{reason: err}
}

// lookup resolves, reads and parses the cached snapshot.
func (s *SnapshotService) lookup(ctx context.Context) cacheLookup {
	getStart := time.Now()
	ref, err := s.store.Get(ctx, CacheKey)
	s.observeBlob("get", getStart, err)
	if err != nil {
		return missed(fmt.Errorf("resolve %s: %w", CacheKey, err))
	}

	readStart := time.Now()
	content, err := s.store.Read(ctx, ref)
	s.observeBlob("read", readStart, err)
	if err != nil {
		return missed(fmt.Errorf("read %s: %w", ref.URL, err))
	}

	var stamp storedStamp
	if err := json.Unmarshal(content, &stamp); err != nil {
		return missed(fmt.Errorf("parse snapshot: %w", err))
	}
	if stamp.CurrentWeather.Time == "" {
		return missed(errNoTimestamp)
	}
	observedAt, err := models.ParseStamp(stamp.CurrentWeather.Time, s.stampLocation())
	if err != nil {
		return missed(err)
	}

	// The typed view is best-effort; fields it cannot hold stay only in content.
	var snapshot models.WeatherSnapshot
	_ = json.Unmarshal(content, &snapshot)
	return cacheLookup{content: content, snapshot: snapshot, observedAt: observedAt, found: true}
}

func (s *SnapshotService) observeBlob(op string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.BlobOperationDuration.WithLabelValues(op, "error").Observe(duration)
		observability.BlobErrorsTotal.WithLabelValues(op, ErrorCategory(err)).Inc()
		return
	}
	observability.BlobOperationDuration.WithLabelValues(op, "success").Observe(duration)
}
