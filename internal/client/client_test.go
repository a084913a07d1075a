package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewOpenWeatherClient_EmptyAPIKeyAccepted(t *testing.T) {
	client, err := NewOpenWeatherClient("", "https://api.test.com", 0)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v, want nil (key is not validated)", err)
	}
	if client == nil {
		t.Fatal("NewOpenWeatherClient() returned nil client")
	}
}

func TestNewOpenWeatherClient_DefaultURL(t *testing.T) {
	client, err := NewOpenWeatherClient("k", "", 0)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	if client.apiURL != DefaultAPIURL {
		t.Errorf("apiURL = %q, want %q", client.apiURL, DefaultAPIURL)
	}
}

func TestOpenWeatherClient_GetCurrentConditions_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("lat") != Latitude || q.Get("lon") != Longitude {
			t.Errorf("lat/lon = %s/%s, want %s/%s", q.Get("lat"), q.Get("lon"), Latitude, Longitude)
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		if q.Get("appid") != "test-api-key" {
			t.Errorf("appid = %q, want test-api-key", q.Get("appid"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"main":{"temp":30.05,"humidity":70},"wind":{"speed":2.2,"deg":180},"weather":[{"id":800}]}`))
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient("test-api-key", server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := client.GetCurrentConditions(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentConditions() error = %v", err)
	}
	if got.Main.Temp == nil || *got.Main.Temp != 30.05 {
		t.Errorf("Main.Temp = %v, want 30.05", got.Main.Temp)
	}
	if got.Main.Humidity == nil || *got.Main.Humidity != 70 {
		t.Errorf("Main.Humidity = %v, want 70", got.Main.Humidity)
	}
	if got.Wind.Speed == nil || *got.Wind.Speed != 2.2 {
		t.Errorf("Wind.Speed = %v, want 2.2", got.Wind.Speed)
	}
	if got.Wind.Deg == nil || *got.Wind.Deg != 180 {
		t.Errorf("Wind.Deg = %v, want 180", got.Wind.Deg)
	}
	if len(got.Weather) != 1 || got.Weather[0].ID == nil || *got.Weather[0].ID != 800 {
		t.Errorf("Weather = %+v, want one entry with id 800", got.Weather)
	}
}

// TestOpenWeatherClient_GetCurrentConditions_MissingFields verifies absent fields decode as nil
// rather than failing.
func TestOpenWeatherClient_GetCurrentConditions_MissingFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"main":{},"wind":{},"weather":[]}`))
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("k", server.URL, 0)
	got, err := client.GetCurrentConditions(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentConditions() error = %v", err)
	}
	if got.Main.Temp != nil || got.Main.Humidity != nil || got.Wind.Speed != nil || got.Wind.Deg != nil {
		t.Errorf("expected nil fields, got %+v", got)
	}
	if len(got.Weather) != 0 {
		t.Errorf("Weather = %+v, want empty", got.Weather)
	}
}

func TestOpenWeatherClient_GetCurrentConditions_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErrs   []error
	}{
		{name: "401 unauthorized", statusCode: http.StatusUnauthorized, wantErrs: []error{ErrUpstreamFailure, ErrInvalidAPIKey}},
		{name: "404 not found", statusCode: http.StatusNotFound, wantErrs: []error{ErrUpstreamFailure}},
		{name: "429 rate limited", statusCode: http.StatusTooManyRequests, wantErrs: []error{ErrUpstreamFailure, ErrRateLimited}},
		{name: "500 server error", statusCode: http.StatusInternalServerError, wantErrs: []error{ErrUpstreamFailure}},
		{name: "503 unavailable", statusCode: http.StatusServiceUnavailable, wantErrs: []error{ErrUpstreamFailure}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client, err := NewOpenWeatherClient("test-api-key", server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}

			_, err = client.GetCurrentConditions(context.Background())
			if err == nil {
				t.Fatalf("GetCurrentConditions() expected error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("GetCurrentConditions() error = %v, want %v", err, want)
				}
			}
		})
	}
}

// TestOpenWeatherClient_GetCurrentConditions_SingleAttempt verifies failures are not retried.
func TestOpenWeatherClient_GetCurrentConditions_SingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("k", server.URL, 0)
	_, _ = client.GetCurrentConditions(context.Background())

	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestOpenWeatherClient_GetCurrentConditions_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("k", server.URL, 0)
	_, err := client.GetCurrentConditions(context.Background())
	if err == nil {
		t.Fatal("GetCurrentConditions() expected error, got nil")
	}
	if errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetCurrentConditions() error = %v, must not be ErrUpstreamFailure", err)
	}
}

func TestOpenWeatherClient_GetCurrentConditions_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("k", server.URL, 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCurrentConditions(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetCurrentConditions() error = %v, want context.Canceled", err)
	}
}

func TestOpenWeatherClient_GetCurrentConditions_CorrelationID(t *testing.T) {
	var capturedCorrID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCorrID = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("k", server.URL, 2*time.Second)

	ctx := context.WithValue(context.Background(), "correlation_id", "test-correlation-id-123")
	if _, err := client.GetCurrentConditions(ctx); err != nil {
		t.Fatalf("GetCurrentConditions() error = %v", err)
	}
	if capturedCorrID != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", capturedCorrID, "test-correlation-id-123")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		204: "success",
		429: "rate_limited",
		401: "client_error",
		503: "server_error",
		302: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
