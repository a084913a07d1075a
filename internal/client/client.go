package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-snapshot-service/internal/observability"
)

// Fixed observation point served by this service.
const (
	Latitude  = "12.0750375"
	Longitude = "75.2727863"
)

const DefaultAPIURL = "https://api.openweathermap.org/data/2.5/weather"

type WeatherClient interface {
	GetCurrentConditions(ctx context.Context) (CurrentConditions, error)
}

var (
	// ErrUpstreamFailure wraps every non-2xx answer from the weather API.
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrRateLimited     = errors.New("rate limited")
)

// CurrentConditions is the subset of the OpenWeatherMap current-weather payload the service reads.
// Every field is optional upstream; nil means absent.
type CurrentConditions struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Weather []struct {
		ID *int `json:"id"`
	} `json:"weather"`
}

// OpenWeatherClient calls the current-weather endpoint for the fixed coordinate.
// One attempt per call; failures are returned to the caller as-is.
type OpenWeatherClient struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewOpenWeatherClient returns a client. The API key is not validated: an empty key is sent
// as-is and the upstream rejection surfaces as ErrUpstreamFailure. timeout 0 leaves the
// transport default (no client-side deadline).
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &OpenWeatherClient{
		apiKey: apiKey,
		apiURL: apiURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GetCurrentConditions fetches and decodes current conditions.
func (c *OpenWeatherClient) GetCurrentConditions(ctx context.Context) (CurrentConditions, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return CurrentConditions{}, fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return CurrentConditions{}, fmt.Errorf("request timeout: %w", err)
		}
		return CurrentConditions{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return CurrentConditions{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CurrentConditions{}, fmt.Errorf("read response body: %w", err)
	}

	var conditions CurrentConditions
	if err := json.Unmarshal(body, &conditions); err != nil {
		return CurrentConditions{}, fmt.Errorf("parse response: %w", err)
	}
	return conditions, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", Latitude)
	params.Set("lon", Longitude)
	params.Set("units", "metric")
	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse maps non-2xx statuses to ErrUpstreamFailure, additionally tagging
// auth and rate-limit answers so metrics can tell them apart.
func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrInvalidAPIKey)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrRateLimited)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
