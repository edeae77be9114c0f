package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
)

// DefaultAPIURL is the OpenWeatherMap current-weather endpoint.
const DefaultAPIURL = "https://api.openweathermap.org/data/2.5/weather"

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 1 << 20

type WeatherClient interface {
	Fetch(ctx context.Context, city string) (models.WeatherPayload, error)
	HasAPIKey() bool
}

var (
	// ErrAPIKeyMissing is returned before any call when no key is configured.
	ErrAPIKeyMissing = errors.New("API key not configured")
	// ErrInvalidAPIKey wraps the provider's 401 response.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// UpstreamError is a failed provider call. Status is 0 for transport and decode failures.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("upstream HTTP %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type OpenWeatherClient struct {
	apiKey string
	apiURL *url.URL
	units  string
	client *http.Client
}

// NewOpenWeatherClient builds a client for apiURL. An empty apiKey is allowed;
// Fetch then fails with ErrAPIKeyMissing. timeout 0 keeps transport defaults.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration, units string) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL: unsupported scheme %q", u.Scheme)
	}

	httpClient := &http.Client{}
	if timeout > 0 {
		httpClient.Timeout = timeout
	}
	return &OpenWeatherClient{
		apiKey: strings.TrimSpace(apiKey),
		apiURL: u,
		units:  strings.TrimSpace(units),
		client: httpClient,
	}, nil
}

// HasAPIKey reports whether a provider key is configured.
func (c *OpenWeatherClient) HasAPIKey() bool {
	return c.apiKey != ""
}

// Fetch performs a single GET for city. No retries.
func (c *OpenWeatherClient) Fetch(ctx context.Context, city string) (models.WeatherPayload, error) {
	if !c.HasAPIKey() {
		return nil, ErrAPIKeyMissing
	}
	start := time.Now()

	req, err := c.buildRequest(ctx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, &UpstreamError{Message: fmt.Sprintf("build request: %v", err), Err: err}
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		err = c.redact(err)
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: fmt.Sprintf("read response body: %v", err), Err: err}
	}

	if err := c.handleErrorResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}

	payload, err := models.DecodePayload(body)
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("parse response: %v", err), Err: err}
	}
	return payload, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	u := *c.apiURL
	params := u.Query()
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	if c.units != "" {
		params.Set("units", c.units)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse maps non-2xx statuses. The provider's JSON "message" is
// preferred over the generic status text.
func (c *OpenWeatherClient) handleErrorResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	upErr := &UpstreamError{Status: statusCode, Message: providerMessage(statusCode, body)}
	if statusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrInvalidAPIKey, upErr)
	}
	return upErr
}

func providerMessage(statusCode int, body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if text := http.StatusText(statusCode); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected status"
}

// redact strips the API key from transport errors, which embed the request URL.
func (c *OpenWeatherClient) redact(err error) error {
	var uerr *url.Error
	if c.apiKey != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(c.apiKey), "REDACTED")
		uerr.URL = strings.ReplaceAll(uerr.URL, c.apiKey, "REDACTED")
	}
	return err
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
