package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/client"
	"github.com/kjstillabower/weather-cache-gateway/internal/models"
	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
	"github.com/kjstillabower/weather-cache-gateway/internal/service"
	"github.com/kjstillabower/weather-cache-gateway/internal/validation"
)

// Response messages. Clients match on these strings.
const (
	msgCityRequired     = "City is required"
	msgAPIKeyMissing    = "API key not configured"
	msgFetchFailed      = "Failed to fetch weather data"
	msgRootDescription  = "Weather API with database caching"
	exampleWeatherRoute = "/api/weather?city=Kyiv"
)

// WeatherGetter serves annotated weather payloads.
type WeatherGetter interface {
	GetWeather(ctx context.Context, city string) (models.WeatherPayload, error)
}

// ConnectivityMonitor exposes and refreshes the cache store status.
type ConnectivityMonitor interface {
	Probe(ctx context.Context) models.ConnectivityStatus
	Status() models.ConnectivityStatus
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather WeatherGetter
	monitor ConnectivityMonitor
	version string
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler returns a new Handler. version is reported by health and root responses.
func NewHandler(weather WeatherGetter, monitor ConnectivityMonitor, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather: weather,
		monitor: monitor,
		version: version,
		logger:  logger,
		now:     time.Now,
	}
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Timestamp time.Time                 `json:"timestamp"`
	Version   string                    `json:"version"`
	Database  models.ConnectivityStatus `json:"database"`
}

type dbTestResponse struct {
	Success   bool                      `json:"success"`
	Database  models.ConnectivityStatus `json:"database"`
	Timestamp time.Time                 `json:"timestamp"`
}

type rootResponse struct {
	Message   string                    `json:"message"`
	Endpoints map[string]string         `json:"endpoints"`
	Version   string                    `json:"version"`
	Database  models.ConnectivityStatus `json:"database"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// GetHealth handles GET /api/health. Always 200; store problems show up in database.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	observability.LoggerFromContext(r.Context()).Debug("health check requested")
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC(),
		Version:   h.version,
		Database:  h.monitor.Status(),
	})
}

// GetDBTest handles GET /api/db-test. Runs a probe synchronously and reports its outcome.
func (h *Handler) GetDBTest(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Probe(r.Context())
	observability.LoggerFromContext(r.Context()).Info("database test requested", zap.Bool("connected", status.Connected))
	writeJSON(w, http.StatusOK, dbTestResponse{
		Success:   status.Connected,
		Database:  status,
		Timestamp: h.now().UTC(),
	})
}

// GetWeather handles GET /api/weather?city=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	payload, err := h.weather.GetWeather(r.Context(), city)
	if err != nil {
		h.writeWeatherError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message: msgRootDescription,
		Endpoints: map[string]string{
			"health":  "/api/health",
			"weather": exampleWeatherRoute,
			"dbTest":  "/api/db-test",
		},
		Version:  h.version,
		Database: h.monitor.Status(),
	})
}

// writeWeatherError maps gateway errors to status codes. Provider details are
// passed through; they never carry the API key.
func (h *Handler) writeWeatherError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, validation.ErrCityRequired):
		writeError(w, r, http.StatusBadRequest, msgCityRequired, "")
	case errors.Is(err, validation.ErrCityTooLong), errors.Is(err, validation.ErrCityInvalidChars):
		writeError(w, r, http.StatusBadRequest, "Invalid city", err.Error())
	case errors.Is(err, client.ErrInvalidAPIKey):
		logger.Error("provider rejected API key")
		writeError(w, r, http.StatusUnauthorized, msgAPIKeyMissing, "")
	case errors.Is(err, service.ErrAPIKeyNotConfigured), errors.Is(err, client.ErrAPIKeyMissing):
		logger.Error("weather requested without API key")
		writeError(w, r, http.StatusInternalServerError, msgAPIKeyMissing, "")
	default:
		details := err.Error()
		var upErr *client.UpstreamError
		if errors.As(err, &upErr) {
			details = upErr.Error()
		}
		logger.Warn("weather fetch failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, msgFetchFailed, details)
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {error, details?, requestId?}. requestId is the correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Details:   details,
		RequestID: observability.CorrelationID(r.Context()),
	})
}
