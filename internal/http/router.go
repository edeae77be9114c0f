package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
)

// NewRouter wires the public routes. requestTimeout applies to /api/weather only.
func NewRouter(h *Handler, logger *zap.Logger, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(LoggingMiddleware)

	router.HandleFunc("/api/health", h.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/db-test", h.GetDBTest).Methods(http.MethodGet)
	router.Handle("/api/weather", TimeoutMiddleware(requestTimeout)(http.HandlerFunc(h.GetWeather))).Methods(http.MethodGet)
	router.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// Router middleware only runs for matched routes.
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found", "")
	})
	router.NotFoundHandler = CorrelationIDMiddleware(logger)(MetricsMiddleware(LoggingMiddleware(notFound)))
	return router
}
