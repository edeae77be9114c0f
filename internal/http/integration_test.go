//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
	"github.com/kjstillabower/weather-cache-gateway/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

func setupIntegrationRouter(t *testing.T) http.Handler {
	cfg := testhelpers.GetIntegrationConfig(t)
	gw := testhelpers.SetupIntegrationGateway(t, cfg)
	h := NewHandler(gw.Service, gw.Monitor, "integration", testLogger)
	return NewRouter(h, testLogger, 10*time.Second)
}

func integrationGet(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, w.Body.String())
	}
	return w, body
}

// TestIntegration_GetWeather_MissThenHit verifies the real provider is called once
// and the second request is served from the store.
func TestIntegration_GetWeather_MissThenHit(t *testing.T) {
	router := setupIntegrationRouter(t)
	city := "Kyiv"

	w, first := integrationGet(t, router, "/api/weather?city="+city)
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d: %s", w.Code, w.Body.String())
	}
	info := first["_cache_info"].(map[string]any)
	if info["cached"] == true {
		t.Log("first request was already cached by an earlier run")
	}

	w, second := integrationGet(t, router, "/api/weather?city="+strings.ToLower(city))
	if w.Code != http.StatusOK {
		t.Fatalf("second status = %d: %s", w.Code, w.Body.String())
	}
	if second["_cache_info"].(map[string]any)["cached"] != true {
		t.Errorf("second _cache_info = %v, want cached", second["_cache_info"])
	}
}

// TestIntegration_GetWeather_UnknownCity verifies provider errors surface as 500 with details.
func TestIntegration_GetWeather_UnknownCity(t *testing.T) {
	router := setupIntegrationRouter(t)

	w, body := integrationGet(t, router, "/api/weather?city=NoSuchCityXYZ123")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "Failed to fetch weather data" || body["details"] == nil {
		t.Errorf("body = %v", body)
	}
}

// TestIntegration_DBTest_FullStack verifies the synchronous probe against the configured store.
func TestIntegration_DBTest_FullStack(t *testing.T) {
	router := setupIntegrationRouter(t)

	w, body := integrationGet(t, router, "/api/db-test")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["success"] != true {
		t.Errorf("db-test = %v, want success", body)
	}
}
