package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/handlers"
	"impact-story-backend/pkg/logging"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:           "test",
		Port:                  "3000",
		SiteURL:               "http://localhost:3000",
		AllowedOrigins:        []string{"*"},
		RequestTimeout:        10 * time.Second,
		PageCacheTTL:          time.Minute,
		AuthRateLimitRequests: 2,
		AuthRateLimitWindow:   time.Minute,
	}
}

func unconfiguredApp(t *testing.T) *App {
	t.Helper()
	app, err := New(testConfig(), logging.Discard())
	require.NoError(t, err)
	return app
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealthCheckWithoutBackend(t *testing.T) {
	app := unconfiguredApp(t)
	_, ok := app.Backend.Client()
	assert.False(t, ok)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "not_configured", body.Data["backend_status"])
	assert.Equal(t, "none", body.Data["data_plane"])
}

func TestActionsReportMissingBackend(t *testing.T) {
	app := unconfiguredApp(t)

	for _, target := range []string{"/beneficiaries", "/stories", "/reports", "/organization", "/settings", "/auth/logout"} {
		rec := serve(app, postForm(target, url.Values{"name": {"x"}}))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		assert.JSONEq(t, `{"error":"Supabase is not configured"}`, rec.Body.String(), target)
	}
}

func TestViewsReportMissingBackend(t *testing.T) {
	app := unconfiguredApp(t)

	for _, target := range []string{"/api/dashboard", "/api/beneficiaries", "/api/stories", "/api/reports", "/api/organization", "/api/settings"} {
		rec := serve(app, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestAuthRateLimit(t *testing.T) {
	app := unconfiguredApp(t)

	var codes []int
	for i := 0; i < 3; i++ {
		rec := serve(app, postForm("/auth/login", url.Values{"email": {"a@example.org"}, "password": {"secret123"}}))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusTooManyRequests}, codes)

	// Sign-out is not limited.
	rec := serve(app, postForm("/auth/logout", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOversizedSubmission(t *testing.T) {
	app := unconfiguredApp(t)

	body := bytes.Repeat([]byte("a"), handlers.MaxActionBody+1)
	req := httptest.NewRequest(http.MethodPost, "/stories", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := serve(app, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"File size exceeds 5.0 MiB"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	app := unconfiguredApp(t)
	serve(app, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "impact_story_http_requests_total")
}

func TestUnknownRoutes(t *testing.T) {
	app := unconfiguredApp(t)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodDelete, "/beneficiaries", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDebugRoutesOnlyInDevelopment(t *testing.T) {
	rec := serve(unconfiguredApp(t), httptest.NewRequest(http.MethodGet, "/debug/db-pool", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := testConfig()
	cfg.Environment = "development"
	app := NewWithBackend(cfg, logging.Discard(), database.Backend{})
	rec = serve(app, httptest.NewRequest(http.MethodGet, "/debug/db-pool", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
