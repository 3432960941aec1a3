package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/metrics"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// fakeAuth answers GetUser and RefreshSession from fixed tables.
type fakeAuth struct {
	database.AuthClient
	users    map[string]*models.AuthUser
	sessions map[string]*models.Session
	calls    int
}

func (f *fakeAuth) GetUser(_ context.Context, token string) (*models.AuthUser, error) {
	f.calls++
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, &database.APIError{Status: http.StatusUnauthorized, Message: "invalid JWT"}
}

func (f *fakeAuth) RefreshSession(_ context.Context, refresh string) (*models.Session, error) {
	f.calls++
	if s, ok := f.sessions[refresh]; ok {
		return s, nil
	}
	return nil, &database.APIError{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"}
}

type fakeClient struct {
	auth *fakeAuth
}

func (c *fakeClient) Auth() database.AuthClient             { return c.auth }
func (c *fakeClient) Store(models.Caller) database.Store    { return nil }
func (c *fakeClient) Photos() database.PhotoStore           { return nil }
func (c *fakeClient) HealthCheck(ctx context.Context) error { return nil }
func (c *fakeClient) Close() error                          { return nil }

func callerEcho(got *models.Caller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestSessionUnconfiguredIsAnonymous(t *testing.T) {
	var got models.Caller
	h := Session(&config.Config{}, database.Backend{}, logging.Discard())(callerEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer anything")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, got.Anonymous())
}

func TestSessionVerifiesBearerLocally(t *testing.T) {
	secret := "test-secret-with-enough-length-0123456789"
	token, err := utils.NewJWTService(secret).SignAccessToken("u-1", "ada@example.org", time.Hour)
	require.NoError(t, err)

	auth := &fakeAuth{}
	var got models.Caller
	h := Session(&config.Config{SupabaseJWTSecret: secret}, database.Configured(&fakeClient{auth: auth}), logging.Discard())(callerEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, models.Caller{UserID: "u-1", Email: "ada@example.org", AccessToken: token}, got)
	assert.Zero(t, auth.calls)
}

func TestSessionAsksProviderWithoutSecret(t *testing.T) {
	auth := &fakeAuth{users: map[string]*models.AuthUser{"opaque": {ID: "u-2", Email: "b@example.org"}}}
	var got models.Caller
	h := Session(&config.Config{}, database.Configured(&fakeClient{auth: auth}), logging.Discard())(callerEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "opaque"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "u-2", got.UserID)
	assert.Equal(t, "opaque", got.AccessToken)
}

func TestSessionRefreshesExpiredCookie(t *testing.T) {
	secret := "test-secret-with-enough-length-0123456789"
	expired, err := utils.NewJWTService(secret).SignAccessToken("u-1", "ada@example.org", -time.Minute)
	require.NoError(t, err)

	fresh := &models.Session{
		AccessToken:  "new-at",
		RefreshToken: "new-rt",
		ExpiresIn:    3600,
		User:         &models.AuthUser{ID: "u-1", Email: "ada@example.org"},
	}
	auth := &fakeAuth{sessions: map[string]*models.Session{"rt": fresh}}
	var got models.Caller
	h := Session(&config.Config{SupabaseJWTSecret: secret}, database.Configured(&fakeClient{auth: auth}), logging.Discard())(callerEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: expired})
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "rt"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "new-at", got.AccessToken)

	cookies := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c.Value
	}
	assert.Equal(t, "new-at", cookies[AccessTokenCookie])
	assert.Equal(t, "new-rt", cookies[RefreshTokenCookie])
}

func TestSessionFailedRefreshClearsCookies(t *testing.T) {
	auth := &fakeAuth{}
	var got models.Caller
	h := Session(&config.Config{}, database.Configured(&fakeClient{auth: auth}), logging.Discard())(callerEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "revoked"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, got.Anonymous())
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestTakeCodeVerifier(t *testing.T) {
	cfg := &config.Config{}
	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	req.AddCookie(&http.Cookie{Name: CodeVerifierCookie, Value: "v"})
	rec := httptest.NewRecorder()

	assert.Equal(t, "v", TakeCodeVerifier(rec, req, cfg))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

	assert.Empty(t, TakeCodeVerifier(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), cfg))
}

func TestRateLimitByIP(t *testing.T) {
	h := RateLimitByIP(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.JSONEq(t, `{"error":"Too many requests. Please try again later."}`, rec.Body.String())
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRecoveryWritesInternalError(t *testing.T) {
	h := Recovery(&config.Config{Environment: "production"}, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestLoggerCountsByRoutePattern(t *testing.T) {
	m := metrics.NewCollector()
	r := chi.NewRouter()
	r.Use(Logger(logging.Discard(), m))
	r.Get("/api/beneficiaries/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/beneficiaries/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/beneficiaries/456", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m, "impact_story_http_requests_total"))
}

func TestLoggerSeesSessionCaller(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	auth := &fakeAuth{users: map[string]*models.AuthUser{"opaque": {ID: "u-2", Email: "b@example.org"}}}

	r := chi.NewRouter()
	r.Use(Logger(log, nil))
	r.Use(Session(&config.Config{}, database.Configured(&fakeClient{auth: auth}), logging.Discard()))
	r.Get("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "opaque"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "u-2", hook.LastEntry().Data["user"])
	assert.Equal(t, "/api/dashboard", hook.LastEntry().Data["route"])

	hook.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "anonymous", hook.LastEntry().Data["user"])
}

func TestRequestOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://internal/auth/signup", nil)
	req.Header.Set("Origin", "https://app.example/")
	assert.Equal(t, "https://app.example", RequestOrigin(req))

	req = httptest.NewRequest(http.MethodPost, "/auth/signup", nil)
	req.Host = "impact.example"
	req.Header.Set("X-Forwarded-Proto", "https")
	var got string
	Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestOrigin(r)
	})).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "https://impact.example", got)
}
