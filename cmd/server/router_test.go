package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/notify"
	"onboarding/internal/platform/metrics"
	ratelimit "onboarding/internal/ratelimit/middleware"
	"onboarding/internal/ratelimit/store/bucket"
	"onboarding/internal/registration/service"
	"onboarding/internal/registration/store/image"
	"onboarding/internal/registration/store/session"
	"onboarding/pkg/testutil"
)

func newTestRouter(t *testing.T, sessionsPerMinute int) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appMetrics := metrics.New(prometheus.NewRegistry())
	registration := service.New(session.New(), image.New(), notify.NewLogPublisher(log),
		service.WithLogger(log),
		service.WithMetrics(appMetrics),
	)
	limiter := ratelimit.New("session_start", sessionsPerMinute, time.Minute, bucket.NewInMemoryBucketStore(), log)
	return newRouter(routerDeps{
		registration:       registration,
		startLimiter:       limiter.Handler,
		metrics:            appMetrics,
		logger:             log,
		corsAllowedOrigins: []string{"https://merchant.example"},
		maxUploadBytes:     1 << 20,
	})
}

func serve(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterScaffold(t *testing.T) {
	testutil.Given(t, "the assembled HTTP router", func(t *testing.T) {
		router := newTestRouter(t, 2)

		testutil.When(t, "calling GET /health without redis", func(t *testing.T) {
			rec := serve(router, http.MethodGet, "/health", nil)

			testutil.Then(t, "it reports ok and omits the redis status", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
			})
		})

		testutil.When(t, "starting sessions from one IP beyond the limit", func(t *testing.T) {
			ip := map[string]string{"X-Forwarded-For": "203.0.113.50"}
			first := serve(router, http.MethodPost, "/registration/sessions", ip)
			second := serve(router, http.MethodPost, "/registration/sessions", ip)
			third := serve(router, http.MethodPost, "/registration/sessions", ip)

			testutil.Then(t, "the limiter refuses the third start", func(t *testing.T) {
				assert.Equal(t, http.StatusCreated, first.Code)
				assert.Equal(t, http.StatusCreated, second.Code)
				assert.Equal(t, http.StatusTooManyRequests, third.Code)
				assert.NotEmpty(t, third.Header().Get("Retry-After"))
			})
		})

		testutil.When(t, "reading a session that was never started", func(t *testing.T) {
			rec := serve(router, http.MethodGet, "/registration/sessions/0d6f3b0e-5d1f-4c5e-9a55-3c1b8c3f1a10", nil)

			testutil.Then(t, "it responds with not found", func(t *testing.T) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
			})
		})

		testutil.When(t, "calling GET /registration/categories", func(t *testing.T) {
			rec := serve(router, http.MethodGet, "/registration/categories", nil)

			testutil.Then(t, "it returns the catalog", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rec.Code)
				assert.Contains(t, rec.Body.String(), `"categories"`)
			})
		})

		testutil.When(t, "a browser sends a CORS preflight", func(t *testing.T) {
			rec := serve(router, http.MethodOptions, "/registration/sessions", map[string]string{
				"Origin":                        "https://merchant.example",
				"Access-Control-Request-Method": http.MethodPost,
			})

			testutil.Then(t, "the configured origin is allowed", func(t *testing.T) {
				assert.Equal(t, "https://merchant.example", rec.Header().Get("Access-Control-Allow-Origin"))
			})
		})

		testutil.When(t, "scraping /metrics", func(t *testing.T) {
			rec := serve(router, http.MethodGet, "/metrics", nil)

			testutil.Then(t, "prometheus text is served", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
			})
		})
	})
}
