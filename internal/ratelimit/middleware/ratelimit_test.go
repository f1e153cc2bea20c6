package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/ratelimit/metrics"
	"onboarding/internal/ratelimit/models"
	"onboarding/internal/ratelimit/store/bucket"
	audit "onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/circuit"
)

type failingStore struct {
	mu    sync.Mutex
	fail  bool
	calls int
	inner BucketStore
}

func (f *failingStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return f.inner.Allow(ctx, key, limit, window)
}

func (f *failingStore) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Emit(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type RateLimitMiddlewareSuite struct {
	suite.Suite
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor *recordingAuditor
}

func TestRateLimitMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(RateLimitMiddlewareSuite))
}

func (s *RateLimitMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.auditor = &recordingAuditor{}
}

func (s *RateLimitMiddlewareSuite) serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.RemoteAddr = ip + ":51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func (s *RateLimitMiddlewareSuite) TestLimitsPerClientIP() {
	m := New("session_start", 2, time.Minute, bucket.NewInMemoryBucketStore(), s.logger,
		WithMetrics(s.metrics),
		WithAuditPublisher(s.auditor),
	)
	h := m.Handler(okHandler())

	s.Run("requests within the limit pass with headers", func() {
		rec := s.serve(h, "10.0.0.1")
		s.Equal(http.StatusCreated, rec.Code)
		s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
		s.Equal("1", rec.Header().Get("X-RateLimit-Remaining"))
		s.NotEmpty(rec.Header().Get("X-RateLimit-Reset"))
		s.Empty(rec.Header().Get("X-RateLimit-Status"))
	})

	s.Run("request over the limit is refused", func() {
		s.Equal(http.StatusCreated, s.serve(h, "10.0.0.1").Code)

		rec := s.serve(h, "10.0.0.1")
		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.NotEmpty(rec.Header().Get("Retry-After"))
		s.Contains(rec.Body.String(), `"error":"too_many_requests"`)

		s.Require().Len(s.auditor.events, 1)
		s.Equal(string(audit.EventRateLimitExceeded), s.auditor.events[0].Action)
		s.Equal("10.0.0.1", s.auditor.events[0].IP)
	})

	s.Run("other clients keep their own budget", func() {
		s.Equal(http.StatusCreated, s.serve(h, "10.0.0.2").Code)
	})

	s.InDelta(1, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("session_start", "denied")), 0)
}

func (s *RateLimitMiddlewareSuite) TestDisabledWhenLimitNotPositive() {
	m := New("session_start", 0, time.Minute, bucket.NewInMemoryBucketStore(), s.logger)
	h := m.Handler(okHandler())
	for _i := 0; _i < 5; _i++ {
		rec := s.serve(h, "10.0.0.1")
		s.Equal(http.StatusCreated, rec.Code)
		s.Empty(rec.Header().Get("X-RateLimit-Limit"))
	}
}

func (s *RateLimitMiddlewareSuite) TestFallsBackWhenPrimaryFails() {
	primary := &failingStore{inner: bucket.NewInMemoryBucketStore()}
	breaker := circuit.New("ratelimit-test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))
	m := New("session_start", 100, time.Minute, bucket.NewInMemoryBucketStore(), s.logger,
		WithPrimary(primary),
		WithBreaker(breaker),
		WithMetrics(s.metrics),
	)
	h := m.Handler(okHandler())

	s.Run("healthy primary answers", func() {
		rec := s.serve(h, "10.0.0.1")
		s.Equal(http.StatusCreated, rec.Code)
		s.Empty(rec.Header().Get("X-RateLimit-Status"))
	})

	s.Run("first failure is served by fallback without degradation", func() {
		primary.setFail(true)
		rec := s.serve(h, "10.0.0.1")
		s.Equal(http.StatusCreated, rec.Code)
		s.Empty(rec.Header().Get("X-RateLimit-Status"))
		s.False(breaker.IsOpen())
	})

	s.Run("threshold opens breaker and marks responses degraded", func() {
		rec := s.serve(h, "10.0.0.1")
		s.Equal(http.StatusCreated, rec.Code)
		s.Equal("degraded", rec.Header().Get("X-RateLimit-Status"))
		s.True(breaker.IsOpen())
		s.InDelta(1, testutil.ToFloat64(s.metrics.Degraded), 0)
	})

	s.Run("recovery closes breaker after enough successes", func() {
		primary.setFail(false)
		rec := s.serve(h, "10.0.0.1")
		s.Equal("degraded", rec.Header().Get("X-RateLimit-Status"))

		rec = s.serve(h, "10.0.0.1")
		s.Empty(rec.Header().Get("X-RateLimit-Status"))
		s.False(breaker.IsOpen())
		s.InDelta(0, testutil.ToFloat64(s.metrics.Degraded), 0)
	})

	s.InDelta(2, testutil.ToFloat64(s.metrics.PrimaryFailures), 0)
}
