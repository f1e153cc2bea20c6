package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"onboarding/internal/ratelimit/metrics"
	"onboarding/internal/ratelimit/models"
	dErrors "onboarding/pkg/domain-errors"
	audit "onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/circuit"
	"onboarding/pkg/platform/httputil"
	metadata "onboarding/pkg/platform/middleware/metadata"
	"onboarding/pkg/requestcontext"
)

// BucketStore counts requests for a key within a window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// AuditPublisher records refused requests.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Middleware limits requests per client IP. Checks go to the primary store
// when one is configured; after repeated primary errors the breaker opens and
// the in-memory fallback answers until the primary recovers.
type Middleware struct {
	scope    string
	limit    int
	window   time.Duration
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	disabled bool
}

type Option func(*Middleware)

// WithPrimary sets the shared store, usually Redis.
func WithPrimary(store BucketStore) Option {
	return func(m *Middleware) {
		m.primary = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Middleware) {
		m.auditor = p
	}
}

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// New returns a limiter allowing limit requests per window for each client IP
// under scope. A limit of zero or less disables limiting.
func New(scope string, limit int, window time.Duration, fallback BucketStore, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		scope:    scope,
		limit:    limit,
		window:   window,
		fallback: fallback,
		logger:   logger,
		disabled: limit <= 0,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breaker == nil {
		m.breaker = circuit.New("ratelimit")
	}
	if m.disabled {
		logger.Info("rate limiting disabled", "scope", scope)
	}
	return m
}

// Handler applies the limit to next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			ip = metadata.ClientIPFromRequest(r)
		}

		result, degraded, err := m.check(ctx, models.NewIPKey(m.scope, ip))
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"scope", m.scope,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}
		if m.metrics != nil {
			m.metrics.ObserveDecision(m.scope, result.Allowed)
		}

		if !result.Allowed {
			m.refuse(ctx, w, r, ip, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// check asks the primary store first and falls back when it errors or the
// breaker is open. The primary is still probed while open so that the
// breaker can close again.
func (m *Middleware) check(ctx context.Context, key string) (*models.RateLimitResult, bool, error) {
	if m.primary == nil {
		result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
		return result, false, err
	}

	result, err := m.primary.Allow(ctx, key, m.limit, m.window)
	if err != nil {
		if m.metrics != nil {
			m.metrics.IncrementPrimaryFailures()
		}
		useFallback, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback",
				"error", err,
				"breaker", m.breaker.Name(),
			)
			m.setDegraded(true)
		}
		if !useFallback {
			// Below the threshold a single error is served from the fallback
			// without reporting degradation.
			result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
			return result, false, err
		}
		result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
		return result, true, err
	}

	usePrimary, change := m.breaker.RecordSuccess()
	if change.Closed {
		m.logger.InfoContext(ctx, "rate limit store recovered", "breaker", m.breaker.Name())
		m.setDegraded(false)
	}
	if !usePrimary {
		result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
		return result, true, err
	}
	return result, false, nil
}

func (m *Middleware) setDegraded(degraded bool) {
	if m.metrics != nil {
		m.metrics.SetDegraded(degraded)
	}
}

func (m *Middleware) refuse(ctx context.Context, w http.ResponseWriter, r *http.Request, ip string, result *models.RateLimitResult) {
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"scope", m.scope,
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	)
	if m.auditor != nil {
		event := audit.Event{
			Action:    string(audit.EventRateLimitExceeded),
			Reason:    m.scope,
			IP:        ip,
			RequestID: requestcontext.RequestID(ctx),
		}
		if err := m.auditor.Emit(ctx, event); err != nil {
			m.logger.WarnContext(ctx, "failed to audit rate limit refusal", "error", err)
		}
	}
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many registration attempts, retry later"))
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
