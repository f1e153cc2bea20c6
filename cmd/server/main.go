package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"onboarding/internal/notify"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/logger"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/platform/redis"
	rlmetrics "onboarding/internal/ratelimit/metrics"
	ratelimit "onboarding/internal/ratelimit/middleware"
	"onboarding/internal/ratelimit/store/bucket"
	"onboarding/internal/registration/adapters"
	"onboarding/internal/registration/handler"
	"onboarding/internal/registration/service"
	"onboarding/internal/registration/store/image"
	"onboarding/internal/registration/store/session"
	"onboarding/internal/registration/sweeper"
	"onboarding/pkg/platform/audit/publisher"
	auditstore "onboarding/pkg/platform/audit/store/memory"
	"onboarding/pkg/platform/httputil"
)

const shutdownTimeout = 15 * time.Second

// main wires dependencies and owns the process lifecycle. Registration logic
// lives in internal/registration.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, rate limiting runs in memory", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier, err := notify.New(ctx, notify.Options{
		Backend:        cfg.NotifierBackend,
		RabbitURL:      cfg.RabbitMQURL,
		RabbitExchange: cfg.RabbitMQExchange,
		KafkaBrokers:   cfg.KafkaBrokers,
		KafkaTopic:     cfg.KafkaTopic,
	}, log)
	if err != nil {
		return err
	}
	defer notifier.Close()

	auditor := publisher.NewPublisher(auditstore.NewInMemoryStore(),
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)
	defer auditor.Close()

	images := image.New()
	registration := service.New(session.New(), images, notifier,
		service.WithAuditPublisher(auditor),
		service.WithAccountLookup(adapters.NewStaticBankDirectory(cfg.ExpectedHolderName)),
		service.WithMetrics(appMetrics),
		service.WithLogger(log),
		service.WithIdleTTL(cfg.SessionIdleTTL),
		service.WithMaxImageBytes(cfg.MaxImageBytes),
		service.WithPrefilledAddress(cfg.PrefilledAddress),
		service.WithExpectedHolderName(cfg.ExpectedHolderName),
	)

	sessionSweeper := sweeper.New(registration, cfg.SweepSchedule, log)
	if err := sessionSweeper.Start(); err != nil {
		return err
	}

	limiterOpts := []ratelimit.Option{
		ratelimit.WithMetrics(rlmetrics.New(prometheus.DefaultRegisterer)),
		ratelimit.WithAuditPublisher(auditor),
	}
	if redisClient != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithPrimary(bucket.NewRedisBucketStore(redisClient.Client)))
	}
	startLimiter := ratelimit.New("session_start",
		cfg.RateLimit.SessionsPerWindow, cfg.RateLimit.Window,
		bucket.NewInMemoryBucketStore(), log, limiterOpts...)

	router := newRouter(routerDeps{
		registration:       registration,
		startLimiter:       startLimiter.Handler,
		redis:              redisClient,
		metrics:            appMetrics,
		logger:             log,
		corsAllowedOrigins: cfg.CORSAllowedOrigins,
		maxUploadBytes:     cfg.MaxImageBytes,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting onboarding service", "addr", cfg.Addr, "notifier", cfg.NotifierBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		<-sessionSweeper.Stop().Done()
		err := srv.Shutdown(shutdownCtx)
		if closeErr := registration.Close(shutdownCtx); closeErr != nil {
			log.Error("failed to close registration sessions", "error", closeErr)
		}
		return err
	})
	return g.Wait()
}

type routerDeps struct {
	registration       handler.Service
	startLimiter       func(http.Handler) http.Handler
	redis              *redis.Client
	metrics            *metrics.Metrics
	logger             *slog.Logger
	corsAllowedOrigins []string
	maxUploadBytes     int64
}

func newRouter(deps routerDeps) http.Handler {
	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.corsAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Get("/health", healthHandler(deps.redis))
	router.Handle("/metrics", promhttp.Handler())

	opts := []handler.Option{handler.WithMaxUploadBytes(deps.maxUploadBytes)}
	if deps.startLimiter != nil {
		opts = append(opts, handler.WithStartLimiter(deps.startLimiter))
	}
	handler.New(deps.registration, deps.logger, deps.metrics, opts...).Register(router)
	return router
}

type healthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
}

func healthHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if redisClient != nil {
			resp.Redis = "ok"
			if err := redisClient.Health(r.Context()); err != nil {
				// The limiter falls back to memory, so the service stays up.
				resp.Redis = "degraded"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
