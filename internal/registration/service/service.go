package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/notify"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/registration/flow"
	"onboarding/internal/registration/models"
	"onboarding/internal/registration/store/session"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	audit "onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/clock"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

// SessionStore holds live registration sessions.
type SessionStore interface {
	Create(ctx context.Context, s *session.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*session.Session, error)
	Touch(ctx context.Context, sessionID id.SessionID, at time.Time) error
	Delete(ctx context.Context, sessionID id.SessionID) (*session.Session, error)
	ListIdle(ctx context.Context, cutoff time.Time) ([]*session.Session, error)
	ListAll(ctx context.Context) ([]*session.Session, error)
}

// ImageStore holds uploaded document images until their session ends.
type ImageStore interface {
	Put(ctx context.Context, contentType string, data []byte) (models.ImageRef, error)
	Release(imageID id.ImageID)
	Stats() (count int, bytes int64)
}

// Notifier publishes finished-session events.
type Notifier interface {
	Publish(ctx context.Context, event notify.Event) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultMaxImageBytes = 5 << 20

	notifyTimeout = 10 * time.Second
)

// Service runs registration sessions: it owns one flow controller per
// session and turns the controller's terminal notifications into store
// removal, downstream events, audit entries and metrics.
type Service struct {
	sessions SessionStore
	images   ImageStore
	notifier Notifier
	auditor  AuditPublisher
	lookup   flow.AccountLookup
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	idleTTL       time.Duration
	maxImageBytes int64
	address       string
	expectedName  string
	scanDelay     time.Duration
	settleDelay   time.Duration
}

type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithAccountLookup(l flow.AccountLookup) Option {
	return func(s *Service) { s.lookup = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIdleTTL sets how long a session may sit untouched before ExpireIdle
// removes it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

func WithMaxImageBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithPrefilledAddress sets the address every new record starts with.
func WithPrefilledAddress(address string) Option {
	return func(s *Service) { s.address = address }
}

func WithExpectedHolderName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.expectedName = name
		}
	}
}

func WithFaceDelays(scan, settle time.Duration) Option {
	return func(s *Service) {
		s.scanDelay = scan
		s.settleDelay = settle
	}
}

func New(sessions SessionStore, images ImageStore, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		sessions:      sessions,
		images:        images,
		notifier:      notifier,
		logger:        slog.Default(),
		tracer:        otel.Tracer("onboarding/registration"),
		clock:         clock.Real{},
		idleTTL:       DefaultIdleTTL,
		maxImageBytes: DefaultMaxImageBytes,
		expectedName:  flow.DefaultExpectedHolderName,
		scanDelay:     flow.DefaultScanDelay,
		settleDelay:   flow.DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a new session positioned on Intro.
func (s *Service) Start(ctx context.Context) (*View, error) {
	ctx, span := s.startSpan(ctx, "registration.Start")
	defer span.End()

	sessionID := id.NewSessionID()
	now := s.clock.Now()
	ctrl := flow.New(
		flow.WithClock(s.clock),
		flow.WithListener(&sessionListener{svc: s, sessionID: sessionID}),
		flow.WithImageReleaser(s.images),
		flow.WithAccountLookup(s.lookup),
		flow.WithExpectedHolderName(s.expectedName),
		flow.WithAddress(s.address),
		flow.WithFaceDelays(s.scanDelay, s.settleDelay),
	)
	sess := &session.Session{
		ID:           sessionID,
		Flow:         ctrl,
		Device:       requestcontext.Device(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		ctrl.Close()
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start registration"))
	}
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	if s.metrics != nil {
		s.metrics.IncrementSessionsStarted()
	}
	s.audit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(audit.EventSessionStarted),
		Step:      models.StepIntro.String(),
	})
	s.logger.InfoContext(ctx, "registration started",
		"session_id", sessionID.String(),
		"device", sess.Device,
		"request_id", requestcontext.RequestID(ctx),
	)
	return newView(sessionID, ctrl.Snapshot(), ""), nil
}

// Get returns the current state of a session.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*View, error) {
	sess, err := s.find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return newView(sessionID, sess.Flow.Snapshot(), ""), nil
}

// Advance attempts to leave the current step forward. An unmet guard is not
// an error: the view comes back unchanged with OutcomeBlocked.
func (s *Service) Advance(ctx context.Context, sessionID id.SessionID) (*View, error) {
	ctx, span := s.startSpan(ctx, "registration.Advance", attribute.String("session.id", sessionID.String()))
	defer span.End()

	sess, err := s.touch(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	step := sess.Flow.Step()
	outcome := sess.Flow.Advance()
	if outcome == flow.OutcomeBlocked && s.metrics != nil {
		s.metrics.IncrementGuardBlock(step.String())
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	return newView(sessionID, sess.Flow.Snapshot(), outcome), nil
}

// Back moves to the previous step; from Intro it abandons the session.
func (s *Service) Back(ctx context.Context, sessionID id.SessionID) (*View, error) {
	ctx, span := s.startSpan(ctx, "registration.Back", attribute.String("session.id", sessionID.String()))
	defer span.End()

	sess, err := s.touch(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	outcome := sess.Flow.Back()
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	return newView(sessionID, sess.Flow.Snapshot(), outcome), nil
}

// SelectDocumentType records the identity document choice and moves to its
// upload step.
func (s *Service) SelectDocumentType(ctx context.Context, sessionID id.SessionID, documentType string) (*View, error) {
	ctx, span := s.startSpan(ctx, "registration.SelectDocumentType", attribute.String("session.id", sessionID.String()))
	defer span.End()

	doc, err := models.ParseDocumentType(documentType)
	if err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeBadRequest, "document_type must be smart_card or certificate"))
	}
	sess, err := s.touch(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	outcome, err := sess.Flow.SelectDocumentType(doc)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.audit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(audit.EventDocumentTypeSelected),
		Step:      models.StepIDTypeSelection.String(),
		Reason:    string(doc),
	})
	return newView(sessionID, sess.Flow.Snapshot(), outcome), nil
}

// Categories returns the business categories matching query.
func (s *Service) Categories(query string) []string {
	return models.SearchBusinessCategories(query)
}

// Close tears down every live session without notifying anyone. It is meant
// for process shutdown.
func (s *Service) Close(ctx context.Context) error {
	all, err := s.sessions.ListAll(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	closed := 0
	for _, sess := range all {
		if sess.Flow.Close() {
			closed++
		}
		if _, err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to remove session on shutdown", "session_id", sess.ID.String(), "error", err)
		}
	}
	s.refreshImageGauge()
	s.logger.InfoContext(ctx, "registration sessions closed", "count", closed)
	return nil
}

func (s *Service) find(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration session")
	}
	return sess, nil
}

// touch loads the session and records caller activity for idle expiry.
func (s *Service) touch(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	sess, err := s.find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, sessionID, s.clock.Now()); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration session")
	}
	return sess, nil
}

func (s *Service) audit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) refreshImageGauge() {
	if s.metrics == nil {
		return
	}
	count, _ := s.images.Stats()
	s.metrics.SetHeldImages(count)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}
