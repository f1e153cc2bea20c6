package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"onboarding/internal/platform/metrics"
	"onboarding/internal/platform/middleware"
	"onboarding/internal/registration/models"
	"onboarding/internal/registration/service"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	metadata "onboarding/pkg/platform/middleware/metadata"
	"onboarding/pkg/platform/middleware/requesttime"
)

// Service is the registration API the handler drives.
type Service interface {
	Start(ctx context.Context) (*service.View, error)
	Get(ctx context.Context, sessionID id.SessionID) (*service.View, error)
	Advance(ctx context.Context, sessionID id.SessionID) (*service.View, error)
	Back(ctx context.Context, sessionID id.SessionID) (*service.View, error)
	SelectDocumentType(ctx context.Context, sessionID id.SessionID, documentType string) (*service.View, error)
	UpdateFields(ctx context.Context, sessionID id.SessionID, update service.FieldUpdate) (*service.View, error)
	AttachImage(ctx context.Context, sessionID id.SessionID, slot models.ImageSlot, contentType string, data []byte) (*service.View, error)
	Categories(query string) []string
}

// multipartOverhead is allowed on top of the image limit for boundaries and
// part headers.
const multipartOverhead = 64 << 10

// Handler serves the registration endpoints.
type Handler struct {
	registration   Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	startLimiter   func(http.Handler) http.Handler
	maxUploadBytes int64
}

type Option func(*Handler)

// WithStartLimiter guards session creation, typically with the per-IP rate
// limiter.
func WithStartLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.startLimiter = mw
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func New(registration Service, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		registration:   registration,
		logger:         logger,
		metrics:        metrics,
		maxUploadBytes: service.DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the registration routes on r.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.LatencyMiddleware(h.metrics))

	start := http.HandlerFunc(h.handleStart)
	if h.startLimiter != nil {
		router.Method(http.MethodPost, "/sessions", h.startLimiter(start))
	} else {
		router.Post("/sessions", start)
	}
	router.Get("/sessions/{id}", h.handleGet)
	router.Patch("/sessions/{id}/fields", h.handleUpdateFields)
	router.Post("/sessions/{id}/document-type", h.handleSelectDocumentType)
	router.Put("/sessions/{id}/images/{slot}", h.handleAttachImage)
	router.Post("/sessions/{id}/advance", h.handleAdvance)
	router.Post("/sessions/{id}/back", h.handleBack)
	router.Get("/categories", h.handleCategories)

	r.Mount("/registration", router)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	view, err := h.registration.Start(r.Context())
	if err != nil {
		h.writeError(w, r, "failed to start registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(view))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.registration.Get(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, "failed to get registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

func (h *Handler) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req UpdateFieldsRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.registration.UpdateFields(r.Context(), sessionID, req.toUpdate())
	if err != nil {
		h.writeError(w, r, "failed to update registration fields", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

func (h *Handler) handleSelectDocumentType(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SelectDocumentTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.registration.SelectDocumentType(r.Context(), sessionID, req.DocumentType)
	if err != nil {
		h.writeError(w, r, "failed to select document type", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

func (h *Handler) handleAttachImage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	slot, err := models.ParseImageSlot(chi.URLParam(r, "slot"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "unknown image slot"))
		return
	}

	contentType, data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, "failed to read image upload", err)
		return
	}
	view, err := h.registration.AttachImage(r.Context(), sessionID, slot, contentType, data)
	if err != nil {
		h.writeError(w, r, "failed to attach image", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

// readUpload returns the "file" part of a multipart body. Reading stops one
// byte past the limit so the service can reject the size.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, dErrors.New(dErrors.CodePayloadTooLarge, "image upload too large")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "multipart field \"file\" is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read image")
	}
	return header.Header.Get("Content-Type"), data, nil
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.registration.Advance(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, "failed to advance registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.registration.Back(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, "failed to go back", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.registration.Categories(r.URL.Query().Get("q"))
	httputil.WriteJSON(w, http.StatusOK, CategoriesResponse{Categories: categories})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeError logs server-side failures and writes the error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
