package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/platform/metrics"
	"aidtrack/internal/platform/middleware"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/httputil"
	"aidtrack/pkg/platform/middleware/requesttime"
)

// Service defines the nutrition operations served over HTTP.
type Service interface {
	RegisterBeneficiary(ctx context.Context, req *models.RegisterBeneficiaryRequest) (*models.BeneficiaryReceipt, error)
	RegisterDistribution(ctx context.Context, req *models.DistributionRequest) (*models.DistributionReceipt, error)
	Lookup(ctx context.Context, cardNumber string) (*models.CardDetails, error)
}

type Handler struct {
	svc          Service
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxBodyBytes int64
	timeout      time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout bounds the context of every request. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// New creates a nutrition Handler. maxSignatureBytes sizes the body limit of
// the distribution endpoint.
func New(svc Service, logger *slog.Logger, metrics *metrics.Metrics, maxSignatureBytes int, opts ...Option) *Handler {
	if maxSignatureBytes <= 0 {
		maxSignatureBytes = models.DefaultMaxSignatureBytes
	}
	h := &Handler{
		svc:          svc,
		logger:       logger,
		metrics:      metrics,
		maxBodyBytes: int64(maxSignatureBytes) + 16*1024,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(requesttime.Middleware)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Post("/api/nutrition/register-beneficiary", h.handleRegisterBeneficiary)
		r.Post("/api/nutrition/distributions", h.handleRegisterDistribution)
		r.Get("/api/nutrition/cards/{card}", h.handleLookup)
	})
}

func (h *Handler) handleRegisterBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RegisterBeneficiaryRequest
	if err := httputil.DecodeJSON(r, &req, httputil.DefaultMaxBodyBytes); err != nil {
		h.logger.WarnContext(ctx, "invalid register beneficiary request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.svc.RegisterBeneficiary(ctx, &req)
	if err != nil {
		h.writeServiceError(ctx, w, "register beneficiary", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, receipt)
}

func (h *Handler) handleRegisterDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.DistributionRequest
	if err := httputil.DecodeJSON(r, &req, h.maxBodyBytes); err != nil {
		h.logger.WarnContext(ctx, "invalid nutrition distribution request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.svc.RegisterDistribution(ctx, &req)
	if err != nil {
		h.writeServiceError(ctx, w, "nutrition distribution", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, receipt)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	details, err := h.svc.Lookup(ctx, chi.URLParam(r, "card"))
	if err != nil {
		h.writeServiceError(ctx, w, "card lookup", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, details)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", middleware.GetRequestID(ctx),
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}
