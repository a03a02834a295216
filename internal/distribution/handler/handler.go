package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aidtrack/internal/distribution/models"
	"aidtrack/internal/identity"
	"aidtrack/internal/platform/metrics"
	"aidtrack/internal/platform/middleware"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/httputil"
	"aidtrack/pkg/platform/middleware/requesttime"
)

// Service defines the distribution operations served over HTTP.
type Service interface {
	RegisterDistribution(ctx context.Context, req *models.RegisterRequest) (*models.Receipt, error)
	ProcessQRScan(ctx context.Context, qrData string) (*models.Household, identity.Resolution, error)
	ValidateQR(ctx context.Context, qrCode string) (*models.QRValidation, error)
	History(ctx context.Context, token string) (*models.Household, []models.Distribution, error)
}

// Handler handles the general distribution endpoints.
type Handler struct {
	svc          Service
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxBodyBytes int64
	timeout      time.Duration
}

// signatureOverhead leaves room for the non-signature fields of a registration body.
const signatureOverhead = 16 * 1024

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout bounds the context of every request. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// New creates a distribution Handler. maxSignatureBytes bounds the request
// body; zero uses the default signature limit.
func New(svc Service, logger *slog.Logger, metrics *metrics.Metrics, maxSignatureBytes int, opts ...Option) *Handler {
	if maxSignatureBytes <= 0 {
		maxSignatureBytes = models.DefaultMaxSignatureBytes
	}
	h := &Handler{
		svc:          svc,
		logger:       logger,
		metrics:      metrics,
		maxBodyBytes: int64(maxSignatureBytes) + signatureOverhead,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the distribution routes with the chi router. Routes are
// grouped so other domains can register on the same router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(requesttime.Middleware)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Post("/api/register-distribution", h.handleRegisterDistribution)
		r.Post("/api/process-qr-scan", h.handleProcessQRScan)
		r.Post("/api/validate-qr", h.handleValidateQR)
		r.Get("/api/households/{token}/distributions", h.handleHistory)
	})
}

func (h *Handler) handleRegisterDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req, h.maxBodyBytes); err != nil {
		h.logger.WarnContext(ctx, "invalid register distribution request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.svc.RegisterDistribution(ctx, &req)
	if err != nil {
		h.writeServiceError(ctx, w, "register distribution", err)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, RegisterResponse{
		DistributionID:   receipt.DistributionID.String(),
		HouseholdID:      receipt.HouseholdID.String(),
		SiteID:           receipt.SiteID,
		DistributionDate: receipt.DistributionDate,
	})
}

func (h *Handler) handleProcessQRScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.QRScanRequest
	if err := httputil.DecodeJSON(r, &req, httputil.DefaultMaxBodyBytes); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.QRData == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "qrData is required"))
		return
	}

	hh, res, err := h.svc.ProcessQRScan(ctx, req.QRData)
	if err != nil {
		h.writeServiceError(ctx, w, "process qr scan", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, QRScanResponse{
		Household:      hh,
		MatchedVariant: string(res.Variant),
	})
}

func (h *Handler) handleValidateQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ValidateQRRequest
	if err := httputil.DecodeJSON(r, &req, httputil.DefaultMaxBodyBytes); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.QRCode == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "qrCode is required"))
		return
	}

	result, err := h.svc.ValidateQR(ctx, req.QRCode)
	if err != nil {
		h.writeServiceError(ctx, w, "validate qr", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ValidateQRResponse{Success: true, QRValidation: result})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	hh, history, err := h.svc.History(ctx, token)
	if err != nil {
		h.writeServiceError(ctx, w, "distribution history", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, HistoryResponse{Household: hh, Distributions: history})
}

// writeServiceError logs at a level matching the failure and writes the
// error envelope.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := middleware.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
