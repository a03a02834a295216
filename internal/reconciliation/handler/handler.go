package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aidtrack/internal/platform/metrics"
	"aidtrack/internal/platform/middleware"
	"aidtrack/internal/reconciliation/models"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/httputil"
	"aidtrack/pkg/platform/middleware/requesttime"
	"aidtrack/pkg/requestcontext"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// defaultRangeDays is the report window when the caller omits from.
const defaultRangeDays = 30

// Service defines the reconciliation operations served over HTTP.
type Service interface {
	Reconcile(ctx context.Context, f models.Filter) (*models.Report, error)
	RecordWaybill(ctx context.Context, req *models.RecordWaybillRequest) (*models.Waybill, error)
	RecordMPOS(ctx context.Context, req *models.RecordMPOSRequest) (*models.MPOSRecord, error)
}

// Exporter renders a report to a spreadsheet.
type Exporter func(report *models.Report) ([]byte, error)

type Handler struct {
	svc     Service
	export  Exporter
	logger  *slog.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	timeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout bounds the context of every request. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// New creates a reconciliation Handler. Query dates are read as calendar days
// in loc.
func New(svc Service, export Exporter, logger *slog.Logger, metrics *metrics.Metrics, loc *time.Location, opts ...Option) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{svc: svc, export: export, logger: logger, metrics: metrics, loc: loc, timeout: 60 * time.Second}
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
		r.Get("/api/reconciliation", h.handleReconcile)
		r.Get("/api/reconciliation/export", h.handleExport)
		r.Post("/api/waybills", h.handleRecordWaybill)
		r.Post("/api/mpos-records", h.handleRecordMPOS)
	})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.report(ctx, r)
	if err != nil {
		h.writeServiceError(ctx, w, "reconciliation", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.report(ctx, r)
	if err != nil {
		h.writeServiceError(ctx, w, "reconciliation export", err)
		return
	}
	data, err := h.export(report)
	if err != nil {
		h.writeServiceError(ctx, w, "reconciliation export",
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to render workbook"))
		return
	}

	name := "reconciliation_" + report.From.Format("20060102") + "_" +
		report.To.AddDate(0, 0, -1).Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleRecordWaybill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RecordWaybillRequest
	if err := httputil.DecodeJSON(r, &req, httputil.DefaultMaxBodyBytes); err != nil {
		httputil.WriteError(w, err)
		return
	}
	waybill, err := h.svc.RecordWaybill(ctx, &req)
	if err != nil {
		h.writeServiceError(ctx, w, "record waybill", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, waybill)
}

func (h *Handler) handleRecordMPOS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RecordMPOSRequest
	if err := httputil.DecodeJSON(r, &req, httputil.DefaultMaxBodyBytes); err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.svc.RecordMPOS(ctx, &req)
	if err != nil {
		h.writeServiceError(ctx, w, "record mpos", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, record)
}

func (h *Handler) report(ctx context.Context, r *http.Request) (*models.Report, error) {
	f, err := h.filter(ctx, r)
	if err != nil {
		return nil, err
	}
	return h.svc.Reconcile(ctx, f)
}

// filter reads from, to and site. Both dates are inclusive calendar days; to
// defaults to today and from to thirty days earlier.
func (h *Handler) filter(ctx context.Context, r *http.Request) (models.Filter, error) {
	q := r.URL.Query()

	y, m, d := requestcontext.Now(ctx).In(h.loc).Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, h.loc)
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			return models.Filter{}, dErrors.New(dErrors.CodeValidation, "to must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -defaultRangeDays)
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			return models.Filter{}, dErrors.New(dErrors.CodeValidation, "from must be YYYY-MM-DD")
		}
		from = parsed
	}
	return models.Filter{From: from, To: to.AddDate(0, 0, 1), SiteName: q.Get("site")}, nil
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
