// Package service reconciles what sites received against what they handed
// out, per commodity and in kilograms.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"aidtrack/internal/reconciliation/models"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

// Store reads totals and records ingested rows. Insert methods upsert the
// named site and return sentinel.ErrConflict for a repeated waybill line.
type Store interface {
	WaybillTotals(ctx context.Context, f models.Filter) ([]models.Total, error)
	MPOSTotals(ctx context.Context, f models.Filter) ([]models.Total, error)
	InsertWaybill(ctx context.Context, w *models.Waybill) error
	InsertMPOS(ctx context.Context, r *models.MPOSRecord) error
}

type Service struct {
	store   Store
	weights Weights
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPackages replaces the default unit-weight table.
func WithPackages(p map[string]Package) Option {
	return func(s *Service) { s.weights = NewWeights(p) }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		weights: NewWeights(nil),
		logger:  slog.Default(),
		tracer:  otel.Tracer("aidtrack/reconciliation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile fetches received and distributed totals concurrently and compares
// them per commodity.
func (s *Service) Reconcile(ctx context.Context, f models.Filter) (*models.Report, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.Reconcile")
	defer span.End()

	if err := f.Validate(); err != nil {
		return nil, err
	}

	var received, distributed []models.Total
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		received, err = s.store.WaybillTotals(gctx, f)
		if err != nil {
			return fmt.Errorf("waybill totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		distributed, err = s.store.MPOSTotals(gctx, f)
		if err != nil {
			return fmt.Errorf("mpos totals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "reconciliation timed out")
		}
		s.logger.ErrorContext(ctx, "reconciliation fetch failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reconciliation data")
	}

	return &models.Report{
		From:        f.From,
		To:          f.To,
		SiteName:    f.SiteName,
		Lines:       s.Compare(received, distributed),
		GeneratedAt: requestcontext.Now(ctx),
	}, nil
}

// Compare converts both sides to kg, groups them by commodity and derives the
// difference and the package recommendation. Lines are sorted by commodity.
func (s *Service) Compare(received, distributed []models.Total) []models.Line {
	type sums struct {
		pkg                   Package
		received, distributed decimal.Decimal
	}
	byCommodity := make(map[string]*sums)
	add := func(t models.Total, receivedSide bool) {
		pkg := s.weights.Lookup(t.Commodity)
		acc, ok := byCommodity[pkg.Commodity]
		if !ok {
			acc = &sums{pkg: pkg, received: decimal.Zero, distributed: decimal.Zero}
			byCommodity[pkg.Commodity] = acc
		}
		kg := s.weights.Kg(t)
		if receivedSide {
			acc.received = acc.received.Add(kg)
		} else {
			acc.distributed = acc.distributed.Add(kg)
		}
	}
	for _, t := range received {
		add(t, true)
	}
	for _, t := range distributed {
		add(t, false)
	}

	lines := make([]models.Line, 0, len(byCommodity))
	for commodity, acc := range byCommodity {
		diff := acc.received.Sub(acc.distributed)
		packages := diff.Abs().Div(acc.pkg.Kg).Truncate(0).IntPart()
		lines = append(lines, models.Line{
			Commodity:      commodity,
			ReceivedKg:     acc.received,
			DistributedKg:  acc.distributed,
			DifferenceKg:   diff,
			PackageKg:      acc.pkg.Kg,
			Packages:       packages,
			Recommendation: recommend(diff, packages, acc.pkg.Name),
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Commodity < lines[j].Commodity })
	return lines
}

func recommend(diff decimal.Decimal, packages int64, name string) string {
	if packages == 0 {
		return "balanced"
	}
	if packages != 1 {
		name += "s"
	}
	if diff.IsPositive() {
		return fmt.Sprintf("redistribute %d %s", packages, name)
	}
	return fmt.Sprintf("recover %d %s", packages, name)
}

// RecordWaybill stores one received commodity line.
func (s *Service) RecordWaybill(ctx context.Context, req *models.RecordWaybillRequest) (*models.Waybill, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	w := &models.Waybill{
		ID:            uuid.New(),
		WaybillNumber: req.WaybillNumber,
		SiteName:      req.SiteName,
		Commodity:     req.Commodity,
		Quantity:      req.Quantity,
		Unit:          req.Unit,
		ReceivedAt:    req.ReceivedAt,
	}
	if err := s.store.InsertWaybill(ctx, w); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict,
				"waybill "+w.WaybillNumber+" already records "+w.Commodity)
		}
		return nil, s.internal(ctx, err, "failed to record waybill")
	}
	s.logger.InfoContext(ctx, "waybill recorded",
		"waybill_number", w.WaybillNumber,
		"commodity", w.Commodity,
		"site_id", w.SiteID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return w, nil
}

// RecordMPOS stores one distributed commodity line.
func (s *Service) RecordMPOS(ctx context.Context, req *models.RecordMPOSRequest) (*models.MPOSRecord, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := &models.MPOSRecord{
		ID:             uuid.New(),
		SiteName:       req.SiteName,
		Commodity:      req.Commodity,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		DistributedAt:  req.DistributedAt,
		HouseholdToken: req.HouseholdToken,
	}
	if err := s.store.InsertMPOS(ctx, r); err != nil {
		return nil, s.internal(ctx, err, "failed to record mpos row")
	}
	return r, nil
}

func (s *Service) internal(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	s.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// DefaultRange is the reporting window used when a caller gives none: the 30
// days up to and including today in loc.
func DefaultRange(now time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := now.In(loc).Date()
	to := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return to.AddDate(0, 0, -30), to
}
