// Package service runs the nutrition ration-card flow: enrolling a beneficiary
// on a card and serving that card once per cycle while it is active.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aidtrack/internal/distribution/eligibility"
	"aidtrack/internal/distribution/metrics"
	"aidtrack/internal/identity"
	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

const (
	programme          = "nutrition"
	historyLimit       = 50
	aggregateRation    = "ration"
	defaultCycleMonths = 6
	defaultCardPrefix  = "R-"
)

type Service struct {
	tx                TxRunner
	reader            Reader
	resolver          *identity.Resolver[*models.Card]
	cycleMonths       int
	cardPrefix        string
	location          *time.Location
	maxSignatureBytes int
	metrics           *metrics.Metrics
	logger            *slog.Logger
	tracer            trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCycle sets the ration length and the minimum gap between two
// distributions on the same card.
func WithCycle(months int) Option {
	return func(s *Service) {
		if months > 0 {
			s.cycleMonths = months
		}
	}
}

// WithCardPrefix sets the prefix of issued card numbers, "R-" by default.
func WithCardPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.cardPrefix = prefix
		}
	}
}

// WithLocation sets the zone that decides which calendar day "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithMaxSignatureBytes(n int) Option {
	return func(s *Service) { s.maxSignatureBytes = n }
}

// WithResolver replaces the card resolver built over the Reader.
func WithResolver(r *identity.Resolver[*models.Card]) Option {
	return func(s *Service) { s.resolver = r }
}

func New(tx TxRunner, reader Reader, opts ...Option) *Service {
	s := &Service{
		tx:          tx,
		reader:      reader,
		cycleMonths: defaultCycleMonths,
		cardPrefix:  defaultCardPrefix,
		location:    time.Local,
		logger:      slog.Default(),
		tracer:      otel.Tracer("aidtrack/nutrition"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = identity.NewResolver[*models.Card](
			identity.LookupFunc[*models.Card](reader.FindCard),
			identity.WithTarget("ration card"),
			identity.WithPrefixes(s.cardPrefix),
			identity.WithLogger(s.logger),
		)
	}
	return s
}

func (s *Service) rule() eligibility.Rule {
	return eligibility.Cycle(s.cycleMonths)
}

// today is the current calendar date in the service zone, as a UTC midnight to
// match how DATE columns are read back.
func (s *Service) today(now time.Time) time.Time {
	y, m, d := now.In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RegisterBeneficiary enrolls the beneficiary, creating them on first sight,
// and issues a new ACTIVE ration card. A beneficiary who already holds an
// active card is rejected with CodeConflict.
func (s *Service) RegisterBeneficiary(ctx context.Context, req *models.RegisterBeneficiaryRequest) (*models.BeneficiaryReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "nutrition.RegisterBeneficiary")
	defer span.End()
	defer s.metrics.ObserveTx(programme, time.Now())

	now := requestcontext.Now(ctx)
	req.Normalize()
	if err := req.Validate(now); err != nil {
		s.metrics.IncRejected(programme, "validation")
		return nil, err
	}

	var receipt *models.BeneficiaryReceipt
	run := func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			r, err := s.registerBeneficiary(ctx, store, req, now)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		})
	}
	err := run()
	if errors.Is(err, sentinel.ErrConflict) {
		s.metrics.IncRetry(programme)
		err = run()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "beneficiary registration failed")
		return nil, s.translate(ctx, err, "failed to register beneficiary")
	}

	s.logger.InfoContext(ctx, "nutrition beneficiary registered",
		"beneficiary_id", receipt.BeneficiaryID,
		"card_number", receipt.CardNumber,
		"created", receipt.Created,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

func (s *Service) registerBeneficiary(ctx context.Context, store Store, req *models.RegisterBeneficiaryRequest, now time.Time) (*models.BeneficiaryReceipt, error) {
	siteID, err := store.UpsertSite(ctx, req.SiteName, req.SiteAddress)
	if err != nil {
		return nil, err
	}
	key := req.Key(siteID)
	if err := store.Lock(ctx, "beneficiary:"+key.String()); err != nil {
		return nil, err
	}

	created := false
	b, err := store.FindBeneficiary(ctx, key)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		seq, err := store.NextRegistrationNumber(ctx)
		if err != nil {
			return nil, err
		}
		b = &models.Beneficiary{
			ID:                 uuid.New(),
			RegistrationNumber: fmt.Sprintf("NB-%06d", seq),
			SiteID:             siteID,
			FirstName:          req.FirstName,
			MiddleName:         req.MiddleName,
			LastName:           req.LastName,
			DateOfBirth:        req.BirthDate,
			Sex:                req.Sex,
			Category:           req.Category,
			GuardianName:       req.GuardianName,
			HouseholdToken:     req.HouseholdToken,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := store.InsertBeneficiary(ctx, b); err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, err
	}

	active, err := store.ActiveRation(ctx, b.ID)
	switch {
	case err == nil:
		return nil, dErrors.New(dErrors.CodeConflict,
			"beneficiary "+b.RegistrationNumber+" already holds active ration card "+active.CardNumber)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, err
	}

	seq, err := store.NextCardNumber(ctx)
	if err != nil {
		return nil, err
	}
	start := s.today(now)
	ration := &models.Ration{
		ID:            uuid.New(),
		BeneficiaryID: b.ID,
		CardNumber:    fmt.Sprintf("%s%04d", s.cardPrefix, seq),
		StartDate:     start,
		EndDate:       start.AddDate(0, s.cycleMonths, 0),
		Status:        models.RationActive,
		CreatedAt:     now,
	}
	if err := store.InsertRation(ctx, ration); err != nil {
		return nil, err
	}

	entry, err := outbox.NewEntry(aggregateRation, ration.CardNumber, outbox.EventNutritionBeneficiaryRegistered, beneficiaryEvent{
		BeneficiaryID:      b.ID,
		RegistrationNumber: b.RegistrationNumber,
		RationID:           ration.ID,
		CardNumber:         ration.CardNumber,
		SiteID:             siteID,
		Category:           b.Category,
		StartDate:          ration.StartDate.Format(time.DateOnly),
		EndDate:            ration.EndDate.Format(time.DateOnly),
		RequestID:          requestcontext.RequestID(ctx),
	}, now)
	if err != nil {
		return nil, err
	}
	if err := store.AppendEvent(ctx, entry); err != nil {
		return nil, err
	}

	return &models.BeneficiaryReceipt{
		BeneficiaryID:      b.ID,
		RegistrationNumber: b.RegistrationNumber,
		RationID:           ration.ID,
		CardNumber:         ration.CardNumber,
		StartDate:          ration.StartDate,
		EndDate:            ration.EndDate,
		Created:            created,
	}, nil
}

// RegisterDistribution serves the ration card in req. The card must be ACTIVE
// on today's date and must not have been served in the current cycle.
func (s *Service) RegisterDistribution(ctx context.Context, req *models.DistributionRequest) (*models.DistributionReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "nutrition.RegisterDistribution")
	defer span.End()
	defer s.metrics.ObserveTx(programme, time.Now())

	req.Normalize()
	if err := req.Validate(s.maxSignatureBytes); err != nil {
		s.metrics.IncRejected(programme, "validation")
		return nil, err
	}

	card, res, err := s.resolver.Resolve(ctx, identity.ParseQRPayload(req.CardNumber))
	if err != nil {
		s.metrics.IncRejected(programme, string(dErrors.CodeOf(err)))
		return nil, err
	}
	cardNumber := card.Ration.CardNumber
	span.SetAttributes(
		attribute.String("nutrition.card_number", cardNumber),
		attribute.String("nutrition.matched_variant", string(res.Variant)),
	)

	now := requestcontext.Now(ctx)
	var receipt *models.DistributionReceipt
	run := func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			r, err := s.serveCard(ctx, store, cardNumber, req, now)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		})
	}
	err = run()
	if errors.Is(err, sentinel.ErrConflict) {
		s.metrics.IncRetry(programme)
		err = run()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nutrition distribution failed")
		return nil, s.translate(ctx, err, "failed to register nutrition distribution")
	}

	s.metrics.IncRegistered(programme)
	s.logger.InfoContext(ctx, "nutrition distribution registered",
		"distribution_id", receipt.DistributionID,
		"card_number", cardNumber,
		"site_id", receipt.SiteID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

func (s *Service) serveCard(ctx context.Context, store Store, cardNumber string, req *models.DistributionRequest, now time.Time) (*models.DistributionReceipt, error) {
	if err := store.Lock(ctx, "ration:"+cardNumber); err != nil {
		return nil, err
	}

	ration, err := store.RationByCard(ctx, cardNumber)
	if err != nil {
		return nil, err
	}
	if ration.Status != models.RationActive {
		return nil, dErrors.New(dErrors.CodeNotEligible, "ration card "+cardNumber+" is "+string(ration.Status))
	}
	if !ration.Covers(now, s.location) {
		return nil, dErrors.New(dErrors.CodeNotEligible, fmt.Sprintf("ration card %s is valid from %s until %s",
			cardNumber, ration.StartDate.Format(time.DateOnly), ration.EndDate.Format(time.DateOnly)))
	}

	var lastAt *time.Time
	last, err := store.LastDistribution(ctx, ration.ID)
	switch {
	case err == nil:
		lastAt = &last.DistributionDate
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, err
	}
	if check := eligibility.Check(s.rule(), lastAt, now); !check.Eligible {
		return nil, eligibility.NewDuplicateError("ration card "+cardNumber, s.rule(), check)
	}

	siteID, err := store.UpsertSite(ctx, req.SiteName, req.SiteAddress)
	if err != nil {
		return nil, err
	}

	d := &models.Distribution{
		ID:               uuid.New(),
		BeneficiaryID:    ration.BeneficiaryID,
		RationID:         ration.ID,
		SiteID:           siteID,
		DistributionDate: now,
		SignatureData:    req.Signature,
		Status:           "COMPLETED",
	}
	if err := store.InsertDistribution(ctx, d); err != nil {
		return nil, err
	}
	if err := store.InsertSignature(ctx, &models.Signature{
		ID:                      uuid.New(),
		BeneficiaryID:           ration.BeneficiaryID,
		NutritionDistributionID: d.ID,
		SignatureData:           req.Signature,
		SignedAt:                now,
	}); err != nil {
		return nil, err
	}

	entry, err := outbox.NewEntry(aggregateRation, cardNumber, outbox.EventNutritionDistributionRegistered, distributionEvent{
		DistributionID:   d.ID,
		BeneficiaryID:    ration.BeneficiaryID,
		RationID:         ration.ID,
		CardNumber:       cardNumber,
		SiteID:           siteID,
		SiteName:         req.SiteName,
		DistributionDate: now,
		RequestID:        requestcontext.RequestID(ctx),
	}, now)
	if err != nil {
		return nil, err
	}
	if err := store.AppendEvent(ctx, entry); err != nil {
		return nil, err
	}

	return &models.DistributionReceipt{
		DistributionID:   d.ID,
		BeneficiaryID:    ration.BeneficiaryID,
		RationID:         ration.ID,
		CardNumber:       cardNumber,
		SiteID:           siteID,
		DistributionDate: now,
	}, nil
}

// Lookup resolves a card number and reports whether it can be served now.
func (s *Service) Lookup(ctx context.Context, cardNumber string) (*models.CardDetails, error) {
	ctx, span := s.tracer.Start(ctx, "nutrition.Lookup")
	defer span.End()

	card, res, err := s.resolver.Resolve(ctx, identity.ParseQRPayload(cardNumber))
	if err != nil {
		return nil, err
	}
	history, err := s.reader.ListDistributions(ctx, card.Ration.ID, historyLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ration history")
	}
	if history == nil {
		history = []models.Distribution{}
	}

	now := requestcontext.Now(ctx)
	out := &models.CardDetails{
		Card:           *card,
		Distributions:  history,
		MatchedVariant: string(res.Variant),
	}
	if !card.Ration.Covers(now, s.location) {
		out.Reason = "ration card is not active today"
		return out, nil
	}
	var lastAt *time.Time
	if len(history) > 0 {
		lastAt = &history[0].DistributionDate
	}
	check := eligibility.Check(s.rule(), lastAt, now)
	out.Eligible = check.Eligible
	out.Reason = check.Reason
	out.LastDistributionAt = check.LastDistributionAt
	out.NextEligibleAt = check.NextEligibleAt
	return out, nil
}

func (s *Service) translate(ctx context.Context, err error, message string) error {
	var dup *eligibility.DuplicateDistributionError
	switch {
	case errors.As(err, &dup):
		s.metrics.IncRejected(programme, "duplicate")
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncRejected(programme, "not_found")
		return dErrors.Wrap(err, dErrors.CodeNotFound, "ration card not found")
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncRejected(programme, "conflict")
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent registration, retry the request")
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.IncRejected(programme, "timeout")
		return dErrors.Wrap(err, dErrors.CodeTimeout, "registration timed out")
	}
	if _, ok := dErrors.As(err); ok {
		s.metrics.IncRejected(programme, string(dErrors.CodeOf(err)))
		return err
	}
	s.metrics.IncRejected(programme, "persistence")
	s.logger.ErrorContext(ctx, "nutrition transaction failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}

type beneficiaryEvent struct {
	BeneficiaryID      uuid.UUID       `json:"beneficiary_id"`
	RegistrationNumber string          `json:"registration_number"`
	RationID           uuid.UUID       `json:"ration_id"`
	CardNumber         string          `json:"card_number"`
	SiteID             int64           `json:"site_id"`
	Category           models.Category `json:"category"`
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
	RequestID          string          `json:"request_id,omitempty"`
}

type distributionEvent struct {
	DistributionID   uuid.UUID `json:"distribution_id"`
	BeneficiaryID    uuid.UUID `json:"beneficiary_id"`
	RationID         uuid.UUID `json:"ration_id"`
	CardNumber       string    `json:"card_number"`
	SiteID           int64     `json:"site_id"`
	SiteName         string    `json:"site_name"`
	DistributionDate time.Time `json:"distribution_date"`
	RequestID        string    `json:"request_id,omitempty"`
}
