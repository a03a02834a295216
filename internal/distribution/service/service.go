package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aidtrack/internal/distribution/eligibility"
	"aidtrack/internal/distribution/metrics"
	"aidtrack/internal/distribution/models"
	"aidtrack/internal/identity"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

const (
	programme      = "general"
	historyLimit   = 50
	aggregateHouse = "household"
)

// Service runs the general distribution flow: validate, upsert the referenced
// rows, check eligibility and commit the distribution with its signature.
type Service struct {
	tx       TxRunner
	reader   Reader
	resolver *identity.Resolver[*models.Household]
	cache    CacheInvalidator
	rule     eligibility.Rule
	limits   models.Limits
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRule replaces the calendar-day rule in the process's local zone.
func WithRule(rule eligibility.Rule) Option {
	return func(s *Service) { s.rule = rule }
}

func WithLimits(limits models.Limits) Option {
	return func(s *Service) { s.limits = limits }
}

// WithResolver replaces the resolver built directly over the Reader, for
// example with one that goes through the Redis cache and a retry policy.
func WithResolver(r *identity.Resolver[*models.Household]) Option {
	return func(s *Service) { s.resolver = r }
}

// WithCacheInvalidator drops cached household lookups after each commit.
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

func New(tx TxRunner, reader Reader, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		reader: reader,
		rule:   eligibility.CalendarDay(time.Local),
		logger: slog.Default(),
		tracer: otel.Tracer("aidtrack/distribution"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = identity.NewResolver[*models.Household](
			identity.LookupFunc[*models.Household](reader.FindHouseholdByToken),
			identity.WithTarget(aggregateHouse),
			identity.WithLogger(s.logger),
		)
	}
	return s
}

// RegisterDistribution validates req and commits one distribution for its
// household. A second registration inside the same window returns an
// *eligibility.DuplicateDistributionError and writes nothing.
func (s *Service) RegisterDistribution(ctx context.Context, req *models.RegisterRequest) (*models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "distribution.RegisterDistribution")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveTx(programme, start)

	req.Normalize()
	if err := req.Validate(s.limits); err != nil {
		s.metrics.IncRejected(programme, "validation")
		return nil, err
	}
	span.SetAttributes(attribute.String("distribution.token", req.TokenNumber))

	now := requestcontext.Now(ctx)
	var receipt *models.Receipt
	run := func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			r, err := s.register(ctx, store, req, now)
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
		s.logger.InfoContext(ctx, "retrying registration after concurrent upsert",
			"token_number", req.TokenNumber,
			"request_id", requestcontext.RequestID(ctx),
		)
		err = run()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		return nil, s.translate(ctx, err, req.TokenNumber)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.TokenNumber); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate household cache",
				"token_number", req.TokenNumber,
				"error", err,
			)
		}
	}
	s.metrics.IncRegistered(programme)
	s.logger.InfoContext(ctx, "distribution registered",
		"distribution_id", receipt.DistributionID,
		"household_id", receipt.HouseholdID,
		"token_number", req.TokenNumber,
		"site_id", receipt.SiteID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

func (s *Service) register(ctx context.Context, store Store, req *models.RegisterRequest, now time.Time) (*models.Receipt, error) {
	if err := store.LockToken(ctx, req.TokenNumber); err != nil {
		return nil, err
	}

	siteID, err := store.UpsertSite(ctx, req.SiteName, req.SiteAddress)
	if err != nil {
		return nil, err
	}

	principal := req.Principal()
	householdID, err := store.UpsertHousehold(ctx, models.HouseholdFields{
		ID:                    uuid.New(),
		ExternalHouseholdCode: req.HouseholdID,
		DisplayName:           principal.Full(),
		TokenNumber:           req.TokenNumber,
		SiteID:                siteID,
		BeneficiaryCount:      req.BeneficiaryCount,
		PrimaryRecipientName:  principal.Full(),
		Now:                   now,
	})
	if err != nil {
		return nil, err
	}

	var lastAt *time.Time
	last, err := store.LastDistribution(ctx, householdID)
	switch {
	case err == nil:
		lastAt = &last.DistributionDate
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, err
	}
	if res := eligibility.Check(s.rule, lastAt, now); !res.Eligible {
		return nil, eligibility.NewDuplicateError("household "+req.TokenNumber, s.rule, res)
	}

	recipientID, err := store.UpsertPrincipalRecipient(ctx, householdID, principal)
	if err != nil {
		return nil, err
	}

	d := &models.Distribution{
		ID:                 uuid.New(),
		HouseholdID:        householdID,
		SiteID:             siteID,
		RecipientID:        recipientID,
		DistributionDate:   now,
		WindowKey:          s.rule.WindowKey(now),
		SignatureBlob:      req.Signature,
		Status:             models.StatusCompleted,
		AlternateRecipient: req.AlternateRecipient,
	}
	if err := store.InsertDistribution(ctx, d); err != nil {
		return nil, err
	}
	if err := store.InsertSignature(ctx, &models.Signature{
		ID:             uuid.New(),
		RecipientID:    recipientID,
		DistributionID: d.ID,
		SignatureData:  req.Signature,
		SignedAt:       now,
	}); err != nil {
		return nil, err
	}

	entry, err := outbox.NewEntry(aggregateHouse, householdID.String(), outbox.EventDistributionRegistered, distributionEvent{
		DistributionID:     d.ID,
		HouseholdID:        householdID,
		TokenNumber:        req.TokenNumber,
		SiteID:             siteID,
		SiteName:           req.SiteName,
		RecipientID:        recipientID,
		BeneficiaryCount:   req.BeneficiaryCount,
		AlternateRecipient: req.AlternateRecipient,
		DistributionDate:   now,
		RequestID:          requestcontext.RequestID(ctx),
	}, now)
	if err != nil {
		return nil, err
	}
	if err := store.AppendEvent(ctx, entry); err != nil {
		return nil, err
	}

	return &models.Receipt{
		DistributionID:   d.ID,
		HouseholdID:      householdID,
		SiteID:           siteID,
		RecipientID:      recipientID,
		DistributionDate: now,
	}, nil
}

type distributionEvent struct {
	DistributionID     uuid.UUID `json:"distribution_id"`
	HouseholdID        uuid.UUID `json:"household_id"`
	TokenNumber        string    `json:"token_number"`
	SiteID             int64     `json:"site_id"`
	SiteName           string    `json:"site_name"`
	RecipientID        uuid.UUID `json:"recipient_id"`
	BeneficiaryCount   int       `json:"beneficiary_count"`
	AlternateRecipient string    `json:"alternate_recipient,omitempty"`
	DistributionDate   time.Time `json:"distribution_date"`
	RequestID          string    `json:"request_id,omitempty"`
}

// translate maps store and runner failures to domain errors. Coded errors pass
// through untouched.
func (s *Service) translate(ctx context.Context, err error, token string) error {
	var dup *eligibility.DuplicateDistributionError
	switch {
	case errors.As(err, &dup):
		s.metrics.IncRejected(programme, "duplicate")
		s.logger.InfoContext(ctx, "duplicate distribution rejected",
			"token_number", token,
			"last_distribution_at", dup.LastDistributionAt,
			"request_id", requestcontext.RequestID(ctx),
		)
		return err
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncRejected(programme, "conflict")
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent registration for this token, retry the request")
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.IncRejected(programme, "timeout")
		return dErrors.Wrap(err, dErrors.CodeTimeout, "registration timed out")
	}
	if _, ok := dErrors.As(err); ok {
		s.metrics.IncRejected(programme, string(dErrors.CodeOf(err)))
		return err
	}
	s.metrics.IncRejected(programme, "persistence")
	s.logger.ErrorContext(ctx, "distribution transaction failed",
		"token_number", token,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register distribution")
}

// ProcessQRScan resolves a scanned payload to its household.
func (s *Service) ProcessQRScan(ctx context.Context, qrData string) (*models.Household, identity.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "distribution.ProcessQRScan")
	defer span.End()

	hh, res, err := s.resolver.Resolve(ctx, identity.ParseQRPayload(qrData))
	if err != nil {
		return nil, res, err
	}
	return hh, res, nil
}

// ValidateQR reports whether the scanned household may be served now. It
// writes nothing. Unknown cards are reported as invalid rather than failing.
func (s *Service) ValidateQR(ctx context.Context, qrCode string) (*models.QRValidation, error) {
	ctx, span := s.tracer.Start(ctx, "distribution.ValidateQR")
	defer span.End()

	hh, res, err := s.resolver.Resolve(ctx, identity.ParseQRPayload(qrCode))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncQRValidation("unknown")
			return &models.QRValidation{Valid: false, Distributions: []models.Distribution{}}, nil
		}
		return nil, err
	}

	history, err := s.reader.ListDistributions(ctx, hh.ID, historyLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load distribution history")
	}
	if history == nil {
		history = []models.Distribution{}
	}

	var lastAt *time.Time
	if len(history) > 0 {
		lastAt = &history[0].DistributionDate
	}
	check := eligibility.Check(s.rule, lastAt, requestcontext.Now(ctx))

	out := &models.QRValidation{
		Valid:              true,
		Household:          hh,
		AlreadyDistributed: !check.Eligible,
		LastDistributionAt: check.LastDistributionAt,
		NextEligibleAt:     check.NextEligibleAt,
		Distributions:      history,
		MatchedVariant:     string(res.Variant),
	}
	if check.Eligible {
		s.metrics.IncQRValidation("eligible")
	} else {
		s.metrics.IncQRValidation("already_distributed")
	}
	return out, nil
}

// History lists a household's distributions, newest first.
func (s *Service) History(ctx context.Context, token string) (*models.Household, []models.Distribution, error) {
	hh, _, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.reader.ListDistributions(ctx, hh.ID, historyLimit)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load distribution history")
	}
	if history == nil {
		history = []models.Distribution{}
	}
	return hh, history, nil
}
