package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"aidtrack/internal/distribution/eligibility"
	"aidtrack/internal/distribution/metrics"
	"aidtrack/internal/distribution/models"
	"aidtrack/internal/distribution/service"
	"aidtrack/internal/distribution/store"
	"aidtrack/internal/identity"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/httputil"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	kinshasa *time.Location
	outbox   *outbox.MemoryStore
	store    *store.MemoryStore
	metrics  *metrics.Metrics
	svc      *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	loc, err := time.LoadLocation("Africa/Kinshasa")
	s.Require().NoError(err)
	s.kinshasa = loc
	s.outbox = outbox.NewMemory()
	s.store = store.NewMemory(s.outbox)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = s.newService(s.store)
}

func (s *ServiceSuite) newService(tx service.TxRunner) *service.Service {
	return service.New(tx, s.store,
		service.WithRule(eligibility.CalendarDay(s.kinshasa)),
		service.WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) at(day, hour, minute int) context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2026, 3, day, hour, minute, 0, 0, s.kinshasa))
}

func validRequest() *models.RegisterRequest {
	return &models.RegisterRequest{
		SiteName:         "Kinshasa Centre",
		HouseholdID:      "HH-0001",
		TokenNumber:      "TK001",
		BeneficiaryCount: 5,
		FirstName:        "Marie",
		LastName:         "Kabila",
		Signature:        "data:image/png;base64,iVBORw0KGgo=",
	}
}

func (s *ServiceSuite) assertCounts(sites, households, recipients, distributions, signatures int) {
	gotSites, gotHouseholds, gotRecipients, gotDistributions, gotSignatures := s.store.Counts()
	s.Equal(sites, gotSites, "sites")
	s.Equal(households, gotHouseholds, "households")
	s.Equal(recipients, gotRecipients, "recipients")
	s.Equal(distributions, gotDistributions, "distributions")
	s.Equal(signatures, gotSignatures, "signatures")
}

func (s *ServiceSuite) TestKinshasaCentreScenario() {
	s.Run("first registration commits", func() {
		receipt, err := s.svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
		s.Require().NoError(err)
		s.NotEmpty(receipt.DistributionID)
		s.assertCounts(1, 1, 1, 1, 1)
	})

	var firstID string
	s.Run("same day is rejected as duplicate", func() {
		_, hist, err := s.svc.History(context.Background(), "TK001")
		s.Require().NoError(err)
		s.Require().Len(hist, 1)
		firstID = hist[0].ID.String()

		_, err = s.svc.RegisterDistribution(s.at(1, 16, 30), validRequest())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateDistribution))

		var dup *eligibility.DuplicateDistributionError
		s.Require().ErrorAs(err, &dup)
		s.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, s.kinshasa), dup.LastDistributionAt.In(s.kinshasa))

		var detailer httputil.Detailer
		s.Require().ErrorAs(err, &detailer)
		s.Contains(detailer.ErrorDetails(), "last_distribution_at")
		s.assertCounts(1, 1, 1, 1, 1)
	})

	s.Run("next day commits a new distribution", func() {
		receipt, err := s.svc.RegisterDistribution(s.at(2, 8, 0), validRequest())
		s.Require().NoError(err)
		s.NotEqual(firstID, receipt.DistributionID.String())
		s.assertCounts(1, 1, 1, 2, 2)
	})

	s.Equal(2.0, testutil.ToFloat64(s.metrics.Registered.WithLabelValues("general")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("general", "duplicate")))
	s.Len(s.outbox.Entries(), 2)
	s.Equal(outbox.EventDistributionRegistered, s.outbox.Entries()[0].EventType)
}

func (s *ServiceSuite) TestMidnightBoundary() {
	_, err := s.svc.RegisterDistribution(s.at(1, 23, 59), validRequest())
	s.Require().NoError(err)
	_, err = s.svc.RegisterDistribution(s.at(2, 0, 1), validRequest())
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestUpsertIsIdempotentAcrossSubmissions() {
	first, err := s.svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
	s.Require().NoError(err)

	req := validRequest()
	req.SiteName = "  kinshasa   CENTRE "
	req.TokenNumber = " tk001 "
	req.BeneficiaryCount = 6
	second, err := s.svc.RegisterDistribution(s.at(2, 9, 0), req)
	s.Require().NoError(err)

	s.Equal(first.SiteID, second.SiteID)
	s.Equal(first.HouseholdID, second.HouseholdID)
	s.Equal(first.RecipientID, second.RecipientID)
	s.assertCounts(1, 1, 1, 2, 2)

	hh, err := s.store.FindHouseholdByToken(context.Background(), "TK001")
	s.Require().NoError(err)
	s.Equal(6, hh.BeneficiaryCount, "descriptive fields are last-write-wins")
}

func (s *ServiceSuite) TestValidationHasNoSideEffects() {
	cases := map[string]func(r *models.RegisterRequest){
		"missing site":           func(r *models.RegisterRequest) { r.SiteName = " " },
		"missing token":          func(r *models.RegisterRequest) { r.TokenNumber = "" },
		"missing household id":   func(r *models.RegisterRequest) { r.HouseholdID = "" },
		"missing first name":     func(r *models.RegisterRequest) { r.FirstName = "" },
		"missing signature":      func(r *models.RegisterRequest) { r.Signature = "" },
		"zero beneficiaries":     func(r *models.RegisterRequest) { r.BeneficiaryCount = 0 },
		"too many beneficiaries": func(r *models.RegisterRequest) { r.BeneficiaryCount = 101 },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			req := validRequest()
			mutate(req)
			_, err := s.svc.RegisterDistribution(s.at(1, 9, 0), req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), err.Error())
		})
	}
	s.assertCounts(0, 0, 0, 0, 0)
}

func (s *ServiceSuite) TestOversizedSignatureRejected() {
	svc := service.New(s.store, s.store, service.WithLimits(models.Limits{MaxSignatureBytes: 16}))
	req := validRequest()
	req.Signature = "data:image/png;base64,AAAAAAAAAAAAAAAAAAAA"
	_, err := svc.RegisterDistribution(s.at(1, 9, 0), req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.assertCounts(0, 0, 0, 0, 0)
}

// failingSignatureStore fails the signature insert so the distribution written
// just before it must be rolled back.
type failingSignatureStore struct {
	service.Store
}

func (failingSignatureStore) InsertSignature(context.Context, *models.Signature) error {
	return errors.New("disk full")
}

type failingSignatureTx struct {
	inner service.TxRunner
}

func (f failingSignatureTx) RunInTx(ctx context.Context, fn func(context.Context, service.Store) error) error {
	return f.inner.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		return fn(ctx, failingSignatureStore{Store: st})
	})
}

func (s *ServiceSuite) TestSignatureFailureCommitsNothing() {
	svc := s.newService(failingSignatureTx{inner: s.store})

	_, err := svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.assertCounts(0, 0, 0, 0, 0)
	s.Empty(s.outbox.Entries())
}

func (s *ServiceSuite) TestConcurrentNewToken() {
	const goroutines = 20
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
		other      atomic.Int32
	)
	ctx := s.at(1, 9, 0)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := validRequest()
			req.TokenNumber = "TK777"
			_, err := s.svc.RegisterDistribution(ctx, req)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeDuplicateDistribution), dErrors.HasCode(err, dErrors.CodeConflict):
				duplicates.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), duplicates.Load())
	s.Zero(other.Load())
	s.assertCounts(1, 1, 1, 1, 1)
}

// conflictOnceTx fails the first n transactions with a unique-constraint
// conflict, as a concurrent first insert would.
type conflictOnceTx struct {
	inner     service.TxRunner
	conflicts int
	calls     int
}

func (c *conflictOnceTx) RunInTx(ctx context.Context, fn func(context.Context, service.Store) error) error {
	c.calls++
	if c.calls <= c.conflicts {
		return c.inner.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
			if err := fn(ctx, st); err != nil {
				return err
			}
			return sentinel.ErrConflict
		})
	}
	return c.inner.RunInTx(ctx, fn)
}

func (s *ServiceSuite) TestConflictIsRetriedOnce() {
	tx := &conflictOnceTx{inner: s.store, conflicts: 1}
	svc := s.newService(tx)

	_, err := svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
	s.Require().NoError(err)
	s.Equal(2, tx.calls)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TxRetries.WithLabelValues("general")))
	s.assertCounts(1, 1, 1, 1, 1)
}

func (s *ServiceSuite) TestPersistentConflictSurfaces() {
	tx := &conflictOnceTx{inner: s.store, conflicts: 2}
	svc := s.newService(tx)

	_, err := svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(2, tx.calls)
	s.assertCounts(0, 0, 0, 0, 0)
}

func (s *ServiceSuite) TestCancelledContextIsTimeout() {
	ctx, cancel := context.WithCancel(s.at(1, 9, 0))
	cancel()
	_, err := s.svc.RegisterDistribution(ctx, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ServiceSuite) TestValidateQR() {
	s.Run("unknown card is invalid", func() {
		res, err := s.svc.ValidateQR(s.at(1, 8, 0), "TK001")
		s.Require().NoError(err)
		s.False(res.Valid)
		s.Nil(res.Household)
		s.Empty(res.Distributions)
	})

	_, err := s.svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
	s.Require().NoError(err)

	s.Run("served household is recognised but already distributed today", func() {
		res, err := s.svc.ValidateQR(s.at(1, 10, 0), `{"token_number":"tk001"}`)
		s.Require().NoError(err)
		s.True(res.Valid)
		s.True(res.AlreadyDistributed)
		s.Require().NotNil(res.Household)
		s.Equal("TK001", res.Household.TokenNumber)
		s.Len(res.Distributions, 1)
		s.Require().NotNil(res.NextEligibleAt)
		s.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, s.kinshasa), res.NextEligibleAt.In(s.kinshasa))
	})

	s.Run("eligible again the next day", func() {
		res, err := s.svc.ValidateQR(s.at(2, 7, 0), "TK001")
		s.Require().NoError(err)
		s.True(res.Valid)
		s.False(res.AlreadyDistributed)
	})

	s.assertCounts(1, 1, 1, 1, 1)
}

func (s *ServiceSuite) TestProcessQRScan() {
	_, err := s.svc.RegisterDistribution(s.at(1, 9, 0), validRequest())
	s.Require().NoError(err)

	hh, res, err := s.svc.ProcessQRScan(context.Background(), ` {"qrCode":" tk001 "} `)
	s.Require().NoError(err)
	s.Equal("TK001", hh.TokenNumber)
	s.Equal("Kinshasa Centre", hh.SiteName)
	s.Equal(identity.VariantExact, res.Variant)

	_, _, err = s.svc.ProcessQRScan(context.Background(), "9999")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
