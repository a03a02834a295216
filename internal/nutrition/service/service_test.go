package service_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"aidtrack/internal/distribution/eligibility"
	"aidtrack/internal/distribution/metrics"
	"aidtrack/internal/identity"
	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/nutrition/service"
	"aidtrack/internal/nutrition/store"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/requestcontext"
)

type NutritionSuite struct {
	suite.Suite
	loc     *time.Location
	outbox  *outbox.MemoryStore
	store   *store.MemoryStore
	metrics *metrics.Metrics
	svc     *service.Service
}

func TestNutritionSuite(t *testing.T) {
	suite.Run(t, new(NutritionSuite))
}

func (s *NutritionSuite) SetupTest() {
	loc, err := time.LoadLocation("Africa/Kinshasa")
	s.Require().NoError(err)
	s.loc = loc
	s.outbox = outbox.NewMemory()
	s.store = store.NewMemory(s.outbox)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = service.New(s.store, s.store,
		service.WithCycle(6),
		service.WithCardPrefix("R-"),
		service.WithLocation(loc),
		service.WithMetrics(s.metrics),
	)
}

func (s *NutritionSuite) at(year int, month time.Month, day, hour int) context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(year, month, day, hour, 0, 0, 0, s.loc))
}

func beneficiaryRequest() *models.RegisterBeneficiaryRequest {
	return &models.RegisterBeneficiaryRequest{
		SiteName:     "Goma Nord",
		FirstName:    "Amani",
		LastName:     "Mwamba",
		DateOfBirth:  "2024-05-14",
		Sex:          "f",
		Category:     "child_6_59_months",
		GuardianName: "Esther Mwamba",
	}
}

func distributionRequest(card string) *models.DistributionRequest {
	return &models.DistributionRequest{
		CardNumber: card,
		SiteName:   "Goma Nord",
		Signature:  "data:image/png;base64,iVBORw0KGgo=",
	}
}

func (s *NutritionSuite) TestRegisterBeneficiaryIssuesCard() {
	receipt, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), beneficiaryRequest())
	s.Require().NoError(err)

	s.True(receipt.Created)
	s.Equal("R-0001", receipt.CardNumber)
	s.Equal("NB-000001", receipt.RegistrationNumber)
	s.Equal("2026-03-01", receipt.StartDate.Format(time.DateOnly))
	s.Equal("2026-09-01", receipt.EndDate.Format(time.DateOnly))

	entries := s.outbox.Entries()
	s.Require().Len(entries, 1)
	s.Equal(outbox.EventNutritionBeneficiaryRegistered, entries[0].EventType)
	s.Equal("R-0001", entries[0].AggregateID)
}

func (s *NutritionSuite) TestSecondActiveCardIsRejected() {
	_, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), beneficiaryRequest())
	s.Require().NoError(err)

	again := beneficiaryRequest()
	again.FirstName = "AMANI"
	again.LastName = " mwamba "
	_, err = s.svc.RegisterBeneficiary(s.at(2026, 3, 2, 10), again)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	beneficiaries, rations, _, _ := s.store.Counts()
	s.Equal(1, beneficiaries)
	s.Equal(1, rations)
	s.Len(s.outbox.Entries(), 1)
}

func (s *NutritionSuite) TestReenrolmentAfterCardCompletes() {
	first, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), beneficiaryRequest())
	s.Require().NoError(err)
	s.Require().True(s.store.SetRationStatus(first.CardNumber, models.RationCompleted))

	second, err := s.svc.RegisterBeneficiary(s.at(2026, 9, 2, 10), beneficiaryRequest())
	s.Require().NoError(err)
	s.False(second.Created)
	s.Equal(first.BeneficiaryID, second.BeneficiaryID)
	s.Equal(first.RegistrationNumber, second.RegistrationNumber)
	s.Equal("R-0002", second.CardNumber)
}

func (s *NutritionSuite) TestBeneficiaryValidation() {
	cases := map[string]func(r *models.RegisterBeneficiaryRequest){
		"missing site":       func(r *models.RegisterBeneficiaryRequest) { r.SiteName = "" },
		"missing last name":  func(r *models.RegisterBeneficiaryRequest) { r.LastName = "" },
		"malformed birth":    func(r *models.RegisterBeneficiaryRequest) { r.DateOfBirth = "14/05/2024" },
		"birth in future":    func(r *models.RegisterBeneficiaryRequest) { r.DateOfBirth = "2027-01-01" },
		"unknown sex":        func(r *models.RegisterBeneficiaryRequest) { r.Sex = "X" },
		"unknown category":   func(r *models.RegisterBeneficiaryRequest) { r.Category = "ADULT" },
		"missing birth date": func(r *models.RegisterBeneficiaryRequest) { r.DateOfBirth = "" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			req := beneficiaryRequest()
			mutate(req)
			_, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "%v", err)
		})
	}
	beneficiaries, rations, _, _ := s.store.Counts()
	s.Zero(beneficiaries)
	s.Zero(rations)
}

func (s *NutritionSuite) TestDistributionOncePerCycle() {
	_, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), beneficiaryRequest())
	s.Require().NoError(err)

	s.Run("bare card number resolves and is served", func() {
		receipt, err := s.svc.RegisterDistribution(s.at(2026, 3, 1, 11), distributionRequest("0001"))
		s.Require().NoError(err)
		s.Equal("R-0001", receipt.CardNumber)
	})

	s.Run("served again inside the cycle", func() {
		_, err := s.svc.RegisterDistribution(s.at(2026, 8, 31, 9), distributionRequest("R-0001"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateDistribution))

		var dup *eligibility.DuplicateDistributionError
		s.Require().ErrorAs(err, &dup)
		s.Equal(time.Date(2026, 9, 1, 11, 0, 0, 0, s.loc), dup.NextEligibleAt.In(s.loc))
	})

	_, _, distributions, signatures := s.store.Counts()
	s.Equal(1, distributions)
	s.Equal(1, signatures)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registered.WithLabelValues("nutrition")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("nutrition", "duplicate")))

	entries := s.outbox.Entries()
	s.Require().Len(entries, 2)
	s.Equal(outbox.EventNutritionDistributionRegistered, entries[1].EventType)
}

func (s *NutritionSuite) TestDistributionRequiresActiveCoveringRation() {
	_, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), beneficiaryRequest())
	s.Require().NoError(err)

	s.Run("expired card", func() {
		_, err := s.svc.RegisterDistribution(s.at(2026, 9, 1, 9), distributionRequest("R-0001"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible), "%v", err)
	})

	s.Run("suspended card", func() {
		s.Require().True(s.store.SetRationStatus("R-0001", models.RationInactive))
		_, err := s.svc.RegisterDistribution(s.at(2026, 3, 2, 9), distributionRequest("R-0001"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible), "%v", err)
	})

	s.Run("unknown card", func() {
		_, err := s.svc.RegisterDistribution(s.at(2026, 3, 2, 9), distributionRequest("R-0999"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "%v", err)
	})

	_, _, distributions, _ := s.store.Counts()
	s.Zero(distributions)
}

func (s *NutritionSuite) TestDistributionValidation() {
	req := distributionRequest("R-0001")
	req.Signature = ""
	_, err := s.svc.RegisterDistribution(s.at(2026, 3, 1, 9), req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *NutritionSuite) TestLookup() {
	_, err := s.svc.RegisterBeneficiary(s.at(2026, 3, 1, 10), beneficiaryRequest())
	s.Require().NoError(err)

	details, err := s.svc.Lookup(s.at(2026, 3, 1, 10), `{"card_number":"r0001"}`)
	s.Require().NoError(err)
	s.True(details.Eligible)
	s.Equal(string(identity.VariantPrefix), details.MatchedVariant)
	s.Equal("Amani", details.Beneficiary.FirstName)
	s.Equal("Goma Nord", details.Beneficiary.SiteName)
	s.Empty(details.Distributions)

	_, err = s.svc.RegisterDistribution(s.at(2026, 3, 1, 11), distributionRequest("R-0001"))
	s.Require().NoError(err)

	details, err = s.svc.Lookup(s.at(2026, 3, 2, 10), "R-0001")
	s.Require().NoError(err)
	s.False(details.Eligible)
	s.Len(details.Distributions, 1)
	s.NotNil(details.NextEligibleAt)

	_, err = s.svc.Lookup(context.Background(), "R-0404")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
