package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/nutrition/service"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
)

type PostgresSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	ctx  context.Context
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db, s.mock = db, mock
	s.ctx = context.Background()
}

func (s *PostgresSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

var cardColumns = []string{
	"id", "registration_number", "site_id", "name", "first_name", "middle_name", "last_name",
	"date_of_birth", "sex", "category", "guardian_name", "household_token", "created_at", "updated_at",
	"id", "beneficiary_id", "card_number", "start_date", "end_date", "status", "created_at",
}

func (s *PostgresSuite) TestFindCard() {
	beneficiaryID, rationID := uuid.New(), uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.mock.ExpectQuery(regexp.QuoteMeta("FROM nutrition_rations r")).
		WithArgs("R-0001").
		WillReturnRows(sqlmock.NewRows(cardColumns).AddRow(
			beneficiaryID.String(), "NB-000001", int64(2), "Goma Nord", "Amani", "", "Mwamba",
			time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC), "F", "CHILD_6_59_MONTHS", "", "", now, now,
			rationID.String(), beneficiaryID.String(), "R-0001", start, start.AddDate(0, 6, 0), "ACTIVE", now,
		))

	card, err := NewPostgres(s.db).FindCard(s.ctx, "r-0001")
	s.Require().NoError(err)
	s.Equal(beneficiaryID, card.Beneficiary.ID)
	s.Equal(models.SexFemale, card.Beneficiary.Sex)
	s.Equal(rationID, card.Ration.ID)
	s.Equal(models.RationActive, card.Ration.Status)
	s.True(card.Ration.Covers(now, time.UTC))

	s.mock.ExpectQuery(regexp.QuoteMeta("FROM nutrition_rations r")).
		WithArgs("R-0404").
		WillReturnError(sql.ErrNoRows)
	_, err = NewPostgres(s.db).FindCard(s.ctx, "R-0404")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestIssueCardInTransaction() {
	beneficiaryID := uuid.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WithArgs("ration:R-0001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval($1::regclass)")).
		WithArgs("ration_card_seq").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(1)))
	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nutrition_rations")).
		WithArgs(sqlmock.AnyArg(), beneficiaryID, "R-0001", "2026-03-01", "2026-09-01", "ACTIVE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err := NewPostgresTx(s.db, time.Second).RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		if err := st.Lock(ctx, "ration:R-0001"); err != nil {
			return err
		}
		n, err := st.NextCardNumber(ctx)
		if err != nil {
			return err
		}
		s.Equal(int64(1), n)
		return st.InsertRation(ctx, &models.Ration{
			ID: uuid.New(), BeneficiaryID: beneficiaryID, CardNumber: "R-0001",
			StartDate: start, EndDate: start.AddDate(0, 6, 0), Status: models.RationActive, CreatedAt: start,
		})
	})
	s.Require().NoError(err)
}

func (s *PostgresSuite) TestDuplicateCardRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nutrition_rations")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "nutrition_rations_one_active_idx"})
	s.mock.ExpectRollback()

	err := NewPostgresTx(s.db, time.Second).RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		return st.InsertRation(ctx, &models.Ration{ID: uuid.New(), CardNumber: "R-0001", Status: models.RationActive})
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresSuite) TestSlowStatementRollsBackAtTxTimeout() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WithArgs("ration:R-0001").
		WillDelayFor(300 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	reqCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	err := NewPostgresTx(s.db, 50*time.Millisecond).RunInTx(reqCtx, func(ctx context.Context, st service.Store) error {
		return st.Lock(ctx, "ration:R-0001")
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout), "got %v", err)
	s.Eventually(func() bool { return s.mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
}

func (s *PostgresSuite) TestLastDistributionNone() {
	rationID := uuid.New()
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM nutrition_distributions")).
		WithArgs(rationID).
		WillReturnError(sql.ErrNoRows)
	s.mock.ExpectCommit()

	err := NewPostgresTx(s.db, time.Second).RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		_, err := st.LastDistribution(ctx, rationID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		return nil
	})
	s.Require().NoError(err)
}
