package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/nutrition/service"
	"aidtrack/internal/outbox"
	"aidtrack/internal/platform/postgres"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	txcontext "aidtrack/pkg/platform/tx"
	"aidtrack/pkg/requestcontext"
)

const defaultTxTimeout = 5 * time.Second

const beneficiaryColumns = `
	b.id, b.registration_number, b.site_id, s.name, b.first_name, b.middle_name, b.last_name,
	b.date_of_birth, b.sex, b.category, b.guardian_name, b.household_token, b.created_at, b.updated_at`

const rationColumns = `r.id, r.beneficiary_id, r.card_number, r.start_date, r.end_date, r.status, r.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(row rowScanner, extra ...any) (*models.Beneficiary, error) {
	var b models.Beneficiary
	dest := []any{
		&b.ID, &b.RegistrationNumber, &b.SiteID, &b.SiteName, &b.FirstName, &b.MiddleName, &b.LastName,
		&b.DateOfBirth, &b.Sex, &b.Category, &b.GuardianName, &b.HouseholdToken, &b.CreatedAt, &b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &b, nil
}

func rationDest(r *models.Ration) []any {
	return []any{&r.ID, &r.BeneficiaryID, &r.CardNumber, &r.StartDate, &r.EndDate, &r.Status, &r.CreatedAt}
}

// PostgresStore serves card lookups.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindCard(ctx context.Context, cardNumber string) (*models.Card, error) {
	query := `
		SELECT ` + beneficiaryColumns + `, ` + rationColumns + `
		FROM nutrition_rations r
		JOIN nutrition_beneficiaires b ON b.id = r.beneficiary_id
		JOIN sites s ON s.id = b.site_id
		WHERE r.card_number = $1
	`
	var ration models.Ration
	b, err := scanBeneficiary(s.db.QueryRowContext(ctx, query, strings.ToUpper(cardNumber)), rationDest(&ration)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ration card: %w", err)
	}
	return &models.Card{Beneficiary: b, Ration: &ration}, nil
}

// ListDistributions returns the newest distributions on a ration first.
func (s *PostgresStore) ListDistributions(ctx context.Context, rationID uuid.UUID, limit int) ([]models.Distribution, error) {
	query := `
		SELECT d.id, d.beneficiary_id, d.ration_id, d.site_id, s.name, d.distribution_date, d.status
		FROM nutrition_distributions d
		JOIN sites s ON s.id = d.site_id
		WHERE d.ration_id = $1
		ORDER BY d.distribution_date DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, rationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list nutrition distributions: %w", err)
	}
	defer rows.Close()

	var out []models.Distribution
	for rows.Next() {
		var d models.Distribution
		if err := rows.Scan(&d.ID, &d.BeneficiaryID, &d.RationID, &d.SiteID, &d.SiteName, &d.DistributionDate, &d.Status); err != nil {
			return nil, fmt.Errorf("scan nutrition distribution: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nutrition distributions: %w", err)
	}
	return out, nil
}

// PostgresTx runs nutrition callbacks in one read-committed transaction.
type PostgresTx struct {
	db      *sql.DB
	outbox  *outbox.PostgresStore
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresTx{db: db, outbox: outbox.NewPostgres(db), timeout: timeout}
}

// RunInTx bounds the transaction by the runner timeout, or by an earlier
// deadline already on ctx, and hands fn the bounded context. Running out of
// time rolls back and reports CodeTimeout.
func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return timeoutOr(ctx, fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &postgresTxStore{tx: tx, outbox: t.outbox}); err != nil {
		return timeoutOr(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return timeoutOr(ctx, wrapErr("commit transaction", err))
	}
	return nil
}

// timeoutOr reports err as CodeTimeout when the transaction context ran out.
// Drivers surface a cancelled statement with their own error, not ctx.Err().
func timeoutOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dErrors.Wrap(fmt.Errorf("%w: %w", ctxErr, err), dErrors.CodeTimeout, "transaction timed out")
	}
	return err
}

type postgresTxStore struct {
	tx     *sql.Tx
	outbox *outbox.PostgresStore
}

func (s *postgresTxStore) Lock(ctx context.Context, key string) error {
	if _, err := s.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return wrapErr("lock "+key, err)
	}
	return nil
}

func (s *postgresTxStore) UpsertSite(ctx context.Context, name, address string) (int64, error) {
	query := `
		INSERT INTO sites (name, address, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name_key) DO UPDATE SET
			address = CASE WHEN EXCLUDED.address <> '' THEN EXCLUDED.address ELSE sites.address END,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	var id int64
	if err := s.tx.QueryRowContext(ctx, query, name, address, requestcontext.Now(ctx)).Scan(&id); err != nil {
		return 0, wrapErr("upsert site", err)
	}
	return id, nil
}

func (s *postgresTxStore) FindBeneficiary(ctx context.Context, key models.BeneficiaryKey) (*models.Beneficiary, error) {
	query := `
		SELECT ` + beneficiaryColumns + `
		FROM nutrition_beneficiaires b
		JOIN sites s ON s.id = b.site_id
		WHERE lower(b.first_name) = lower($1)
		  AND lower(b.last_name) = lower($2)
		  AND b.date_of_birth = $3
		  AND b.site_id = $4
	`
	b, err := scanBeneficiary(s.tx.QueryRowContext(ctx, query,
		key.FirstName, key.LastName, key.DateOfBirth.Format(time.DateOnly), key.SiteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("find beneficiary", err)
	}
	return b, nil
}

func (s *postgresTxStore) InsertBeneficiary(ctx context.Context, b *models.Beneficiary) error {
	query := `
		INSERT INTO nutrition_beneficiaires (
			id, registration_number, site_id, first_name, middle_name, last_name,
			date_of_birth, sex, category, guardian_name, household_token, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.tx.ExecContext(ctx, query,
		b.ID, b.RegistrationNumber, b.SiteID, b.FirstName, b.MiddleName, b.LastName,
		b.DateOfBirth.Format(time.DateOnly), string(b.Sex), string(b.Category), b.GuardianName, b.HouseholdToken,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return wrapErr("insert beneficiary", err)
	}
	return nil
}

func (s *postgresTxStore) NextRegistrationNumber(ctx context.Context) (int64, error) {
	return s.nextval(ctx, "nutrition_registration_seq")
}

func (s *postgresTxStore) NextCardNumber(ctx context.Context) (int64, error) {
	return s.nextval(ctx, "ration_card_seq")
}

func (s *postgresTxStore) nextval(ctx context.Context, seq string) (int64, error) {
	var n int64
	if err := s.tx.QueryRowContext(ctx, `SELECT nextval($1::regclass)`, seq).Scan(&n); err != nil {
		return 0, wrapErr("nextval "+seq, err)
	}
	return n, nil
}

func (s *postgresTxStore) ActiveRation(ctx context.Context, beneficiaryID uuid.UUID) (*models.Ration, error) {
	query := `SELECT ` + rationColumns + ` FROM nutrition_rations r WHERE r.beneficiary_id = $1 AND r.status = 'ACTIVE'`
	return s.ration(ctx, "active ration", query, beneficiaryID)
}

func (s *postgresTxStore) RationByCard(ctx context.Context, cardNumber string) (*models.Ration, error) {
	query := `SELECT ` + rationColumns + ` FROM nutrition_rations r WHERE r.card_number = $1`
	return s.ration(ctx, "ration by card", query, strings.ToUpper(cardNumber))
}

func (s *postgresTxStore) ration(ctx context.Context, op, query string, arg any) (*models.Ration, error) {
	var r models.Ration
	err := s.tx.QueryRowContext(ctx, query, arg).Scan(rationDest(&r)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return &r, nil
}

func (s *postgresTxStore) InsertRation(ctx context.Context, r *models.Ration) error {
	query := `
		INSERT INTO nutrition_rations (id, beneficiary_id, card_number, start_date, end_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.tx.ExecContext(ctx, query,
		r.ID, r.BeneficiaryID, r.CardNumber, r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly),
		string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return wrapErr("insert ration", err)
	}
	return nil
}

func (s *postgresTxStore) LastDistribution(ctx context.Context, rationID uuid.UUID) (*models.Distribution, error) {
	query := `
		SELECT id, beneficiary_id, ration_id, site_id, distribution_date, status
		FROM nutrition_distributions
		WHERE ration_id = $1
		ORDER BY distribution_date DESC
		LIMIT 1
	`
	var d models.Distribution
	err := s.tx.QueryRowContext(ctx, query, rationID).Scan(
		&d.ID, &d.BeneficiaryID, &d.RationID, &d.SiteID, &d.DistributionDate, &d.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("last nutrition distribution", err)
	}
	return &d, nil
}

func (s *postgresTxStore) InsertDistribution(ctx context.Context, d *models.Distribution) error {
	query := `
		INSERT INTO nutrition_distributions (id, beneficiary_id, ration_id, site_id, distribution_date, signature_data, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.tx.ExecContext(ctx, query,
		d.ID, d.BeneficiaryID, d.RationID, d.SiteID, d.DistributionDate, d.SignatureData, d.Status,
	)
	if err != nil {
		return wrapErr("insert nutrition distribution", err)
	}
	return nil
}

func (s *postgresTxStore) InsertSignature(ctx context.Context, sig *models.Signature) error {
	query := `
		INSERT INTO signatures (id, beneficiary_id, nutrition_distribution_id, signature_data, signed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.tx.ExecContext(ctx, query,
		sig.ID, sig.BeneficiaryID, sig.NutritionDistributionID, sig.SignatureData, sig.SignedAt,
	)
	if err != nil {
		return wrapErr("insert nutrition signature", err)
	}
	return nil
}

func (s *postgresTxStore) AppendEvent(ctx context.Context, e outbox.Entry) error {
	return s.outbox.Append(txcontext.WithTx(ctx, s.tx), e)
}

func wrapErr(op string, err error) error {
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
