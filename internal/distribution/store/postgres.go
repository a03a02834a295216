package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aidtrack/internal/distribution/models"
	"aidtrack/internal/distribution/service"
	"aidtrack/internal/outbox"
	"aidtrack/internal/platform/postgres"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	txcontext "aidtrack/pkg/platform/tx"
	"aidtrack/pkg/requestcontext"
)

const defaultTxTimeout = 5 * time.Second

// PostgresStore serves the read-only queries of the distribution flow.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindHouseholdByToken looks a household up by its canonical token.
func (s *PostgresStore) FindHouseholdByToken(ctx context.Context, token string) (*models.Household, error) {
	query := `
		SELECT h.id, h.external_household_code, h.display_name, h.token_number, h.site_id, s.name,
		       h.beneficiary_count, h.primary_recipient_name, h.created_at, h.updated_at
		FROM households h
		JOIN sites s ON s.id = h.site_id
		WHERE h.token_number = $1
	`
	var hh models.Household
	err := s.db.QueryRowContext(ctx, query, strings.ToUpper(token)).Scan(
		&hh.ID, &hh.ExternalHouseholdCode, &hh.DisplayName, &hh.TokenNumber, &hh.SiteID, &hh.SiteName,
		&hh.BeneficiaryCount, &hh.PrimaryRecipientName, &hh.CreatedAt, &hh.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find household by token: %w", err)
	}
	return &hh, nil
}

// ListDistributions returns the newest distributions of a household first.
func (s *PostgresStore) ListDistributions(ctx context.Context, householdID uuid.UUID, limit int) ([]models.Distribution, error) {
	query := `
		SELECT d.id, d.household_id, d.site_id, s.name, d.recipient_id, d.distribution_date,
		       d.window_key, d.status, d.alternate_recipient
		FROM distributions d
		JOIN sites s ON s.id = d.site_id
		WHERE d.household_id = $1
		ORDER BY d.distribution_date DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, householdID, limit)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []models.Distribution
	for rows.Next() {
		var d models.Distribution
		if err := rows.Scan(&d.ID, &d.HouseholdID, &d.SiteID, &d.SiteName, &d.RecipientID, &d.DistributionDate,
			&d.WindowKey, &d.Status, &d.AlternateRecipient); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}
	return out, nil
}

// PostgresTx runs registration callbacks in one read-committed transaction.
type PostgresTx struct {
	db      *sql.DB
	outbox  *outbox.PostgresStore
	timeout time.Duration
}

// NewPostgresTx builds the runner. A zero timeout uses five seconds.
func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, outbox: outbox.NewPostgres(db), timeout: timeout}
}

// RunInTx bounds the transaction by the runner timeout, or by an earlier
// deadline already on ctx, and hands fn the bounded context. Running out of
// time rolls back and reports CodeTimeout.
func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
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

// postgresTxStore is the service.Store bound to one transaction.
type postgresTxStore struct {
	tx     *sql.Tx
	outbox *outbox.PostgresStore
}

func (s *postgresTxStore) LockToken(ctx context.Context, token string) error {
	if _, err := s.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "household:"+token); err != nil {
		return wrapErr("lock token", err)
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

func (s *postgresTxStore) UpsertHousehold(ctx context.Context, f models.HouseholdFields) (uuid.UUID, error) {
	query := `
		INSERT INTO households (
			id, external_household_code, display_name, token_number, site_id,
			beneficiary_count, primary_recipient_name, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (token_number) DO UPDATE SET
			external_household_code = EXCLUDED.external_household_code,
			display_name = EXCLUDED.display_name,
			site_id = EXCLUDED.site_id,
			beneficiary_count = EXCLUDED.beneficiary_count,
			primary_recipient_name = EXCLUDED.primary_recipient_name,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	var id uuid.UUID
	err := s.tx.QueryRowContext(ctx, query,
		f.ID, f.ExternalHouseholdCode, f.DisplayName, strings.ToUpper(f.TokenNumber), f.SiteID,
		f.BeneficiaryCount, f.PrimaryRecipientName, f.Now,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, wrapErr("upsert household", err)
	}
	return id, nil
}

func (s *postgresTxStore) UpsertPrincipalRecipient(ctx context.Context, householdID uuid.UUID, name models.PersonName) (uuid.UUID, error) {
	query := `
		INSERT INTO recipients (id, household_id, first_name, middle_name, last_name, is_principal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		ON CONFLICT (household_id) WHERE is_principal DO UPDATE SET
			first_name = EXCLUDED.first_name,
			middle_name = EXCLUDED.middle_name,
			last_name = EXCLUDED.last_name,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	var id uuid.UUID
	err := s.tx.QueryRowContext(ctx, query,
		uuid.New(), householdID, name.First, name.Middle, name.Last, requestcontext.Now(ctx),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, wrapErr("upsert principal recipient", err)
	}
	return id, nil
}

func (s *postgresTxStore) LastDistribution(ctx context.Context, householdID uuid.UUID) (*models.Distribution, error) {
	query := `
		SELECT id, household_id, site_id, recipient_id, distribution_date, window_key, status, alternate_recipient
		FROM distributions
		WHERE household_id = $1
		ORDER BY distribution_date DESC
		LIMIT 1
	`
	var d models.Distribution
	err := s.tx.QueryRowContext(ctx, query, householdID).Scan(
		&d.ID, &d.HouseholdID, &d.SiteID, &d.RecipientID, &d.DistributionDate, &d.WindowKey, &d.Status, &d.AlternateRecipient,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("last distribution", err)
	}
	return &d, nil
}

func (s *postgresTxStore) InsertDistribution(ctx context.Context, d *models.Distribution) error {
	query := `
		INSERT INTO distributions (
			id, household_id, site_id, recipient_id, distribution_date,
			window_key, alternate_recipient, signature_blob, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.tx.ExecContext(ctx, query,
		d.ID, d.HouseholdID, d.SiteID, d.RecipientID, d.DistributionDate,
		d.WindowKey, d.AlternateRecipient, d.SignatureBlob, string(d.Status),
	)
	if err != nil {
		return wrapErr("insert distribution", err)
	}
	return nil
}

func (s *postgresTxStore) InsertSignature(ctx context.Context, sig *models.Signature) error {
	query := `
		INSERT INTO signatures (id, recipient_id, distribution_id, signature_data, signed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.tx.ExecContext(ctx, query, sig.ID, sig.RecipientID, sig.DistributionID, sig.SignatureData, sig.SignedAt); err != nil {
		return wrapErr("insert signature", err)
	}
	return nil
}

// AppendEvent writes e to the outbox inside this transaction.
func (s *postgresTxStore) AppendEvent(ctx context.Context, e outbox.Entry) error {
	return s.outbox.Append(txcontext.WithTx(ctx, s.tx), e)
}

// wrapErr adds op context and maps unique violations to sentinel.ErrConflict.
func wrapErr(op string, err error) error {
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
