package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aidtrack/internal/platform/postgres"
	"aidtrack/internal/reconciliation/models"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

const defaultTimeout = 10 * time.Second

// PostgresStore keeps waybill and MPOS rows and sums them per commodity.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PostgresStore{db: db, timeout: timeout}
}

func (s *PostgresStore) WaybillTotals(ctx context.Context, f models.Filter) ([]models.Total, error) {
	query := `
		SELECT w.commodity, w.unit, SUM(w.quantity)
		FROM waybills w
		JOIN sites s ON s.id = w.site_id
		WHERE w.received_at >= $1 AND w.received_at < $2
		  AND ($3 = '' OR s.name_key = lower($3))
		GROUP BY w.commodity, w.unit
		ORDER BY w.commodity, w.unit
	`
	return s.totals(ctx, "waybill totals", query, f)
}

func (s *PostgresStore) MPOSTotals(ctx context.Context, f models.Filter) ([]models.Total, error) {
	query := `
		SELECT m.commodity, m.unit, SUM(m.quantity)
		FROM mpos_records m
		JOIN sites s ON s.id = m.site_id
		WHERE m.distributed_at >= $1 AND m.distributed_at < $2
		  AND ($3 = '' OR s.name_key = lower($3))
		GROUP BY m.commodity, m.unit
		ORDER BY m.commodity, m.unit
	`
	return s.totals(ctx, "mpos totals", query, f)
}

func (s *PostgresStore) totals(ctx context.Context, op, query string, f models.Filter) ([]models.Total, error) {
	rows, err := s.db.QueryContext(ctx, query, f.From, f.To, f.SiteName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Total
	for rows.Next() {
		var t models.Total
		if err := rows.Scan(&t.Commodity, &t.Unit, &t.Quantity); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// InsertWaybill upserts the site and inserts the row in one transaction. A
// waybill number may carry each commodity once.
func (s *PostgresStore) InsertWaybill(ctx context.Context, w *models.Waybill) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		siteID, err := upsertSite(ctx, tx, w.SiteName)
		if err != nil {
			return err
		}
		w.SiteID = siteID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO waybills (id, waybill_number, site_id, commodity, quantity, unit, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, w.ID, w.WaybillNumber, w.SiteID, w.Commodity, w.Quantity, w.Unit, w.ReceivedAt)
		return wrapErr("insert waybill", err)
	})
}

func (s *PostgresStore) InsertMPOS(ctx context.Context, r *models.MPOSRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		siteID, err := upsertSite(ctx, tx, r.SiteName)
		if err != nil {
			return err
		}
		r.SiteID = siteID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mpos_records (id, site_id, commodity, quantity, unit, distributed_at, household_token)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.ID, r.SiteID, r.Commodity, r.Quantity, r.Unit, r.DistributedAt, r.HouseholdToken)
		return wrapErr("insert mpos record", err)
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

func upsertSite(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sites (name, address, created_at, updated_at)
		VALUES ($1, '', $2, $2)
		ON CONFLICT (name_key) DO UPDATE SET updated_at = sites.updated_at
		RETURNING id
	`, name, requestcontext.Now(ctx)).Scan(&id)
	if err != nil {
		return 0, wrapErr("upsert site", err)
	}
	return id, nil
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
