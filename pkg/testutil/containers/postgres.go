//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"aidtrack/internal/platform/config"
	"aidtrack/internal/platform/postgres"
)

const postgresImage = "postgres:16-alpine"

// dataTables lists every table written by the services, children first.
var dataTables = []string{
	"outbox",
	"signatures",
	"nutrition_distributions",
	"nutrition_rations",
	"nutrition_beneficiaires",
	"distributions",
	"recipients",
	"households",
	"waybills",
	"mpos_records",
	"sites",
}

// PostgresContainer is a migrated database shared by the integration suites.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

func startPostgres(ctx context.Context) (*PostgresContainer, error) {
	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("aidtrack"),
		tcpostgres.WithUsername("aidtrack"),
		tcpostgres.WithPassword("aidtrack"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	db, err := postgres.Open(ctx, config.Database{
		URL:             url,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &PostgresContainer{Container: container, URL: url, DB: db}, nil
}

// TruncateTables empties every data table and restarts the card and
// registration sequences. Call it between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context) error {
	query := "TRUNCATE TABLE " + strings.Join(dataTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := p.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	for _, seq := range []string{"ration_card_seq", "nutrition_registration_seq"} {
		if _, err := p.DB.ExecContext(ctx, "ALTER SEQUENCE "+seq+" RESTART WITH 1"); err != nil {
			return fmt.Errorf("restart %s: %w", seq, err)
		}
	}
	return nil
}
