package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"aidtrack/internal/distribution/eligibility"
	distributionhandler "aidtrack/internal/distribution/handler"
	distributionmetrics "aidtrack/internal/distribution/metrics"
	distributionmodels "aidtrack/internal/distribution/models"
	distributionservice "aidtrack/internal/distribution/service"
	distributionstore "aidtrack/internal/distribution/store"
	"aidtrack/internal/identity"
	nutritionhandler "aidtrack/internal/nutrition/handler"
	nutritionmodels "aidtrack/internal/nutrition/models"
	nutritionservice "aidtrack/internal/nutrition/service"
	nutritionstore "aidtrack/internal/nutrition/store"
	"aidtrack/internal/outbox"
	"aidtrack/internal/platform/config"
	"aidtrack/internal/platform/httpserver"
	"aidtrack/internal/platform/logger"
	"aidtrack/internal/platform/metrics"
	"aidtrack/internal/platform/postgres"
	"aidtrack/internal/platform/redis"
	reconciliationhandler "aidtrack/internal/reconciliation/handler"
	reconciliationservice "aidtrack/internal/reconciliation/service"
	reconciliationstore "aidtrack/internal/reconciliation/store"
	httptransport "aidtrack/internal/transport/http"
	"aidtrack/pkg/platform/retry"
)

// app holds the process-wide resources. Stores are Postgres-backed when a
// database URL is configured and in-memory otherwise.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	location *time.Location
	registry *prometheus.Registry

	db    *sql.DB
	redis *redis.Client

	memOutbox *outbox.MemoryStore
	outbox    outbox.Store

	identityMetrics     *identity.Metrics
	distributionMetrics *distributionmetrics.Metrics
	httpMetrics         *metrics.Metrics

	distribution   *distributionservice.Service
	nutrition      *nutritionservice.Service
	reconciliation *reconciliationservice.Service
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger.New(cfg.Log.Level, cfg.Log.Format),
		registry: prometheus.NewRegistry(),
	}
	loc, err := cfg.Distribution.Location()
	if err != nil {
		return nil, err
	}
	a.location = loc

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.identityMetrics = identity.NewMetrics(a.registry)
	a.distributionMetrics = distributionmetrics.New(a.registry)
	a.httpMetrics = metrics.New(a.registry)

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				a.close()
				return nil, err
			}
		}
		a.outbox = outbox.NewPostgres(db)
	} else {
		a.logger.WarnContext(ctx, "DATABASE_URL not set; using in-memory stores")
		a.memOutbox = outbox.NewMemory()
		a.outbox = a.memOutbox
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, err
	}
	a.redis = rc

	a.buildDistribution()
	a.buildNutrition()
	a.buildReconciliation()
	return a, nil
}

func (a *app) retryPolicy() retry.Policy {
	return retry.New(
		retry.WithMaxAttempts(a.cfg.Resolver.RetryAttempts),
		retry.WithInitialInterval(a.cfg.Resolver.RetryInitial),
		retry.WithMaxInterval(a.cfg.Resolver.RetryMax),
	)
}

func (a *app) buildDistribution() {
	var (
		tx     distributionservice.TxRunner
		reader distributionservice.Reader
	)
	if a.db != nil {
		tx = distributionstore.NewPostgresTx(a.db, a.cfg.Distribution.TxTimeout)
		reader = distributionstore.NewPostgres(a.db)
	} else {
		mem := distributionstore.NewMemory(a.memOutbox)
		tx, reader = mem, mem
	}

	opts := []distributionservice.Option{
		distributionservice.WithLogger(a.logger),
		distributionservice.WithMetrics(a.distributionMetrics),
		distributionservice.WithRule(eligibility.CalendarDay(a.location)),
		distributionservice.WithLimits(distributionmodels.Limits{
			MaxSignatureBytes:   a.cfg.Distribution.MaxSignatureBytes,
			MaxBeneficiaryCount: a.cfg.Distribution.MaxBeneficiaryCount,
		}),
	}

	var lookup identity.Lookup[*distributionmodels.Household] = identity.LookupFunc[*distributionmodels.Household](reader.FindHouseholdByToken)
	if a.redis != nil {
		cached := identity.NewCachedLookup[*distributionmodels.Household](
			lookup, a.redis, a.cfg.Resolver.CacheTTL, "aidtrack:household:", a.identityMetrics, a.logger,
		)
		lookup = cached
		opts = append(opts, distributionservice.WithCacheInvalidator(cached))
	}
	opts = append(opts, distributionservice.WithResolver(identity.NewResolver[*distributionmodels.Household](lookup,
		identity.WithTarget("household"),
		identity.WithPrefixes(a.cfg.Resolver.Prefixes...),
		identity.WithRetry(a.retryPolicy()),
		identity.WithMetrics(a.identityMetrics),
		identity.WithLogger(a.logger),
	)))

	a.distribution = distributionservice.New(tx, reader, opts...)
}

func (a *app) buildNutrition() {
	var (
		tx     nutritionservice.TxRunner
		reader nutritionservice.Reader
	)
	if a.db != nil {
		tx = nutritionstore.NewPostgresTx(a.db, a.cfg.Distribution.TxTimeout)
		reader = nutritionstore.NewPostgres(a.db)
	} else {
		mem := nutritionstore.NewMemory(a.memOutbox)
		tx, reader = mem, mem
	}

	// Card status changes outside the registration flow, so card lookups are
	// not cached.
	resolver := identity.NewResolver[*nutritionmodels.Card](
		identity.LookupFunc[*nutritionmodels.Card](reader.FindCard),
		identity.WithTarget("ration card"),
		identity.WithPrefixes(a.cfg.Nutrition.CardPrefix),
		identity.WithRetry(a.retryPolicy()),
		identity.WithMetrics(a.identityMetrics),
		identity.WithLogger(a.logger),
	)
	a.nutrition = nutritionservice.New(tx, reader,
		nutritionservice.WithLogger(a.logger),
		nutritionservice.WithMetrics(a.distributionMetrics),
		nutritionservice.WithCycle(a.cfg.Nutrition.CycleMonths),
		nutritionservice.WithCardPrefix(a.cfg.Nutrition.CardPrefix),
		nutritionservice.WithLocation(a.location),
		nutritionservice.WithMaxSignatureBytes(a.cfg.Distribution.MaxSignatureBytes),
		nutritionservice.WithResolver(resolver),
	)
}

func (a *app) buildReconciliation() {
	var store reconciliationservice.Store
	if a.db != nil {
		store = reconciliationstore.NewPostgres(a.db, a.cfg.Server.RequestTimeout)
	} else {
		store = reconciliationstore.NewMemory()
	}
	a.reconciliation = reconciliationservice.New(store, reconciliationservice.WithLogger(a.logger))
}

func (a *app) publisher(ctx context.Context) (outbox.Publisher, func(), error) {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.InfoContext(ctx, "no kafka brokers configured; outbox events are logged")
		return outbox.NewLogPublisher(a.logger), func() {}, nil
	}
	p, err := outbox.NewKafkaPublisher(ctx, a.cfg.Kafka, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

func (a *app) worker(publisher outbox.Publisher) *outbox.Worker {
	return outbox.NewWorker(a.outbox, publisher,
		outbox.WithInterval(a.cfg.Outbox.PollInterval),
		outbox.WithBatchSize(a.cfg.Outbox.BatchSize),
		outbox.WithLogger(a.logger),
		outbox.WithMetrics(outbox.NewMetrics(a.registry)),
	)
}

func (a *app) server() *http.Server {
	checks := map[string]httptransport.Check{}
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}

	router := httptransport.NewRouter(httptransport.Options{
		Logger:   a.logger,
		Gatherer: a.registry,
		Checks:   checks,
	},
		distributionhandler.New(a.distribution, a.logger, a.httpMetrics, a.cfg.Distribution.MaxSignatureBytes,
			distributionhandler.WithTimeout(a.cfg.Server.RequestTimeout)),
		nutritionhandler.New(a.nutrition, a.logger, a.httpMetrics, a.cfg.Distribution.MaxSignatureBytes,
			nutritionhandler.WithTimeout(a.cfg.Server.RequestTimeout)),
		reconciliationhandler.New(a.reconciliation, reconciliationservice.ExportXLSX, a.logger, a.httpMetrics, a.location,
			reconciliationhandler.WithTimeout(a.cfg.Server.RequestTimeout)),
	)
	return httpserver.New(a.cfg.Server.Addr, router, a.cfg.Server.ReadHeaderTimeout)
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing database", "error", err)
		}
	}
}

func (a *app) requireDB() error {
	if a.db == nil {
		return fmt.Errorf("DATABASE_URL is required for this command")
	}
	return nil
}
