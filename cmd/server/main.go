package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"aidtrack/internal/platform/config"
	"aidtrack/internal/platform/postgres"
	"aidtrack/internal/reconciliation/models"
	reconciliationservice "aidtrack/internal/reconciliation/service"
)

// main wires configuration into the subcommands. serve is the default; the
// others share the same configuration and stores.
func main() {
	root := &cli.Command{
		Name:  "aidtrack",
		Usage: "Humanitarian distribution tracking service",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			outboxCommand(),
			reconcileCommand(),
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return withApp(ctx, runServer)
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the outbox worker",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return withApp(ctx, runServer)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	publisher, closePublisher, err := a.publisher(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	srv := a.server()
	worker := a.worker(publisher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting aidtrack", "addr", a.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply pending migrations",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withApp(ctx, func(ctx context.Context, a *app) error {
						if err := a.requireDB(); err != nil {
							return err
						}
						if err := postgres.Migrate(ctx, a.db); err != nil {
							return err
						}
						a.logger.InfoContext(ctx, "migrations applied")
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "Print the applied state of every migration",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withApp(ctx, func(ctx context.Context, a *app) error {
						if err := a.requireDB(); err != nil {
							return err
						}
						return postgres.MigrationStatus(ctx, a.db)
					})
				},
			},
		},
	}
}

func outboxCommand() *cli.Command {
	return &cli.Command{
		Name:  "outbox",
		Usage: "Publish pending outbox events",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "publish one batch and exit"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, func(ctx context.Context, a *app) error {
				if err := a.requireDB(); err != nil {
					return err
				}
				publisher, closePublisher, err := a.publisher(ctx)
				if err != nil {
					return err
				}
				defer closePublisher()

				worker := a.worker(publisher)
				if c.Bool("once") {
					n, err := worker.ProcessBatch(ctx)
					if err != nil {
						return err
					}
					a.logger.InfoContext(ctx, "outbox batch published", "count", n)
					return nil
				}
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Compare received and distributed tonnage for a period",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Required: true, Usage: "first day, YYYY-MM-DD"},
			&cli.StringFlag{Name: "to", Required: true, Usage: "last day (inclusive), YYYY-MM-DD"},
			&cli.StringFlag{Name: "site", Usage: "restrict to one site"},
			&cli.StringFlag{Name: "out", Usage: "write an .xlsx workbook instead of JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, func(ctx context.Context, a *app) error {
				from, err := time.ParseInLocation(time.DateOnly, c.String("from"), a.location)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				to, err := time.ParseInLocation(time.DateOnly, c.String("to"), a.location)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}

				report, err := a.reconciliation.Reconcile(ctx, models.Filter{
					From:     from,
					To:       to.AddDate(0, 0, 1),
					SiteName: c.String("site"),
				})
				if err != nil {
					return err
				}

				if out := c.String("out"); out != "" {
					data, err := reconciliationservice.ExportXLSX(report)
					if err != nil {
						return err
					}
					return os.WriteFile(out, data, 0o644)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}
