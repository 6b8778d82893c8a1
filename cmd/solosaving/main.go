package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/solosaving/backend/internal/api"
	"github.com/solosaving/backend/internal/config"
	"github.com/solosaving/backend/internal/database"
	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	var cfg config.Config

	cliApp := &cli.App{
		Name:  "solosaving",
		Usage: "personal asset tracker backend",
		Before: func(*cli.Context) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			setupLogging(cfg)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and background workers",
				Action: func(c *cli.Context) error {
					return serve(c.Context, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "list pending migrations without applying them"},
				},
				Action: func(c *cli.Context) error {
					return migrate(c.Context, cfg, c.Bool("dry-run"))
				},
			},
			{
				Name:  "refresh",
				Usage: "backfill missing snapshots, then refresh holding prices from the quote API",
				Action: withApp(&cfg, func(c *cli.Context, a *app) error {
					backfill, err := a.snapshots.Backfill(c.Context, a.clock.Today())
					if err != nil {
						slog.Error("backfill failed", "error", err)
					} else if len(backfill.Created) > 0 {
						fmt.Printf("backfilled %d snapshots\n", len(backfill.Created))
					}
					res, err := a.valuation.RefreshPrices(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("updated %d holdings, %d failed\n", res.Updated, len(res.Failed))
					return nil
				}),
			},
			{
				Name:  "backfill",
				Usage: "create snapshots for the days missing since the latest one",
				Action: withApp(&cfg, func(c *cli.Context, a *app) error {
					res, err := a.snapshots.Backfill(c.Context, a.clock.Today())
					if err != nil {
						return err
					}
					for _, d := range res.Created {
						fmt.Println("created", d.Format(domain.DateLayout))
					}
					fmt.Printf("%d created, %d already present\n", len(res.Created), res.Existing)
					return nil
				}),
			},
			{
				Name:  "snapshot",
				Usage: "run the daily job once: backfill, refresh prices, store today's snapshot",
				Action: withApp(&cfg, func(c *cli.Context, a *app) error {
					snap, err := worker.NewSnapshotWorker(a.snapshots, a.valuation, a.cfg.SnapshotInterval).
						WithClock(a.clock).RunOnce(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("%s total %s\n", snap.Date.Format(domain.DateLayout), domain.FormatYen(snap.TotalAssets))
					return nil
				}),
			},
			{
				Name:  "export",
				Usage: "write snapshots and holdings to an XLSX workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "snapshots.xlsx", Usage: "output file"},
				},
				Action: withApp(&cfg, func(c *cli.Context, a *app) error {
					return exportWorkbook(c.Context, a, c.String("out"))
				}),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// withApp wires the services for a one-shot command and cancels it on SIGINT/SIGTERM.
func withApp(cfg *config.Config, fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		c.Context = ctx

		a, err := newApp(ctx, *cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}

func migrate(ctx context.Context, cfg config.Config, dryRun bool) error {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	sub, err := migrations()
	if err != nil {
		return err
	}

	if dryRun {
		pending, err := database.Pending(ctx, pool, sub)
		if err != nil {
			return err
		}
		for _, name := range pending {
			fmt.Println("pending", name)
		}
		return nil
	}

	applied, err := database.RunMigrations(ctx, pool, sub)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
	fmt.Printf("%d migrations applied\n", len(applied))
	return nil
}

func exportWorkbook(ctx context.Context, a *app, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := a.export.Workbook(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	fmt.Println("wrote", path)
	return nil
}

func serve(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go worker.NewRefreshWorker(a.valuation, cfg.RefreshInterval).Run(ctx)
	go worker.NewSnapshotWorker(a.snapshots, a.valuation, cfg.SnapshotInterval).WithClock(a.clock).Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, mutating endpoints are unprotected")
	}

	handler := api.NewHandler(api.Services{
		Holdings:  a.holdings,
		Valuation: a.valuation,
		Cash:      a.cash,
		Portfolio: a.portfolio,
		Snapshots: a.snapshots,
		Goals:     a.goals,
		Export:    a.export,
		Clock:     a.clock,
	})
	srv := api.NewServer(cfg.HTTPPort, handler, api.Options{
		AdminAPIKey:    cfg.AdminAPIKey,
		RequestTimeout: cfg.RequestTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	default:
		slog.Info("shutdown complete")
		return nil
	}
}
