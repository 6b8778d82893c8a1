package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solosaving/backend/internal/cash"
	"github.com/solosaving/backend/internal/config"
	"github.com/solosaving/backend/internal/database"
	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/export"
	"github.com/solosaving/backend/internal/goal"
	"github.com/solosaving/backend/internal/holding"
	"github.com/solosaving/backend/internal/portfolio"
	"github.com/solosaving/backend/internal/quote"
	"github.com/solosaving/backend/internal/snapshot"
	"github.com/solosaving/backend/internal/valuation"
)

// app holds the wired services shared by every command.
type app struct {
	cfg   config.Config
	pool  *pgxpool.Pool
	clock domain.Clock

	holdings  *holding.Service
	valuation *valuation.Service
	cash      *cash.Service
	portfolio *portfolio.Service
	snapshots *snapshot.Service
	goals     *goal.Service
	export    *export.Service
}

func setupLogging(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func migrations() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	return sub, nil
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// newApp connects to the database, applies pending migrations and wires the services.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	migrationsSub, err := migrations()
	if err != nil {
		pool.Close()
		return nil, err
	}
	applied, err := database.RunMigrations(ctx, pool, migrationsSub)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if len(applied) > 0 {
		slog.Info("migrations applied", "files", applied)
	}

	quotes := quote.NewCachedSource(
		quote.NewClient(cfg.QuoteBaseURL, cfg.QuoteRetryMax, cfg.QuoteRetryBaseDelay,
			quote.WithRateLimit(cfg.QuoteRateLimit)),
		cfg.QuoteCacheTTL,
		cfg.HistoryCacheTTL,
	)

	holdingRepo := holding.NewPgRepository(pool)
	snapshotRepo := snapshot.NewPgRepository(pool)

	var sheets export.SnapshotWriter
	if cfg.SheetsEnabled() {
		w, err := export.NewSheetsWriter(ctx, cfg.SheetsSpreadsheetID, cfg.GoogleCredentialsJSON)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating sheets writer: %w", err)
		}
		sheets = w
	} else {
		slog.Info("Google Sheets export disabled")
	}
	exportSvc := export.NewService(snapshotRepo, holdingRepo, sheets)
	clock := domain.NewClock(cfg.Location)

	return &app{
		cfg:      cfg,
		pool:     pool,
		clock:    clock,
		holdings: holding.NewService(holdingRepo, quotes).WithClock(clock),
		valuation: valuation.NewService(holdingRepo, quotes, valuation.Options{
			DefaultFXRate: cfg.DefaultUSDJPYRate,
			Concurrency:   cfg.QuoteConcurrency,
			Clock:         clock,
		}),
		cash:      cash.NewService(holdingRepo),
		portfolio: portfolio.NewService(holdingRepo, snapshotRepo).WithClock(clock),
		snapshots: snapshot.NewService(snapshotRepo, holdingRepo, quotes, snapshot.Options{
			DefaultFXRate: cfg.DefaultUSDJPYRate,
			Concurrency:   cfg.QuoteConcurrency,
			Hooks:         []snapshot.AfterSnapshotHook{exportSvc},
		}),
		goals:  goal.NewService(goal.NewPgRepository(pool)),
		export: exportSvc,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
