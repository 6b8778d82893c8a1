package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/snapshot"
)

// SnapshotJob fills snapshot gaps and writes today's snapshot.
type SnapshotJob interface {
	Backfill(ctx context.Context, today time.Time) (snapshot.BackfillResult, error)
	GenerateToday(ctx context.Context, today time.Time) (domain.DailySnapshot, error)
}

// SnapshotWorker runs the daily snapshot job: backfill missing days, refresh
// prices, then store today's snapshot.
type SnapshotWorker struct {
	job       SnapshotJob
	refresher PriceRefresher // optional
	interval  time.Duration
	clock     domain.Clock
}

// NewSnapshotWorker creates a new SnapshotWorker. refresher may be nil.
func NewSnapshotWorker(job SnapshotJob, refresher PriceRefresher, interval time.Duration) *SnapshotWorker {
	return &SnapshotWorker{
		job:       job,
		refresher: refresher,
		interval:  interval,
	}
}

// WithClock sets the clock that decides which day a run snapshots.
func (w *SnapshotWorker) WithClock(c domain.Clock) *SnapshotWorker {
	w.clock = c
	return w
}

// RunOnce performs one pass of the job. A failed backfill or refresh is logged and
// today's snapshot is still written.
func (w *SnapshotWorker) RunOnce(ctx context.Context) (domain.DailySnapshot, error) {
	today := w.clock.Today()

	if res, err := w.job.Backfill(ctx, today); err != nil {
		slog.Error("SnapshotWorker: backfill failed", "error", err)
	} else if len(res.Created) > 0 {
		slog.Info("SnapshotWorker: backfill completed", "created", len(res.Created))
	}

	if w.refresher != nil {
		if _, err := w.refresher.RefreshPrices(ctx); err != nil {
			slog.Error("SnapshotWorker: price refresh failed", "error", err)
		}
	}

	snap, err := w.job.GenerateToday(ctx, today)
	if err != nil {
		return domain.DailySnapshot{}, fmt.Errorf("generating snapshot: %w", err)
	}
	return snap, nil
}

// Run starts the snapshot loop. It blocks until the context is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("SnapshotWorker: starting", "interval", w.interval)

	w.run(ctx, "initial generation")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SnapshotWorker: shutting down")
			return
		case <-ticker.C:
			w.run(ctx, "generation")
		}
	}
}

func (w *SnapshotWorker) run(ctx context.Context, label string) {
	snap, err := w.RunOnce(ctx)
	if err != nil {
		slog.Error("SnapshotWorker: "+label+" failed", "error", err)
		return
	}
	slog.Info("SnapshotWorker: "+label+" completed",
		"date", snap.Date.Format(domain.DateLayout), "total", snap.TotalAssets.String())
}
