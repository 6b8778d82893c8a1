// Package worker runs the periodic background jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/solosaving/backend/internal/valuation"
)

// PriceRefresher revalues holdings from live quotes.
type PriceRefresher interface {
	RefreshPrices(ctx context.Context) (valuation.RefreshResult, error)
}

// RefreshWorker periodically refreshes holding prices.
type RefreshWorker struct {
	refresher PriceRefresher
	interval  time.Duration
}

// NewRefreshWorker creates a new RefreshWorker.
func NewRefreshWorker(refresher PriceRefresher, interval time.Duration) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		interval:  interval,
	}
}

// Run starts the refresh loop. It blocks until the context is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) {
	slog.Info("RefreshWorker: starting", "interval", w.interval)

	w.refresh(ctx, "initial refresh")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RefreshWorker: shutting down")
			return
		case <-ticker.C:
			w.refresh(ctx, "refresh")
		}
	}
}

func (w *RefreshWorker) refresh(ctx context.Context, label string) {
	res, err := w.refresher.RefreshPrices(ctx)
	if err != nil {
		slog.Error("RefreshWorker: "+label+" failed", "error", err)
		return
	}
	slog.Info("RefreshWorker: "+label+" completed", "updated", res.Updated, "failed", len(res.Failed))
}
