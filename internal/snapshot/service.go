// Package snapshot persists daily portfolio snapshots and fills gaps in their history.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/portfolio"
)

// lookbackDays widens history requests so dates on weekends and holidays still
// find the previous close.
const lookbackDays = 7

// HoldingLister lists the live holdings.
type HoldingLister interface {
	List(ctx context.Context, category domain.Category) ([]domain.Holding, error)
}

// HistorySource provides historical closes and the current FX rate.
type HistorySource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)
	FXHistory(ctx context.Context, pair string, start, end time.Time) ([]domain.PricePoint, error)
	FXRate(ctx context.Context, pair string) (decimal.Decimal, error)
}

// AfterSnapshotHook is notified after today's snapshot has been generated.
type AfterSnapshotHook interface {
	AfterSnapshot(ctx context.Context, s domain.DailySnapshot) error
}

// Options tunes the snapshot service.
type Options struct {
	DefaultFXRate decimal.Decimal
	Concurrency   int
	Hooks         []AfterSnapshotHook
}

// Service manages snapshot generation, backfill and retrieval.
type Service struct {
	repo     Repository
	holdings HoldingLister
	history  HistorySource
	conv     domain.CurrencyConverter
	opts     Options

	mu sync.Mutex // serializes writers
}

// NewService creates a snapshot Service.
func NewService(repo Repository, holdings HoldingLister, history HistorySource, opts Options) *Service {
	if repo == nil || holdings == nil || history == nil {
		panic("snapshot.NewService: dependencies must not be nil")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{repo: repo, holdings: holdings, history: history, opts: opts}
}

// BackfillResult reports what a backfill did.
type BackfillResult struct {
	LastSnapshot *time.Time  `json:"lastSnapshot"`
	Created      []time.Time `json:"created"`
	Existing     int         `json:"existing"`
}

// Backfill creates a snapshot for every date after the latest stored snapshot and
// before today, valuing current quantities at historical prices. Without any stored
// snapshot nothing is created. Dates that already have a snapshot are left untouched.
func (s *Service) Backfill(ctx context.Context, today time.Time) (BackfillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today = domain.DateOf(today)
	last, err := s.repo.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("no snapshots yet, skipping backfill")
		return BackfillResult{}, nil
	}
	if err != nil {
		return BackfillResult{}, fmt.Errorf("getting latest snapshot: %w", err)
	}

	result := BackfillResult{LastSnapshot: &last.Date}
	start := last.Date.AddDate(0, 0, 1)
	if !start.Before(today) {
		return result, nil
	}

	holdings, err := s.holdings.List(ctx, "")
	if err != nil {
		return result, fmt.Errorf("listing holdings: %w", err)
	}

	prices := s.fetchHistories(ctx, holdings, start, today)
	fx := newFXResolver(s.fetchFXHistory(ctx, holdings, start, today), func() decimal.Decimal {
		rate, err := s.history.FXRate(ctx, domain.FXPair(domain.CurrencyUSD))
		if err != nil || !rate.IsPositive() {
			slog.Warn("current FX rate unavailable, using default", "rate", s.opts.DefaultFXRate.String(), "error", err)
			return s.opts.DefaultFXRate
		}
		return rate
	})

	for date := start; date.Before(today); date = date.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		snap := portfolio.BuildSnapshot(date, s.valueOn(date, holdings, prices, fx))
		created, err := s.repo.InsertIfAbsent(ctx, &snap)
		if err != nil {
			return result, fmt.Errorf("storing backfilled snapshot: %w", err)
		}
		if !created {
			result.Existing++
			continue
		}
		result.Created = append(result.Created, snap.Date)
		slog.Info("backfilled snapshot", "date", snap.Date.Format(domain.DateLayout), "total", snap.TotalAssets.String())
	}

	return result, nil
}

// valueOn revalues copies of holdings at the latest close on or before date. Holdings
// without a usable close keep their current value; cash is date-invariant.
func (s *Service) valueOn(date time.Time, holdings []domain.Holding, prices map[string][]domain.PricePoint, fx *fxResolver) []domain.Holding {
	return lo.Map(holdings, func(h domain.Holding, _ int) domain.Holding {
		if !h.Quotable() {
			return h
		}
		px, ok := priceAsOf(prices[h.QuoteSymbol()], date)
		if !ok {
			return h
		}
		var rate decimal.Decimal
		if s.conv.NeedsRate(h.Currency) {
			rate = fx.rateOn(date)
		}
		home, err := s.conv.ToHome(px, h.Currency, rate)
		if err != nil {
			slog.Warn("cannot convert historical price", "symbol", h.QuoteSymbol(), "error", err)
			return h
		}
		h.Revalue(home)
		return h
	})
}

func (s *Service) fetchHistories(ctx context.Context, holdings []domain.Holding, start, end time.Time) map[string][]domain.PricePoint {
	symbols := lo.Uniq(lo.FilterMap(holdings, func(h domain.Holding, _ int) (string, bool) {
		return h.QuoteSymbol(), h.Quotable()
	}))
	from := start.AddDate(0, 0, -lookbackDays)

	var mu sync.Mutex
	out := make(map[string][]domain.PricePoint, len(symbols))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			points, err := s.history.History(ctx, symbol, from, end)
			if err != nil {
				slog.Warn("price history unavailable", "symbol", symbol, "error", &domain.QuoteUnavailableError{Symbol: symbol, Err: err})
				return nil
			}
			mu.Lock()
			out[symbol] = sortedPoints(points)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) fetchFXHistory(ctx context.Context, holdings []domain.Holding, start, end time.Time) []domain.PricePoint {
	needsFX := lo.ContainsBy(holdings, func(h domain.Holding) bool {
		return h.Quotable() && s.conv.NeedsRate(h.Currency)
	})
	if !needsFX {
		return nil
	}
	pair := domain.FXPair(domain.CurrencyUSD)
	points, err := s.history.FXHistory(ctx, pair, start.AddDate(0, 0, -lookbackDays), end)
	if err != nil {
		slog.Warn("FX history unavailable", "pair", pair, "error", err)
		return nil
	}
	return sortedPoints(points)
}

// GenerateToday stores the snapshot of the live holdings for today, replacing an
// earlier one from the same day, and then runs the configured hooks.
func (s *Service) GenerateToday(ctx context.Context, today time.Time) (domain.DailySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	holdings, err := s.holdings.List(ctx, "")
	if err != nil {
		return domain.DailySnapshot{}, fmt.Errorf("listing holdings: %w", err)
	}

	snap := portfolio.BuildSnapshot(today, holdings)
	if err := s.repo.Upsert(ctx, &snap); err != nil {
		return domain.DailySnapshot{}, err
	}
	slog.Info("snapshot generated", "date", snap.Date.Format(domain.DateLayout), "total", snap.TotalAssets.String())

	for _, hook := range s.opts.Hooks {
		if err := hook.AfterSnapshot(ctx, snap); err != nil {
			slog.Warn("after-snapshot hook failed", "error", err)
		}
	}
	return snap, nil
}

// CreateRequest holds manually entered snapshot values.
type CreateRequest struct {
	Date         time.Time
	Totals       domain.CategoryTotals
	HoldingCount int
	YieldRate    decimal.NullDecimal
}

// Create stores a manually entered snapshot. An existing date is rejected with
// *domain.DuplicateSnapshotError.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.DailySnapshot, error) {
	if req.Date.IsZero() {
		return domain.DailySnapshot{}, fmt.Errorf("%w: snapshot date is required", domain.ErrInvalidInput)
	}
	if req.HoldingCount < 0 {
		return domain.DailySnapshot{}, fmt.Errorf("%w: holding count must not be negative", domain.ErrInvalidInput)
	}
	for _, v := range []decimal.Decimal{req.Totals.JPStocks, req.Totals.USStocks, req.Totals.Funds, req.Totals.Cash} {
		if v.IsNegative() {
			return domain.DailySnapshot{}, fmt.Errorf("%w: category totals must not be negative", domain.ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.NewDailySnapshot(req.Date, req.Totals, req.HoldingCount, req.YieldRate)
	if err := s.repo.Insert(ctx, &snap); err != nil {
		return domain.DailySnapshot{}, err
	}
	return snap, nil
}

// Latest returns the most recent snapshot or domain.ErrNotFound.
func (s *Service) Latest(ctx context.Context) (domain.DailySnapshot, error) {
	return s.repo.Latest(ctx)
}

// GetByDate returns the snapshot of date or domain.ErrNotFound.
func (s *Service) GetByDate(ctx context.Context, date time.Time) (domain.DailySnapshot, error) {
	return s.repo.GetByDate(ctx, date)
}

// List returns snapshots newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]domain.DailySnapshot, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return nil, fmt.Errorf("%w: end date before start date", domain.ErrInvalidInput)
	}
	return s.repo.List(ctx, f)
}

func sortedPoints(points []domain.PricePoint) []domain.PricePoint {
	out := lo.Filter(points, func(p domain.PricePoint, _ int) bool { return p.Close.IsPositive() })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// priceAsOf returns the last close dated on or before date.
func priceAsOf(points []domain.PricePoint, date time.Time) (decimal.Decimal, bool) {
	i := sort.Search(len(points), func(i int) bool { return points[i].Date.After(date) })
	if i == 0 {
		return decimal.Zero, false
	}
	return points[i-1].Close, true
}

// fxResolver picks the historical rate of a date, falling back to a current rate
// that is fetched at most once.
type fxResolver struct {
	history []domain.PricePoint
	current func() decimal.Decimal
}

func newFXResolver(history []domain.PricePoint, current func() decimal.Decimal) *fxResolver {
	return &fxResolver{history: history, current: sync.OnceValue(current)}
}

func (r *fxResolver) rateOn(date time.Time) decimal.Decimal {
	if rate, ok := priceAsOf(r.history, date); ok {
		return rate
	}
	return r.current()
}
