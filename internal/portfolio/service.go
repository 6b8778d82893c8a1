package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// HoldingLister lists holdings, optionally filtered by category.
type HoldingLister interface {
	List(ctx context.Context, category domain.Category) ([]domain.Holding, error)
}

// SnapshotReader reads stored daily snapshots.
type SnapshotReader interface {
	// LatestBefore returns the most recent snapshot dated before date, or domain.ErrNotFound.
	LatestBefore(ctx context.Context, date time.Time) (domain.DailySnapshot, error)
	// Since returns snapshots dated on or after start, oldest first.
	Since(ctx context.Context, start time.Time) ([]domain.DailySnapshot, error)
}

// Service builds the dashboard views from live holdings and stored snapshots.
type Service struct {
	holdings  HoldingLister
	snapshots SnapshotReader
	clock     domain.Clock
}

// NewService creates a portfolio Service.
func NewService(holdings HoldingLister, snapshots SnapshotReader) *Service {
	if holdings == nil || snapshots == nil {
		panic("portfolio.NewService: dependencies must not be nil")
	}
	return &Service{holdings: holdings, snapshots: snapshots}
}

// WithClock sets the clock that decides which day is today.
func (s *Service) WithClock(c domain.Clock) *Service {
	s.clock = c
	return s
}

// DashboardStats is the headline summary of the portfolio.
type DashboardStats struct {
	TotalAssets     decimal.Decimal `json:"totalAssets"`
	TotalAssetsText string          `json:"totalAssetsText"`
	AssetsTrend     Trend           `json:"assetsTrend"`
	CashBalance     decimal.Decimal `json:"cashBalance"`
	HoldingCount    int             `json:"holdingCount"`
	HoldingTrend    string          `json:"holdingTrend"`
	YieldRate       decimal.Decimal `json:"yieldRate"`
	YieldText       string          `json:"yieldText"`
	YieldTrend      string          `json:"yieldTrend"`
	ComparedTo      *time.Time      `json:"comparedTo,omitempty"`
}

// Stats compares the live portfolio with the latest snapshot before today.
func (s *Service) Stats(ctx context.Context) (DashboardStats, error) {
	holdings, err := s.holdings.List(ctx, "")
	if err != nil {
		return DashboardStats{}, fmt.Errorf("listing holdings: %w", err)
	}

	prev, err := s.snapshots.LatestBefore(ctx, s.clock.Today())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return DashboardStats{}, fmt.Errorf("getting previous snapshot: %w", err)
	}
	hasPrev := err == nil

	return BuildStats(holdings, lo.Ternary(hasPrev, &prev, nil)), nil
}

// BuildStats computes DashboardStats for holdings against an optional previous snapshot.
func BuildStats(holdings []domain.Holding, prev *domain.DailySnapshot) DashboardStats {
	totals := Aggregate(holdings)
	total := domain.RoundMoney(totals.Total())
	count := HoldingCount(holdings)
	yield := ComputeYield(holdings)

	stats := DashboardStats{
		TotalAssets:     total,
		TotalAssetsText: domain.FormatYen(total),
		AssetsTrend:     NewTrend(total, decimal.Zero),
		CashBalance:     domain.RoundMoney(totals.Cash),
		HoldingCount:    count,
		HoldingTrend:    CountTrend(count, count),
		YieldRate:       yield,
		YieldText:       yield.StringFixed(2) + "%",
		YieldTrend:      YieldTrend(yield, decimal.NullDecimal{}),
	}
	if prev != nil {
		date := prev.Date
		stats.AssetsTrend = NewTrend(total, prev.TotalAssets)
		stats.HoldingTrend = CountTrend(count, prev.HoldingCount)
		stats.YieldTrend = YieldTrend(yield, prev.YieldRate)
		stats.ComparedTo = &date
	}
	return stats
}

// AllocationSlice is one category's share of the portfolio.
type AllocationSlice struct {
	domain.CategoryInfo
	Value      decimal.Decimal `json:"value"`
	ValueText  string          `json:"valueText"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Allocation is the category breakdown of the portfolio.
type Allocation struct {
	Total  decimal.Decimal   `json:"total"`
	Slices []AllocationSlice `json:"categories"`
}

// Allocation returns the live category breakdown.
func (s *Service) Allocation(ctx context.Context) (Allocation, error) {
	holdings, err := s.holdings.List(ctx, "")
	if err != nil {
		return Allocation{}, fmt.Errorf("listing holdings: %w", err)
	}
	return BuildAllocation(holdings), nil
}

// BuildAllocation splits holdings by category, dropping empty categories.
func BuildAllocation(holdings []domain.Holding) Allocation {
	totals := Aggregate(holdings)
	total := domain.RoundMoney(totals.Total())

	parts := lo.FilterMap(domain.Categories(), func(info domain.CategoryInfo, _ int) (AllocationSlice, bool) {
		v := domain.RoundMoney(totals.Get(info.Category))
		if !v.IsPositive() {
			return AllocationSlice{}, false
		}
		return AllocationSlice{
			CategoryInfo: info,
			Value:        v,
			ValueText:    domain.FormatYen(v),
			Percentage:   domain.Percent(v, total),
		}, true
	})

	return Allocation{Total: total, Slices: parts}
}

// Chart returns the snapshot series for p with the live totals as the latest point.
func (s *Service) Chart(ctx context.Context, p Period) ([]ChartPoint, error) {
	today := s.clock.Today()

	snaps, err := s.snapshots.Since(ctx, p.Start(today))
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	holdings, err := s.holdings.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}

	return ChartSeries(snaps, p, Aggregate(holdings), today), nil
}

// History returns stored snapshots for p without a live point, oldest first.
func (s *Service) History(ctx context.Context, p Period) ([]domain.DailySnapshot, error) {
	snaps, err := s.snapshots.Since(ctx, p.Start(s.clock.Today()))
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	out := LatestPerBucket(snaps, p)
	return out[max(0, len(out)-p.Limit()):], nil
}
