// Package portfolio aggregates holdings into totals, yields, trends and chart series.
package portfolio

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// Aggregate sums CurrentValue by category. Categories without holdings total zero.
func Aggregate(holdings []domain.Holding) domain.CategoryTotals {
	return lo.Reduce(holdings, func(acc domain.CategoryTotals, h domain.Holding, _ int) domain.CategoryTotals {
		acc.Add(h.Category, h.CurrentValue)
		return acc
	}, domain.CategoryTotals{})
}

// ComputeYield returns the unrealized return of the invested (non-cash) holdings as a
// percentage rounded to two places. It is exactly zero when nothing is invested.
func ComputeYield(holdings []domain.Holding) decimal.Decimal {
	invested := lo.Reject(holdings, func(h domain.Holding, _ int) bool { return h.IsCash() })

	cost := lo.Reduce(invested, func(acc decimal.Decimal, h domain.Holding, _ int) decimal.Decimal {
		return acc.Add(h.CostBasis())
	}, decimal.Zero)
	if !cost.IsPositive() {
		return decimal.Zero
	}

	value := lo.Reduce(invested, func(acc decimal.Decimal, h domain.Holding, _ int) decimal.Decimal {
		return acc.Add(h.CurrentValue)
	}, decimal.Zero)

	return domain.Percent(value.Sub(cost), cost)
}

// HoldingCount counts open non-cash positions.
func HoldingCount(holdings []domain.Holding) int {
	return lo.CountBy(holdings, func(h domain.Holding) bool {
		return !h.IsCash() && h.Quantity.IsPositive()
	})
}

// BuildSnapshot summarizes holdings as the snapshot for date.
func BuildSnapshot(date time.Time, holdings []domain.Holding) domain.DailySnapshot {
	return domain.NewDailySnapshot(
		date,
		Aggregate(holdings),
		HoldingCount(holdings),
		decimal.NewNullDecimal(ComputeYield(holdings)),
	)
}
