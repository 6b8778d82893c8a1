package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// DateOf returns midnight UTC of t's calendar date.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CategoryTotals holds the summed CurrentValue of each category.
type CategoryTotals struct {
	JPStocks decimal.Decimal `json:"jpStocks"`
	USStocks decimal.Decimal `json:"usStocks"`
	Funds    decimal.Decimal `json:"funds"`
	Cash     decimal.Decimal `json:"cash"`
}

// Total is the sum over all categories.
func (t CategoryTotals) Total() decimal.Decimal {
	return t.JPStocks.Add(t.USStocks).Add(t.Funds).Add(t.Cash)
}

// Get returns the total for c.
func (t CategoryTotals) Get(c Category) decimal.Decimal {
	switch c {
	case CategoryJPStock:
		return t.JPStocks
	case CategoryUSStock:
		return t.USStocks
	case CategoryFund:
		return t.Funds
	case CategoryCash:
		return t.Cash
	}
	return decimal.Zero
}

// Add adds v to the total of c.
func (t *CategoryTotals) Add(c Category, v decimal.Decimal) {
	switch c {
	case CategoryJPStock:
		t.JPStocks = t.JPStocks.Add(v)
	case CategoryUSStock:
		t.USStocks = t.USStocks.Add(v)
	case CategoryFund:
		t.Funds = t.Funds.Add(v)
	case CategoryCash:
		t.Cash = t.Cash.Add(v)
	}
}

// DailySnapshot is the portfolio state on one date.
type DailySnapshot struct {
	ID           uuid.UUID           `json:"id"`
	Date         time.Time           `json:"date"`
	TotalAssets  decimal.Decimal     `json:"totalAssets"`
	JPStocks     decimal.Decimal     `json:"jpStocks"`
	USStocks     decimal.Decimal     `json:"usStocks"`
	Funds        decimal.Decimal     `json:"funds"`
	Cash         decimal.Decimal     `json:"cash"`
	HoldingCount int                 `json:"holdingCount"`
	YieldRate    decimal.NullDecimal `json:"yieldRate"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// NewDailySnapshot builds a snapshot for date from category totals.
func NewDailySnapshot(date time.Time, totals CategoryTotals, holdingCount int, yield decimal.NullDecimal) DailySnapshot {
	return DailySnapshot{
		ID:           uuid.New(),
		Date:         DateOf(date),
		TotalAssets:  RoundMoney(totals.Total()),
		JPStocks:     RoundMoney(totals.JPStocks),
		USStocks:     RoundMoney(totals.USStocks),
		Funds:        RoundMoney(totals.Funds),
		Cash:         RoundMoney(totals.Cash),
		HoldingCount: holdingCount,
		YieldRate:    yield,
	}
}

// Totals returns the snapshot's per-category totals.
func (s DailySnapshot) Totals() CategoryTotals {
	return CategoryTotals{JPStocks: s.JPStocks, USStocks: s.USStocks, Funds: s.Funds, Cash: s.Cash}
}
