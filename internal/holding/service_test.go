package holding_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding"
	"github.com/solosaving/backend/internal/holding/holdingtest"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakePrices struct {
	symbol     string
	start, end time.Time
	points     []domain.PricePoint
	err        error
}

func (f *fakePrices) History(_ context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	f.symbol, f.start, f.end = symbol, start, end
	return f.points, f.err
}

func TestCreateNormalizesAndValues(t *testing.T) {
	svc := holding.NewService(holdingtest.NewMemory(), &fakePrices{})

	h, err := svc.Create(context.Background(), holding.Input{
		Category:     "US_STOCK",
		Name:         " Apple ",
		Ticker:       "aapl",
		Quantity:     d("3.12345"),
		AverageCost:  d("25000"),
		CurrentPrice: decimal.NewNullDecimal(d("30000.555")),
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, h.ID)
	assert.Equal(t, domain.CategoryUSStock, h.Category)
	assert.Equal(t, "Apple", h.Name)
	assert.Equal(t, "AAPL", h.Ticker)
	assert.Equal(t, domain.CurrencyUSD, h.Currency)
	assert.Equal(t, "3.1235", h.Quantity.String())
	assert.Equal(t, "30000.56", h.CurrentPrice.String())
	assert.True(t, h.CurrentValue.Equal(domain.RoundMoney(h.CurrentPrice.Mul(h.Quantity))))
	assert.Equal(t, "78087.5", h.TotalCost.String())
}

func TestCreateDefaultsCurrentPriceToAverageCost(t *testing.T) {
	svc := holding.NewService(holdingtest.NewMemory(), &fakePrices{})

	h, err := svc.Create(context.Background(), holding.Input{
		Category: "fund", Name: "eMAXIS Slim", Quantity: d("10"), AverageCost: d("12000"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyJPY, h.Currency)
	assert.Equal(t, "12000", h.CurrentPrice.String())
	assert.Equal(t, "120000", h.CurrentValue.String())
}

func TestCreateCash(t *testing.T) {
	repo := holdingtest.NewMemory()
	svc := holding.NewService(repo, &fakePrices{})

	h, err := svc.Create(context.Background(), holding.Input{Category: "cash", Quantity: d("50000")})
	require.NoError(t, err)
	assert.Equal(t, "現金", h.Name)
	assert.Equal(t, "1", h.CurrentPrice.String())
	assert.Equal(t, "50000", h.CurrentValue.String())

	_, err = svc.Create(context.Background(), holding.Input{Category: "cash", Quantity: d("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "only one cash holding")
}

func TestCreateValidation(t *testing.T) {
	existing := domain.Holding{ID: uuid.New(), Category: domain.CategoryJPStock, Name: "Toyota", Ticker: "7203"}
	svc := holding.NewService(holdingtest.NewMemory(existing), &fakePrices{})

	tests := []struct {
		name string
		in   holding.Input
		want error
	}{
		{"unknown category", holding.Input{Category: "crypto", Name: "BTC"}, domain.ErrInvalidCategory},
		{"missing name", holding.Input{Category: "fund"}, domain.ErrInvalidInput},
		{"negative quantity", holding.Input{Category: "fund", Name: "x", Quantity: d("-1")}, domain.ErrInvalidInput},
		{"negative price", holding.Input{Category: "fund", Name: "x", CurrentPrice: decimal.NewNullDecimal(d("-1"))}, domain.ErrInvalidInput},
		{"bad currency", holding.Input{Category: "fund", Name: "x", Currency: "EUR"}, domain.ErrUnsupportedCurrency},
		{"duplicate ticker", holding.Input{Category: "jp_stock", Name: "Toyota 2", Ticker: "7203"}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	h := domain.Holding{ID: uuid.New(), Category: domain.CategoryJPStock, Name: "Toyota", Ticker: "7203",
		Quantity: d("100"), AverageCost: d("2500"), CurrentPrice: d("2800"), CurrentValue: d("280000"), Currency: domain.CurrencyJPY}
	repo := holdingtest.NewMemory(h)
	svc := holding.NewService(repo, &fakePrices{})
	ctx := context.Background()

	updated, err := svc.Update(ctx, h.ID, holding.Input{
		Category: "jp_stock", Name: "Toyota Motor", Ticker: "7203", Quantity: d("150"), AverageCost: d("2600"),
		CurrentPrice: decimal.NewNullDecimal(d("2800")),
	})
	require.NoError(t, err, "keeping its own ticker is not a duplicate")
	assert.Equal(t, h.ID, updated.ID)
	assert.Equal(t, "420000", updated.CurrentValue.String())

	got, err := svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "Toyota Motor", got.Name)

	_, err = svc.Update(ctx, uuid.New(), holding.Input{Category: "fund", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, h.ID))
	assert.ErrorIs(t, svc.Delete(ctx, h.ID), domain.ErrNotFound)
	_, err = svc.Transactions(ctx, h.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersByCategory(t *testing.T) {
	repo := holdingtest.NewMemory(
		domain.Holding{Category: domain.CategoryJPStock, Name: "Toyota"},
		domain.Holding{Category: domain.CategoryFund, Name: "eMAXIS"},
		domain.NewCashHolding(d("100")),
	)
	svc := holding.NewService(repo, &fakePrices{})

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	funds, err := svc.List(context.Background(), "fund")
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, "eMAXIS", funds[0].Name)

	_, err = svc.List(context.Background(), "bonds")
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
}

func TestHistory(t *testing.T) {
	h := domain.Holding{ID: uuid.New(), Category: domain.CategoryJPStock, Name: "Toyota", Ticker: "7203"}
	repo := holdingtest.NewMemory(h)
	jst := time.FixedZone("JST", 9*3600)
	svc := holding.NewService(repo, &fakePrices{}).
		WithClock(domain.NewClock(jst).At(time.Date(2025, 12, 26, 8, 0, 0, 0, jst)))
	ctx := context.Background()

	today := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordHistory(ctx, domain.HoldingHistory{HoldingID: h.ID, Date: today, Price: d("2800")}))
	require.NoError(t, repo.RecordHistory(ctx, domain.HoldingHistory{HoldingID: h.ID, Date: today.AddDate(0, 0, -60), Price: d("2500")}))

	recent, err := svc.History(ctx, h.ID, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2800", recent[0].Price.String())

	year, err := svc.History(ctx, h.ID, 365)
	require.NoError(t, err)
	assert.Len(t, year, 2)

	_, err = svc.History(ctx, h.ID, 366)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.History(ctx, uuid.New(), 30)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPriceHistory(t *testing.T) {
	toyota := domain.Holding{ID: uuid.New(), Category: domain.CategoryJPStock, Name: "Toyota", Ticker: "7203", Currency: domain.CurrencyJPY}
	fund := domain.Holding{ID: uuid.New(), Category: domain.CategoryFund, Name: "eMAXIS"}
	prices := &fakePrices{points: []domain.PricePoint{{Date: domain.DateOf(time.Now()), Close: d("2800")}}}
	svc := holding.NewService(holdingtest.NewMemory(toyota, fund), prices)
	ctx := context.Background()

	ph, err := svc.PriceHistory(ctx, toyota.ID, "7d")
	require.NoError(t, err)
	assert.Equal(t, "7203.T", ph.Symbol)
	assert.Equal(t, "7203.T", prices.symbol)
	assert.Equal(t, 8*24*time.Hour, prices.end.Sub(prices.start))
	assert.Len(t, ph.Points, 1)

	_, err = svc.PriceHistory(ctx, fund.ID, "")
	assert.ErrorIs(t, err, domain.ErrNoTicker)

	_, err = svc.PriceHistory(ctx, toyota.ID, "2w")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	prices.err = errors.New("upstream down")
	_, err = svc.PriceHistory(ctx, toyota.ID, "1y")
	var qe *domain.QuoteUnavailableError
	assert.ErrorAs(t, err, &qe)
}
