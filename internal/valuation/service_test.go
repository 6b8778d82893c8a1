package valuation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding/holdingtest"
	"github.com/solosaving/backend/internal/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeQuotes struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	fx     decimal.Decimal
	fxErr  error
}

func (f *fakeQuotes) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	if err := f.errs[symbol]; err != nil {
		return decimal.Zero, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("no data")
	}
	return p, nil
}

func (f *fakeQuotes) FXRate(_ context.Context, _ string) (decimal.Decimal, error) {
	if f.fxErr != nil {
		return decimal.Zero, f.fxErr
	}
	return f.fx, nil
}

func newTestService(store *holdingtest.Memory, quotes *fakeQuotes) *Service {
	return NewService(store, quotes, Options{
		DefaultFXRate: d("150"),
		Concurrency:   4,
		Clock:         domain.Clock{}.At(time.Date(2025, 12, 25, 9, 0, 0, 0, time.UTC)),
	})
}

func toyota() domain.Holding {
	return domain.Holding{
		ID:           uuid.New(),
		Category:     domain.CategoryJPStock,
		Name:         "Toyota",
		Ticker:       "7203",
		Quantity:     d("100"),
		AverageCost:  d("2500"),
		CurrentPrice: d("2500"),
		CurrentValue: d("250000"),
		Currency:     domain.CurrencyJPY,
		TotalCost:    d("250000"),
	}
}

func assertValueInvariant(t *testing.T, h domain.Holding) {
	t.Helper()
	assert.True(t, h.CurrentValue.Equal(domain.RoundMoney(h.CurrentPrice.Mul(h.Quantity))),
		"CurrentValue %s != round2(%s * %s)", h.CurrentValue, h.CurrentPrice, h.Quantity)
}

func cashBalance(t *testing.T, store *holdingtest.Memory) decimal.Decimal {
	t.Helper()
	rows, err := store.List(context.Background(), domain.CategoryCash)
	require.NoError(t, err)
	if len(rows) == 0 {
		return decimal.Zero
	}
	return rows[0].CurrentValue
}

func TestPurchaseWeightedAverage(t *testing.T) {
	existing := toyota()
	store := holdingtest.NewMemory(existing, domain.NewCashHolding(d("200000")))
	svc := newTestService(store, &fakeQuotes{})

	res, err := svc.Purchase(context.Background(), PurchaseRequest{
		Category: domain.CategoryJPStock,
		Ticker:   "7203",
		Quantity: d("50"),
		Price:    d("2800"),
	})
	require.NoError(t, err)

	h := res.Holding
	assert.Equal(t, existing.ID, h.ID)
	assert.Equal(t, "2600", h.AverageCost.String())
	assert.Equal(t, "150", h.Quantity.String())
	assert.Equal(t, "2800", h.CurrentPrice.String())
	assert.Equal(t, "420000", h.CurrentValue.String())
	assert.Equal(t, "390000", h.TotalCost.String())
	assertValueInvariant(t, h)

	assert.Equal(t, "60000", res.CashBalance.String())
	assert.Equal(t, "60000", cashBalance(t, store).String())

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionBuy, txs[0].Type)
	assert.Equal(t, "140000", txs[0].TotalCost.String())
	assert.False(t, txs[0].FXRate.Valid)
}

func TestBuyThenSellRestoresAverage(t *testing.T) {
	existing := toyota()
	store := holdingtest.NewMemory(existing, domain.NewCashHolding(d("200000")))
	svc := newTestService(store, &fakeQuotes{})
	ctx := context.Background()

	_, err := svc.Purchase(ctx, PurchaseRequest{
		Category: domain.CategoryJPStock, Ticker: "7203", Quantity: d("50"), Price: d("2800"),
	})
	require.NoError(t, err)

	res, err := svc.Sell(ctx, SellRequest{HoldingID: existing.ID, Quantity: d("50"), Price: d("2800")})
	require.NoError(t, err)

	assert.Equal(t, "2500", res.Holding.AverageCost.String())
	assert.Equal(t, "100", res.Holding.Quantity.String())
	assert.Equal(t, "250000", res.Holding.TotalCost.String())
	assertValueInvariant(t, res.Holding)
	assert.Equal(t, "200000", cashBalance(t, store).String())
	assert.Equal(t, domain.TransactionSell, res.Transaction.Type)
}

func TestSellEverythingResetsCostBasis(t *testing.T) {
	existing := toyota()
	store := holdingtest.NewMemory(existing)
	svc := newTestService(store, &fakeQuotes{})

	res, err := svc.Sell(context.Background(), SellRequest{HoldingID: existing.ID, Quantity: d("100"), Price: d("3000")})
	require.NoError(t, err)

	assert.True(t, res.Holding.Quantity.IsZero())
	assert.True(t, res.Holding.AverageCost.IsZero())
	assert.True(t, res.Holding.TotalCost.IsZero())
	assert.True(t, res.Holding.CurrentValue.IsZero())
	assert.Equal(t, "300000", cashBalance(t, store).String())
	require.True(t, res.Transaction.RealizedGain.Valid)
	assert.Equal(t, "50000", res.Transaction.RealizedGain.Decimal.String())
}

func TestSellMoreThanHeld(t *testing.T) {
	existing := toyota()
	store := holdingtest.NewMemory(existing, domain.NewCashHolding(d("1000")))
	svc := newTestService(store, &fakeQuotes{})

	_, err := svc.Sell(context.Background(), SellRequest{HoldingID: existing.ID, Quantity: d("101"), Price: d("2800")})
	assert.ErrorIs(t, err, domain.ErrInsufficientQuantity)

	got, err := store.Get(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Quantity.String())
	assert.Equal(t, "1000", cashBalance(t, store).String())
	assert.Empty(t, store.Transactions())
}

func TestSellUnknownHolding(t *testing.T) {
	svc := newTestService(holdingtest.NewMemory(), &fakeQuotes{})
	_, err := svc.Sell(context.Background(), SellRequest{HoldingID: uuid.New(), Quantity: d("1"), Price: d("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("50000")))
	svc := newTestService(store, &fakeQuotes{})

	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		Category: domain.CategoryJPStock, Ticker: "6758", Name: "Sony", Quantity: d("20"), Price: d("3000"),
	})

	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.Equal(t, "60000", funds.Required.String())
	assert.Equal(t, "50000", funds.Available.String())

	assert.Equal(t, "50000", cashBalance(t, store).String())
	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1, "no holding may be created")
	assert.Empty(t, store.Transactions())
}

func TestPurchaseWithoutCashHolding(t *testing.T) {
	store := holdingtest.NewMemory()
	svc := newTestService(store, &fakeQuotes{})

	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		Category: domain.CategoryFund, Ticker: "EMAXIS", Quantity: d("1"), Price: d("10000"),
	})
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.True(t, funds.Available.IsZero())
}

func TestPurchaseNewUSHolding(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("1000000")))
	svc := newTestService(store, &fakeQuotes{fx: d("155")})

	res, err := svc.Purchase(context.Background(), PurchaseRequest{
		Category: domain.CategoryUSStock,
		Ticker:   "aapl",
		Name:     "Apple",
		Quantity: d("10"),
		Price:    d("200.50"),
		FXRate:   decimal.NewNullDecimal(d("150")),
	})
	require.NoError(t, err)

	h := res.Holding
	assert.Equal(t, "AAPL", h.Ticker)
	assert.Equal(t, domain.CurrencyUSD, h.Currency)
	assert.Equal(t, "30075", h.AverageCost.String())
	assert.Equal(t, "30075", h.CurrentPrice.String())
	assert.Equal(t, "300750", h.CurrentValue.String())
	assert.Equal(t, "200.5", h.NativePrice.Decimal.String())
	assertValueInvariant(t, h)

	assert.Equal(t, "699250", res.CashBalance.String())
	require.True(t, res.Transaction.FXRate.Valid)
	assert.Equal(t, "150", res.Transaction.FXRate.Decimal.String())
	assert.Equal(t, "200.5", res.Transaction.Price.String())
}

func TestPurchaseUsesLiveOrDefaultFXRate(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("1000000")))
	quotes := &fakeQuotes{fx: d("160")}
	svc := newTestService(store, quotes)
	ctx := context.Background()

	res, err := svc.Purchase(ctx, PurchaseRequest{
		Category: domain.CategoryUSStock, Ticker: "MSFT", Quantity: d("1"), Price: d("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "16000", res.Holding.CurrentPrice.String())

	quotes.fxErr = errors.New("fx down")
	res, err = svc.Purchase(ctx, PurchaseRequest{
		Category: domain.CategoryUSStock, Ticker: "NVDA", Quantity: d("1"), Price: d("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "15000", res.Holding.CurrentPrice.String())
}

func TestPurchaseValidation(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("1000")))
	svc := newTestService(store, &fakeQuotes{})
	ctx := context.Background()

	_, err := svc.Purchase(ctx, PurchaseRequest{Category: domain.CategoryJPStock, Quantity: d("1"), Price: d("1")})
	assert.ErrorIs(t, err, domain.ErrNoTicker)

	_, err = svc.Purchase(ctx, PurchaseRequest{Category: domain.CategoryCash, Ticker: "X", Quantity: d("1"), Price: d("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	_, err = svc.Purchase(ctx, PurchaseRequest{Category: domain.CategoryJPStock, Ticker: "X", Quantity: d("0"), Price: d("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Purchase(ctx, PurchaseRequest{Category: domain.CategoryJPStock, Ticker: "X", Quantity: d("1"), Price: d("-1")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestConcurrentPurchasesCannotOverspend(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("100000")))
	svc := newTestService(store, &fakeQuotes{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ticker := range []string{"7203", "6758"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Purchase(ctx, PurchaseRequest{
				Category: domain.CategoryJPStock, Ticker: ticker, Quantity: d("1"), Price: d("60000"),
			})
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			var funds *domain.InsufficientFundsError
			require.ErrorAs(t, err, &funds)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one purchase must fail")
	assert.Equal(t, "40000", cashBalance(t, store).String())
}

func TestRefreshPrices(t *testing.T) {
	jp := toyota()
	us := domain.Holding{
		ID: uuid.New(), Category: domain.CategoryUSStock, Name: "Apple", Ticker: "AAPL",
		Quantity: d("10"), AverageCost: d("20000"), Currency: domain.CurrencyUSD, TotalCost: d("200000"),
	}
	fund := domain.Holding{
		ID: uuid.New(), Category: domain.CategoryFund, Name: "Index fund",
		Quantity: d("1"), CurrentPrice: d("500000"), CurrentValue: d("500000"), Currency: domain.CurrencyJPY,
	}
	store := holdingtest.NewMemory(jp, us, fund, domain.NewCashHolding(d("10000")))
	quotes := &fakeQuotes{
		prices: map[string]decimal.Decimal{"7203.T": d("2800"), "AAPL": d("200.123")},
		fx:     d("150"),
	}
	svc := newTestService(store, quotes)
	ctx := context.Background()

	res, err := svc.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Failed)
	assert.Equal(t, "150", res.FXRate.String())
	assert.False(t, res.FXFallback)

	gotJP, err := store.Get(ctx, jp.ID)
	require.NoError(t, err)
	assert.Equal(t, "280000", gotJP.CurrentValue.String())
	assertValueInvariant(t, gotJP)

	gotUS, err := store.Get(ctx, us.ID)
	require.NoError(t, err)
	assert.Equal(t, "30018.45", gotUS.CurrentPrice.String())
	assert.Equal(t, "300184.5", gotUS.CurrentValue.String())
	assert.Equal(t, "200.12", gotUS.NativePrice.Decimal.String())
	assertValueInvariant(t, gotUS)

	gotFund, err := store.Get(ctx, fund.ID)
	require.NoError(t, err)
	assert.Equal(t, "500000", gotFund.CurrentValue.String())

	hist, err := store.ListHistory(ctx, jp.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "2025-12-25", hist[0].Date.Format(domain.DateLayout))
	assert.Equal(t, "280000", hist[0].Value.String())
}

func TestRefreshPricesPartialFailure(t *testing.T) {
	jp := toyota()
	us := domain.Holding{
		ID: uuid.New(), Category: domain.CategoryUSStock, Name: "Apple", Ticker: "AAPL",
		Quantity: d("10"), CurrentPrice: d("29000"), CurrentValue: d("290000"), Currency: domain.CurrencyUSD,
	}
	store := holdingtest.NewMemory(jp, us)
	quotes := &fakeQuotes{
		prices: map[string]decimal.Decimal{"7203.T": d("2800")},
		errs:   map[string]error{"AAPL": errors.New("rate limited")},
		fxErr:  errors.New("fx down"),
	}
	svc := newTestService(store, quotes)
	ctx := context.Background()

	res, err := svc.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "AAPL", res.Failed[0].Symbol)
	var qerr *domain.QuoteUnavailableError
	assert.ErrorAs(t, res.Failed[0].Err, &qerr)
	assert.True(t, res.FXFallback)
	assert.Equal(t, "150", res.FXRate.String())

	gotUS, err := store.Get(ctx, us.ID)
	require.NoError(t, err)
	assert.Equal(t, "290000", gotUS.CurrentValue.String(), "failed holding keeps its last value")
}

func TestRefreshPricesAllFail(t *testing.T) {
	store := holdingtest.NewMemory(toyota())
	svc := newTestService(store, &fakeQuotes{fx: d("150")})

	res, err := svc.RefreshPrices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoQuotesRefreshed)
	var qerr *domain.QuoteUnavailableError
	assert.ErrorAs(t, err, &qerr)
	assert.Equal(t, "7203.T", qerr.Symbol)
	assert.Len(t, res.Failed, 1)
}

func TestRefreshPricesNothingToDo(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("5")))
	svc := newTestService(store, &fakeQuotes{})

	res, err := svc.RefreshPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Skipped)
}

func TestEngineNewHolding(t *testing.T) {
	var e Engine
	tmpl := domain.Holding{Category: domain.CategoryJPStock, Name: "Sony", Ticker: "6758"}

	out, err := e.ApplyPurchase(nil, tmpl, Trade{Quantity: d("3"), NativePrice: d("1234.567")}, d("10000"))
	require.NoError(t, err)

	assert.Equal(t, "1234.57", out.Holding.AverageCost.String())
	assert.Equal(t, "1234.57", out.Holding.CurrentPrice.String())
	assert.Equal(t, "3703.71", out.Holding.CurrentValue.String())
	assert.Equal(t, "3703.71", out.Transaction.TotalCost.String())
	assert.Equal(t, "6296.29", out.Cash.String())
	assert.Equal(t, out.Holding.ID, out.Transaction.HoldingID)
}

func apple() domain.Holding {
	return domain.Holding{
		ID:           uuid.New(),
		Category:     domain.CategoryUSStock,
		Name:         "Apple",
		Ticker:       "AAPL",
		Quantity:     d("10"),
		AverageCost:  d("30000"),
		CurrentPrice: d("30000"),
		CurrentValue: d("300000"),
		Currency:     domain.CurrencyUSD,
		TotalCost:    d("300000"),
	}
}

func TestPurchaseRejectsMismatchedPosition(t *testing.T) {
	existing := apple()
	store := holdingtest.NewMemory(existing, domain.NewCashHolding(d("1000000")))
	svc := newTestService(store, &fakeQuotes{fx: d("150")})

	tests := []struct {
		name string
		req  PurchaseRequest
	}{
		{"other category", PurchaseRequest{Category: domain.CategoryJPStock, Ticker: "AAPL", Quantity: d("1"), Price: d("200")}},
		{"other currency", PurchaseRequest{Category: domain.CategoryUSStock, Ticker: "aapl", Currency: domain.CurrencyJPY, Quantity: d("1"), Price: d("200")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Purchase(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			got, err := store.Get(context.Background(), existing.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.CurrencyUSD, got.Currency)
			assert.Equal(t, "30000", got.AverageCost.String())
			assert.Equal(t, "1000000", cashBalance(t, store).String())
		})
	}
}

func TestPurchaseAddsInPositionCurrency(t *testing.T) {
	existing := apple()
	store := holdingtest.NewMemory(existing, domain.NewCashHolding(d("1000000")))
	svc := newTestService(store, &fakeQuotes{fx: d("150")})

	res, err := svc.Purchase(context.Background(), PurchaseRequest{
		Category: domain.CategoryUSStock, Ticker: "aapl", Quantity: d("1"), Price: d("200"),
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, res.Holding.ID)
	assert.Equal(t, domain.CurrencyUSD, res.Holding.Currency)
	assert.Equal(t, "30000", res.Holding.AverageCost.String())
	assert.Equal(t, "330000", res.Holding.TotalCost.String())
	assert.Equal(t, "30000", res.Transaction.TotalCost.String())
	assert.Equal(t, "150", res.Transaction.FXRate.Decimal.String())
	assert.Equal(t, "970000", res.CashBalance.String())
}

func TestPurchaseFollowsStoredCurrency(t *testing.T) {
	// A US stock tracked in yen keeps trading in yen without an FX rate.
	existing := apple()
	existing.Currency = domain.CurrencyJPY
	store := holdingtest.NewMemory(existing, domain.NewCashHolding(d("1000000")))
	svc := newTestService(store, &fakeQuotes{fx: d("150")})

	res, err := svc.Purchase(context.Background(), PurchaseRequest{
		Category: domain.CategoryUSStock, Ticker: "AAPL", Quantity: d("1"), Price: d("30000"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CurrencyJPY, res.Holding.Currency)
	assert.Equal(t, "30000", res.Transaction.TotalCost.String())
	assert.False(t, res.Transaction.FXRate.Valid)
	assert.Equal(t, "970000", res.CashBalance.String())
}

func TestSellAtGainKeepsRemainingBasis(t *testing.T) {
	existing := toyota()
	store := holdingtest.NewMemory(existing)
	svc := newTestService(store, &fakeQuotes{})

	res, err := svc.Sell(context.Background(), SellRequest{HoldingID: existing.ID, Quantity: d("50"), Price: d("6000")})
	require.NoError(t, err)

	h := res.Holding
	assert.Equal(t, "50", h.Quantity.String())
	assert.Equal(t, "2500", h.AverageCost.String())
	assert.Equal(t, "125000", h.TotalCost.String())
	assert.Equal(t, "300000", h.CurrentValue.String())
	assertValueInvariant(t, h)

	require.True(t, res.Transaction.RealizedGain.Valid)
	assert.Equal(t, "175000", res.Transaction.RealizedGain.Decimal.String())
	assert.Equal(t, "300000", cashBalance(t, store).String())
	assert.Equal(t, "140.00", portfolio.ComputeYield([]domain.Holding{h}).StringFixed(2))
}

func TestSellBelowBasisReturnsCapital(t *testing.T) {
	existing := toyota()
	store := holdingtest.NewMemory(existing)
	svc := newTestService(store, &fakeQuotes{})

	res, err := svc.Sell(context.Background(), SellRequest{HoldingID: existing.ID, Quantity: d("10"), Price: d("3000")})
	require.NoError(t, err)

	assert.Equal(t, "90", res.Holding.Quantity.String())
	assert.Equal(t, "220000", res.Holding.TotalCost.String())
	assert.Equal(t, "2444.44", res.Holding.AverageCost.String())
	require.True(t, res.Transaction.RealizedGain.Valid)
	assert.True(t, res.Transaction.RealizedGain.Decimal.IsZero())
}
