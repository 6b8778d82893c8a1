package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/solosaving/backend/internal/cash"
	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding"
)

// ErrNoQuotesRefreshed is returned when every attempted quote lookup failed.
var ErrNoQuotesRefreshed = errors.New("no quotes refreshed")

// QuoteSource provides current market prices.
type QuoteSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	FXRate(ctx context.Context, pair string) (decimal.Decimal, error)
}

// Store is the subset of the holding repository the valuation service needs.
type Store interface {
	List(ctx context.Context, category domain.Category) ([]domain.Holding, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Holding, error)
	UpdateValuation(ctx context.Context, id uuid.UUID, nativePrice, homePrice decimal.Decimal) (domain.Holding, error)
	RecordHistory(ctx context.Context, rec domain.HoldingHistory) error
	InTx(ctx context.Context, fn func(holding.Tx) error) error
}

// Options tunes the valuation service.
type Options struct {
	// DefaultFXRate is used when the live USDJPY rate cannot be fetched.
	DefaultFXRate decimal.Decimal
	// Concurrency bounds parallel quote lookups during a refresh.
	Concurrency int
	// Clock dates history records and trades without an explicit time.
	Clock domain.Clock
}

// Service refreshes prices and executes trades.
type Service struct {
	store  Store
	quotes QuoteSource
	engine Engine
	opts   Options
}

// NewService creates a valuation Service.
func NewService(store Store, quotes QuoteSource, opts Options) *Service {
	if store == nil || quotes == nil {
		panic("valuation.NewService: store and quotes must not be nil")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{store: store, quotes: quotes, opts: opts}
}

// Failure describes one holding that could not be refreshed.
type Failure struct {
	HoldingID uuid.UUID `json:"holdingId"`
	Symbol    string    `json:"symbol"`
	Reason    string    `json:"reason"`
	Err       error     `json:"-"`
}

// RefreshResult summarizes a price refresh.
type RefreshResult struct {
	Updated    int             `json:"updatedCount"`
	Skipped    int             `json:"skippedCount"`
	Failed     []Failure       `json:"failed"`
	FXRate     decimal.Decimal `json:"usdJpyRate"`
	FXFallback bool            `json:"fxFallback"`
}

// RefreshPrices fetches the latest quote for every ticketed holding and revalues it.
// Failed lookups leave the holding at its last value and are reported in the result.
func (s *Service) RefreshPrices(ctx context.Context) (RefreshResult, error) {
	holdings, err := s.store.List(ctx, "")
	if err != nil {
		return RefreshResult{}, fmt.Errorf("listing holdings: %w", err)
	}

	targets := lo.Filter(holdings, func(h domain.Holding, _ int) bool { return h.Quotable() })
	result := RefreshResult{Skipped: len(holdings) - len(targets)}
	if len(targets) == 0 {
		return result, nil
	}

	result.FXRate, result.FXFallback = s.CurrentFXRate(ctx, domain.CurrencyUSD)
	today := s.opts.Clock.Today()

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, h := range targets {
		g.Go(func() error {
			err := s.refreshOne(ctx, h, result.FXRate, today)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("price refresh failed", "holding", h.ID, "symbol", h.QuoteSymbol(), "error", err)
				result.Failed = append(result.Failed, Failure{
					HoldingID: h.ID, Symbol: h.QuoteSymbol(), Reason: err.Error(), Err: err,
				})
				return nil
			}
			result.Updated++
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("prices refreshed",
		"updated", result.Updated, "failed", len(result.Failed), "skipped", result.Skipped,
		"fx_rate", result.FXRate.String(), "fx_fallback", result.FXFallback)

	if result.Updated == 0 {
		return result, fmt.Errorf("%w: %d attempted: %w", ErrNoQuotesRefreshed, len(targets), result.Failed[0].Err)
	}
	return result, nil
}

func (s *Service) refreshOne(ctx context.Context, h domain.Holding, fxRate decimal.Decimal, today time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	symbol := h.QuoteSymbol()
	native, err := s.quotes.LatestPrice(ctx, symbol)
	if err == nil && !native.IsPositive() {
		err = fmt.Errorf("non-positive price %s", native)
	}
	if err != nil {
		return &domain.QuoteUnavailableError{Symbol: symbol, Err: err}
	}

	homePrice, err := s.engine.conv.ToHome(native, h.Currency, fxRate)
	if err != nil {
		return fmt.Errorf("converting %s: %w", symbol, err)
	}

	updated, err := s.store.UpdateValuation(ctx, h.ID, domain.RoundMoney(native), homePrice)
	if err != nil {
		return err
	}

	rec := domain.HoldingHistory{
		HoldingID: updated.ID,
		Date:      today,
		Price:     updated.CurrentPrice,
		Value:     updated.CurrentValue,
		Quantity:  updated.Quantity,
	}
	if err := s.store.RecordHistory(ctx, rec); err != nil {
		slog.Warn("failed to record holding history", "holding", h.ID, "error", err)
	}
	return nil
}

// CurrentFXRate returns the live rate quoting c in home currency, or the configured
// default and true when the lookup fails.
func (s *Service) CurrentFXRate(ctx context.Context, c domain.Currency) (decimal.Decimal, bool) {
	pair := domain.FXPair(c)
	rate, err := s.quotes.FXRate(ctx, pair)
	if err == nil && rate.IsPositive() {
		return rate, false
	}
	slog.Warn("fx rate unavailable, using default", "pair", pair, "default", s.opts.DefaultFXRate.String(), "error", err)
	return s.opts.DefaultFXRate, true
}

// PurchaseRequest describes a buy. Ticker identifies the position to add to.
type PurchaseRequest struct {
	Category domain.Category
	Name     string
	Ticker   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	// FXRate overrides the live rate for foreign-currency purchases.
	FXRate   decimal.NullDecimal
	Currency domain.Currency
	TradedAt time.Time
	Note     string
}

// SellRequest describes a sale from an existing holding.
type SellRequest struct {
	HoldingID uuid.UUID
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	FXRate    decimal.NullDecimal
	TradedAt  time.Time
	Note      string
}

// TradeResult is returned by Purchase and Sell.
type TradeResult struct {
	Holding     domain.Holding     `json:"holding"`
	Transaction domain.Transaction `json:"transaction"`
	CashBalance decimal.Decimal    `json:"cashBalance"`
}

// Purchase buys into a position, paying from cash. The cash row stays locked for the
// whole transaction so concurrent purchases cannot spend the same balance. Buying into
// an existing position always trades in that position's category and currency.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (TradeResult, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return TradeResult{}, domain.ErrNoTicker
	}
	if _, ok := domain.LookupCategory(req.Category); !ok || req.Category == domain.CategoryCash {
		return TradeResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, req.Category)
	}
	currency := req.Currency
	if currency == "" {
		currency = req.Category.NativeCurrency()
	}
	rate := s.tradeRate(ctx, currency, req.FXRate)

	template := domain.Holding{
		Category: req.Category,
		Name:     lo.Ternary(strings.TrimSpace(req.Name) == "", ticker, strings.TrimSpace(req.Name)),
		Ticker:   ticker,
	}

	var res TradeResult
	err := s.store.InTx(ctx, func(tx holding.Tx) error {
		cashHolding, err := tx.LockCash(ctx)
		if err != nil {
			return err
		}
		balance := decimal.Zero
		if cashHolding != nil {
			balance = cashHolding.CurrentValue
		}

		existing, err := tx.LockByTicker(ctx, ticker)
		if err != nil {
			return err
		}
		tradeCurrency, tradeRate := currency, rate
		if existing != nil {
			if err := matchPosition(*existing, req); err != nil {
				return err
			}
			if existing.Currency != currency {
				tradeCurrency = existing.Currency
				tradeRate = s.tradeRate(ctx, tradeCurrency, req.FXRate)
			}
		}

		trade := Trade{
			Quantity:    req.Quantity,
			NativePrice: req.Price,
			FXRate:      tradeRate,
			Currency:    tradeCurrency,
			TradedAt:    s.tradedAt(req.TradedAt),
			Note:        req.Note,
		}
		out, err := s.engine.ApplyPurchase(existing, template, trade, balance)
		if err != nil {
			return err
		}
		if err := s.commit(ctx, tx, cashHolding, &out); err != nil {
			return err
		}
		res = TradeResult{Holding: out.Holding, Transaction: out.Transaction, CashBalance: out.Cash}
		return nil
	})
	if err != nil {
		return TradeResult{}, fmt.Errorf("purchasing %s: %w", ticker, err)
	}

	slog.Info("purchase recorded", "ticker", ticker, "quantity", res.Transaction.Quantity.String(),
		"cost", res.Transaction.TotalCost.String(), "cash", res.CashBalance.String())
	return res, nil
}

// matchPosition rejects a purchase whose category or explicit currency disagrees with
// the position it would add to.
func matchPosition(h domain.Holding, req PurchaseRequest) error {
	if req.Category != h.Category {
		return fmt.Errorf("%w: %s is held as %s, not %s", domain.ErrInvalidInput, h.Ticker, h.Category, req.Category)
	}
	if req.Currency != "" && req.Currency != currencyOrHome(h.Currency) {
		return fmt.Errorf("%w: %s trades in %s, not %s", domain.ErrInvalidInput, h.Ticker, currencyOrHome(h.Currency), req.Currency)
	}
	return nil
}

// Sell sells part or all of a holding and credits the proceeds to cash.
func (s *Service) Sell(ctx context.Context, req SellRequest) (TradeResult, error) {
	current, err := s.store.Get(ctx, req.HoldingID)
	if err != nil {
		return TradeResult{}, fmt.Errorf("selling %s: %w", req.HoldingID, err)
	}
	rate := s.tradeRate(ctx, current.Currency, req.FXRate)

	var res TradeResult
	err = s.store.InTx(ctx, func(tx holding.Tx) error {
		cashHolding, err := tx.LockCash(ctx)
		if err != nil {
			return err
		}
		h, err := tx.LockByID(ctx, req.HoldingID)
		if err != nil {
			return err
		}
		if h.IsCash() {
			return fmt.Errorf("%w: cash cannot be sold", domain.ErrInvalidCategory)
		}

		balance := decimal.Zero
		if cashHolding != nil {
			balance = cashHolding.CurrentValue
		}
		trade := Trade{
			Quantity:    req.Quantity,
			NativePrice: req.Price,
			FXRate:      rate,
			Currency:    h.Currency,
			TradedAt:    s.tradedAt(req.TradedAt),
			Note:        req.Note,
		}

		out, err := s.engine.ApplySale(*h, trade, balance)
		if err != nil {
			return err
		}
		if err := s.commit(ctx, tx, cashHolding, &out); err != nil {
			return err
		}
		res = TradeResult{Holding: out.Holding, Transaction: out.Transaction, CashBalance: out.Cash}
		return nil
	})
	if err != nil {
		return TradeResult{}, fmt.Errorf("selling %s: %w", req.HoldingID, err)
	}

	slog.Info("sale recorded", "holding", req.HoldingID, "quantity", res.Transaction.Quantity.String(),
		"proceeds", res.Transaction.TotalCost.String(), "cash", res.CashBalance.String())
	return res, nil
}

func (s *Service) commit(ctx context.Context, tx holding.Tx, cashHolding *domain.Holding, out *Outcome) error {
	c := domain.NewCashHolding(decimal.Zero)
	if cashHolding != nil {
		c = *cashHolding
	}
	cash.SetBalance(&c, out.Cash)
	if err := tx.Save(ctx, &c); err != nil {
		return err
	}
	if err := tx.Save(ctx, &out.Holding); err != nil {
		return err
	}
	return tx.AddTransaction(ctx, &out.Transaction)
}

func (s *Service) tradeRate(ctx context.Context, c domain.Currency, override decimal.NullDecimal) decimal.Decimal {
	if !s.engine.conv.NeedsRate(c) {
		return decimal.Zero
	}
	if override.Valid && override.Decimal.IsPositive() {
		return override.Decimal
	}
	rate, _ := s.CurrentFXRate(ctx, c)
	return rate
}

func (s *Service) tradedAt(t time.Time) time.Time {
	if t.IsZero() {
		return s.opts.Clock.Now()
	}
	return t
}
