package holding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// MaxHistoryDays bounds History lookups.
const MaxHistoryDays = 365

// PriceSource provides historical closes for a quote symbol.
type PriceSource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)
}

// Service manages holdings and their owned records.
type Service struct {
	repo   Repository
	prices PriceSource
	clock  domain.Clock
}

// NewService creates a holding Service.
func NewService(repo Repository, prices PriceSource) *Service {
	if repo == nil || prices == nil {
		panic("holding.NewService: repo and prices must not be nil")
	}
	return &Service{repo: repo, prices: prices}
}

// WithClock sets the clock that decides which day is today.
func (s *Service) WithClock(c domain.Clock) *Service {
	s.clock = c
	return s
}

// Input holds the editable fields of a holding. CurrentPrice defaults to AverageCost.
type Input struct {
	Category     string
	Name         string
	Ticker       string
	Quantity     decimal.Decimal
	AverageCost  decimal.Decimal
	CurrentPrice decimal.NullDecimal
	Currency     string
}

// List returns holdings, all of them when category is empty.
func (s *Service) List(ctx context.Context, category string) ([]domain.Holding, error) {
	var c domain.Category
	if strings.TrimSpace(category) != "" {
		parsed, err := domain.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		c = parsed
	}
	return s.repo.List(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Holding, error) {
	return s.repo.Get(ctx, id)
}

// Create validates in and stores a new holding.
func (s *Service) Create(ctx context.Context, in Input) (domain.Holding, error) {
	h, err := s.build(domain.Holding{}, in)
	if err != nil {
		return domain.Holding{}, err
	}
	if err := s.checkUnique(ctx, h); err != nil {
		return domain.Holding{}, err
	}
	h.ID = uuid.New()
	if err := s.repo.Create(ctx, &h); err != nil {
		return domain.Holding{}, fmt.Errorf("creating holding: %w", err)
	}
	return h, nil
}

// Update replaces the editable fields of holding id.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (domain.Holding, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Holding{}, err
	}
	h, err := s.build(current, in)
	if err != nil {
		return domain.Holding{}, err
	}
	if err := s.checkUnique(ctx, h); err != nil {
		return domain.Holding{}, err
	}
	if err := s.repo.Update(ctx, &h); err != nil {
		return domain.Holding{}, err
	}
	return h, nil
}

// Delete removes holding id together with its transactions and history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Transactions returns the trades of holding id, newest first.
func (s *Service) Transactions(ctx context.Context, id uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, id)
}

// History returns the recorded daily valuations of holding id over the last days days.
func (s *Service) History(ctx context.Context, id uuid.UUID, days int) ([]domain.HoldingHistory, error) {
	if days == 0 {
		days = 30
	}
	if days < 1 || days > MaxHistoryDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", domain.ErrInvalidInput, MaxHistoryDays)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	since := s.clock.Today().AddDate(0, 0, -days)
	return s.repo.ListHistory(ctx, id, since)
}

// PriceHistory is a market price series for one holding.
type PriceHistory struct {
	HoldingID uuid.UUID           `json:"holdingId"`
	Symbol    string              `json:"symbol"`
	Currency  domain.Currency     `json:"currency"`
	Period    string              `json:"period"`
	Points    []domain.PricePoint `json:"data"`
}

var pricePeriods = map[string]func(time.Time) time.Time{
	"7d":  func(t time.Time) time.Time { return t.AddDate(0, 0, -7) },
	"1mo": func(t time.Time) time.Time { return t.AddDate(0, -1, 0) },
	"3mo": func(t time.Time) time.Time { return t.AddDate(0, -3, 0) },
	"6mo": func(t time.Time) time.Time { return t.AddDate(0, -6, 0) },
	"1y":  func(t time.Time) time.Time { return t.AddDate(-1, 0, 0) },
	"max": func(t time.Time) time.Time { return t.AddDate(-20, 0, 0) },
}

// PriceHistory returns daily closes of holding id for period ("7d", "1mo", "3mo",
// "6mo", "1y" or "max"; default "1mo").
func (s *Service) PriceHistory(ctx context.Context, id uuid.UUID, period string) (PriceHistory, error) {
	if period == "" {
		period = "1mo"
	}
	startOf, ok := pricePeriods[period]
	if !ok {
		return PriceHistory{}, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidInput, period)
	}

	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return PriceHistory{}, err
	}
	if !h.Quotable() {
		return PriceHistory{}, domain.ErrNoTicker
	}

	today := s.clock.Today()
	symbol := h.QuoteSymbol()
	points, err := s.prices.History(ctx, symbol, startOf(today), today.AddDate(0, 0, 1))
	if err != nil {
		return PriceHistory{}, &domain.QuoteUnavailableError{Symbol: symbol, Err: err}
	}
	return PriceHistory{
		HoldingID: h.ID,
		Symbol:    symbol,
		Currency:  h.Currency,
		Period:    period,
		Points:    lo.Ternary(points == nil, []domain.PricePoint{}, points),
	}, nil
}

// build applies in to base and derives the valuation fields.
func (s *Service) build(base domain.Holding, in Input) (domain.Holding, error) {
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return domain.Holding{}, err
	}
	if in.Quantity.IsNegative() || in.AverageCost.IsNegative() {
		return domain.Holding{}, fmt.Errorf("%w: quantity and average cost must not be negative", domain.ErrInvalidInput)
	}
	if in.CurrentPrice.Valid && in.CurrentPrice.Decimal.IsNegative() {
		return domain.Holding{}, fmt.Errorf("%w: current price must not be negative", domain.ErrInvalidInput)
	}

	if category == domain.CategoryCash {
		c := domain.NewCashHolding(in.Quantity)
		c.ID, c.CreatedAt = base.ID, base.CreatedAt
		c.AverageCost = decimal.NewFromInt(1)
		c.TotalCost = c.CurrentValue
		if name := strings.TrimSpace(in.Name); name != "" {
			c.Name = name
		}
		return c, nil
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Holding{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	currency := category.NativeCurrency()
	if strings.TrimSpace(in.Currency) != "" {
		if currency, err = domain.ParseCurrency(in.Currency); err != nil {
			return domain.Holding{}, err
		}
	}

	h := base
	h.Category = category
	h.Name = name
	h.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	h.Currency = currency
	h.Quantity = domain.RoundQuantity(in.Quantity)
	h.AverageCost = domain.RoundMoney(in.AverageCost)
	h.TotalCost = domain.RoundMoney(h.AverageCost.Mul(h.Quantity))
	h.Revalue(lo.Ternary(in.CurrentPrice.Valid, in.CurrentPrice.Decimal, h.AverageCost))
	return h, nil
}

func (s *Service) checkUnique(ctx context.Context, h domain.Holding) error {
	if h.Ticker == "" && !h.IsCash() {
		return nil
	}
	existing, err := s.repo.List(ctx, "")
	if err != nil {
		return fmt.Errorf("listing holdings: %w", err)
	}
	for _, e := range existing {
		if e.ID == h.ID {
			continue
		}
		if h.IsCash() && e.IsCash() {
			return fmt.Errorf("%w: a cash holding already exists", domain.ErrInvalidInput)
		}
		if h.Ticker != "" && e.Ticker == h.Ticker {
			return fmt.Errorf("%w: ticker %s is already held", domain.ErrInvalidInput, h.Ticker)
		}
	}
	return nil
}
