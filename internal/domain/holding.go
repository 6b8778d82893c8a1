package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is a position in one asset. All home-currency fields are in HomeCurrency.
type Holding struct {
	ID           uuid.UUID           `json:"id"`
	Category     Category            `json:"category"`
	Name         string              `json:"name"`
	Ticker       string              `json:"ticker,omitempty"`
	Quantity     decimal.Decimal     `json:"quantity"`
	AverageCost  decimal.Decimal     `json:"averageCost"`
	NativePrice  decimal.NullDecimal `json:"nativePrice"`
	CurrentPrice decimal.Decimal     `json:"currentPrice"`
	CurrentValue decimal.Decimal     `json:"currentValue"`
	Currency     Currency            `json:"currency"`
	TotalCost    decimal.Decimal     `json:"totalCost"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// NewCashHolding returns the cash position holding amount units at price 1.
func NewCashHolding(amount decimal.Decimal) Holding {
	amount = RoundMoney(amount)
	return Holding{
		ID:           uuid.New(),
		Category:     CategoryCash,
		Name:         "現金",
		Quantity:     amount,
		CurrentPrice: decimal.NewFromInt(1),
		CurrentValue: amount,
		Currency:     HomeCurrency,
	}
}

func (h Holding) IsCash() bool { return h.Category == CategoryCash }

// Quotable reports whether the holding's price comes from the market.
func (h Holding) Quotable() bool { return !h.IsCash() && h.Ticker != "" }

// QuoteSymbol is the ticker as the market-data provider expects it.
// Tokyo listings carry a ".T" suffix.
func (h Holding) QuoteSymbol() string {
	t := strings.ToUpper(strings.TrimSpace(h.Ticker))
	if h.Category == CategoryJPStock && !strings.HasSuffix(t, ".T") {
		return t + ".T"
	}
	return t
}

// CostBasis is the home-currency amount invested in the holding. Holdings created
// before transactions were recorded fall back to AverageCost*Quantity.
func (h Holding) CostBasis() decimal.Decimal {
	if h.TotalCost.IsPositive() {
		return h.TotalCost
	}
	return RoundMoney(h.AverageCost.Mul(h.Quantity))
}

// Revalue sets the home-currency unit price and recomputes CurrentValue.
func (h *Holding) Revalue(homePrice decimal.Decimal) {
	h.CurrentPrice = RoundMoney(homePrice)
	h.CurrentValue = RoundMoney(h.CurrentPrice.Mul(h.Quantity))
}

// TransactionType is the side of a trade.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// Transaction records one trade. It is written once and never mutated.
type Transaction struct {
	ID        uuid.UUID           `json:"id"`
	HoldingID uuid.UUID           `json:"holdingId"`
	Type      TransactionType     `json:"type"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Price     decimal.Decimal     `json:"price"`
	FXRate    decimal.NullDecimal `json:"fxRate"`
	Currency  Currency            `json:"currency"`
	TotalCost decimal.Decimal     `json:"totalCost"`
	// RealizedGain is set on sells only.
	RealizedGain decimal.NullDecimal `json:"realizedGain"`
	TradedAt     time.Time           `json:"tradedAt"`
	Note         string              `json:"note,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// HoldingHistory is the valuation of one holding on one date.
type HoldingHistory struct {
	HoldingID uuid.UUID       `json:"holdingId"`
	Date      time.Time       `json:"date"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// PricePoint is one daily close in the instrument's native currency.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}
