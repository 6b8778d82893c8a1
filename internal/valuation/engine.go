// Package valuation prices holdings and applies trades to them.
package valuation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/cash"
	"github.com/solosaving/backend/internal/domain"
)

// Trade is a validated buy or sell in the instrument's native currency.
type Trade struct {
	Quantity    decimal.Decimal
	NativePrice decimal.Decimal
	// FXRate is home units per native unit; ignored for home-currency trades.
	FXRate   decimal.Decimal
	Currency domain.Currency
	TradedAt time.Time
	Note     string
}

// Outcome is the state produced by applying a trade.
type Outcome struct {
	Holding     domain.Holding
	Cash        decimal.Decimal
	Transaction domain.Transaction
}

// Engine holds the pure cost-basis rules. It never touches storage.
type Engine struct {
	conv domain.CurrencyConverter
}

func (e Engine) validate(t Trade) error {
	if !t.Quantity.IsPositive() || !t.NativePrice.IsPositive() {
		return domain.ErrInvalidAmount
	}
	return nil
}

// ApplyPurchase applies a buy against existing (nil for a new position) and the cash
// balance. The new holding's Category, Name and Ticker come from template when
// existing is nil.
func (e Engine) ApplyPurchase(existing *domain.Holding, template domain.Holding, t Trade, balance decimal.Decimal) (Outcome, error) {
	if err := e.validate(t); err != nil {
		return Outcome{}, err
	}
	homePrice, err := e.conv.ToHome(t.NativePrice, t.Currency, t.FXRate)
	if err != nil {
		return Outcome{}, err
	}
	qty := domain.RoundQuantity(t.Quantity)
	cost := domain.RoundMoney(homePrice.Mul(qty))
	if !cost.IsPositive() {
		return Outcome{}, domain.ErrInvalidAmount
	}

	remaining, err := cash.DeductForPurchase(balance, cost)
	if err != nil {
		return Outcome{}, err
	}

	var h domain.Holding
	if existing != nil {
		h = *existing
		basis := h.CostBasis()
		held := h.Quantity.Add(qty)
		h.AverageCost = domain.RoundMoney(h.Quantity.Mul(h.AverageCost).Add(qty.Mul(homePrice)).Div(held))
		h.Quantity = held
		h.TotalCost = domain.RoundMoney(basis.Add(cost))
	} else {
		h = template
		h.ID = uuid.New()
		h.Quantity = qty
		h.AverageCost = homePrice
		h.TotalCost = cost
	}
	h.Currency = currencyOrHome(t.Currency)
	h.NativePrice = decimal.NewNullDecimal(domain.RoundMoney(t.NativePrice))
	h.Revalue(homePrice)

	return Outcome{
		Holding:     h,
		Cash:        remaining,
		Transaction: e.transaction(h.ID, domain.TransactionBuy, qty, t, cost),
	}, nil
}

// ApplySale applies a sell against h. Proceeds go to cash. While they stay below the
// remaining cost basis they are treated as returned capital and reduce the basis one
// for one, so buying and then selling the same lot at the same price restores the
// previous average cost. A sale whose proceeds would use up the basis while units are
// left reduces it by the sold units' share instead, and the excess is recorded as a
// realized gain on the transaction.
func (e Engine) ApplySale(h domain.Holding, t Trade, balance decimal.Decimal) (Outcome, error) {
	if err := e.validate(t); err != nil {
		return Outcome{}, err
	}
	qty := domain.RoundQuantity(t.Quantity)
	if qty.GreaterThan(h.Quantity) {
		return Outcome{}, domain.ErrInsufficientQuantity
	}
	homePrice, err := e.conv.ToHome(t.NativePrice, t.Currency, t.FXRate)
	if err != nil {
		return Outcome{}, err
	}
	proceeds := domain.RoundMoney(homePrice.Mul(qty))

	newBalance := balance
	if proceeds.IsPositive() {
		if newBalance, err = cash.Deposit(balance, proceeds); err != nil {
			return Outcome{}, err
		}
	}

	basis := h.CostBasis()
	held := h.Quantity
	h.Quantity = held.Sub(qty)

	var reduction decimal.Decimal
	switch {
	case h.Quantity.IsZero():
		reduction = basis
	case proceeds.LessThan(basis):
		reduction = proceeds
	default:
		reduction = domain.RoundMoney(basis.Mul(qty).Div(held))
	}

	if h.Quantity.IsZero() {
		h.TotalCost = decimal.Zero
		h.AverageCost = decimal.Zero
	} else {
		remaining := basis.Sub(reduction)
		h.TotalCost = domain.RoundMoney(remaining)
		h.AverageCost = domain.RoundMoney(remaining.Div(h.Quantity))
	}
	h.NativePrice = decimal.NewNullDecimal(domain.RoundMoney(t.NativePrice))
	h.Revalue(homePrice)

	tr := e.transaction(h.ID, domain.TransactionSell, qty, t, proceeds)
	tr.RealizedGain = decimal.NewNullDecimal(domain.RoundMoney(proceeds.Sub(reduction)))

	return Outcome{
		Holding:     h,
		Cash:        newBalance,
		Transaction: tr,
	}, nil
}

func (e Engine) transaction(holdingID uuid.UUID, typ domain.TransactionType, qty decimal.Decimal, t Trade, total decimal.Decimal) domain.Transaction {
	tr := domain.Transaction{
		ID:        uuid.New(),
		HoldingID: holdingID,
		Type:      typ,
		Quantity:  qty,
		Price:     domain.RoundMoney(t.NativePrice),
		Currency:  currencyOrHome(t.Currency),
		TotalCost: total,
		TradedAt:  t.TradedAt,
		Note:      strings.TrimSpace(t.Note),
	}
	if e.conv.NeedsRate(t.Currency) {
		tr.FXRate = decimal.NewNullDecimal(t.FXRate)
	}
	return tr
}

func currencyOrHome(c domain.Currency) domain.Currency {
	if c == "" {
		return domain.HomeCurrency
	}
	return c
}
