package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code.
type Currency string

const (
	CurrencyJPY Currency = "JPY"
	CurrencyUSD Currency = "USD"
)

// HomeCurrency is the currency every valuation is expressed in.
const HomeCurrency = CurrencyJPY

// ParseCurrency normalizes and validates a currency code. Empty input means home currency.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case "":
		return HomeCurrency, nil
	case CurrencyJPY, CurrencyUSD:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
}

// FXPair returns the pair code quoting c in home currency, e.g. "USDJPY".
func FXPair(c Currency) string {
	return string(c) + string(HomeCurrency)
}

// CurrencyConverter is the single place where native prices become home-currency prices.
type CurrencyConverter struct{}

// NeedsRate reports whether converting from c requires an FX rate.
func (CurrencyConverter) NeedsRate(c Currency) bool {
	return c != "" && c != HomeCurrency
}

// ToHome converts a native-currency amount to home currency, rounded to two places.
// rate is the number of home units per native unit and is ignored for home-currency amounts.
func (cc CurrencyConverter) ToHome(amount decimal.Decimal, c Currency, rate decimal.Decimal) (decimal.Decimal, error) {
	if !cc.NeedsRate(c) {
		return RoundMoney(amount), nil
	}
	if c != CurrencyUSD {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, c)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingFXRate, FXPair(c))
	}
	return RoundMoney(amount.Mul(rate)), nil
}
