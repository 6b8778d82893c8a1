package domain

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	// MoneyPlaces is the precision of every stored home-currency amount.
	MoneyPlaces = 2
	// QuantityPlaces is the precision of holding quantities.
	QuantityPlaces = 4
)

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds an amount to two decimal places, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundQuantity rounds a quantity to four decimal places.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

// SafeParse parses a string into a decimal, returning zero for invalid or empty input.
func SafeParse(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return RoundMoney(part.Div(whole).Mul(hundred))
}

// FormatYen renders a home-currency amount the way the dashboard shows it, e.g. "¥1,234,568".
// Fractions are rounded to whole yen.
func FormatYen(d decimal.Decimal) string {
	return money.New(d.Round(0).IntPart(), string(HomeCurrency)).Display()
}

// SignedYen is FormatYen with an explicit "+" for non-negative amounts.
func SignedYen(d decimal.Decimal) string {
	if d.Round(0).IsNegative() {
		return FormatYen(d)
	}
	return "+" + FormatYen(d)
}

// SignedPercent formats d with the given number of places, a leading sign and a "%" suffix.
func SignedPercent(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if d.Round(places).IsNegative() {
		return s + "%"
	}
	return fmt.Sprintf("+%s%%", s)
}
