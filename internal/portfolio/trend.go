package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// Trend compares a current amount against a previous one.
type Trend struct {
	Current   decimal.Decimal `json:"current"`
	Previous  decimal.Decimal `json:"previous"`
	Delta     decimal.Decimal `json:"delta"`
	Pct       decimal.Decimal `json:"pct"`
	PctText   string          `json:"pctText"`
	DeltaText string          `json:"deltaText"`
}

// NewTrend builds a Trend. A zero previous amount yields a "+0%" percentage.
func NewTrend(current, previous decimal.Decimal) Trend {
	delta := domain.RoundMoney(current.Sub(previous))
	t := Trend{
		Current:   current,
		Previous:  previous,
		Delta:     delta,
		Pct:       decimal.Zero,
		PctText:   "+0%",
		DeltaText: domain.SignedYen(delta),
	}
	if !previous.IsZero() {
		raw := delta.Div(previous).Mul(decimal.NewFromInt(100))
		t.Pct = domain.RoundMoney(raw)
		t.PctText = domain.SignedPercent(raw, 1)
	}
	return t
}

// CountTrend formats a change in holding count, e.g. "+2銘柄".
func CountTrend(current, previous int) string {
	return fmt.Sprintf("%+d銘柄", current-previous)
}

// YieldTrend formats the change between two yields in percentage points.
func YieldTrend(current decimal.Decimal, previous decimal.NullDecimal) string {
	if !previous.Valid {
		return domain.SignedPercent(decimal.Zero, 2)
	}
	return domain.SignedPercent(current.Sub(previous.Decimal), 2)
}
