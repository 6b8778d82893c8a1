package export

import (
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

var snapshotHeader = []any{
	"Date", "Total", "JP stocks", "US stocks", "Funds", "Cash", "Holdings", "Yield %",
}

var holdingHeader = []any{
	"Category", "Name", "Ticker", "Quantity", "Average cost", "Price", "Value", "Cost", "Currency",
}

// snapshotRows builds the Snapshots sheet, header first, in the order given.
func snapshotRows(snapshots []domain.DailySnapshot) [][]any {
	data := make([][]any, 0, len(snapshots)+1)
	data = append(data, snapshotHeader)
	for _, s := range snapshots {
		data = append(data, []any{
			s.Date.Format(domain.DateLayout),
			toFloat(s.TotalAssets),
			toFloat(s.JPStocks),
			toFloat(s.USStocks),
			toFloat(s.Funds),
			toFloat(s.Cash),
			s.HoldingCount,
			nullFloat(s.YieldRate),
		})
	}
	return data
}

// holdingRows builds the Holdings sheet. Categories are written by display name.
func holdingRows(holdings []domain.Holding) [][]any {
	data := make([][]any, 0, len(holdings)+1)
	data = append(data, holdingHeader)
	for _, h := range holdings {
		category := string(h.Category)
		if info, ok := domain.LookupCategory(h.Category); ok {
			category = info.Name
		}
		data = append(data, []any{
			category,
			h.Name,
			h.Ticker,
			toFloat(h.Quantity),
			toFloat(h.AverageCost),
			toFloat(h.CurrentPrice),
			toFloat(h.CurrentValue),
			toFloat(h.CostBasis()),
			string(h.Currency),
		})
	}
	return data
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func nullFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return toFloat(d.Decimal)
}
