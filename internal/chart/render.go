// Package chart renders snapshot series as PNG images.
package chart

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/portfolio"
)

// The default chart font has no CJK glyphs, so legends use ASCII labels.
var categoryStyle = map[domain.Category]struct{ label, hex string }{
	domain.CategoryJPStock: {"JP stocks", "4f46e5"},
	domain.CategoryUSStock: {"US stocks", "d97706"},
	domain.CategoryFund:    {"Funds", "059669"},
	domain.CategoryCash:    {"Cash", "475569"},
}

// RenderAssets renders total assets and each category over time as a PNG line chart.
func RenderAssets(points []portfolio.ChartPoint, p portfolio.Period) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 data points, got %d", domain.ErrInvalidInput, len(points))
	}

	xValues := make([]time.Time, len(points))
	for i, pt := range points {
		xValues[i] = pt.Date
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: "Total",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("111827"),
				StrokeWidth: 2.5,
			},
			XValues: xValues,
			YValues: values(points, func(pt portfolio.ChartPoint) decimal.Decimal { return pt.TotalAssets }),
		},
	}
	for _, info := range domain.Categories() {
		series = append(series, chart.TimeSeries{
			Name: categoryStyle[info.Category].label,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(categoryStyle[info.Category].hex),
				StrokeWidth: 1.5,
			},
			XValues: xValues,
			YValues: values(points, func(pt portfolio.ChartPoint) decimal.Decimal {
				return pointTotals(pt).Get(info.Category)
			}),
		})
	}

	graph := chart.Chart{
		Title:  "Assets",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return p.Label(chart.TimeFromFloat64(t))
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("¥%.0fk", f/1000)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func pointTotals(pt portfolio.ChartPoint) domain.CategoryTotals {
	return domain.CategoryTotals{JPStocks: pt.JPStocks, USStocks: pt.USStocks, Funds: pt.Funds, Cash: pt.Cash}
}

func values(points []portfolio.ChartPoint, get func(portfolio.ChartPoint) decimal.Decimal) []float64 {
	out := make([]float64, len(points))
	for i, pt := range points {
		out[i] = get(pt).InexactFloat64()
	}
	return out
}
