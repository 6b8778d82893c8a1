package portfolio

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// Period is the granularity of a chart series.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period name. Empty input selects PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodDay, nil
	case PeriodDay, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("%w: period %q", domain.ErrInvalidInput, s)
	}
}

// Limit is the number of buckets a series of this period shows.
func (p Period) Limit() int {
	switch p {
	case PeriodMonth:
		return 12
	case PeriodYear:
		return 5
	default:
		return 30
	}
}

// Start returns the earliest date whose snapshot can appear in a series ending at today.
func (p Period) Start(today time.Time) time.Time {
	today = domain.DateOf(today)
	switch p {
	case PeriodMonth:
		return time.Date(today.Year(), today.Month()-time.Month(p.Limit()-1), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		return time.Date(today.Year()-(p.Limit()-1), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return today.AddDate(0, 0, -(p.Limit() - 1))
	}
}

func (p Period) key(t time.Time) string {
	switch p {
	case PeriodMonth:
		return t.Format("2006-01")
	case PeriodYear:
		return t.Format("2006")
	default:
		return t.Format(domain.DateLayout)
	}
}

// Label is the axis label of the bucket containing t.
func (p Period) Label(t time.Time) string {
	switch p {
	case PeriodMonth:
		return t.Format("2006/01")
	case PeriodYear:
		return t.Format("2006")
	default:
		return t.Format("01/02")
	}
}

// LatestPerBucket keeps the latest-dated snapshot of each bucket, ordered by date.
func LatestPerBucket(snapshots []domain.DailySnapshot, p Period) []domain.DailySnapshot {
	sorted := slices.Clone(snapshots)
	slices.SortFunc(sorted, func(a, b domain.DailySnapshot) int { return a.Date.Compare(b.Date) })

	latest := make(map[string]domain.DailySnapshot)
	var order []string
	for _, s := range sorted {
		k := p.key(s.Date)
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = s
	}

	return lo.Map(order, func(k string, _ int) domain.DailySnapshot { return latest[k] })
}

// ChartPoint is one bucket of a chart series.
type ChartPoint struct {
	Date        time.Time       `json:"date"`
	Label       string          `json:"label"`
	TotalAssets decimal.Decimal `json:"totalAssets"`
	JPStocks    decimal.Decimal `json:"jpStocks"`
	USStocks    decimal.Decimal `json:"usStocks"`
	Funds       decimal.Decimal `json:"funds"`
	Cash        decimal.Decimal `json:"cash"`
}

func newChartPoint(p Period, date time.Time, totals domain.CategoryTotals) ChartPoint {
	return ChartPoint{
		Date:        date,
		Label:       p.Label(date),
		TotalAssets: domain.RoundMoney(totals.Total()),
		JPStocks:    domain.RoundMoney(totals.JPStocks),
		USStocks:    domain.RoundMoney(totals.USStocks),
		Funds:       domain.RoundMoney(totals.Funds),
		Cash:        domain.RoundMoney(totals.Cash),
	}
}

// ChartSeries turns stored snapshots into at most p.Limit() points. The live totals
// replace the bucket containing today, or are appended when that bucket has no snapshot.
func ChartSeries(snapshots []domain.DailySnapshot, p Period, live domain.CategoryTotals, today time.Time) []ChartPoint {
	today = domain.DateOf(today)
	todayKey := p.key(today)

	buckets := lo.Filter(LatestPerBucket(snapshots, p), func(s domain.DailySnapshot, _ int) bool {
		return !s.Date.After(today)
	})
	points := lo.Map(buckets, func(s domain.DailySnapshot, _ int) ChartPoint {
		return newChartPoint(p, s.Date, s.Totals())
	})

	current := newChartPoint(p, today, live)
	if n := len(points); n > 0 && p.key(points[n-1].Date) == todayKey {
		points[n-1] = current
	} else {
		points = append(points, current)
	}

	if over := len(points) - p.Limit(); over > 0 {
		points = points[over:]
	}
	return points
}
