// Package aggregator turns a classified statement into monthly and period
// metrics, half-over-half trends and quick per-axis scores.
package aggregator

import (
	"math"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/stats"
)

const monthLayout = "2006-01"

// Aggregate prepares and aggregates a raw statement.
// It returns nil when no usable transaction remains.
func Aggregate(txs []domain.Transaction) *domain.AggregatedMetrics {
	return AggregateClassified(Prepare(txs))
}

// AggregateClassified aggregates the output of Prepare.
// It returns nil for an empty input.
func AggregateClassified(prepared []domain.ClassifiedTransaction) *domain.AggregatedMetrics {
	if len(prepared) == 0 {
		return nil
	}

	start := prepared[0].Day()
	end := prepared[len(prepared)-1].Day()

	months, index := calendarMonths(start, end)
	period := newAccumulator("")
	for i := range prepared {
		ct := &prepared[i]
		months[index[ct.Day().Format(monthLayout)]].add(ct)
		period.add(ct)
	}

	m := &domain.AggregatedMetrics{
		PeriodStart:       start,
		PeriodEnd:         end,
		MonthsAnalyzed:    len(months),
		TotalDaysAnalyzed: int(end.Sub(start).Hours()/24) + 1,
		Months:            make([]domain.MonthlyMetrics, len(months)),
		DailyBalances:     period.closings,
	}
	for i, acc := range months {
		m.Months[i] = acc.metrics()
	}

	total := period.metrics()
	m.Revenue = total.Revenue
	m.Expenses = total.Expenses
	m.MCA = total.MCA
	m.NSF = total.NSF
	m.CashFlow = total.CashFlow

	m.Trends = Trends(m)
	m.Scores = Scores(m)
	return m
}

// calendarMonths returns one accumulator per calendar month from start to
// end inclusive, so months without activity still count as zero months.
func calendarMonths(start, end time.Time) ([]*accumulator, map[string]int) {
	var months []*accumulator
	index := make(map[string]int)
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		key := cur.Format(monthLayout)
		index[key] = len(months)
		months = append(months, newAccumulator(key))
		cur = cur.AddDate(0, 1, 0)
	}
	return months, index
}

// Trends labels the half-over-half movement of each axis. Only NSF is
// inverted: more NSF events is a deterioration.
func Trends(m *domain.AggregatedMetrics) map[string]domain.TrendDetail {
	nsf := make([]float64, len(m.Months))
	debt := make([]float64, len(m.Months))
	balance := make([]float64, len(m.Months))
	for i := range m.Months {
		nsf[i] = float64(m.Months[i].NSF.Count)
		debt[i] = m.Months[i].MCA.PaymentsTotal
		balance[i] = m.Months[i].CashFlow.EndingBalance
	}

	return map[string]domain.TrendDetail{
		domain.AxisRevenue:  Trend(m.MonthlyOperatingRevenue(), false),
		domain.AxisExpenses: Trend(m.MonthlyExpenses(), false),
		domain.AxisDebt:     Trend(debt, false),
		domain.AxisNSF:      Trend(nsf, true),
		domain.AxisBalance:  Trend(balance, false),
	}
}

// Trend compares the mean of the first half of series with the second.
// Moves within 10% are STABLE and moves beyond 50% are strongly qualified.
func Trend(series []float64, inverted bool) domain.TrendDetail {
	if len(series) < 2 {
		return domain.TrendDetail{Label: domain.TrendStable, Strength: domain.StrengthNone}
	}
	change := stats.Change(series)
	return domain.TrendDetail{
		Label:    TrendLabel(change, inverted),
		Change:   math.Round(change*10000) / 10000,
		Strength: TrendStrength(change),
	}
}

// TrendStrength grades the magnitude of a relative change on the
// 10%/20%/50% breakpoints, independent of direction.
func TrendStrength(change float64) string {
	magnitude := math.Abs(change)
	switch {
	case magnitude <= 0.10:
		return domain.StrengthNone
	case magnitude <= 0.20:
		return domain.StrengthMild
	case magnitude <= 0.50:
		return domain.StrengthModerate
	default:
		return domain.StrengthStrong
	}
}

// TrendLabel maps a relative change to a label.
func TrendLabel(change float64, inverted bool) string {
	magnitude := math.Abs(change)
	if magnitude <= 0.10 {
		return domain.TrendStable
	}
	better := change > 0
	if inverted {
		better = !better
	}
	switch {
	case better && magnitude > 0.50:
		return domain.TrendStronglyImproving
	case better:
		return domain.TrendImproving
	case magnitude > 0.50:
		return domain.TrendStronglyDeclining
	default:
		return domain.TrendDeclining
	}
}

// Scores computes the quick per-axis scores and their rounded mean.
func Scores(m *domain.AggregatedMetrics) map[string]int {
	scores := make(map[string]int, 6)

	scores[domain.AxisRevenue] = 70
	if len(m.Months) >= 2 {
		if cv, ok := stats.CV(m.MonthlyOperatingRevenue()); ok {
			scores[domain.AxisRevenue] = rules.CoefficientOfVariation.Score(cv)
		} else {
			scores[domain.AxisRevenue] = 25
		}
	}

	opRevenue := m.Revenue.OperatingRevenue()
	scores[domain.AxisExpenses] = rules.ExpenseRatio.Score(stats.RatioOrInf(m.Expenses.Total, opRevenue))
	scores[domain.AxisDebt] = rules.DebtBurden.Score(stats.RatioOrInf(m.DebtPayments(), opRevenue))
	scores[domain.AxisNSF] = rules.NSFFrequency.Score(float64(m.NSF.Count) / float64(max(len(m.Months), 1)))

	scores[domain.AxisBalance] = 70
	if len(m.DailyBalances) > 0 {
		scores[domain.AxisBalance] = rules.NegativeDays.Score(float64(m.NSF.NegativeBalanceDays) / float64(len(m.DailyBalances)))
	}

	sum := 0
	for _, axis := range []string{domain.AxisRevenue, domain.AxisExpenses, domain.AxisDebt, domain.AxisNSF, domain.AxisBalance} {
		sum += scores[axis]
	}
	scores[domain.AxisOverall] = stats.Round(float64(sum) / 5)
	return scores
}
