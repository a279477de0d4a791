package scorecard

import (
	"math"
	"time"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/stats"
)

var (
	nsfFeeShare     = rules.AtMost(20, rules.At(0, 100), rules.At(0.001, 90), rules.At(0.005, 75), rules.At(0.01, 60), rules.At(0.02, 40))
	nsfAverageFee   = rules.AtMost(30, rules.At(0, 100), rules.At(25, 85), rules.At(35, 70), rules.At(50, 50))
	nsfChange       = rules.AtMost(25, rules.At(-0.5, 95), rules.At(-0.1, 85), rules.At(0.1, 65), rules.At(0.5, 45))
	daysSinceNSF    = rules.AtLeast(30, rules.At(60, 90), rules.At(30, 70), rules.At(14, 50))
	lowestBalance   = rules.AtLeast(20, rules.At(0, 100), rules.At(-500, 80), rules.At(-2000, 60), rules.At(-5000, 40))
	balanceCV       = rules.AtMost(25, rules.At(0.25, 100), rules.At(0.5, 85), rules.At(0.75, 70), rules.At(1, 55), rules.At(1.5, 40))
	balanceSwings   = rules.AtMost(40, rules.At(0.05, 100), rules.At(0.1, 80), rules.At(0.2, 60))
	runwayDays      = rules.AtLeast(20, rules.At(30, 100), rules.At(20, 88), rules.At(14, 75), rules.At(7, 60), rules.At(3, 40))
	endingToMonthly = rules.AtLeast(15, rules.At(0.5, 100), rules.At(0.25, 80), rules.At(0.1, 60), rules.At(0, 40))
)

// swingThreshold is the day-over-day move, as a share of the mean balance,
// that counts as a swing.
const swingThreshold = 0.5

func scoreCashflow(in *input) domain.SectionScore {
	return decision.Section(domain.SectionCashflow, []domain.SubsectionScore{
		nsfFrequency(in.m),
		nsfSeverity(in.m),
		nsfTrend(in),
		negativeBalance(in.m),
		balanceVolatility(in.m.DailyBalances),
		liquidityBuffer(in.m),
	})
}

func nsfFrequency(m *domain.AggregatedMetrics) domain.SubsectionScore {
	perMonth := float64(m.NSF.Count) / float64(max(len(m.Months), 1))
	latest := 0.0
	if n := len(m.Months); n > 0 {
		latest = float64(m.Months[n-1].NSF.Count)
	}

	return decision.Subsection("NSF Frequency", 0.25, []domain.MetricValue{
		metric("nsf_per_month", perMonth, rules.NSFFrequency.Score(perMonth), 0.70),
		metric("latest_month_nsf", latest, rules.NSFFrequency.Score(latest), 0.30),
	}, nil)
}

func nsfSeverity(m *domain.AggregatedMetrics) domain.SubsectionScore {
	share := stats.RatioOrInf(m.NSF.TotalFees, m.Revenue.OperatingRevenue())

	return decision.Subsection("NSF Severity", 0.15, []domain.MetricValue{
		metric("fees_to_revenue", share, nsfFeeShare.Score(share), 0.60),
		metric("average_fee", m.NSF.AverageFee, nsfAverageFee.Score(m.NSF.AverageFee), 0.40),
	}, nil)
}

func nsfTrend(in *input) domain.SubsectionScore {
	const name, weight = "NSF Trend", 0.10
	m := in.m
	if m.NSF.Count == 0 {
		return decision.Subsection(name, weight, []domain.MetricValue{
			metric("half_over_half_change", 0, 100, 0.70),
			metric("days_since_last_nsf", 0, 100, 0.30),
		}, nil)
	}

	counts := make([]float64, len(m.Months))
	for i := range m.Months {
		counts[i] = float64(m.Months[i].NSF.Count)
	}
	change := stats.Change(counts)

	var last time.Time
	for i := range in.rows {
		if in.rows[i].Classification.Category == domain.CategoryNSF {
			last = in.rows[i].Day()
		}
	}
	since := float64(daysBetween(last, m.PeriodEnd))

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("half_over_half_change", change, nsfChange.Score(change), 0.70),
		metric("days_since_last_nsf", since, daysSinceNSF.Score(since), 0.30),
	}, nil)
}

func negativeBalance(m *domain.AggregatedMetrics) domain.SubsectionScore {
	const name, weight = "Negative Balance", 0.20
	if len(m.DailyBalances) == 0 {
		return decision.Fixed(name, weight, 70, nil, nil)
	}

	share := float64(m.NSF.NegativeBalanceDays) / float64(len(m.DailyBalances))
	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("negative_day_share", share, rules.NegativeDays.Score(share), 0.65),
		metric("lowest_balance", m.NSF.LowestBalance, lowestBalance.Score(m.NSF.LowestBalance), 0.35),
	}, nil)
}

func balanceVolatility(closings []domain.DailyBalance) domain.SubsectionScore {
	const name, weight = "Balance Volatility", 0.15
	if len(closings) == 0 {
		return decision.Fixed(name, weight, 70, nil, nil)
	}

	balances := make([]float64, len(closings))
	for i, c := range closings {
		balances[i] = c.Balance
	}
	mean := stats.Mean(balances)

	cv, cvScore := math.Inf(1), 25
	if mean > 0 {
		cv = stats.StdDev(balances) / mean
		cvScore = balanceCV.Score(cv)
	}

	swings := 0
	for i := 1; i < len(balances); i++ {
		if math.Abs(balances[i]-balances[i-1]) > swingThreshold*math.Abs(mean) {
			swings++
		}
	}
	share := stats.Ratio(float64(swings), float64(len(balances)-1), 0)

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("balance_cv", cv, cvScore, 0.65),
		metric("swing_share", share, balanceSwings.Score(share), 0.35),
	}, nil)
}

func liquidityBuffer(m *domain.AggregatedMetrics) domain.SubsectionScore {
	const name, weight = "Liquidity Buffer", 0.15
	if m.Expenses.Total <= 0 {
		return decision.Fixed(name, weight, 100, nil, nil)
	}
	if !m.CashFlow.HasBalances {
		return decision.Fixed(name, weight, 70, nil, nil)
	}

	daily := m.Expenses.Total / float64(max(m.TotalDaysAnalyzed, 1))
	runway := m.CashFlow.AverageBalance / daily
	monthly := m.Expenses.Total / float64(max(len(m.Months), 1))
	ending := m.CashFlow.EndingBalance / monthly

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("runway_days", runway, runwayDays.Score(runway), 0.70),
		metric("ending_to_monthly_expenses", ending, endingToMonthly.Score(ending), 0.30),
	}, nil)
}
