package scorecard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/stats"
)

// Revenue red-flag types.
const (
	FlagLargeRoundCash       = "LARGE_ROUND_CASH_DEPOSIT"
	FlagMCAFundingDependency = "MCA_FUNDING_DEPENDENCY"
	FlagRevenueCliff         = "REVENUE_CLIFF"
	FlagUnassignedIncome     = "UNASSIGNED_INCOME"
)

const (
	// A month below this much operating revenue counts as a zero month.
	zeroRevenueMonthThreshold = 100.0

	// Sources under this share of revenue are not counted as sources.
	minSourceShare = 0.05
)

var (
	revenueMinMax      = rules.AtLeast(20, rules.At(0.8, 100), rules.At(0.6, 80), rules.At(0.4, 60), rules.At(0.2, 40))
	zeroRevenueMonths  = rules.AtMost(20, rules.At(0, 100), rules.At(1, 70), rules.At(2, 45))
	healthyMonthShare  = rules.AtLeast(35, rules.At(1, 100), rules.At(0.8, 80), rules.At(0.6, 60))
	revenueGrowth      = rules.AtLeast(15, rules.At(0.20, 100), rules.At(0.10, 90), rules.At(-0.10, 75), rules.At(-0.20, 55), rules.At(-0.50, 35))
	lastMonthToMean    = rules.AtLeast(25, rules.At(1, 100), rules.At(0.9, 85), rules.At(0.75, 65), rules.At(0.5, 45))
	topSourceShare     = rules.AtMost(30, rules.At(0.5, 100), rules.At(0.7, 85), rules.At(0.85, 65), rules.At(0.95, 45))
	sourceCount        = rules.AtLeast(20, rules.At(4, 100), rules.At(3, 85), rules.At(2, 65), rules.At(1, 45))
	expenseCoverage    = rules.AtLeast(15, rules.At(1.5, 100), rules.At(1.25, 90), rules.At(1.1, 78), rules.At(1.0, 62), rules.At(0.9, 45), rules.At(0.75, 30))
	positiveMonthShare = rules.AtLeast(25, rules.At(1, 100), rules.At(0.67, 75), rules.At(0.34, 50))
	depositGap         = rules.AtMost(20, rules.At(3, 100), rules.At(7, 85), rules.At(14, 65), rules.At(30, 40))
	depositDaysPerWeek = rules.AtLeast(20, rules.At(5, 100), rules.At(3, 85), rules.At(1, 65), rules.At(0.5, 40))
)

func scoreRevenue(in *input) domain.SectionScore {
	series := in.m.MonthlyOperatingRevenue()
	return decision.Section(domain.SectionRevenueQuality, []domain.SubsectionScore{
		revenueStability(series),
		revenueDurability(series),
		revenueTrend(series),
		revenueConcentration(in.m),
		revenueSufficiency(in.m),
		revenueRedFlags(in),
		revenueContinuity(in),
	})
}

func revenueStability(series []float64) domain.SubsectionScore {
	const name, weight = "Revenue Stability", 0.20
	if len(series) < 2 {
		return decision.Fixed(name, weight, 70, nil, nil)
	}

	cv, ok := stats.CV(series)
	if !ok {
		cv = math.Inf(1)
	}
	lo, hi := stats.MinMax(series)
	ratio := stats.Ratio(lo, hi, 0)

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("coefficient_of_variation", cv, rules.CoefficientOfVariation.Score(cv), 0.70),
		metric("min_max_ratio", ratio, revenueMinMax.Score(ratio), 0.30),
	}, nil)
}

func revenueDurability(series []float64) domain.SubsectionScore {
	mean := stats.Mean(series)
	zero, healthy := 0, 0
	for _, v := range series {
		if v < zeroRevenueMonthThreshold {
			zero++
		}
		if mean > 0 && v >= mean*0.5 {
			healthy++
		}
	}
	share := stats.Ratio(float64(healthy), float64(len(series)), 0)

	return decision.Subsection("Revenue Durability", 0.15, []domain.MetricValue{
		metric("zero_revenue_months", float64(zero), zeroRevenueMonths.Score(float64(zero)), 0.60),
		metric("healthy_month_share", share, healthyMonthShare.Score(share), 0.40),
	}, nil)
}

func revenueTrend(series []float64) domain.SubsectionScore {
	const name, weight = "Revenue Trend", 0.15
	if len(series) < 2 {
		return decision.Fixed(name, weight, 75, nil, nil)
	}

	change := stats.Change(series)
	last := stats.Ratio(series[len(series)-1], stats.Mean(series), 0)

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("half_over_half_change", change, revenueGrowth.Score(change), 0.70),
		metric("last_month_to_mean", last, lastMonthToMean.Score(last), 0.30),
	}, nil)
}

func revenueConcentration(m *domain.AggregatedMetrics) domain.SubsectionScore {
	sources := m.Revenue.Sources()
	var total, top float64
	for _, s := range sources {
		total += s.Amount
		top = math.Max(top, s.Amount)
	}

	count := 0
	for _, s := range sources {
		if total > 0 && s.Amount/total >= minSourceShare {
			count++
		}
	}
	share := stats.Ratio(top, total, 1)

	return decision.Subsection("Revenue Concentration", 0.15, []domain.MetricValue{
		metric("top_source_share", share, topSourceShare.Score(share), 0.60),
		metric("source_count", float64(count), sourceCount.Score(float64(count)), 0.40),
	}, nil)
}

func revenueSufficiency(m *domain.AggregatedMetrics) domain.SubsectionScore {
	revenue := m.Revenue.OperatingRevenue()
	coverage := 0.0
	switch {
	case m.Expenses.Total > 0:
		coverage = revenue / m.Expenses.Total
	case revenue > 0:
		coverage = math.Inf(1)
	}

	positive := 0
	for i := range m.Months {
		if m.Months[i].CashFlow.NetFlow > 0 {
			positive++
		}
	}
	share := stats.Ratio(float64(positive), float64(len(m.Months)), 0)

	return decision.Subsection("Revenue Sufficiency", 0.15, []domain.MetricValue{
		metric("expense_coverage", coverage, expenseCoverage.Score(coverage), 0.75),
		metric("positive_month_share", share, positiveMonthShare.Score(share), 0.25),
	}, nil)
}

func revenueRedFlags(in *input) domain.SubsectionScore {
	var flags []domain.RedFlagDetail

	var roundCash int
	var firstCash *time.Time
	for i := range in.rows {
		r := &in.rows[i]
		if r.Classification.Category != domain.CategoryCashDeposit || r.Amount < 5000 || math.Mod(r.Amount, 1000) != 0 {
			continue
		}
		if roundCash == 0 {
			firstCash = dayPtr(r.Day())
		}
		roundCash++
	}
	if roundCash > 0 {
		flags = append(flags, flag(FlagLargeRoundCash, domain.SeverityMedium, capped(roundCash, 5, 20),
			fmt.Sprintf("%d large round-dollar cash deposits", roundCash), firstCash))
	}

	if dep := stats.Ratio(in.m.Revenue.MCAFunding, in.m.Revenue.Total, 0); dep > 0.25 {
		flags = append(flags, flag(FlagMCAFundingDependency, domain.SeverityHigh, 20,
			fmt.Sprintf("MCA funding is %.0f%% of deposits", dep*100), nil))
	} else if dep > 0.10 {
		flags = append(flags, flag(FlagMCAFundingDependency, domain.SeverityMedium, 10,
			fmt.Sprintf("MCA funding is %.0f%% of deposits", dep*100), nil))
	}

	var cliffs []string
	var firstCliff *time.Time
	series := in.m.MonthlyOperatingRevenue()
	for i := 1; i < len(series); i++ {
		if series[i-1] > 0 && series[i] < series[i-1]*0.5 {
			if firstCliff == nil {
				if t, err := time.Parse(monthLayout, in.m.Months[i].Month); err == nil {
					firstCliff = &t
				}
			}
			cliffs = append(cliffs, in.m.Months[i].Month)
		}
	}
	if len(cliffs) > 0 {
		flags = append(flags, flag(FlagRevenueCliff, domain.SeverityHigh, capped(len(cliffs), 15, 30),
			fmt.Sprintf("revenue fell by more than half in %v", cliffs), firstCliff))
	}

	unknown := stats.Ratio(in.m.Revenue.UnassignedIncome+in.m.Revenue.OtherIncome, in.m.Revenue.Total, 0)
	if unknown > 0.30 {
		flags = append(flags, flag(FlagUnassignedIncome, domain.SeverityMedium, 15,
			fmt.Sprintf("%.0f%% of deposits have no identified source", unknown*100), nil))
	} else if unknown > 0.15 {
		flags = append(flags, flag(FlagUnassignedIncome, domain.SeverityLow, 8,
			fmt.Sprintf("%.0f%% of deposits have no identified source", unknown*100), nil))
	}

	return flagged("Revenue Red Flags", 0.10, flags)
}

func revenueContinuity(in *input) domain.SubsectionScore {
	seen := make(map[time.Time]struct{})
	var deposits []time.Time
	for i := range in.rows {
		r := &in.rows[i]
		if r.Classification.Domain != domain.DomainRevenue || isDebtProceeds(r.Classification.Category) {
			continue
		}
		if _, ok := seen[r.Day()]; ok {
			continue
		}
		seen[r.Day()] = struct{}{}
		deposits = append(deposits, r.Day())
	}
	sort.Slice(deposits, func(i, j int) bool { return deposits[i].Before(deposits[j]) })

	gap := float64(in.m.TotalDaysAnalyzed)
	if len(deposits) >= 2 {
		gap = 0
		for i := 1; i < len(deposits); i++ {
			gap = math.Max(gap, float64(daysBetween(deposits[i-1], deposits[i])))
		}
	}
	weeks := math.Max(float64(in.m.TotalDaysAnalyzed)/7, 1)
	perWeek := float64(len(deposits)) / weeks

	return decision.Subsection("Revenue Continuity", 0.10, []domain.MetricValue{
		metric("max_deposit_gap_days", gap, depositGap.Score(gap), 0.60),
		metric("deposit_days_per_week", perWeek, depositDaysPerWeek.Score(perWeek), 0.40),
	}, nil)
}

func isDebtProceeds(c domain.Category) bool {
	return c == domain.CategoryMCAFunding || c == domain.CategoryLoanProceeds
}
