package scorecard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/stacking"
	"github.com/opensource-finance/underwriter/internal/stats"
)

// Debt red-flag types.
const (
	FlagDebtPaymentNegative = "DEBT_PAYMENT_NEGATIVE_BALANCE"
	FlagNSFSameDayAsDebt    = "NSF_SAME_DAY_AS_DEBT"
	FlagPaymentCessation    = "PAYMENT_CESSATION"
	FlagHighDebtBurden      = "HIGH_DEBT_BURDEN"
)

const (
	recentLenderWindow   = 30 * 24 * time.Hour
	cessationGap         = 14 * 24 * time.Hour
	cessationMinPayments = 5
	highBurden           = 0.40
)

var (
	uniqueLenders    = rules.AtMost(10, rules.At(0, 100), rules.At(1, 80), rules.At(2, 60), rules.At(3, 40), rules.At(4, 25))
	recentLenders    = rules.AtMost(15, rules.At(0, 100), rules.At(1, 85), rules.At(2, 60), rules.At(3, 35))
	dailyDebtBalance = rules.AtMost(20, rules.At(0.02, 100), rules.At(0.05, 80), rules.At(0.10, 60), rules.At(0.20, 40))
	paymentAmountCV  = rules.AtMost(40, rules.At(0.05, 100), rules.At(0.15, 85), rules.At(0.30, 65))
	paymentGap       = rules.AtMost(30, rules.At(7, 100), rules.At(14, 80), rules.At(30, 55))
	fundingsPerMonth = rules.AtMost(15, rules.At(0, 100), rules.At(0.34, 85), rules.At(0.5, 70), rules.At(1, 50), rules.At(2, 30))
	acceleration     = rules.AtMost(40, rules.At(0, 100), rules.At(1, 70))
)

func scoreDebt(in *input) domain.SectionScore {
	return decision.Section(domain.SectionDebtImpact, []domain.SubsectionScore{
		debtPositions(in.m),
		debtBurden(in.m),
		paymentConsistency(in.rows),
		debtStacking(in.events),
		disbursementVelocity(in.m),
		debtRedFlags(in),
	})
}

func debtPositions(m *domain.AggregatedMetrics) domain.SubsectionScore {
	unique := float64(m.MCA.UniqueLenders)

	recent := 0
	for _, l := range m.MCA.Lenders {
		if l.LastPayment != nil && m.PeriodEnd.Sub(*l.LastPayment) < recentLenderWindow {
			recent++
		}
	}

	return decision.Subsection("Debt Positions", 0.15, []domain.MetricValue{
		metric("unique_lenders", unique, uniqueLenders.Score(unique), 0.60),
		metric("lenders_paid_last_30_days", float64(recent), recentLenders.Score(float64(recent)), 0.40),
	}, nil)
}

// burden is debt service over operating revenue.
func burden(m *domain.AggregatedMetrics) float64 {
	return stats.RatioOrInf(m.DebtPayments(), m.Revenue.OperatingRevenue())
}

func debtBurden(m *domain.AggregatedMetrics) domain.SubsectionScore {
	const name, weight = "Debt Burden", 0.25
	debt := m.DebtPayments()
	if debt <= 0 {
		return decision.Fixed(name, weight, 100, nil, nil)
	}

	ratio := burden(m)
	metrics := []domain.MetricValue{
		metric("debt_to_revenue", ratio, rules.DebtBurden.Score(ratio), 0.75),
	}
	if m.CashFlow.HasBalances {
		daily := debt / float64(max(m.TotalDaysAnalyzed, 1))
		toBalance := stats.RatioOrInf(daily, m.CashFlow.AverageBalance)
		metrics = append(metrics, metric("daily_debt_to_balance", toBalance, dailyDebtBalance.Score(toBalance), 0.25))
	}
	return decision.Subsection(name, weight, metrics, nil)
}

func paymentConsistency(rows []domain.ClassifiedTransaction) domain.SubsectionScore {
	const name, weight = "Payment Consistency", 0.15

	type history struct {
		amounts []float64
		days    []time.Time
	}
	lenders := make(map[string]*history)
	for i := range rows {
		r := &rows[i]
		if r.Classification.Category != domain.CategoryMCAPayment {
			continue
		}
		h, ok := lenders[r.Classification.LenderName]
		if !ok {
			h = &history{}
			lenders[r.Classification.LenderName] = h
		}
		h.amounts = append(h.amounts, r.Amount)
		h.days = append(h.days, r.Day())
	}

	names := make([]string, 0, len(lenders))
	for n, h := range lenders {
		if len(h.amounts) >= 2 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return decision.Fixed(name, weight, 100, nil, nil)
	}
	sort.Strings(names)

	var cvs []float64
	var gap float64
	for _, n := range names {
		h := lenders[n]
		cv, _ := stats.CV(h.amounts)
		cvs = append(cvs, cv)
		for i := 1; i < len(h.days); i++ {
			gap = math.Max(gap, float64(daysBetween(h.days[i-1], h.days[i])))
		}
	}
	cv := stats.Mean(cvs)

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("amount_cv", cv, paymentAmountCV.Score(cv), 0.50),
		metric("max_payment_gap_days", gap, paymentGap.Score(gap), 0.50),
	}, nil)
}

func debtStacking(events []domain.StackingEvent) domain.SubsectionScore {
	flags := make([]domain.RedFlagDetail, 0, len(events))
	for _, e := range events {
		flags = append(flags, flag(e.Type, e.Severity, e.ScoreImpact, e.Description, dayPtr(e.Date)))
	}
	score := stacking.Score(events)
	if len(flags) == 0 {
		flags = nil
	}
	return decision.Fixed("Debt Stacking", 0.20, score, []domain.MetricValue{
		metric("stacking_events", float64(len(events)), score, 1.0),
	}, flags)
}

func disbursementVelocity(m *domain.AggregatedMetrics) domain.SubsectionScore {
	perMonth := float64(m.MCA.FundingCount) / float64(max(len(m.Months), 1))

	counts := make([]float64, len(m.Months))
	for i := range m.Months {
		counts[i] = float64(m.Months[i].MCA.FundingCount)
	}
	first, second := stats.Halves(counts)
	accel := stats.Sum(second) - stats.Sum(first)

	return decision.Subsection("Disbursement Velocity", 0.10, []domain.MetricValue{
		metric("fundings_per_month", perMonth, fundingsPerMonth.Score(perMonth), 0.70),
		metric("funding_acceleration", accel, acceleration.Score(accel), 0.30),
	}, nil)
}

func debtRedFlags(in *input) domain.SubsectionScore {
	var flags []domain.RedFlagDetail

	nsfDays := make(map[time.Time]struct{})
	debtDays := make(map[time.Time]struct{})
	var negative int
	var firstNegative *time.Time
	for i := range in.rows {
		r := &in.rows[i]
		switch r.Classification.Category {
		case domain.CategoryNSF:
			nsfDays[r.Day()] = struct{}{}
		case domain.CategoryMCAPayment, domain.CategoryLoanPayment:
			debtDays[r.Day()] = struct{}{}
			if r.RunningBalance != nil && *r.RunningBalance < 0 {
				if negative == 0 {
					firstNegative = dayPtr(r.Day())
				}
				negative++
			}
		}
	}
	if negative > 0 {
		flags = append(flags, flag(FlagDebtPaymentNegative, domain.SeverityHigh, capped(negative, 10, 30),
			fmt.Sprintf("%d debt payments left the account negative", negative), firstNegative))
	}

	var overlap []time.Time
	for d := range nsfDays {
		if _, ok := debtDays[d]; ok {
			overlap = append(overlap, d)
		}
	}
	if len(overlap) > 0 {
		sort.Slice(overlap, func(i, j int) bool { return overlap[i].Before(overlap[j]) })
		flags = append(flags, flag(FlagNSFSameDayAsDebt, domain.SeverityHigh, capped(len(overlap), 10, 30),
			fmt.Sprintf("NSF on %d debt payment days", len(overlap)), dayPtr(overlap[0])))
	}

	for _, l := range in.m.MCA.Lenders {
		if !ceased(l, in.m.PeriodEnd) {
			continue
		}
		flags = append(flags, flag(FlagPaymentCessation, domain.SeverityHigh, 15,
			fmt.Sprintf("payments to %s stopped after %d payments", l.Name, l.PaymentCount), l.LastPayment))
	}

	if b := burden(in.m); b > highBurden {
		flags = append(flags, flag(FlagHighDebtBurden, domain.SeverityCritical, 25,
			fmt.Sprintf("debt service is %.0f%% of operating revenue", math.Min(b, unbounded)*100), nil))
	}

	return flagged("Debt Red Flags", 0.15, flags)
}

// ceased reports a lender that was paid regularly and then stopped with no
// later funding from it.
func ceased(l domain.LenderDetail, end time.Time) bool {
	if l.PaymentCount < cessationMinPayments || l.LastPayment == nil {
		return false
	}
	if end.Sub(*l.LastPayment) <= cessationGap {
		return false
	}
	return l.LastFunding == nil || !l.LastFunding.After(*l.LastPayment)
}
