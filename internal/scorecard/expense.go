package scorecard

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/stats"
)

// FlagExcessiveATM marks heavy cash withdrawal activity.
const FlagExcessiveATM = "EXCESSIVE_ATM"

var (
	deficitMonthShare = rules.AtMost(20, rules.At(0, 100), rules.At(0.34, 70), rules.At(0.67, 40))
	expenseCV         = rules.AtMost(25, rules.At(0.10, 100), rules.At(0.20, 85), rules.At(0.35, 65), rules.At(0.50, 45))
	expensePeak       = rules.AtMost(30, rules.At(1.2, 100), rules.At(1.5, 80), rules.At(2, 55))
	unknownExpense    = rules.AtMost(20, rules.At(0.05, 100), rules.At(0.10, 90), rules.At(0.20, 75), rules.At(0.35, 55), rules.At(0.50, 40))
	expenseCategories = rules.AtLeast(40, rules.At(8, 100), rules.At(5, 80), rules.At(3, 60))
	fixedToRevenue    = rules.AtMost(20, rules.At(0.30, 100), rules.At(0.45, 80), rules.At(0.60, 60), rules.At(0.75, 40))
	fixedToExpenses   = rules.AtMost(40, rules.At(0.40, 100), rules.At(0.55, 80), rules.At(0.70, 60))
	drawsToNet        = rules.AtMost(25, rules.At(0.25, 100), rules.At(0.5, 85), rules.At(0.75, 65), rules.At(1, 45))
	drawsToDebt       = rules.AtMost(30, rules.At(0.5, 100), rules.At(1, 80), rules.At(2, 55))
	relativeGrowth    = rules.AtMost(20, rules.At(-0.10, 100), rules.At(0, 90), rules.At(0.10, 75), rules.At(0.20, 55), rules.At(0.35, 35))
	expenseGrowth     = rules.AtMost(35, rules.At(0, 100), rules.At(0.10, 85), rules.At(0.25, 60))
)

const (
	atmMonthlyLimit    = 8.0
	atmShareLimit      = 0.10
	excessiveATMPoints = 10
)

func scoreExpenses(in *input) domain.SectionScore {
	return decision.Section(domain.SectionExpenseQuality, []domain.SubsectionScore{
		expenseRatio(in.m),
		expenseStability(in.m.MonthlyExpenses()),
		expenseCategorization(in),
		costRigidity(in.m),
		ownerDrawDiscipline(in.m),
		expenseRedFlags(in),
		expenseTrend(in.m),
	})
}

func expenseRatio(m *domain.AggregatedMetrics) domain.SubsectionScore {
	ratio := stats.RatioOrInf(m.Expenses.Total, m.Revenue.OperatingRevenue())

	deficits := 0
	for i := range m.Months {
		if m.Months[i].Expenses.Total > m.Months[i].Revenue.OperatingRevenue() {
			deficits++
		}
	}
	share := stats.Ratio(float64(deficits), float64(len(m.Months)), 0)

	return decision.Subsection("Expense Ratio", 0.20, []domain.MetricValue{
		metric("expense_ratio", ratio, rules.ExpenseRatio.Score(ratio), 0.75),
		metric("deficit_month_share", share, deficitMonthShare.Score(share), 0.25),
	}, nil)
}

func expenseStability(series []float64) domain.SubsectionScore {
	const name, weight = "Expense Stability", 0.15
	if len(series) < 2 {
		return decision.Fixed(name, weight, 70, nil, nil)
	}

	cv, ok := stats.CV(series)
	if !ok {
		return decision.Fixed(name, weight, 100, nil, nil)
	}
	_, hi := stats.MinMax(series)
	peak := hi / stats.Mean(series)

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("coefficient_of_variation", cv, expenseCV.Score(cv), 0.70),
		metric("peak_to_mean", peak, expensePeak.Score(peak), 0.30),
	}, nil)
}

func expenseCategorization(in *input) domain.SubsectionScore {
	e := &in.m.Expenses
	unknown := stats.Ratio(e.OtherExpenses+e.UnassignedExpenses, e.Total, 0)

	distinct := make(map[domain.Category]struct{})
	for i := range in.rows {
		c := in.rows[i].Classification
		if c.Domain == domain.DomainExpense && !c.Category.IsUnknown() {
			distinct[c.Category] = struct{}{}
		}
	}
	n := float64(len(distinct))

	return decision.Subsection("Expense Categorization", 0.15, []domain.MetricValue{
		metric("unknown_share", unknown, unknownExpense.Score(unknown), 0.80),
		metric("distinct_categories", n, expenseCategories.Score(n), 0.20),
	}, nil)
}

// fixedCosts are obligations that cannot be cut quickly.
func fixedCosts(m *domain.AggregatedMetrics) float64 {
	e := &m.Expenses
	return e.Payroll + e.Rent + e.Utilities + e.Insurance + e.Subscriptions + e.LoanPayments + m.MCA.PaymentsTotal
}

func costRigidity(m *domain.AggregatedMetrics) domain.SubsectionScore {
	fixed := fixedCosts(m)
	toRevenue := stats.RatioOrInf(fixed, m.Revenue.OperatingRevenue())
	toExpenses := stats.Ratio(fixed, m.Expenses.Total, 0)

	return decision.Subsection("Cost Rigidity", 0.10, []domain.MetricValue{
		metric("fixed_to_revenue", toRevenue, fixedToRevenue.Score(toRevenue), 0.60),
		metric("fixed_to_expenses", toExpenses, fixedToExpenses.Score(toExpenses), 0.40),
	}, nil)
}

func ownerDrawDiscipline(m *domain.AggregatedMetrics) domain.SubsectionScore {
	const name, weight = "Owner Draw Discipline", 0.15
	draws := m.Expenses.OwnerDraws
	if draws <= 0 {
		return decision.Fixed(name, weight, 100, nil, nil)
	}

	net := m.Revenue.OperatingRevenue() - (m.Expenses.Total - draws)
	toNet, netScore := math.Inf(1), 20
	if net > 0 {
		toNet = draws / net
		netScore = drawsToNet.Score(toNet)
	}

	toDebt, debtScore := 0.0, 100
	if debt := m.DebtPayments(); debt > 0 {
		toDebt = draws / debt
		debtScore = drawsToDebt.Score(toDebt)
	}

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("draws_to_net_income", toNet, netScore, 0.65),
		metric("draws_to_debt_payments", toDebt, debtScore, 0.35),
	}, nil)
}

func expenseRedFlags(in *input) domain.SubsectionScore {
	var flags []domain.RedFlagDetail
	for _, res := range in.flags {
		if len(res.Matches) == 0 {
			continue
		}
		var first *time.Time
		if t, err := time.Parse(domain.DateLayout, res.Matches[0].Date); err == nil {
			first = &t
		}
		flags = append(flags, flag(res.Rule.ID, res.Rule.Severity, res.Points,
			fmt.Sprintf("%s: %d matching payments", res.Rule.Name, len(res.Matches)), first))
	}

	var atm int
	var firstATM *time.Time
	for i := range in.rows {
		if in.rows[i].Classification.Category != domain.CategoryATMWithdrawal {
			continue
		}
		if atm == 0 {
			firstATM = dayPtr(in.rows[i].Day())
		}
		atm++
	}
	perMonth := float64(atm) / float64(max(len(in.m.Months), 1))
	share := stats.Ratio(in.m.Expenses.ATMWithdrawals, in.m.Expenses.Total, 0)
	if perMonth > atmMonthlyLimit || share > atmShareLimit {
		flags = append(flags, flag(FlagExcessiveATM, domain.SeverityMedium, excessiveATMPoints,
			fmt.Sprintf("%.1f ATM withdrawals per month, %.0f%% of expenses", perMonth, share*100), firstATM))
	}

	return flagged("Expense Red Flags", 0.15, flags)
}

func expenseTrend(m *domain.AggregatedMetrics) domain.SubsectionScore {
	const name, weight = "Expense Trend", 0.10
	if len(m.Months) < 2 {
		return decision.Fixed(name, weight, 75, nil, nil)
	}

	growth := stats.Change(m.MonthlyExpenses())
	relative := growth - stats.Change(m.MonthlyOperatingRevenue())

	return decision.Subsection(name, weight, []domain.MetricValue{
		metric("growth_vs_revenue", relative, relativeGrowth.Score(relative), 0.70),
		metric("expense_growth", growth, expenseGrowth.Score(growth), 0.30),
	}, nil)
}
