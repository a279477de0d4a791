package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func row(date, desc string, amount float64, dir domain.Direction) domain.Transaction {
	return domain.Transaction{Date: day(date), Description: desc, Amount: amount, Direction: dir}
}

func withBalance(tx domain.Transaction, bal float64) domain.Transaction {
	tx.RunningBalance = &bal
	return tx
}

func sample() []domain.Transaction {
	return []domain.Transaction{
		withBalance(row("2024-01-02", "SQUARE INC DEPOSIT", 1000.10, domain.Credit), 1000.10),
		row("2024-01-02", "ACH CREDIT ACME", 250.255, domain.Credit),
		row("2024-01-03", "GUSTO PAYROLL", 400, domain.Debit),
		row("2024-01-03", "ONDECK ACH DEBIT", 100, domain.Debit),
		withBalance(row("2024-01-04", "NSF FEE", 35, domain.Debit), -50),
		row("2024-01-05", "ZELLE FROM X", 20, domain.Credit),
	}
}

func TestAggregateEmpty(t *testing.T) {
	assert.Nil(t, Aggregate(nil))
	assert.Nil(t, Aggregate([]domain.Transaction{
		row("2024-01-01", "Beginning Balance", 5000, domain.Credit),
		row("2024-01-31", "Ending Balance", 5000, domain.Credit),
	}))
}

func TestPrepare(t *testing.T) {
	t.Run("dedupes on normalized description and cents", func(t *testing.T) {
		txs := []domain.Transaction{
			row("2024-02-01", "GUSTO  Payroll", 400.001, domain.Debit),
			row("2024-02-01", "gusto payroll", 400, domain.Debit),
			row("2024-02-02", "gusto payroll", 400, domain.Debit),
		}
		got := Prepare(txs)
		require.Len(t, got, 2)
		assert.Equal(t, "GUSTO  Payroll", got[0].Description)
	})

	t.Run("sorts stably by day", func(t *testing.T) {
		txs := []domain.Transaction{
			row("2024-02-03", "C", 3, domain.Debit),
			row("2024-02-01", "A", 1, domain.Debit),
			row("2024-02-03", "B", 2, domain.Debit),
		}
		got := Prepare(txs)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"A", "C", "B"}, []string{got[0].Description, got[1].Description, got[2].Description})
	})

	t.Run("drops malformed rows and abs amounts", func(t *testing.T) {
		txs := []domain.Transaction{
			row("2024-02-01", "ZERO", 0, domain.Debit),
			{Description: "NO DATE", Amount: 10, Direction: domain.Debit},
			row("2024-02-01", "BAD DIR", 10, domain.Direction("SIDEWAYS")),
			row("2024-02-01", "NEGATIVE", -42, domain.Debit),
		}
		got := Prepare(txs)
		require.Len(t, got, 1)
		assert.Equal(t, 42.0, got[0].Amount)
	})
}

func TestAggregateBreakdownInvariants(t *testing.T) {
	m := Aggregate(sample())
	require.NotNil(t, m)

	check := func(rev domain.RevenueBreakdown, exp domain.ExpenseBreakdown, mca domain.MCAMetrics) {
		assert.InDelta(t, rev.Total, rev.BucketSum(), 1)
		assert.InDelta(t, exp.Total, exp.BucketSum()+mca.PaymentsTotal, 1)
	}
	check(m.Revenue, m.Expenses, m.MCA)
	for _, month := range m.Months {
		check(month.Revenue, month.Expenses, month.MCA)
	}

	assert.InDelta(t, 1270.36, m.Revenue.Total, 0.001)
	assert.InDelta(t, 535, m.Expenses.Total, 0.001)
	assert.Equal(t, 3, m.Revenue.Count)
	assert.Equal(t, 3, m.Expenses.Count)
}

func TestAggregateMCAAndNSF(t *testing.T) {
	m := Aggregate(sample())
	require.NotNil(t, m)

	assert.Equal(t, 100.0, m.MCA.PaymentsTotal)
	assert.Equal(t, 1, m.MCA.PaymentCount)
	assert.Equal(t, 1, m.MCA.UniqueLenders)
	require.Len(t, m.MCA.Lenders, 1)
	assert.Equal(t, "OnDeck", m.MCA.Lenders[0].Name)
	require.NotNil(t, m.MCA.Lenders[0].LastPayment)
	assert.Equal(t, day("2024-01-03"), *m.MCA.Lenders[0].LastPayment)

	assert.Equal(t, 1, m.NSF.Count)
	assert.Equal(t, 35.0, m.NSF.TotalFees)
	assert.Equal(t, 35.0, m.NSF.AverageFee)
	assert.Equal(t, 1, m.NSF.NegativeBalanceDays)
	assert.Equal(t, -50.0, m.NSF.LowestBalance)
}

func TestNegativeDaysUseClosingBalance(t *testing.T) {
	m := Aggregate([]domain.Transaction{
		withBalance(row("2024-01-02", "GUSTO PAYROLL", 500, domain.Debit), -200),
		withBalance(row("2024-01-02", "SQUARE INC DEPOSIT", 900, domain.Credit), 700),
		withBalance(row("2024-01-03", "RENT - LANDLORD LLC", 800, domain.Debit), -100),
		withBalance(row("2024-01-04", "SQUARE INC DEPOSIT", 50, domain.Credit), -50),
		withBalance(row("2024-01-05", "SQUARE INC DEPOSIT", 400, domain.Credit), 350),
	})
	require.NotNil(t, m)

	// The 2nd dips below zero intraday but closes positive.
	assert.Equal(t, 2, m.NSF.NegativeBalanceDays)
	assert.Equal(t, 2, m.Months[0].NSF.NegativeBalanceDays)
	assert.Equal(t, -200.0, m.NSF.LowestBalance)
}

func TestAggregateBalances(t *testing.T) {
	m := Aggregate(sample())
	require.NotNil(t, m)

	assert.Equal(t, day("2024-01-02"), m.PeriodStart)
	assert.Equal(t, day("2024-01-05"), m.PeriodEnd)
	assert.Equal(t, 4, m.TotalDaysAnalyzed)
	assert.Equal(t, 1, m.MonthsAnalyzed)

	require.Len(t, m.DailyBalances, 2)
	assert.True(t, m.CashFlow.HasBalances)
	assert.InDelta(t, 475.05, m.CashFlow.AverageBalance, 0.001)
	assert.Equal(t, -50.0, m.CashFlow.EndingBalance)
	assert.Equal(t, -50.0, m.CashFlow.MinBalance)
	assert.Equal(t, 1000.10, m.CashFlow.MaxBalance)
	assert.Equal(t, 4, m.CashFlow.DaysObserved)
	assert.InDelta(t, 1270.36-535, m.CashFlow.NetFlow, 0.001)
}

func TestAggregateFillsEmptyMonths(t *testing.T) {
	m := Aggregate([]domain.Transaction{
		row("2024-01-15", "ACH CREDIT ACME", 1000, domain.Credit),
		row("2024-03-15", "ACH CREDIT ACME", 1000, domain.Credit),
	})
	require.NotNil(t, m)
	require.Len(t, m.Months, 3)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, []string{m.Months[0].Month, m.Months[1].Month, m.Months[2].Month})
	assert.Zero(t, m.Months[1].Revenue.Total)
	assert.Equal(t, 3, m.MonthsAnalyzed)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name     string
		series   []float64
		inverted bool
		label    string
		strength string
	}{
		{"single month", []float64{100}, false, domain.TrendStable, domain.StrengthNone},
		{"flat", []float64{100, 100, 100, 100}, false, domain.TrendStable, domain.StrengthNone},
		{"within ten percent", []float64{100, 108}, false, domain.TrendStable, domain.StrengthNone},
		{"odd length skips middle", []float64{100, 999, 115}, false, domain.TrendImproving, domain.StrengthMild},
		{"just under twenty percent", []float64{100, 100, 115, 115}, false, domain.TrendImproving, domain.StrengthMild},
		{"just over twenty percent", []float64{100, 100, 125, 125}, false, domain.TrendImproving, domain.StrengthModerate},
		{"forty five percent", []float64{100, 100, 145, 145}, false, domain.TrendImproving, domain.StrengthModerate},
		{"doubling", []float64{100, 100, 200, 200}, false, domain.TrendStronglyImproving, domain.StrengthStrong},
		{"falling", []float64{100, 80}, false, domain.TrendDeclining, domain.StrengthMild},
		{"falling thirty percent", []float64{100, 70}, false, domain.TrendDeclining, domain.StrengthModerate},
		{"collapse", []float64{100, 40}, false, domain.TrendStronglyDeclining, domain.StrengthStrong},
		{"new NSF from zero", []float64{0, 0, 2, 2}, true, domain.TrendStronglyDeclining, domain.StrengthStrong},
		{"fewer NSF", []float64{4, 3}, true, domain.TrendImproving, domain.StrengthModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trend(tt.series, tt.inverted)
			assert.Equal(t, tt.label, got.Label)
			assert.Equal(t, tt.strength, got.Strength)
		})
	}
}

func TestScoresBounded(t *testing.T) {
	m := Aggregate(sample())
	require.NotNil(t, m)
	for _, axis := range []string{domain.AxisRevenue, domain.AxisExpenses, domain.AxisDebt, domain.AxisNSF, domain.AxisBalance, domain.AxisOverall} {
		score, ok := m.Scores[axis]
		require.True(t, ok, axis)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
	// One NSF in one month.
	assert.Equal(t, 77, m.Scores[domain.AxisNSF])
}
