package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// accumulator folds classified rows for one month or for the whole period.
// Money is summed as decimals and rounded to cents only on output, so the
// breakdown totals are exact sums of the published buckets.
type accumulator struct {
	month        string
	buckets      map[domain.Category]decimal.Decimal
	revenueCount int
	expenseCount int
	nsfCount     int
	mcaFunding   int
	mcaPayments  int
	lenders      map[string]*lenderAcc
	days         map[time.Time]struct{}
	balances     []float64
	closings     []domain.DailyBalance
}

type lenderAcc struct {
	name         string
	funding      decimal.Decimal
	payments     decimal.Decimal
	fundingCount int
	paymentCount int
	first        time.Time
	last         time.Time
	lastPayment  *time.Time
	lastFunding  *time.Time
}

func newAccumulator(month string) *accumulator {
	return &accumulator{
		month:        month,
		buckets:      make(map[domain.Category]decimal.Decimal),
		lenders:      make(map[string]*lenderAcc),
		days:         make(map[time.Time]struct{}),
	}
}

func (a *accumulator) add(ct *domain.ClassifiedTransaction) {
	c := ct.Classification.Category
	day := ct.Day()

	a.buckets[c] = a.buckets[c].Add(decimal.NewFromFloat(ct.Amount))
	if ct.Classification.Domain == domain.DomainRevenue {
		a.revenueCount++
	} else {
		a.expenseCount++
	}
	a.days[day] = struct{}{}

	switch c {
	case domain.CategoryNSF:
		a.nsfCount++
	case domain.CategoryMCAFunding:
		a.mcaFunding++
		l := a.lender(ct.Classification.LenderName, day)
		l.funding = l.funding.Add(decimal.NewFromFloat(ct.Amount))
		l.fundingCount++
		d := day
		l.lastFunding = &d
	case domain.CategoryMCAPayment:
		a.mcaPayments++
		l := a.lender(ct.Classification.LenderName, day)
		l.payments = l.payments.Add(decimal.NewFromFloat(ct.Amount))
		l.paymentCount++
		d := day
		l.lastPayment = &d
	}

	if ct.RunningBalance != nil {
		a.observeBalance(day, *ct.RunningBalance)
	}
}

func (a *accumulator) lender(name string, day time.Time) *lenderAcc {
	l, ok := a.lenders[name]
	if !ok {
		l = &lenderAcc{name: name, first: day}
		a.lenders[name] = l
	}
	l.last = day
	return l
}

// observeBalance records a running balance; the last one seen on a day is
// that day's close.
func (a *accumulator) observeBalance(day time.Time, bal float64) {
	a.balances = append(a.balances, bal)
	if n := len(a.closings); n > 0 && a.closings[n-1].Date.Equal(day) {
		a.closings[n-1].Balance = bal
		return
	}
	a.closings = append(a.closings, domain.DailyBalance{Date: day, Balance: bal})
}

// take rounds one bucket to cents and adds it to total.
func (a *accumulator) take(c domain.Category, total *decimal.Decimal) float64 {
	v := a.buckets[c].Round(2)
	*total = total.Add(v)
	return v.InexactFloat64()
}

func (a *accumulator) revenue() domain.RevenueBreakdown {
	var total decimal.Decimal
	r := domain.RevenueBreakdown{
		CardSales:        a.take(domain.CategoryCardSettlement, &total),
		ACHDeposits:      a.take(domain.CategoryACHDeposit, &total),
		WireTransfers:    a.take(domain.CategoryWireTransfer, &total),
		CheckDeposits:    a.take(domain.CategoryCheckDeposit, &total),
		CashDeposits:     a.take(domain.CategoryCashDeposit, &total),
		P2PIncome:        a.take(domain.CategoryP2PIncome, &total),
		Refunds:          a.take(domain.CategoryRefund, &total),
		LoanProceeds:     a.take(domain.CategoryLoanProceeds, &total),
		MCAFunding:       a.take(domain.CategoryMCAFunding, &total),
		InterestIncome:   a.take(domain.CategoryInterestIncome, &total),
		OtherIncome:      a.take(domain.CategoryOtherIncome, &total),
		UnassignedIncome: a.take(domain.CategoryUnassignedIncome, &total),
		Count:            a.revenueCount,
	}
	r.Total = total.InexactFloat64()
	return r
}

func (a *accumulator) expenses() domain.ExpenseBreakdown {
	var total decimal.Decimal
	e := domain.ExpenseBreakdown{
		Payroll:              a.take(domain.CategoryPayroll, &total),
		Rent:                 a.take(domain.CategoryRent, &total),
		Utilities:            a.take(domain.CategoryUtilities, &total),
		Insurance:            a.take(domain.CategoryInsurance, &total),
		BankFees:             a.take(domain.CategoryBankFees, &total),
		NSFFees:              a.take(domain.CategoryNSF, &total),
		ProfessionalServices: a.take(domain.CategoryProfessionalServices, &total),
		CostOfGoods:          a.take(domain.CategoryCostOfGoods, &total),
		Marketing:            a.take(domain.CategoryMarketing, &total),
		Subscriptions:        a.take(domain.CategorySubscriptions, &total),
		Taxes:                a.take(domain.CategoryTaxes, &total),
		OwnerDraws:           a.take(domain.CategoryOwnerDraw, &total),
		CreditCardPayments:   a.take(domain.CategoryCreditCardPayment, &total),
		P2PPayments:          a.take(domain.CategoryP2PPayment, &total),
		ATMWithdrawals:       a.take(domain.CategoryATMWithdrawal, &total),
		Vehicle:              a.take(domain.CategoryVehicle, &total),
		Shipping:             a.take(domain.CategoryShipping, &total),
		LoanPayments:         a.take(domain.CategoryLoanPayment, &total),
		OtherExpenses:        a.take(domain.CategoryOtherExpense, &total),
		UnassignedExpenses:   a.take(domain.CategoryUnassignedExpense, &total),
		Count:                a.expenseCount,
	}
	// MCA payments have no bucket of their own but count toward the total.
	a.take(domain.CategoryMCAPayment, &total)
	e.Total = total.InexactFloat64()
	return e
}

func (a *accumulator) mca() domain.MCAMetrics {
	m := domain.MCAMetrics{
		FundingReceived: a.buckets[domain.CategoryMCAFunding].Round(2).InexactFloat64(),
		FundingCount:    a.mcaFunding,
		PaymentsTotal:   a.buckets[domain.CategoryMCAPayment].Round(2).InexactFloat64(),
		PaymentCount:    a.mcaPayments,
		Lenders:         make([]domain.LenderDetail, 0, len(a.lenders)),
		UniqueLenders:   len(a.lenders),
	}
	for _, l := range a.lenders {
		m.Lenders = append(m.Lenders, domain.LenderDetail{
			Name:          l.name,
			FundingTotal:  l.funding.Round(2).InexactFloat64(),
			FundingCount:  l.fundingCount,
			PaymentsTotal: l.payments.Round(2).InexactFloat64(),
			PaymentCount:  l.paymentCount,
			FirstActivity: l.first,
			LastActivity:  l.last,
			LastPayment:   l.lastPayment,
			LastFunding:   l.lastFunding,
		})
	}
	sort.Slice(m.Lenders, func(i, j int) bool {
		return m.Lenders[i].Name < m.Lenders[j].Name
	})
	return m
}

func (a *accumulator) nsf() domain.NSFMetrics {
	n := domain.NSFMetrics{
		Count:               a.nsfCount,
		TotalFees:           a.buckets[domain.CategoryNSF].Round(2).InexactFloat64(),
	}
	for _, c := range a.closings {
		if c.Balance < 0 {
			n.NegativeBalanceDays++
		}
	}
	if n.Count > 0 {
		n.AverageFee = a.buckets[domain.CategoryNSF].Div(decimal.NewFromInt(int64(n.Count))).Round(2).InexactFloat64()
	}
	if len(a.balances) > 0 {
		n.LowestBalance = math.Inf(1)
		for _, b := range a.balances {
			n.LowestBalance = math.Min(n.LowestBalance, b)
		}
	}
	return n
}

func (a *accumulator) cashFlow(revenueTotal, expenseTotal float64) domain.CashFlowMetrics {
	cf := domain.CashFlowMetrics{
		NetFlow:      decimal.NewFromFloat(revenueTotal).Sub(decimal.NewFromFloat(expenseTotal)).Round(2).InexactFloat64(),
		DaysObserved: len(a.days),
		HasBalances:  len(a.closings) > 0,
	}
	if !cf.HasBalances {
		return cf
	}

	var sum decimal.Decimal
	for _, c := range a.closings {
		sum = sum.Add(decimal.NewFromFloat(c.Balance))
	}
	cf.AverageBalance = sum.Div(decimal.NewFromInt(int64(len(a.closings)))).Round(2).InexactFloat64()
	cf.MinBalance, cf.MaxBalance = math.Inf(1), math.Inf(-1)
	for _, b := range a.balances {
		cf.MinBalance = math.Min(cf.MinBalance, b)
		cf.MaxBalance = math.Max(cf.MaxBalance, b)
	}
	cf.EndingBalance = a.closings[len(a.closings)-1].Balance
	return cf
}

func (a *accumulator) metrics() domain.MonthlyMetrics {
	rev := a.revenue()
	exp := a.expenses()
	return domain.MonthlyMetrics{
		Month:    a.month,
		Revenue:  rev,
		Expenses: exp,
		MCA:      a.mca(),
		NSF:      a.nsf(),
		CashFlow: a.cashFlow(rev.Total, exp.Total),
	}
}
