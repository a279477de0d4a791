package domain

import "time"

// RevenueBreakdown splits credits into named buckets.
// The buckets always sum to Total.
type RevenueBreakdown struct {
	CardSales        float64 `json:"cardSales"`
	ACHDeposits      float64 `json:"achDeposits"`
	WireTransfers    float64 `json:"wireTransfers"`
	CheckDeposits    float64 `json:"checkDeposits"`
	CashDeposits     float64 `json:"cashDeposits"`
	P2PIncome        float64 `json:"p2pIncome"`
	Refunds          float64 `json:"refunds"`
	LoanProceeds     float64 `json:"loanProceeds"`
	MCAFunding       float64 `json:"mcaFunding"`
	InterestIncome   float64 `json:"interestIncome"`
	OtherIncome      float64 `json:"otherIncome"`
	UnassignedIncome float64 `json:"unassignedIncome"`
	Total            float64 `json:"total"`
	Count            int     `json:"count"`
}

// BucketSum adds the named buckets.
func (r *RevenueBreakdown) BucketSum() float64 {
	return r.CardSales + r.ACHDeposits + r.WireTransfers + r.CheckDeposits +
		r.CashDeposits + r.P2PIncome + r.Refunds + r.LoanProceeds +
		r.MCAFunding + r.InterestIncome + r.OtherIncome + r.UnassignedIncome
}

// OperatingRevenue is Total without debt proceeds.
func (r *RevenueBreakdown) OperatingRevenue() float64 {
	v := r.Total - r.MCAFunding - r.LoanProceeds
	if v < 0 {
		return 0
	}
	return v
}

// RevenueSource is one named operating-revenue bucket.
type RevenueSource struct {
	Name   string
	Amount float64
}

// Sources returns the operating-revenue buckets in a fixed order, so sums
// over them are reproducible.
func (r *RevenueBreakdown) Sources() []RevenueSource {
	return []RevenueSource{
		{"card", r.CardSales},
		{"ach", r.ACHDeposits},
		{"wire", r.WireTransfers},
		{"check", r.CheckDeposits},
		{"cash", r.CashDeposits},
		{"p2p", r.P2PIncome},
		{"refund", r.Refunds},
		{"interest", r.InterestIncome},
		{"other", r.OtherIncome + r.UnassignedIncome},
	}
}

// ExpenseBreakdown splits debits into named buckets. MCA payments are
// reported in MCAMetrics but included in Total.
type ExpenseBreakdown struct {
	Payroll              float64 `json:"payroll"`
	Rent                 float64 `json:"rent"`
	Utilities            float64 `json:"utilities"`
	Insurance            float64 `json:"insurance"`
	BankFees             float64 `json:"bankFees"`
	NSFFees              float64 `json:"nsfFees"`
	ProfessionalServices float64 `json:"professionalServices"`
	CostOfGoods          float64 `json:"costOfGoods"`
	Marketing            float64 `json:"marketing"`
	Subscriptions        float64 `json:"subscriptions"`
	Taxes                float64 `json:"taxes"`
	OwnerDraws           float64 `json:"ownerDraws"`
	CreditCardPayments   float64 `json:"creditCardPayments"`
	P2PPayments          float64 `json:"p2pPayments"`
	ATMWithdrawals       float64 `json:"atmWithdrawals"`
	Vehicle              float64 `json:"vehicle"`
	Shipping             float64 `json:"shipping"`
	LoanPayments         float64 `json:"loanPayments"`
	OtherExpenses        float64 `json:"otherExpenses"`
	UnassignedExpenses   float64 `json:"unassignedExpenses"`
	Total                float64 `json:"total"`
	Count                int     `json:"count"`
}

// BucketSum adds the named buckets (MCA payments excluded).
func (e *ExpenseBreakdown) BucketSum() float64 {
	return e.Payroll + e.Rent + e.Utilities + e.Insurance + e.BankFees +
		e.NSFFees + e.ProfessionalServices + e.CostOfGoods + e.Marketing +
		e.Subscriptions + e.Taxes + e.OwnerDraws + e.CreditCardPayments +
		e.P2PPayments + e.ATMWithdrawals + e.Vehicle + e.Shipping +
		e.LoanPayments + e.OtherExpenses + e.UnassignedExpenses
}

// LenderDetail is per-lender MCA activity.
type LenderDetail struct {
	Name          string     `json:"name"`
	FundingTotal  float64    `json:"fundingTotal"`
	FundingCount  int        `json:"fundingCount"`
	PaymentsTotal float64    `json:"paymentsTotal"`
	PaymentCount  int        `json:"paymentCount"`
	FirstActivity time.Time  `json:"firstActivity"`
	LastActivity  time.Time  `json:"lastActivity"`
	LastPayment   *time.Time `json:"lastPayment,omitempty"`
	LastFunding   *time.Time `json:"lastFunding,omitempty"`
}

// MCAMetrics summarizes merchant cash advance activity.
type MCAMetrics struct {
	FundingReceived float64        `json:"fundingReceived"`
	FundingCount    int            `json:"fundingCount"`
	PaymentsTotal   float64        `json:"paymentsTotal"`
	PaymentCount    int            `json:"paymentCount"`
	Lenders         []LenderDetail `json:"lenders"`
	UniqueLenders   int            `json:"uniqueLenders"`
}

// NSFMetrics summarizes insufficient-funds events and overdrafts.
type NSFMetrics struct {
	Count               int     `json:"count"`
	TotalFees           float64 `json:"totalFees"`
	AverageFee          float64 `json:"averageFee"`
	NegativeBalanceDays int     `json:"negativeBalanceDays"`
	LowestBalance       float64 `json:"lowestBalance"`
}

// CashFlowMetrics summarizes net flow and balances.
type CashFlowMetrics struct {
	NetFlow        float64 `json:"netFlow"`
	AverageBalance float64 `json:"averageBalance"`
	MinBalance     float64 `json:"minBalance"`
	MaxBalance     float64 `json:"maxBalance"`
	EndingBalance  float64 `json:"endingBalance"`
	DaysObserved   int     `json:"daysObserved"`
	HasBalances    bool    `json:"hasBalances"`
}

// MonthlyMetrics is one calendar month of activity.
type MonthlyMetrics struct {
	Month    string           `json:"month"` // YYYY-MM
	Revenue  RevenueBreakdown `json:"revenue"`
	Expenses ExpenseBreakdown `json:"expenses"`
	MCA      MCAMetrics       `json:"mca"`
	NSF      NSFMetrics       `json:"nsf"`
	CashFlow CashFlowMetrics  `json:"cashFlow"`
}

// DailyBalance is the closing balance of an observed day.
type DailyBalance struct {
	Date    time.Time `json:"date"`
	Balance float64   `json:"balance"`
}

// Trend labels.
const (
	TrendStronglyImproving = "STRONGLY_IMPROVING"
	TrendImproving         = "IMPROVING"
	TrendStable            = "STABLE"
	TrendDeclining         = "DECLINING"
	TrendStronglyDeclining = "STRONGLY_DECLINING"
)

// Trend strengths by magnitude of change: up to 10%, 20%, 50%, beyond.
const (
	StrengthNone     = "NONE"
	StrengthMild     = "MILD"
	StrengthModerate = "MODERATE"
	StrengthStrong   = "STRONG"
)

// TrendDetail is the half-over-half movement of one axis.
type TrendDetail struct {
	Label    string  `json:"label"`
	Change   float64 `json:"change"`
	Strength string  `json:"strength"`
}

// Trend and score axes.
const (
	AxisRevenue  = "revenue"
	AxisExpenses = "expenses"
	AxisDebt     = "debt"
	AxisNSF      = "nsf"
	AxisBalance  = "balance"
	AxisOverall  = "overall"
)

// AggregatedMetrics is the full period summary.
type AggregatedMetrics struct {
	PeriodStart       time.Time              `json:"periodStart"`
	PeriodEnd         time.Time              `json:"periodEnd"`
	MonthsAnalyzed    int                    `json:"monthsAnalyzed"`
	TotalDaysAnalyzed int                    `json:"totalDaysAnalyzed"`
	Months            []MonthlyMetrics       `json:"months"`
	Revenue           RevenueBreakdown       `json:"revenue"`
	Expenses          ExpenseBreakdown       `json:"expenses"`
	MCA               MCAMetrics             `json:"mca"`
	NSF               NSFMetrics             `json:"nsf"`
	CashFlow          CashFlowMetrics        `json:"cashFlow"`
	DailyBalances     []DailyBalance         `json:"dailyBalances,omitempty"`
	Trends            map[string]TrendDetail `json:"trends"`
	Scores            map[string]int         `json:"scores"`
}

// MonthlyOperatingRevenue returns operating revenue per month in order.
func (m *AggregatedMetrics) MonthlyOperatingRevenue() []float64 {
	out := make([]float64, len(m.Months))
	for i := range m.Months {
		out[i] = m.Months[i].Revenue.OperatingRevenue()
	}
	return out
}

// MonthlyExpenses returns total expenses per month in order.
func (m *AggregatedMetrics) MonthlyExpenses() []float64 {
	out := make([]float64, len(m.Months))
	for i := range m.Months {
		out[i] = m.Months[i].Expenses.Total
	}
	return out
}

// DebtPayments is MCA plus loan payments for the period.
func (m *AggregatedMetrics) DebtPayments() float64 {
	return m.MCA.PaymentsTotal + m.Expenses.LoanPayments
}
