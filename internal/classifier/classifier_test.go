package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func tx(desc string, amount float64, dir domain.Direction) *domain.Transaction {
	return &domain.Transaction{
		Date:        time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      amount,
		Direction:   dir,
	}
}

func tagged(desc, tag string, amount float64, dir domain.Direction) *domain.Transaction {
	t := tx(desc, amount, dir)
	t.SourceCategory = tag
	return t
}

func TestClassifyTagged(t *testing.T) {
	t.Run("exact MCA disbursal", func(t *testing.T) {
		got := Classify(tagged("WIRE IN", "Income - MCA Disbursal", 20000, domain.Credit))
		assert.Equal(t, domain.DomainRevenue, got.Domain)
		assert.Equal(t, domain.CategoryMCAFunding, got.Category)
		assert.Equal(t, domain.QualityHigh, got.Quality)
		assert.Equal(t, UnknownLender, got.LenderName)
	})

	t.Run("case-insensitive exact", func(t *testing.T) {
		got := Classify(tagged("DEP", "income - card settlement", 900, domain.Credit))
		assert.Equal(t, domain.CategoryCardSettlement, got.Category)
		assert.Equal(t, domain.QualityHigh, got.Quality)
	})

	t.Run("fuzzy income bucket", func(t *testing.T) {
		got := Classify(tagged("DEP", "Income - Square Deposits", 900, domain.Credit))
		assert.Equal(t, domain.CategoryCardSettlement, got.Category)
		assert.Equal(t, domain.QualityMedium, got.Quality)
	})

	t.Run("unrecognized expense keeps domain", func(t *testing.T) {
		got := Classify(tagged("DEBIT", "Expense - Something Weird", 120, domain.Debit))
		assert.Equal(t, domain.DomainExpense, got.Domain)
		assert.Equal(t, domain.CategoryOtherExpense, got.Category)
		assert.Contains(t, []domain.ParseQuality{domain.QualityMedium, domain.QualityLow}, got.Quality)
	})

	t.Run("expense reversal is revenue", func(t *testing.T) {
		got := Classify(tagged("CREDIT", "Expense Reversal - Amazon", 45, domain.Credit))
		assert.Equal(t, domain.DomainRevenue, got.Domain)
		assert.Equal(t, domain.CategoryRefund, got.Category)
	})

	t.Run("lender suffix outranks bucket", func(t *testing.T) {
		got := Classify(tagged("ACH DEBIT", "Expense - Loan Payment - OnDeck", 450, domain.Debit))
		assert.Equal(t, domain.CategoryMCAPayment, got.Category)
		assert.Equal(t, "OnDeck", got.LenderName)
		assert.Equal(t, domain.QualityHigh, got.Quality)
	})

	t.Run("loan tag with lender description", func(t *testing.T) {
		got := Classify(tagged("KAPITUS ACH PMT", "Expense - Loan Payment", 450, domain.Debit))
		assert.Equal(t, domain.CategoryMCAPayment, got.Category)
		assert.Equal(t, "Kapitus", got.LenderName)
	})
}

func TestClassifySentinel(t *testing.T) {
	debit := tagged("GUSTO PAYROLL", " 99.UNASSIGNED ", 5000, domain.Debit)
	got := Classify(debit)
	assert.Equal(t, domain.CategoryUnassignedExpense, got.Category)
	assert.Equal(t, domain.QualityUnassigned, got.Quality)

	credit := tx("ONDECK FUNDING", 50000, domain.Credit)
	credit.SourceSubcategory = "99.unassigned"
	got = Classify(credit)
	assert.Equal(t, domain.CategoryUnassignedIncome, got.Category)
	assert.Equal(t, domain.DomainRevenue, got.Domain)

	t.Run("recognized subcategory outranks the sentinel", func(t *testing.T) {
		row := tagged("ACH DEBIT", "99.unassigned", 4200, domain.Debit)
		row.SourceSubcategory = "payroll"
		got := Classify(row)
		assert.Equal(t, domain.CategoryPayroll, got.Category)
		assert.Equal(t, domain.DomainExpense, got.Domain)
		assert.Equal(t, domain.QualityHigh, got.Quality)
	})
}

func TestClassifyPreassigned(t *testing.T) {
	row := tx("SOMETHING", 3000, domain.Debit)
	row.SourceSubcategory = "payroll"
	got := Classify(row)
	assert.Equal(t, domain.CategoryPayroll, got.Category)
	assert.Equal(t, domain.QualityHigh, got.Quality)

	row = tx("KABBAGE INC", 400, domain.Debit)
	row.SourceCategory = "mca_payment"
	got = Classify(row)
	assert.Equal(t, domain.CategoryMCAPayment, got.Category)
	assert.Equal(t, "Kabbage", got.LenderName)
}

func TestClassifyLenders(t *testing.T) {
	tests := []struct {
		name     string
		row      *domain.Transaction
		category domain.Category
		lender   string
	}{
		{"payment", tx("ONDECK CAPITAL ACH DEBIT", 500, domain.Debit), domain.CategoryMCAPayment, "OnDeck"},
		{"disbursal", tx("KAPITUS FUNDING DEPOSIT", 25000, domain.Credit), domain.CategoryMCAFunding, "Kapitus"},
		{"lender before keyword", tx("SQUARE CAPITAL LOAN PAYMENT", 300, domain.Debit), domain.CategoryMCAPayment, "Square Capital"},
		{"small lender credit is not funding", tx("KAPITUS REFUND", 300, domain.Credit), domain.CategoryRefund, ""},
		{"threshold is exclusive", tx("FUNDBOX ADVANCE", 5000, domain.Credit), domain.CategoryOtherIncome, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.row)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.lender, got.LenderName)
		})
	}
}

func TestClassifyKeywords(t *testing.T) {
	tests := []struct {
		desc     string
		dir      domain.Direction
		category domain.Category
		quality  domain.ParseQuality
	}{
		{"GUSTO PAYROLL 1234", domain.Debit, domain.CategoryPayroll, domain.QualityMedium},
		{"NSF FEE RETURNED ITEM", domain.Debit, domain.CategoryNSF, domain.QualityMedium},
		{"MONTHLY SERVICE FEE", domain.Debit, domain.CategoryBankFees, domain.QualityMedium},
		{"ATM WITHDRAWAL 123 MAIN ST", domain.Debit, domain.CategoryATMWithdrawal, domain.QualityMedium},
		{"IRS USATAXPYMT", domain.Debit, domain.CategoryTaxes, domain.QualityMedium},
		{"FEDEX 88123", domain.Debit, domain.CategoryShipping, domain.QualityMedium},
		{"SQUARE INC DEPOSIT 1234", domain.Credit, domain.CategoryCardSettlement, domain.QualityMedium},
		{"ZELLE FROM JOHN", domain.Credit, domain.CategoryP2PIncome, domain.QualityMedium},
		{"MOBILE DEPOSIT", domain.Credit, domain.CategoryCheckDeposit, domain.QualityMedium},
		{"CASH DEPOSIT BRANCH 12", domain.Credit, domain.CategoryCashDeposit, domain.QualityMedium},
		{"ACH CREDIT ACME CORP", domain.Credit, domain.CategoryACHDeposit, domain.QualityMedium},
		{"RANDOM THING", domain.Debit, domain.CategoryOtherExpense, domain.QualityLow},
		{"RANDOM THING", domain.Credit, domain.CategoryOtherIncome, domain.QualityLow},
	}
	for _, tt := range tests {
		t.Run(tt.desc+"/"+string(tt.dir), func(t *testing.T) {
			got := Classify(tx(tt.desc, 100, tt.dir))
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.quality, got.Quality)
			assert.Empty(t, got.LenderName)
		})
	}
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, IsExcluded("Beginning Balance"))
	assert.True(t, IsExcluded("ENDING BALANCE 03/31"))
	assert.True(t, IsExcluded("Balance Forward"))
	assert.True(t, IsExcluded("Statement Period 03/01 - 03/31"))
	assert.False(t, IsExcluded("GUSTO PAYROLL"))
	assert.False(t, IsExcluded("BALANCE TRANSFER FEE"))
}

func TestLenderRegistry(t *testing.T) {
	names := Lenders()
	require.GreaterOrEqual(t, len(names), 30)

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate lender %s", n)
		seen[n] = true
	}

	name, ok := MatchLender("BLUEVINE CAPITAL DEBIT")
	assert.True(t, ok)
	assert.Equal(t, "BlueVine", name)

	_, ok = MatchLender("WALMART SUPERCENTER")
	assert.False(t, ok)
}
