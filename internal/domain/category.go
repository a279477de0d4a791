package domain

// Category is a closed taxonomy key shared by classifier, aggregator and scorecard.
type Category string

// Revenue categories.
const (
	CategoryCardSettlement   Category = "card_settlement"
	CategoryACHDeposit       Category = "ach_deposit"
	CategoryWireTransfer     Category = "wire_transfer"
	CategoryCheckDeposit     Category = "check_deposit"
	CategoryCashDeposit      Category = "cash_deposit"
	CategoryP2PIncome        Category = "p2p_income"
	CategoryRefund           Category = "refund"
	CategoryLoanProceeds     Category = "loan_proceeds"
	CategoryMCAFunding       Category = "mca_funding"
	CategoryInterestIncome   Category = "interest_income"
	CategoryOtherIncome      Category = "other_income"
	CategoryUnassignedIncome Category = "unassigned_income"
)

// Expense categories.
const (
	CategoryPayroll              Category = "payroll"
	CategoryRent                 Category = "rent"
	CategoryUtilities            Category = "utilities"
	CategoryInsurance            Category = "insurance"
	CategoryBankFees             Category = "bank_fees"
	CategoryNSF                  Category = "nsf"
	CategoryProfessionalServices Category = "professional_services"
	CategoryCostOfGoods          Category = "cost_of_goods"
	CategoryMarketing            Category = "marketing"
	CategorySubscriptions        Category = "subscriptions"
	CategoryTaxes                Category = "taxes"
	CategoryOwnerDraw            Category = "owner_draw"
	CategoryCreditCardPayment    Category = "credit_card_payment"
	CategoryP2PPayment           Category = "p2p_payment"
	CategoryATMWithdrawal        Category = "atm_withdrawal"
	CategoryVehicle              Category = "vehicle"
	CategoryShipping             Category = "shipping"
	CategoryLoanPayment          Category = "loan_payment"
	CategoryMCAPayment           Category = "mca_payment"
	CategoryOtherExpense         Category = "other_expense"
	CategoryUnassignedExpense    Category = "unassigned_expense"
)

var categoryDomains = map[Category]Domain{
	CategoryCardSettlement:   DomainRevenue,
	CategoryACHDeposit:       DomainRevenue,
	CategoryWireTransfer:     DomainRevenue,
	CategoryCheckDeposit:     DomainRevenue,
	CategoryCashDeposit:      DomainRevenue,
	CategoryP2PIncome:        DomainRevenue,
	CategoryRefund:           DomainRevenue,
	CategoryLoanProceeds:     DomainRevenue,
	CategoryMCAFunding:       DomainRevenue,
	CategoryInterestIncome:   DomainRevenue,
	CategoryOtherIncome:      DomainRevenue,
	CategoryUnassignedIncome: DomainRevenue,

	CategoryPayroll:              DomainExpense,
	CategoryRent:                 DomainExpense,
	CategoryUtilities:            DomainExpense,
	CategoryInsurance:            DomainExpense,
	CategoryBankFees:             DomainExpense,
	CategoryNSF:                  DomainExpense,
	CategoryProfessionalServices: DomainExpense,
	CategoryCostOfGoods:          DomainExpense,
	CategoryMarketing:            DomainExpense,
	CategorySubscriptions:        DomainExpense,
	CategoryTaxes:                DomainExpense,
	CategoryOwnerDraw:            DomainExpense,
	CategoryCreditCardPayment:    DomainExpense,
	CategoryP2PPayment:           DomainExpense,
	CategoryATMWithdrawal:        DomainExpense,
	CategoryVehicle:              DomainExpense,
	CategoryShipping:             DomainExpense,
	CategoryLoanPayment:          DomainExpense,
	CategoryMCAPayment:           DomainExpense,
	CategoryOtherExpense:         DomainExpense,
	CategoryUnassignedExpense:    DomainExpense,
}

// LookupCategory resolves a taxonomy key to its category and domain.
func LookupCategory(key string) (Category, Domain, bool) {
	c := Category(key)
	d, ok := categoryDomains[c]
	return c, d, ok
}

// DomainOf returns the domain a category belongs to.
func (c Category) DomainOf() Domain {
	return categoryDomains[c]
}

// IsMCA reports whether the category belongs to a merchant cash advance.
func (c Category) IsMCA() bool {
	return c == CategoryMCAFunding || c == CategoryMCAPayment
}

// IsUnknown reports whether the category carries no business meaning.
func (c Category) IsUnknown() bool {
	switch c {
	case CategoryOtherIncome, CategoryUnassignedIncome, CategoryOtherExpense, CategoryUnassignedExpense:
		return true
	}
	return false
}
