package classifier

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// unassignedSentinel is the upstream tag for rows the ingester could not place.
const unassignedSentinel = "99.unassigned"

const (
	prefixIncome          = "income - "
	prefixExpenseReversal = "expense reversal - "
	prefixExpense         = "expense - "
)

// taggedExact maps complete upstream tag strings to categories.
var taggedExact = map[string]domain.Category{
	"Income - Card Settlement":        domain.CategoryCardSettlement,
	"Income - Merchant Deposits":      domain.CategoryCardSettlement,
	"Income - ACH Deposit":            domain.CategoryACHDeposit,
	"Income - Wire Transfer":          domain.CategoryWireTransfer,
	"Income - Check Deposit":          domain.CategoryCheckDeposit,
	"Income - Cash Deposit":           domain.CategoryCashDeposit,
	"Income - P2P":                    domain.CategoryP2PIncome,
	"Income - Refund":                 domain.CategoryRefund,
	"Income - Loan Proceeds":          domain.CategoryLoanProceeds,
	"Income - MCA Disbursal":          domain.CategoryMCAFunding,
	"Income - Interest":               domain.CategoryInterestIncome,
	"Income - Other":                  domain.CategoryOtherIncome,
	"Expense - Payroll":               domain.CategoryPayroll,
	"Expense - Rent":                  domain.CategoryRent,
	"Expense - Utilities":             domain.CategoryUtilities,
	"Expense - Insurance":             domain.CategoryInsurance,
	"Expense - Bank Fees":             domain.CategoryBankFees,
	"Expense - NSF Fee":               domain.CategoryNSF,
	"Expense - Overdraft Fee":         domain.CategoryNSF,
	"Expense - Professional Services": domain.CategoryProfessionalServices,
	"Expense - Cost of Goods":         domain.CategoryCostOfGoods,
	"Expense - Inventory":             domain.CategoryCostOfGoods,
	"Expense - Marketing":             domain.CategoryMarketing,
	"Expense - Software":              domain.CategorySubscriptions,
	"Expense - Taxes":                 domain.CategoryTaxes,
	"Expense - Owner Draw":            domain.CategoryOwnerDraw,
	"Expense - Credit Card Payment":   domain.CategoryCreditCardPayment,
	"Expense - P2P":                   domain.CategoryP2PPayment,
	"Expense - ATM Withdrawal":        domain.CategoryATMWithdrawal,
	"Expense - Vehicle":               domain.CategoryVehicle,
	"Expense - Shipping":              domain.CategoryShipping,
	"Expense - Loan Payment":          domain.CategoryLoanPayment,
	"Expense - MCA Payment":           domain.CategoryMCAPayment,
	"Expense - Other":                 domain.CategoryOtherExpense,
	"Expense Reversal":                domain.CategoryRefund,
}

// taggedFold is taggedExact keyed by lower-cased tag.
var taggedFold = func() map[string]domain.Category {
	m := make(map[string]domain.Category, len(taggedExact))
	for k, v := range taggedExact {
		m[strings.ToLower(k)] = v
	}
	return m
}()

// incomeBuckets resolve the X in "Income - X".
var incomeBuckets = []patternRule{
	rule(`revers|refund|return`, domain.CategoryRefund),
	rule(`\bmca\b|merchant\s+cash|disburs|\badvance\b`, domain.CategoryMCAFunding),
	rule(`loan|line\s+of\s+credit|credit\s+line|\bsba\b`, domain.CategoryLoanProceeds),
	rule(`interest|dividend`, domain.CategoryInterestIncome),
	rule(`card|merchant|settle|\bpos\b|square|stripe|shopify|toast|clover|sales`, domain.CategoryCardSettlement),
	rule(`zelle|venmo|cash\s?app|\bp2p\b|paypal|peer`, domain.CategoryP2PIncome),
	rule(`wire`, domain.CategoryWireTransfer),
	rule(`check|cheque|mobile\s+dep|remote\s+dep`, domain.CategoryCheckDeposit),
	rule(`cash`, domain.CategoryCashDeposit),
	rule(`\bach\b|direct\s+dep|deposit|transfer|invoice|customer|receivable`, domain.CategoryACHDeposit),
	rule(`other|misc`, domain.CategoryOtherIncome),
}

// expenseBuckets resolve the X in "Expense - X".
var expenseBuckets = []patternRule{
	rule(`\bnsf\b|overdraft|returned\s+item|insufficient`, domain.CategoryNSF),
	rule(`\bfees?\b|service\s+charge|bank\s+charge`, domain.CategoryBankFees),
	rule(`payroll|salar|wage|contractor\s+pay|employee`, domain.CategoryPayroll),
	rule(`\brent\b|lease|occupancy`, domain.CategoryRent),
	rule(`utilit|electric|water|internet|phone|telecom`, domain.CategoryUtilities),
	rule(`insurance`, domain.CategoryInsurance),
	rule(`\btax|\birs\b`, domain.CategoryTaxes),
	rule(`legal|accounting|professional|consult`, domain.CategoryProfessionalServices),
	rule(`inventory|suppl|cost\s+of\s+goods|\bcogs\b|materials|wholesale|vendor`, domain.CategoryCostOfGoods),
	rule(`marketing|advertis`, domain.CategoryMarketing),
	rule(`software|subscription|saas`, domain.CategorySubscriptions),
	rule(`owner|draw|distribution|personal`, domain.CategoryOwnerDraw),
	rule(`credit\s+card|card\s+payment`, domain.CategoryCreditCardPayment),
	rule(`\bmca\b|merchant\s+cash`, domain.CategoryMCAPayment),
	rule(`loan|debt|financing`, domain.CategoryLoanPayment),
	rule(`zelle|venmo|cash\s?app|\bp2p\b|peer`, domain.CategoryP2PPayment),
	rule(`\batm\b|cash\s+withdrawal`, domain.CategoryATMWithdrawal),
	rule(`vehicle|\bauto\b|fuel|\bgas\b|mileage`, domain.CategoryVehicle),
	rule(`shipping|postage|freight|\bups\b|fedex|usps`, domain.CategoryShipping),
	rule(`other|misc`, domain.CategoryOtherExpense),
}

// lenderSuffix captures the trailing "- LENDERNAME" segment of a tag.
var lenderSuffix = regexp.MustCompile(`\s-\s+([^-]+?)\s*$`)

// taggedResult is the outcome of reading an upstream tag.
type taggedResult struct {
	category domain.Category
	quality  domain.ParseQuality
	lender   string
}

// parseTagged reads a tagged-format source category. ok is false when the
// string is not in tagged format at all.
func parseTagged(tag string) (taggedResult, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return taggedResult{}, false
	}
	if c, ok := taggedExact[tag]; ok {
		return taggedResult{category: c, quality: domain.QualityHigh}, true
	}
	lower := strings.ToLower(tag)
	if c, ok := taggedFold[lower]; ok {
		return taggedResult{category: c, quality: domain.QualityHigh}, true
	}

	switch {
	case strings.HasPrefix(lower, prefixExpenseReversal):
		return taggedResult{category: domain.CategoryRefund, quality: domain.QualityMedium}, true
	case strings.HasPrefix(lower, prefixIncome):
		return resolveBucket(tag[len(prefixIncome):], incomeBuckets, domain.CategoryOtherIncome), true
	case strings.HasPrefix(lower, prefixExpense):
		return resolveBucket(tag[len(prefixExpense):], expenseBuckets, domain.CategoryOtherExpense), true
	}
	return taggedResult{}, false
}

func resolveBucket(rest string, buckets []patternRule, fallback domain.Category) taggedResult {
	res := taggedResult{category: fallback, quality: domain.QualityLow}

	// "MCA Payment - ONDECK": a trailing segment naming a lender.
	if m := lenderSuffix.FindStringSubmatch(rest); m != nil {
		res.lender = strings.TrimSpace(m[1])
	}

	if c, ok := firstMatch(buckets, rest); ok {
		res.category = c
		res.quality = domain.QualityMedium
	}
	return res
}
