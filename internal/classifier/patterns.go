package classifier

import (
	"regexp"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// patternRule maps a description pattern to a category. Tables of these are
// evaluated top to bottom and the first match wins.
type patternRule struct {
	pattern  *regexp.Regexp
	category domain.Category
}

func rule(expr string, c domain.Category) patternRule {
	return patternRule{pattern: regexp.MustCompile(`(?i)` + expr), category: c}
}

func firstMatch(rules []patternRule, text string) (domain.Category, bool) {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.category, true
		}
	}
	return "", false
}

// expenseRules are applied to DEBIT descriptions. NSF precedes bank fees so
// that "NSF FEE" is not read as an ordinary service charge.
var expenseRules = []patternRule{
	rule(`\bnsf\b|non-?sufficient|insufficient\s+funds|overdraft|\bod\s+fee|returned\s+item|uncollected\s+funds`, domain.CategoryNSF),
	rule(`service\s+charge|monthly\s+fee|maintenance\s+fee|wire\s+fee|account\s+fee|bank\s+fee|analysis\s+charge|\bfee\b`, domain.CategoryBankFees),
	rule(`payroll|gusto|\badp\b|paychex|salary|wages|rippling|trinet`, domain.CategoryPayroll),
	rule(`\brent\b|\blease\b|landlord|property\s+m(gm)?t|property\s+management`, domain.CategoryRent),
	rule(`electric|utilit|\bwater\b|comcast|verizon|at&t|t-mobile|spectrum|con\s?ed\b|pg&e|duke\s+energy|internet`, domain.CategoryUtilities),
	rule(`insurance|geico|state\s+farm|progressive|allstate|hiscox|liberty\s+mutual`, domain.CategoryInsurance),
	rule(`\birs\b|\btax\b|taxes|eftps|franchise\s+tax|dep(artmen)?t\s+of\s+revenue`, domain.CategoryTaxes),
	rule(`attorney|law\s+office|legal|\bcpa\b|accounting|bookkeep|consult`, domain.CategoryProfessionalServices),
	rule(`sysco|us\s+foods|inventory|wholesale|supplier|suppl(y|ies)|restaurant\s+depot|costco|home\s+depot|lowe'?s|uline|grainger`, domain.CategoryCostOfGoods),
	rule(`google\s+ads|facebook|meta\s+ads|adwords|yelp|advertis|marketing|mailchimp`, domain.CategoryMarketing),
	rule(`subscription|quickbooks|intuit|microsoft|adobe|dropbox|zoom|slack|amazon\s+web\s+services|\baws\b|google\s+workspace|gsuite`, domain.CategorySubscriptions),
	rule(`owner'?s?\s+draw|draw\s+to\s+owner|distribution|transfer\s+to\s+personal|personal\s+transfer`, domain.CategoryOwnerDraw),
	rule(`\bamex\b|american\s+express|card\s+payment|credit\s+card|capital\s+one|discover\s+card|citi\s+card|barclaycard`, domain.CategoryCreditCardPayment),
	rule(`loan\s+(pmt|payment)|sba\s+loan|\beidl\b|lending\s+club|funding\s+circle|line\s+of\s+credit|\bloc\s+payment`, domain.CategoryLoanPayment),
	rule(`zelle|venmo|cash\s?app|paypal`, domain.CategoryP2PPayment),
	rule(`\batm\b|cash\s+withdrawal|withdrawal\s+cash`, domain.CategoryATMWithdrawal),
	rule(`\bshell\b|chevron|exxon|\bmobil\b|\bbp\b|fuel|gas\s+station|auto\s?zone|auto\s+parts|car\s+wash|\bdmv\b|\btoll`, domain.CategoryVehicle),
	rule(`\bups\b|fedex|usps|\bdhl\b|postage|stamps\.com|shipstation|freight`, domain.CategoryShipping),
}

// revenueRules are applied to CREDIT descriptions.
var revenueRules = []patternRule{
	rule(`refund|reversal|return\s+credit|credit\s+adj`, domain.CategoryRefund),
	rule(`loan\s+(proceeds|disb|deposit)|\bsba\b|\beidl\b|line\s+of\s+credit\s+adv|\bloc\s+advance`, domain.CategoryLoanProceeds),
	rule(`interest|dividend`, domain.CategoryInterestIncome),
	rule(`square|\bsq\s?\*|stripe|shopify|toast|clover|merchant\s+(dep|services|settle)|bankcard|card\s+settle|\bvisa\b|mastercard|heartland|worldpay|first\s+data|doordash|uber\s+eats|grubhub`, domain.CategoryCardSettlement),
	rule(`zelle|venmo|cash\s?app|paypal`, domain.CategoryP2PIncome),
	rule(`\bwire\b|fedwire|\bswift\b`, domain.CategoryWireTransfer),
	rule(`\bcheck\b|cheque|mobile\s+dep|remote\s+dep|\brdc\b`, domain.CategoryCheckDeposit),
	rule(`cash\s+dep|branch\s+dep|teller\s+dep|atm\s+dep|\bcash\b`, domain.CategoryCashDeposit),
	rule(`\bach\b|direct\s+dep|deposit|transfer\s+from|online\s+transfer|\bppd\b|\bccd\b`, domain.CategoryACHDeposit),
}

// excludedPatterns mark statement summary lines that are not transactions.
var excludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(opening|closing|previous|beginning|ending|starting)\s+balance\b`),
	regexp.MustCompile(`(?i)\bbalance\s+(forward|brought\s+forward|carried\s+forward)\b`),
	regexp.MustCompile(`(?i)\bstatement\s+period\b`),
}

// IsExcluded reports whether a description is a statement summary line.
func IsExcluded(description string) bool {
	for _, p := range excludedPatterns {
		if p.MatchString(description) {
			return true
		}
	}
	return false
}
