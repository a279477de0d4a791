package rules

import "github.com/opensource-finance/underwriter/internal/domain"

// Red-flag rule IDs.
const (
	RuleGambling    = "GAMBLING"
	RuleCashAdvance = "CASH_ADVANCE"
	RuleCollections = "COLLECTIONS"
	RuleCrypto      = "CRYPTO"
	RuleLateFees    = "LATE_FEES"
)

// BuiltinRules returns the default expense red-flag rules.
// Configuration may replace them wholesale.
func BuiltinRules() []domain.RedFlagRule {
	return []domain.RedFlagRule{
		{
			ID:          RuleGambling,
			Name:        "Gambling",
			Description: "Payments to casinos, sportsbooks or lotteries",
			Expression:  `direction == 'DEBIT' && description.matches(r'(?i)\b(casino|draftkings|fanduel|betmgm|bet365|pokerstars|sportsbook|lottery|lotto)\b')`,
			Severity:    domain.SeverityHigh,
			Points:      15,
			Enabled:     true,
		},
		{
			ID:          RuleCashAdvance,
			Name:        "Cash advance",
			Description: "Card cash advances and payday lending",
			Expression:  `direction == 'DEBIT' && category != 'mca_payment' && description.matches(r'(?i)cash\s+advance|payday|advance\s+fee')`,
			Severity:    domain.SeverityMedium,
			Points:      10,
			Enabled:     true,
		},
		{
			ID:          RuleCollections,
			Name:        "Collections",
			Description: "Collection agencies, judgments and garnishments",
			Expression:  `direction == 'DEBIT' && description.matches(r'(?i)collection|debt\s+recovery|judgment|garnish|\blevy\b')`,
			Severity:    domain.SeverityHigh,
			Points:      15,
			Enabled:     true,
		},
		{
			ID:          RuleCrypto,
			Name:        "Crypto",
			Description: "Transfers to cryptocurrency exchanges",
			Expression:  `direction == 'DEBIT' && description.matches(r'(?i)coinbase|binance|kraken|crypto|bitcoin|gemini\s+trust|blockfi')`,
			Severity:    domain.SeverityMedium,
			Points:      8,
			Enabled:     true,
		},
		{
			ID:          RuleLateFees,
			Name:        "Late fees",
			Description: "Late payment fees charged by vendors or lenders",
			Expression:  `direction == 'DEBIT' && description.matches(r'(?i)late\s+(fee|charge|payment)|past\s+due')`,
			Severity:    domain.SeverityLow,
			Points:      5,
			Enabled:     true,
		},
	}
}
