// Package classifier assigns every statement row a domain, a category from
// the closed taxonomy and, for merchant cash advance activity, a lender.
//
// Resolution runs in a fixed order and the first step that decides wins:
//
//  1. a source tag that already is a taxonomy key
//  2. the "99.unassigned" sentinel, then a tagged-format source category
//     ("Income - X", "Expense - X", ...)
//  3. the lender registry against the description
//  4. direction-specific keyword families against the description
//  5. the generic fallback for the direction
//
// A registered lender named in a tagged row's trailing segment outranks the
// tag's own bucket, so "Expense - Loan Payment - OnDeck" is an MCA payment.
package classifier

import (
	"strings"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Classify returns the classification for tx. It never fails.
func Classify(tx *domain.Transaction) domain.Classification {
	credit := tx.IsCredit()

	if c, ok := preassigned(tx); ok {
		return withLender(c, domain.QualityHigh, tx.Description, "")
	}

	if isSentinel(tx.SourceCategory) || isSentinel(tx.SourceSubcategory) {
		c := domain.CategoryUnassignedExpense
		if credit {
			c = domain.CategoryUnassignedIncome
		}
		return classification(c, domain.QualityUnassigned, "")
	}

	if tagged, ok := parseTagged(tx.SourceCategory); ok {
		if tagged.lender != "" {
			if name, ok := MatchLender(tagged.lender); ok {
				if c, ok := lenderCategory(tx, credit); ok {
					return classification(c, domain.QualityHigh, name)
				}
			}
		}
		// Ingesters commonly tag advance remittances as plain loan activity.
		if tagged.category == domain.CategoryLoanPayment || tagged.category == domain.CategoryLoanProceeds {
			if name, ok := MatchLender(tx.Description); ok {
				if c, ok := lenderCategory(tx, credit); ok {
					return classification(c, domain.QualityHigh, name)
				}
			}
		}
		return withLender(tagged.category, tagged.quality, tx.Description, tagged.lender)
	}

	if name, ok := MatchLender(tx.Description); ok {
		if c, ok := lenderCategory(tx, credit); ok {
			return classification(c, domain.QualityHigh, name)
		}
	}

	rules, fallback := expenseRules, domain.CategoryOtherExpense
	if credit {
		rules, fallback = revenueRules, domain.CategoryOtherIncome
	}
	if c, ok := firstMatch(rules, tx.Description); ok {
		return classification(c, domain.QualityMedium, "")
	}
	return classification(fallback, domain.QualityLow, "")
}

// lenderCategory applies the disbursal threshold to a lender-matched row.
func lenderCategory(tx *domain.Transaction, credit bool) (domain.Category, bool) {
	if !credit {
		return domain.CategoryMCAPayment, true
	}
	if tx.Amount > MCAFundingThreshold {
		return domain.CategoryMCAFunding, true
	}
	return "", false
}

func preassigned(tx *domain.Transaction) (domain.Category, bool) {
	for _, key := range []string{tx.SourceSubcategory, tx.SourceCategory} {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if c, _, ok := domain.LookupCategory(key); ok {
			return c, true
		}
	}
	return "", false
}

// withLender fills the lender name for MCA categories from, in order, the
// tag suffix, the registry and finally UnknownLender.
func withLender(c domain.Category, q domain.ParseQuality, description, suffix string) domain.Classification {
	if !c.IsMCA() {
		return classification(c, q, "")
	}
	if suffix != "" {
		if name, ok := MatchLender(suffix); ok {
			return classification(c, q, name)
		}
		return classification(c, q, suffix)
	}
	if name, ok := MatchLender(description); ok {
		return classification(c, q, name)
	}
	return classification(c, q, UnknownLender)
}

func classification(c domain.Category, q domain.ParseQuality, lenderName string) domain.Classification {
	return domain.Classification{
		Domain:     c.DomainOf(),
		Category:   c,
		LenderName: lenderName,
		Quality:    q,
	}
}

func isSentinel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), unassignedSentinel)
}
