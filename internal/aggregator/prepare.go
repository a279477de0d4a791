package aggregator

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/underwriter/internal/classifier"
	"github.com/opensource-finance/underwriter/internal/domain"
)

// Prepare filters, deduplicates, sorts and classifies a raw statement.
// Downstream consumers share its output so that classification and sorting
// happen exactly once per evaluation.
func Prepare(txs []domain.Transaction) []domain.ClassifiedTransaction {
	seen := make(map[string]struct{}, len(txs))
	kept := make([]domain.Transaction, 0, len(txs))

	for _, tx := range txs {
		tx.Amount = math.Abs(tx.Amount)
		if !usable(&tx) {
			continue
		}
		key := DedupeKey(&tx)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, tx)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Day().Before(kept[j].Day())
	})

	out := make([]domain.ClassifiedTransaction, len(kept))
	for i := range kept {
		out[i] = domain.ClassifiedTransaction{
			Transaction:    kept[i],
			Classification: classifier.Classify(&kept[i]),
		}
	}
	return out
}

// usable drops statement summary lines and malformed rows.
func usable(tx *domain.Transaction) bool {
	if tx.Date.IsZero() || tx.Amount == 0 || math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return false
	}
	if tx.Direction != domain.Credit && tx.Direction != domain.Debit {
		return false
	}
	return !classifier.IsExcluded(tx.Description)
}

// DedupeKey identifies duplicate rows: calendar day, normalized description
// and amount to the cent.
func DedupeKey(tx *domain.Transaction) string {
	return tx.Day().Format(domain.DateLayout) + "|" +
		NormalizeDescription(tx.Description) + "|" +
		decimal.NewFromFloat(tx.Amount).StringFixed(2)
}

// NormalizeDescription lower-cases and collapses whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
