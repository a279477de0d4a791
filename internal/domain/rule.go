package domain

// RedFlagRule is a per-transaction red-flag expression.
// The expression is CEL over the variables description, amount, category
// and direction and must return bool.
type RedFlagRule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Expression  string   `json:"expression" yaml:"expression"`
	Severity    Severity `json:"severity" yaml:"severity"`

	// Points deducted per matching transaction.
	Points int `json:"points" yaml:"points"`

	// MaxHits caps the deduction at Points*MaxHits. Zero means 2.
	MaxHits int `json:"maxHits,omitempty" yaml:"maxHits,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Cap returns the maximum total deduction for the rule.
func (r *RedFlagRule) Cap() int {
	hits := r.MaxHits
	if hits <= 0 {
		hits = 2
	}
	return r.Points * hits
}

// RuleMatch is one transaction that tripped a rule.
type RuleMatch struct {
	RuleID      string  `json:"ruleId"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
}
