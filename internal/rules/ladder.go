package rules

import "math"

// Step is one rung of a Ladder.
type Step struct {
	Limit float64
	Score int
}

// At builds a Step.
func At(limit float64, score int) Step {
	return Step{Limit: limit, Score: score}
}

// Ladder maps a measured value to a discrete score.
// Steps are evaluated in order and the first one the value satisfies wins;
// a value that satisfies none scores Else.
type Ladder struct {
	steps   []Step
	atLeast bool
	orElse  int
}

// AtMost is a ladder where lower values are better: value <= Limit matches.
func AtMost(orElse int, steps ...Step) Ladder {
	return Ladder{steps: steps, orElse: orElse}
}

// AtLeast is a ladder where higher values are better: value >= Limit matches.
func AtLeast(orElse int, steps ...Step) Ladder {
	return Ladder{steps: steps, atLeast: true, orElse: orElse}
}

// Score returns the score for v. NaN scores Else.
func (l Ladder) Score(v float64) int {
	if math.IsNaN(v) {
		return l.orElse
	}
	for _, s := range l.steps {
		if l.atLeast && v >= s.Limit {
			return s.Score
		}
		if !l.atLeast && v <= s.Limit {
			return s.Score
		}
	}
	return l.orElse
}

// Ladders shared by the aggregator's quick axis scores and the scorecard.
var (
	// CoefficientOfVariation scores month-to-month revenue dispersion.
	CoefficientOfVariation = AtMost(25, At(0.10, 100), At(0.20, 85), At(0.30, 70), At(0.45, 55), At(0.60, 40))

	// ExpenseRatio scores expenses over operating revenue.
	ExpenseRatio = AtMost(15, At(0.60, 100), At(0.75, 88), At(0.85, 75), At(0.95, 60), At(1.00, 45), At(1.10, 30))

	// DebtBurden scores debt service over operating revenue.
	DebtBurden = AtMost(15, At(0.05, 100), At(0.10, 90), At(0.15, 78), At(0.20, 65), At(0.30, 50), At(0.40, 35))

	// NSFFrequency scores NSF events per month.
	NSFFrequency = AtMost(15, At(0, 100), At(0.5, 90), At(1, 77), At(3, 60), At(5, 45), At(10, 30))

	// NegativeDays scores the share of observed days closing below zero.
	NegativeDays = AtMost(15, At(0, 100), At(0.02, 85), At(0.05, 70), At(0.10, 55), At(0.20, 35))
)
