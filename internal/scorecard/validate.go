package scorecard

import (
	"fmt"
	"math"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// breakdownTolerance is the largest drift allowed between a breakdown's
// buckets and its total.
const breakdownTolerance = 1.0

// minReliableMonths is the history below which a statement is flagged as
// thin.
const minReliableMonths = 3

// Validate checks the internal consistency of metrics and, when given, the
// scorecard built from them. Errors mark broken invariants; warnings mark
// data the reader should treat with care.
func Validate(m *domain.AggregatedMetrics, sc *domain.OverallScorecard) domain.ValidationReport {
	v := &validator{}
	if m != nil {
		v.metrics(m)
	}
	if sc != nil {
		v.scorecard(sc)
	}
	return v.report()
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) report() domain.ValidationReport {
	r := domain.ValidationReport{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return r
}

func (v *validator) metrics(m *domain.AggregatedMetrics) {
	if m.MonthsAnalyzed != len(m.Months) {
		v.errorf("months analyzed is %d but %d months are present", m.MonthsAnalyzed, len(m.Months))
	}
	if m.MonthsAnalyzed < minReliableMonths {
		v.warnf("only %d months of history; at least %d are recommended", m.MonthsAnalyzed, minReliableMonths)
	}

	v.breakdowns("period", &m.Revenue, &m.Expenses, m.MCA.PaymentsTotal)
	for i := range m.Months {
		mm := &m.Months[i]
		v.breakdowns(mm.Month, &mm.Revenue, &mm.Expenses, mm.MCA.PaymentsTotal)
	}

	if m.NSF.Count > 0 && m.NSF.TotalFees == 0 {
		v.warnf("%d NSF events carry no fees", m.NSF.Count)
	}
	if m.NSF.NegativeBalanceDays > m.CashFlow.DaysObserved {
		v.errorf("negative balance days (%d) exceed observed days (%d)", m.NSF.NegativeBalanceDays, m.CashFlow.DaysObserved)
	}
}

func (v *validator) breakdowns(scope string, r *domain.RevenueBreakdown, e *domain.ExpenseBreakdown, mcaPayments float64) {
	if diff := math.Abs(r.BucketSum() - r.Total); diff > breakdownTolerance {
		v.errorf("%s: revenue buckets differ from total by %.2f", scope, diff)
	}
	if diff := math.Abs(e.BucketSum() + mcaPayments - e.Total); diff > breakdownTolerance {
		v.errorf("%s: expense buckets differ from total by %.2f", scope, diff)
	}
}

func (v *validator) scorecard(sc *domain.OverallScorecard) {
	v.score("overall", sc.Score, sc.Rating)

	if len(sc.Sections) != 4 {
		v.errorf("expected 4 sections, got %d", len(sc.Sections))
	}
	for _, s := range sc.Sections {
		v.score(s.Name, s.Score, s.Rating)
		if s.Weight != domain.SectionWeight {
			v.errorf("%s: weight %.2f, expected %.2f", s.Name, s.Weight, domain.SectionWeight)
		}
		for _, sub := range s.Subsections {
			v.score(s.Name+"/"+sub.Name, sub.Score, sub.Rating)
			for _, mv := range sub.Metrics {
				if mv.Score < 0 || mv.Score > 100 {
					v.errorf("%s/%s/%s: metric score %d out of range", s.Name, sub.Name, mv.Name, mv.Score)
				}
			}
		}
	}
}

func (v *validator) score(scope string, score, rating int) {
	if score < 0 || score > 100 {
		v.errorf("%s: score %d out of range", scope, score)
	}
	if want := domain.RatingFor(score); rating != want {
		v.errorf("%s: rating %d does not match score %d", scope, rating, score)
	}
}
