// Package stacking detects merchant cash advance stacking: new advances
// taken while other advances are still being repaid.
package stacking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/underwriter/internal/classifier"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/stats"
)

// Detection windows.
const (
	ActiveWindow        = 45 * 24 * time.Hour
	RefinanceWindow     = 60 * 24 * time.Hour
	HighFrequencyWindow = 30 * 24 * time.Hour

	// HighFrequencyLenders is the number of concurrently paid lenders that
	// must be exceeded to raise HIGH_FREQUENCY.
	HighFrequencyLenders = 3
)

// Score impacts.
const (
	impactStackingHigh   = 35
	impactStackingMedium = 20
	impactRefinance      = 15
	impactSameDay        = 40
	impactHighFrequency  = 25
)

type lenderState struct {
	lastPayment *time.Time
	lastFunding *time.Time
}

// accumulator is the state threaded through the fold.
type accumulator struct {
	lenders          map[string]*lenderState
	disbursalsByDay  map[time.Time][]string
	sameDayRaised    map[time.Time]bool
	highFrequencySet bool
	events           []domain.StackingEvent
}

func newAccumulator() *accumulator {
	return &accumulator{
		lenders:         make(map[string]*lenderState),
		disbursalsByDay: make(map[time.Time][]string),
		sameDayRaised:   make(map[time.Time]bool),
	}
}

// Detect runs a single forward pass over rows sorted by Prepare.
func Detect(prepared []domain.ClassifiedTransaction) []domain.StackingEvent {
	acc := newAccumulator()
	for i := range prepared {
		acc = fold(acc, &prepared[i])
	}
	return acc.events
}

func fold(acc *accumulator, ct *domain.ClassifiedTransaction) *accumulator {
	name := ct.Classification.LenderName
	if name == "" {
		return acc
	}
	switch {
	case isDisbursal(ct):
		acc.disbursal(ct.Day(), name, ct.Amount)
	case ct.Classification.Category == domain.CategoryMCAPayment:
		acc.payment(ct.Day(), name)
	}
	return acc
}

func isDisbursal(ct *domain.ClassifiedTransaction) bool {
	return ct.Classification.Category == domain.CategoryMCAFunding &&
		ct.IsCredit() &&
		ct.Amount > classifier.MCAFundingThreshold
}

func (a *accumulator) state(name string) *lenderState {
	s, ok := a.lenders[name]
	if !ok {
		s = &lenderState{}
		a.lenders[name] = s
	}
	return s
}

func (a *accumulator) disbursal(day time.Time, name string, amount float64) {
	var others []string
	for other, s := range a.lenders {
		if other == name {
			continue
		}
		if within(s.lastPayment, day, ActiveWindow) || within(s.lastFunding, day, ActiveWindow) {
			others = append(others, other)
		}
	}

	if len(others) > 0 {
		sort.Strings(others)
		severity, impact := domain.SeverityMedium, impactStackingMedium
		if len(others) >= 2 {
			severity, impact = domain.SeverityHigh, impactStackingHigh
		}
		a.emit(domain.StackingEvent{
			Date:        day,
			Type:        domain.StackingTypeStacking,
			Lenders:     sortedWith(others, name),
			Amount:      amount,
			Severity:    severity,
			ScoreImpact: impact,
			Description: fmt.Sprintf("%s advanced $%.2f while %s still active", name, amount, strings.Join(others, ", ")),
		})
	}

	self := a.state(name)
	if within(self.lastFunding, day, RefinanceWindow) {
		a.emit(domain.StackingEvent{
			Date:        day,
			Type:        domain.StackingTypeRefinance,
			Lenders:     []string{name},
			Amount:      amount,
			Severity:    domain.SeverityMedium,
			ScoreImpact: impactRefinance,
			Description: fmt.Sprintf("%s re-funded $%.2f within %d days of a prior advance", name, amount, days(day.Sub(*self.lastFunding))),
		})
	}

	a.disbursalsByDay[day] = append(a.disbursalsByDay[day], name)
	if len(a.disbursalsByDay[day]) > 1 && !a.sameDayRaised[day] {
		a.sameDayRaised[day] = true
		a.emit(domain.StackingEvent{
			Date:        day,
			Type:        domain.StackingTypeMultipleDay,
			Lenders:     unique(a.disbursalsByDay[day]),
			Amount:      amount,
			Severity:    domain.SeverityCritical,
			ScoreImpact: impactSameDay,
			Description: fmt.Sprintf("multiple advances disbursed on %s", day.Format(domain.DateLayout)),
		})
	}

	d := day
	self.lastFunding = &d
}

func (a *accumulator) payment(day time.Time, name string) {
	d := day
	a.state(name).lastPayment = &d
	if a.highFrequencySet {
		return
	}

	var active []string
	for lender, s := range a.lenders {
		if within(s.lastPayment, day, HighFrequencyWindow) {
			active = append(active, lender)
		}
	}
	if len(active) <= HighFrequencyLenders {
		return
	}
	sort.Strings(active)
	a.highFrequencySet = true
	a.emit(domain.StackingEvent{
		Date:        day,
		Type:        domain.StackingTypeHighFrequency,
		Lenders:     active,
		Severity:    domain.SeverityHigh,
		ScoreImpact: impactHighFrequency,
		Description: fmt.Sprintf("%d lenders paid within %d days", len(active), days(HighFrequencyWindow)),
	})
}

func (a *accumulator) emit(e domain.StackingEvent) {
	a.events = append(a.events, e)
}

// Score is 100 less every event's impact, floored at zero.
func Score(events []domain.StackingEvent) int {
	score := 100
	for _, e := range events {
		score -= e.ScoreImpact
	}
	return stats.Clamp(score)
}

// Alerts converts events into their presentation form.
func Alerts(events []domain.StackingEvent) []domain.StackingAlert {
	alerts := make([]domain.StackingAlert, 0, len(events))
	for _, e := range events {
		alerts = append(alerts, domain.StackingAlert{
			Date:     e.Date.Format(domain.DateLayout),
			Type:     e.Type,
			Severity: e.Severity,
			Message:  e.Description,
			Lenders:  e.Lenders,
		})
	}
	return alerts
}

// within reports whether last happened no more than window before day.
func within(last *time.Time, day time.Time, window time.Duration) bool {
	if last == nil {
		return false
	}
	gap := day.Sub(*last)
	return gap >= 0 && gap <= window
}

func sortedWith(names []string, name string) []string {
	out := append(append([]string{}, names...), name)
	sort.Strings(out)
	return out
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func days(d time.Duration) int {
	return int(d.Hours() / 24)
}
