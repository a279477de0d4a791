// Package scorecard scores aggregated statement metrics across four equally
// weighted sections and produces the final recommendation.
package scorecard

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/underwriter/internal/aggregator"
	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/stacking"
	"github.com/opensource-finance/underwriter/internal/stats"
)

const monthLayout = "2006-01"

// input is everything a section scorer may read. Scorers never mutate it.
type input struct {
	m      *domain.AggregatedMetrics
	rows   []domain.ClassifiedTransaction
	events []domain.StackingEvent
	flags  []rules.Result
}

type sectionScorer func(in *input) domain.SectionScore

// scorers are listed in presentation order.
var scorers = []sectionScorer{
	scoreRevenue,
	scoreExpenses,
	scoreDebt,
	scoreCashflow,
}

// Engine evaluates scorecards.
type Engine struct {
	redFlags  *rules.Engine
	processor *decision.Processor
}

// NewEngine creates a scorecard engine backed by a red-flag rule engine.
func NewEngine(redFlags *rules.Engine) *Engine {
	return &Engine{
		redFlags:  redFlags,
		processor: decision.NewProcessor(),
	}
}

// Evaluate scores prepared rows. It returns nil when m is nil.
// Sections are scored concurrently into fixed slots, so the result is
// identical to a sequential evaluation.
func (e *Engine) Evaluate(ctx context.Context, m *domain.AggregatedMetrics, prepared []domain.ClassifiedTransaction, events []domain.StackingEvent) (*domain.OverallScorecard, error) {
	if m == nil {
		return nil, nil
	}

	flags, err := e.redFlags.Evaluate(ctx, prepared)
	if err != nil {
		return nil, err
	}

	in := &input{m: m, rows: prepared, events: events, flags: flags}
	sections := make([]domain.SectionScore, len(scorers))

	g, _ := errgroup.WithContext(ctx)
	for i, score := range scorers {
		i, score := i, score
		g.Go(func() error {
			sections[i] = score(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return e.processor.Process(sections, events), nil
}

var defaultEngine = sync.OnceValues(func() (*Engine, error) {
	re, err := rules.NewDefaultEngine()
	if err != nil {
		return nil, err
	}
	return NewEngine(re), nil
})

// Evaluate prepares txs, detects stacking and scores the statement with the
// built-in red-flag rules. It returns nil when m is nil.
func Evaluate(m *domain.AggregatedMetrics, txs []domain.Transaction) *domain.OverallScorecard {
	prepared := aggregator.Prepare(txs)
	return EvaluatePrepared(m, prepared, stacking.Detect(prepared))
}

// EvaluatePrepared scores already prepared rows with the built-in rules.
func EvaluatePrepared(m *domain.AggregatedMetrics, prepared []domain.ClassifiedTransaction, events []domain.StackingEvent) *domain.OverallScorecard {
	engine, err := defaultEngine()
	if err != nil {
		slog.Error("failed to build default scorecard engine", "error", err)
		return nil
	}
	sc, err := engine.Evaluate(context.Background(), m, prepared, events)
	if err != nil {
		slog.Error("scorecard evaluation failed", "error", err)
		return nil
	}
	return sc
}

func metric(name string, value float64, score int, weight float64) domain.MetricValue {
	return domain.MetricValue{Name: name, Value: round4(value), Score: score, Weight: weight}
}

// flag builds a red flag dated at the first offending day, if any.
func flag(kind string, severity domain.Severity, points int, description string, first *time.Time) domain.RedFlagDetail {
	return domain.RedFlagDetail{
		Type:           kind,
		Severity:       severity,
		Description:    description,
		PointsDeducted: points,
		Date:           first,
	}
}

// deduct sums the points of flags and returns 100 less the total.
func deduct(flags []domain.RedFlagDetail) int {
	score := 100
	for _, f := range flags {
		score -= f.PointsDeducted
	}
	return score
}

// flagged scores a red-flag subsection at 100 less every deduction.
func flagged(name string, weight float64, flags []domain.RedFlagDetail) domain.SubsectionScore {
	score := deduct(flags)
	return decision.Fixed(name, weight, score, []domain.MetricValue{
		metric("red_flags", float64(len(flags)), stats.Clamp(score), 1.0),
	}, flags)
}

// capped returns per*count bounded by limit.
func capped(count, per, limit int) int {
	return min(count*per, limit)
}

func dayPtr(t time.Time) *time.Time {
	return &t
}

// daysBetween counts whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// unbounded is published in place of an infinite ratio, which JSON cannot carry.
const unbounded = 999

func round4(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return unbounded
	case math.IsInf(v, -1):
		return -unbounded
	}
	return math.Round(v*10000) / 10000
}
