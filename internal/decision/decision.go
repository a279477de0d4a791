// Package decision rolls scored metrics up into subsections, sections and
// the final recommendation.
package decision

import (
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/stats"
)

// Threshold maps a minimum overall score to a recommendation.
type Threshold struct {
	MinScore       int
	Recommendation domain.Recommendation
}

// Processor turns section scores into an overall scorecard.
type Processor struct {
	// Thresholds are checked in order; the first one met wins.
	Thresholds []Threshold
}

// NewProcessor creates a processor with the standard recommendation bands.
func NewProcessor() *Processor {
	return &Processor{
		Thresholds: []Threshold{
			{MinScore: 75, Recommendation: domain.RecommendApprove},
			{MinScore: 60, Recommendation: domain.RecommendApproveWithConditions},
			{MinScore: 45, Recommendation: domain.RecommendManualReview},
			{MinScore: 30, Recommendation: domain.RecommendDeclineSoft},
		},
	}
}

// Recommend maps an overall score to a recommendation.
func (p *Processor) Recommend(score int) domain.Recommendation {
	for _, t := range p.Thresholds {
		if score >= t.MinScore {
			return t.Recommendation
		}
	}
	return domain.RecommendDecline
}

// Process builds the overall scorecard: the rounded mean of the section
// scores, its rating and recommendation, and every red flag flattened.
func (p *Processor) Process(sections []domain.SectionScore, events []domain.StackingEvent) *domain.OverallScorecard {
	sc := &domain.OverallScorecard{
		Sections:       sections,
		RedFlags:       []domain.RedFlagDetail{},
		StackingEvents: events,
	}
	if sc.StackingEvents == nil {
		sc.StackingEvents = []domain.StackingEvent{}
	}

	if len(sections) > 0 {
		sum := 0
		for _, s := range sections {
			sum += s.Score
		}
		sc.Score = stats.Clamp(stats.Round(float64(sum) / float64(len(sections))))
	}
	sc.Rating = domain.RatingFor(sc.Score)
	sc.Recommendation = p.Recommend(sc.Score)

	for _, s := range sections {
		for _, sub := range s.Subsections {
			sc.RedFlags = append(sc.RedFlags, sub.RedFlags...)
		}
	}
	return sc
}

// Section rolls subsections into a section with the fixed section weight.
func Section(name string, subs []domain.SubsectionScore) domain.SectionScore {
	scores := make([]int, len(subs))
	weights := make([]float64, len(subs))
	for i, s := range subs {
		scores[i], weights[i] = s.Score, s.Weight
	}
	score := aggregate(scores, weights)
	return domain.SectionScore{
		Name:        name,
		Score:       score,
		Rating:      domain.RatingFor(score),
		Weight:      domain.SectionWeight,
		Subsections: subs,
	}
}

// Subsection scores a subsection as the weighted mean of its metrics.
func Subsection(name string, weight float64, metrics []domain.MetricValue, flags []domain.RedFlagDetail) domain.SubsectionScore {
	scores := make([]int, len(metrics))
	weights := make([]float64, len(metrics))
	for i, m := range metrics {
		scores[i], weights[i] = m.Score, m.Weight
	}
	return Fixed(name, weight, aggregate(scores, weights), metrics, flags)
}

// Fixed builds a subsection whose score was decided by the caller.
func Fixed(name string, weight float64, score int, metrics []domain.MetricValue, flags []domain.RedFlagDetail) domain.SubsectionScore {
	score = stats.Clamp(score)
	if metrics == nil {
		metrics = []domain.MetricValue{}
	}
	return domain.SubsectionScore{
		Name:     name,
		Score:    score,
		Rating:   domain.RatingFor(score),
		Weight:   weight,
		Metrics:  metrics,
		RedFlags: flags,
	}
}

// aggregate computes the normalized weighted mean of scores.
func aggregate(scores []int, weights []float64) int {
	if len(scores) == 0 {
		return 100
	}

	var sum, total float64
	for i, s := range scores {
		weight := weights[i]
		if weight <= 0 {
			weight = 1.0
		}
		sum += float64(s) * weight
		total += weight
	}
	return stats.Clamp(stats.Round(sum / total))
}
