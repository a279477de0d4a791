package domain

import "time"

// Severity grades a red flag or stacking event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Recommendation is the final underwriting call.
type Recommendation string

const (
	RecommendApprove               Recommendation = "APPROVE"
	RecommendApproveWithConditions Recommendation = "APPROVE_WITH_CONDITIONS"
	RecommendManualReview          Recommendation = "MANUAL_REVIEW"
	RecommendDeclineSoft           Recommendation = "DECLINE_SOFT"
	RecommendDecline               Recommendation = "DECLINE"
)

// IsDecline reports whether the recommendation turns the application down.
func (r Recommendation) IsDecline() bool {
	return r == RecommendDecline || r == RecommendDeclineSoft
}

// Section names.
const (
	SectionRevenueQuality = "Revenue Quality"
	SectionExpenseQuality = "Expense Quality"
	SectionDebtImpact     = "Existing Debt Impact"
	SectionCashflow       = "Cashflow & Charges"
)

// SectionWeight is the fixed weight of each of the four sections.
const SectionWeight = 0.25

// MetricValue is one measured input to a subsection.
type MetricValue struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Score  int     `json:"score"`
	Weight float64 `json:"weight"`
}

// RedFlagDetail is a penalized observation.
type RedFlagDetail struct {
	Type           string     `json:"type"`
	Severity       Severity   `json:"severity"`
	Description    string     `json:"description"`
	PointsDeducted int        `json:"pointsDeducted"`
	Date           *time.Time `json:"date,omitempty"`
}

// SubsectionScore is one scored factor within a section.
type SubsectionScore struct {
	Name     string          `json:"name"`
	Score    int             `json:"score"`
	Rating   int             `json:"rating"`
	Weight   float64         `json:"weight"`
	Metrics  []MetricValue   `json:"metrics"`
	RedFlags []RedFlagDetail `json:"redFlags,omitempty"`
}

// SectionScore groups subsections.
type SectionScore struct {
	Name        string            `json:"name"`
	Score       int               `json:"score"`
	Rating      int               `json:"rating"`
	Weight      float64           `json:"weight"`
	Subsections []SubsectionScore `json:"subsections"`
}

// OverallScorecard is the final result of an evaluation.
type OverallScorecard struct {
	Score          int             `json:"score"`
	Rating         int             `json:"rating"`
	Recommendation Recommendation  `json:"recommendation"`
	Sections       []SectionScore  `json:"sections"`
	RedFlags       []RedFlagDetail `json:"redFlags"`
	StackingEvents []StackingEvent `json:"stackingEvents"`
}

// RatingFor maps a 0-100 score onto the 1-5 rating scale.
func RatingFor(score int) int {
	switch {
	case score >= 80:
		return 5
	case score >= 65:
		return 4
	case score >= 50:
		return 3
	case score >= 35:
		return 2
	default:
		return 1
	}
}
