package domain

import "time"

// Stacking event types.
const (
	StackingTypeStacking      = "STACKING"
	StackingTypeRefinance     = "REFINANCE"
	StackingTypeMultipleDay   = "MULTIPLE_SAME_DAY"
	StackingTypeHighFrequency = "HIGH_FREQUENCY"
)

// StackingEvent is a detected debt-stacking pattern.
type StackingEvent struct {
	Date        time.Time `json:"date"`
	Type        string    `json:"type"`
	Lenders     []string  `json:"lenders"`
	Amount      float64   `json:"amount"`
	Severity    Severity  `json:"severity"`
	ScoreImpact int       `json:"scoreImpact"`
	Description string    `json:"description"`
}

// StackingAlert is the presentation form of a stacking event.
type StackingAlert struct {
	Date     string   `json:"date"`
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Lenders  []string `json:"lenders"`
}
