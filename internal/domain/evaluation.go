package domain

import (
	"time"
)

// Evaluation is a scored statement with everything needed to explain it.
type Evaluation struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenantId"`
	Fingerprint string             `json:"fingerprint"`
	Timestamp   time.Time          `json:"timestamp"`
	Metrics     *AggregatedMetrics `json:"metrics"`
	Scorecard   *OverallScorecard  `json:"scorecard"`
	Validation  ValidationReport   `json:"validation"`
	Alerts      []StackingAlert    `json:"alerts"`

	// Processing metadata
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID          string `json:"traceId"`
	TransactionCount int    `json:"transactionCount"`
	PreparedCount    int    `json:"preparedCount"`
	PrepareMs        int64  `json:"prepareMs"`
	ScoreMs          int64  `json:"scoreMs"`
	TotalMs          int64  `json:"totalMs"`
	Cached           bool   `json:"cached"`
	EngineVersion    string `json:"engineVersion"`
}

// EvaluationSummary is the short list form of an evaluation.
type EvaluationSummary struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	Fingerprint    string         `json:"fingerprint"`
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Summary returns the list form of the evaluation.
func (e *Evaluation) Summary() EvaluationSummary {
	s := EvaluationSummary{
		ID:          e.ID,
		TenantID:    e.TenantID,
		Fingerprint: e.Fingerprint,
		Timestamp:   e.Timestamp,
	}
	if e.Scorecard != nil {
		s.Score = e.Scorecard.Score
		s.Recommendation = e.Scorecard.Recommendation
	}
	return s
}

// ValidationReport lists consistency problems found after scoring.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// EngineVersion is stamped on every evaluation.
const EngineVersion = "1.0.0"
