package domain

import (
	"time"
)

// EvalContext carries everything a rule may inspect besides the
// transaction itself. History holds prior transactions for the account
// inside the configured lookback window, newest first, and never
// includes the transaction under evaluation.
type EvalContext struct {
	Account  *Account       `json:"account"`
	Customer *Customer      `json:"customer,omitempty"`
	History  []*Transaction `json:"history"`

	// AsOf anchors all window arithmetic to the transaction's own
	// timestamp so that replayed backfills evaluate identically.
	AsOf time.Time `json:"asOf"`
}

// Evaluation represents the complete evaluation result for a transaction.
type Evaluation struct {
	ID            string    `json:"id"`
	TxID          string    `json:"txId"`
	AccountNumber string    `json:"accountNumber"`
	Flagged       bool      `json:"flagged"`
	Score         int       `json:"score"` // highest hit score
	RiskLevel     string    `json:"riskLevel"`
	Timestamp     time.Time `json:"timestamp"`

	// Hits that survived the minimum-score floor
	Hits []RuleHit `json:"hits,omitempty"`

	// AlertIDs raised (or matched to existing open alerts) for the hits.
	AlertIDs []string `json:"alertIds,omitempty"`

	// Processing metadata
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	RulesSkipped   int    `json:"rulesSkipped"`
	CacheHits      int    `json:"cacheHits"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}

// Risk levels attached to hits and alerts.
const (
	RiskLevelLow    = "LOW"
	RiskLevelMedium = "MEDIUM"
	RiskLevelHigh   = "HIGH"
)

// EvaluationResponse is the API response for a transaction evaluation.
type EvaluationResponse struct {
	EvaluationID  string             `json:"evaluationId"`
	TxID          string             `json:"txId"`
	AccountNumber string             `json:"accountNumber"`
	Flagged       bool               `json:"flagged"`
	Score         int                `json:"score"`
	RiskLevel     string             `json:"riskLevel"`
	Alerts        []string           `json:"alerts,omitempty"` // alert IDs raised
	Reasons       []string           `json:"reasons,omitempty"`
	Metadata      EvaluationMetadata `json:"metadata"`
}

// ToResponse converts an Evaluation to an API response.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	var reasons []string
	for _, h := range e.Hits {
		reasons = append(reasons, h.RuleName)
	}
	return &EvaluationResponse{
		EvaluationID:  e.ID,
		TxID:          e.TxID,
		AccountNumber: e.AccountNumber,
		Flagged:       e.Flagged,
		Score:         e.Score,
		RiskLevel:     e.RiskLevel,
		Alerts:        e.AlertIDs,
		Reasons:       reasons,
		Metadata:      e.Metadata,
	}
}
