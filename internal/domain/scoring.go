package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scoring factors. Each factor has a configurable table of thresholds
// mapping observed values to scores.
const (
	FactorActivityValue = "ACTIVITY_VALUE"
	FactorRecurrence    = "RECURRENCE"
	FactorCountryRisk   = "COUNTRY_RISK"
	FactorPartyRisk     = "PARTY_RISK"
	FactorAccountAge    = "ACCOUNT_AGE"
)

// Score combination algorithms.
const (
	ScoringMax      = "MAX"
	ScoringSum      = "SUM"
	ScoringAvg      = "AVG"
	ScoringWeighted = "WEIGHTED"
)

// ScoringThreshold maps an observed factor value to a score contribution.
// For most factors a threshold is met when the observation is greater than
// or equal to Value; ACCOUNT_AGE inverts the comparison since younger
// accounts carry more risk.
type ScoringThreshold struct {
	ID      string          `json:"id"`
	Factor  string          `json:"factor"`
	Value   decimal.Decimal `json:"value"`
	Score   int             `json:"score"`
	Weight  float64         `json:"weight"`
	Enabled bool            `json:"enabled"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Observations carries per-factor observed values extracted from a rule
// hit and its evaluation context.
type Observations map[string]decimal.Decimal

// ScoreBreakdown records each factor's contribution to a final score.
type ScoreBreakdown map[string]int

// ScoreResult is the outcome of running the scoring engine over one hit.
type ScoreResult struct {
	Score     int            `json:"score"`
	Algorithm string         `json:"algorithm"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Country risk bands expressed as numeric levels for COUNTRY_RISK and
// PARTY_RISK observations.
var riskLevelValues = map[string]int64{
	RiskLevelLow:    1,
	RiskLevelMedium: 2,
	RiskLevelHigh:   3,
}

// RiskLevelValue converts a LOW/MEDIUM/HIGH rating to its numeric
// observation value. Unknown ratings map to zero and score nothing.
func RiskLevelValue(level string) decimal.Decimal {
	return decimal.NewFromInt(riskLevelValues[level])
}
