package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert statuses. NEW and ASSIGNED count as open for deduplication.
const (
	AlertStatusNew           = "NEW"
	AlertStatusAssigned      = "ASSIGNED"
	AlertStatusFalsePositive = "CLOSED_FALSE_POSITIVE"
	AlertStatusConfirmed     = "CLOSED_CONFIRMED"
)

// Alert is a scored detection outcome handed to investigators.
type Alert struct {
	ID            string `json:"id"`
	RuleID        string `json:"ruleId"`
	RuleName      string `json:"ruleName"`
	AccountNumber string `json:"accountNumber"`
	CustomerID    string `json:"customerId,omitempty"`
	TxID          string `json:"txId"`

	Score     int    `json:"score"`
	RiskLevel string `json:"riskLevel"`
	Status    string `json:"status"`

	// Narrative is the deterministic human-readable account of the hit.
	Narrative string  `json:"narrative"`
	Details   Details `json:"details,omitempty"`

	AssignedTo string    `json:"assignedTo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Open reports whether the alert still requires investigation.
func (a *Alert) Open() bool {
	return a.Status == AlertStatusNew || a.Status == AlertStatusAssigned
}

// Case statuses.
const (
	CaseStatusOpen      = "OPEN"
	CaseStatusFiled     = "FILED"
	CaseStatusDismissed = "DISMISSED"
)

// Suspicious activity classifications for case records.
const (
	ActivityStructuring        = "STRUCTURING"
	ActivitySanctionsViolation = "SANCTIONS_VIOLATION"
	ActivityUnusual            = "UNUSUAL_ACTIVITY"
)

// Case is a suspicious-activity record opened from a first-time alert.
// Filing and workflow happen downstream; this is the handoff record only.
type Case struct {
	Reference     string `json:"reference"`
	AlertID       string `json:"alertId"`
	AccountNumber string `json:"accountNumber"`
	CustomerID    string `json:"customerId,omitempty"`

	ActivityType string          `json:"activityType"`
	WindowStart  time.Time       `json:"windowStart"`
	WindowEnd    time.Time       `json:"windowEnd"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Currency     string          `json:"currency"`

	Summary string `json:"summary"`
	Status  string `json:"status"`

	OpenedAt time.Time `json:"openedAt"`
}
