package domain

import (
	"time"
)

// Account statuses as carried in core banking extracts.
const (
	AccountStatusActive  = "ACTIVE"
	AccountStatusDormant = "DORMANT"
	AccountStatusClosed  = "CLOSED"
)

// Customer risk ratings assigned at onboarding or periodic review.
const (
	RiskRatingLow    = "LOW"
	RiskRatingMedium = "MEDIUM"
	RiskRatingHigh   = "HIGH"
)

// Customer types.
const (
	CustomerTypeIndividual = "INDIVIDUAL"
	CustomerTypeCorporate  = "CORPORATE"
	CustomerTypeNonProfit  = "NONPROFIT"
)

// Account represents a monitored account.
type Account struct {
	Number     string `json:"number"`
	CustomerID string `json:"customerId"`
	Currency   string `json:"currency"`

	// Status is the core banking status; DormantSince is set when the
	// institution has explicitly flagged the account dormant.
	Status       string     `json:"status"`
	DormantSince *time.Time `json:"dormantSince,omitempty"`

	OpenedAt       time.Time  `json:"openedAt"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AgeDays returns the account age in whole days as of the given instant.
func (a *Account) AgeDays(at time.Time) int {
	if a.OpenedAt.IsZero() || at.Before(a.OpenedAt) {
		return 0
	}
	return int(at.Sub(a.OpenedAt).Hours() / 24)
}

// InactiveDays returns the number of whole days since the last recorded
// activity as of the given instant. With no recorded activity the account
// counts as inactive since opening.
func (a *Account) InactiveDays(at time.Time) int {
	since := a.OpenedAt
	if a.LastActivityAt != nil {
		since = *a.LastActivityAt
	}
	if since.IsZero() || at.Before(since) {
		return 0
	}
	return int(at.Sub(since).Hours() / 24)
}

// FlaggedDormant reports whether the institution has explicitly marked the
// account dormant, either via status or the dormancy timestamp.
func (a *Account) FlaggedDormant() bool {
	return a.Status == AccountStatusDormant || a.DormantSince != nil
}

// Customer represents the holder of one or more accounts.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`

	CountryOfResidence string `json:"countryOfResidence,omitempty"`
	RiskRating         string `json:"riskRating"`

	// Corporate attributes
	IncorporatedAt *time.Time `json:"incorporatedAt,omitempty"`
	ShellCompany   bool       `json:"shellCompany,omitempty"`
	NonProfit      bool       `json:"nonProfit,omitempty"`

	// Politically exposed person flag
	PEP bool `json:"pep,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IncorporationAgeDays returns the age of a corporate entity in whole days,
// or -1 when no incorporation date is on file.
func (c *Customer) IncorporationAgeDays(at time.Time) int {
	if c.IncorporatedAt == nil || at.Before(*c.IncorporatedAt) {
		return -1
	}
	return int(at.Sub(*c.IncorporatedAt).Hours() / 24)
}
