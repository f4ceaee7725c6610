package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// Entity rules key off attributes of the customer behind the account
// rather than the shape of the transaction history.

// NonProfitActivityRule flags sizeable movements on charity and
// non-profit accounts, which carry elevated misuse risk.
type NonProfitActivityRule struct {
	base
	threshold decimal.Decimal
}

// NewNonProfitActivityRule builds the rule from its configuration.
func NewNonProfitActivityRule(cfg *domain.RuleConfig, types *txtype.Registry) *NonProfitActivityRule {
	return &NonProfitActivityRule{
		base:      base{cfg: cfg},
		threshold: paramDecimal(cfg, "transaction_amount", decimal.NewFromInt(5000)),
	}
}

func (r *NonProfitActivityRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	c := ec.Customer
	if c == nil || (!c.NonProfit && c.Type != domain.CustomerTypeNonProfit) {
		return false, nil, nil
	}
	if tx.Amount.LessThan(r.threshold) {
		return false, nil, nil
	}
	return true, domain.Details{
		"amount":        tx.Amount,
		"threshold":     r.threshold,
		"customer_type": c.Type,
	}, nil
}

// ShellCompanyRule flags large movements through corporates that are
// flagged as shells or too recently incorporated to have real trading
// history.
type ShellCompanyRule struct {
	base
	maxAgeDays int
	threshold  decimal.Decimal
}

// NewShellCompanyRule builds the rule from its configuration.
func NewShellCompanyRule(cfg *domain.RuleConfig, types *txtype.Registry) *ShellCompanyRule {
	return &ShellCompanyRule{
		base:       base{cfg: cfg},
		maxAgeDays: paramInt(cfg, "incorporation_age_days", 365),
		threshold:  paramDecimal(cfg, "transaction_amount", decimal.NewFromInt(10000)),
	}
}

func (r *ShellCompanyRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	c := ec.Customer
	if c == nil || c.Type != domain.CustomerTypeCorporate {
		return false, nil, nil
	}
	age := c.IncorporationAgeDays(ec.AsOf)
	young := age >= 0 && age < r.maxAgeDays
	if !c.ShellCompany && !young {
		return false, nil, nil
	}
	if tx.Amount.LessThan(r.threshold) {
		return false, nil, nil
	}
	return true, domain.Details{
		"amount":                 tx.Amount,
		"threshold":              r.threshold,
		"shell_flagged":          c.ShellCompany,
		"incorporation_age_days": age,
	}, nil
}

// HighRiskCustomerRule flags activity on accounts held by high-risk
// rated customers and politically exposed persons.
type HighRiskCustomerRule struct {
	base
	threshold decimal.Decimal
}

// NewHighRiskCustomerRule builds the rule from its configuration.
func NewHighRiskCustomerRule(cfg *domain.RuleConfig, types *txtype.Registry) *HighRiskCustomerRule {
	return &HighRiskCustomerRule{
		base:      base{cfg: cfg},
		threshold: paramDecimal(cfg, "transaction_amount", decimal.NewFromInt(5000)),
	}
}

func (r *HighRiskCustomerRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	c := ec.Customer
	if c == nil || (c.RiskRating != domain.RiskRatingHigh && !c.PEP) {
		return false, nil, nil
	}
	if tx.Amount.LessThan(r.threshold) {
		return false, nil, nil
	}
	return true, domain.Details{
		"amount":      tx.Amount,
		"threshold":   r.threshold,
		"risk_rating": c.RiskRating,
		"pep":         c.PEP,
	}, nil
}
