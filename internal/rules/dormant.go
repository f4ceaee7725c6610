package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// DormantActivityRule detects sudden high-value activity on a dormant
// account. An account counts as dormant when the institution has flagged
// it, or when the derived inactivity period exceeds the configured
// threshold; either signal suffices.
type DormantActivityRule struct {
	base
	types *txtype.Registry

	minAccountAgeDays    int
	activityThreshold    decimal.Decimal // recent activity that wakes the rule
	inactiveMonths       int             // dormancy lookback
	maxPriorActivity     decimal.Decimal // total activity tolerated while dormant
	recentActivityMonths int             // window counted as "recent"
}

// NewDormantActivityRule builds the rule from its configuration,
// falling back to standard thresholds for missing parameters.
func NewDormantActivityRule(cfg *domain.RuleConfig, types *txtype.Registry) *DormantActivityRule {
	return &DormantActivityRule{
		base:                 base{cfg: cfg},
		types:                types,
		minAccountAgeDays:    paramInt(cfg, "account_age_days", 180),
		activityThreshold:    paramDecimal(cfg, "activity_amount", decimal.NewFromInt(10000)),
		inactiveMonths:       paramInt(cfg, "inactive_period_months", 6),
		maxPriorActivity:     paramDecimal(cfg, "max_prior_activity", decimal.NewFromInt(100)),
		recentActivityMonths: paramInt(cfg, "recent_activity_period_months", 1),
	}
}

func (r *DormantActivityRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	if ec.Account == nil {
		return false, nil, nil
	}
	asOf := ec.AsOf
	if ec.Account.AgeDays(asOf) < r.minAccountAgeDays {
		return false, nil, nil
	}

	recentStart := monthsAgo(asOf, r.recentActivityMonths)
	dormantStart := monthsAgo(asOf, r.inactiveMonths)

	// Prior window covers dormancy up to the start of the recent window.
	prior := inWindow(ec.History, dormantStart, recentStart)
	priorTotal := sumAmounts(prior)

	dormant := ec.Account.FlaggedDormant() ||
		ec.Account.InactiveDays(asOf) >= r.inactiveMonths*30 ||
		len(prior) == 0
	if !dormant {
		return false, nil, nil
	}
	if priorTotal.GreaterThan(r.maxPriorActivity) {
		return false, nil, nil
	}

	// The triggering transaction counts toward recent activity exactly
	// once. History never contains it.
	recent := inWindow(ec.History, recentStart, asOf)
	recentTotal := sumAmounts(recent).Add(tx.Amount)
	if recentTotal.LessThan(r.activityThreshold) {
		return false, nil, nil
	}

	return true, domain.Details{
		"amount":                   tx.Amount,
		"recent_activity":          recentTotal,
		"prior_activity":           priorTotal,
		"activity_threshold":       r.activityThreshold,
		"prior_activity_threshold": r.maxPriorActivity,
		"inactive_days":            ec.Account.InactiveDays(asOf),
		"dormant_flagged":          ec.Account.FlaggedDormant(),
		"recent_window_start":      recentStart,
		"prior_window_start":       dormantStart,
	}, nil
}
