package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// InconsistentActivityRule flags transactions far outside the account's
// established profile: the amount exceeds a multiple of the historical
// average. Accounts with too little history are left alone.
type InconsistentActivityRule struct {
	base
	types *txtype.Registry

	multiplier   decimal.Decimal
	minHistory   int
	lookbackDays int
}

// NewInconsistentActivityRule builds the rule from its configuration.
func NewInconsistentActivityRule(cfg *domain.RuleConfig, types *txtype.Registry) *InconsistentActivityRule {
	return &InconsistentActivityRule{
		base:         base{cfg: cfg},
		types:        types,
		multiplier:   paramDecimal(cfg, "multiplier", decimal.NewFromFloat(3.0)),
		minHistory:   paramInt(cfg, "min_history", 3),
		lookbackDays: paramInt(cfg, "lookback_days", 90),
	}
}

func (r *InconsistentActivityRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	window := inWindow(ec.History, daysAgo(ec.AsOf, r.lookbackDays), ec.AsOf)
	if len(window) < r.minHistory {
		return false, nil, nil
	}

	average := sumAmounts(window).Div(decimal.NewFromInt(int64(len(window))))
	if !average.IsPositive() {
		return false, nil, nil
	}
	if !tx.Amount.GreaterThan(average.Mul(r.multiplier)) {
		return false, nil, nil
	}

	return true, domain.Details{
		"amount":         tx.Amount,
		"average_amount": average.Round(2),
		"multiplier":     r.multiplier,
		"sample_size":    len(window),
		"lookback_days":  r.lookbackDays,
	}, nil
}
