package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// LargeCashRule flags single cash transactions at or above the reporting
// threshold. Scoped to the cash-in type group; the engine never routes
// transfers or withdrawals here.
type LargeCashRule struct {
	base
	types *txtype.Registry

	threshold    decimal.Decimal
	currency     string // empty means any currency
	lookbackDays int
}

// NewLargeCashRule builds the rule from its configuration.
func NewLargeCashRule(cfg *domain.RuleConfig, types *txtype.Registry) *LargeCashRule {
	return &LargeCashRule{
		base:         base{cfg: cfg},
		types:        types,
		threshold:    paramDecimal(cfg, "transaction_amount", decimal.NewFromInt(10000)),
		currency:     cfg.Parameters.String("currency", ""),
		lookbackDays: paramInt(cfg, "lookback_days", 30),
	}
}

func (r *LargeCashRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	if r.currency != "" && tx.Currency != r.currency {
		return false, nil, nil
	}
	if tx.Amount.LessThan(r.threshold) {
		return false, nil, nil
	}

	// Recent cash volume is evidence for the investigator, not a
	// trigger condition.
	window := inWindow(ec.History, daysAgo(ec.AsOf, r.lookbackDays), ec.AsOf)
	recentCash := sumAmounts(filterGroup(r.types, txtype.GroupCashIn, window))

	return true, domain.Details{
		"amount":         tx.Amount,
		"threshold":      r.threshold,
		"currency":       tx.Currency,
		"recent_cash_in": recentCash.Add(tx.Amount),
		"lookback_days":  r.lookbackDays,
	}, nil
}
