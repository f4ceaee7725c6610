package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// SmallTransfersRule detects bursts of low-value transfers, a layering
// pattern that slips under per-transaction thresholds.
type SmallTransfersRule struct {
	base
	types *txtype.Registry

	maxAmount  decimal.Decimal
	minCount   int
	windowDays int
}

// NewSmallTransfersRule builds the rule from its configuration.
func NewSmallTransfersRule(cfg *domain.RuleConfig, types *txtype.Registry) *SmallTransfersRule {
	return &SmallTransfersRule{
		base:       base{cfg: cfg},
		types:      types,
		maxAmount:  paramDecimal(cfg, "max_amount", decimal.NewFromInt(1000)),
		minCount:   paramInt(cfg, "min_count", 5),
		windowDays: paramInt(cfg, "window_days", 7),
	}
}

func (r *SmallTransfersRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	if tx.Amount.GreaterThan(r.maxAmount) {
		return false, nil, nil
	}

	windowStart := daysAgo(ec.AsOf, r.windowDays)
	window := filterGroup(r.types, txtype.GroupTransfer, inWindow(ec.History, windowStart, ec.AsOf))

	var qualifying []*domain.Transaction
	for _, h := range window {
		if !h.Amount.GreaterThan(r.maxAmount) {
			qualifying = append(qualifying, h)
		}
	}

	count := len(qualifying) + 1
	if count < r.minCount {
		return false, nil, nil
	}

	return true, domain.Details{
		"occurrences":  count,
		"total_amount": sumAmounts(qualifying).Add(tx.Amount),
		"max_amount":   r.maxAmount,
		"window_days":  r.windowDays,
		"window_start": windowStart,
		"window_end":   ec.AsOf,
	}, nil
}
