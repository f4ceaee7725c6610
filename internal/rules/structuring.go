package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// StructuringRule detects deposits split to stay under the reporting
// threshold: several sub-threshold cash-ins inside a short window whose
// aggregate crosses the structuring threshold.
type StructuringRule struct {
	base
	types *txtype.Registry

	aggregateThreshold decimal.Decimal // combined amount that trips the rule
	reportThreshold    decimal.Decimal // each transaction must stay below this
	minCount           int
	windowDays         int
}

// NewStructuringRule builds the rule from its configuration.
func NewStructuringRule(cfg *domain.RuleConfig, types *txtype.Registry) *StructuringRule {
	return &StructuringRule{
		base:               base{cfg: cfg},
		types:              types,
		aggregateThreshold: paramDecimal(cfg, "aggregate_threshold", decimal.NewFromInt(9000)),
		reportThreshold:    paramDecimal(cfg, "report_threshold", decimal.NewFromInt(10000)),
		minCount:           paramInt(cfg, "min_count", 3),
		windowDays:         paramInt(cfg, "window_days", 2),
	}
}

func (r *StructuringRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	// Structuring is about sub-threshold amounts; a transaction at or
	// above the reporting threshold belongs to the large-cash rule.
	if tx.Amount.GreaterThanOrEqual(r.reportThreshold) {
		return false, nil, nil
	}

	windowStart := daysAgo(ec.AsOf, r.windowDays)
	window := filterGroup(r.types, txtype.GroupCashIn, inWindow(ec.History, windowStart, ec.AsOf))

	var qualifying []*domain.Transaction
	for _, h := range window {
		if h.Amount.LessThan(r.reportThreshold) {
			qualifying = append(qualifying, h)
		}
	}

	count := len(qualifying) + 1 // the triggering transaction itself
	total := sumAmounts(qualifying).Add(tx.Amount)
	if count < r.minCount || total.LessThan(r.aggregateThreshold) {
		return false, nil, nil
	}

	return true, domain.Details{
		"occurrences":         count,
		"total_amount":        total,
		"aggregate_threshold": r.aggregateThreshold,
		"report_threshold":    r.reportThreshold,
		"window_days":         r.windowDays,
		"window_start":        windowStart,
		"window_end":          ec.AsOf,
		"uniform_amounts":     uniformAmounts(append(qualifying, tx)),
	}, nil
}

// uniformAmounts reports whether the deposit amounts cluster tightly, a
// common hallmark of automated splitting. Amounts count as uniform when
// the spread between the largest and smallest stays under 20% of the
// average.
func uniformAmounts(txs []*domain.Transaction) bool {
	if len(txs) < 2 {
		return false
	}
	min, max := txs[0].Amount, txs[0].Amount
	for _, tx := range txs[1:] {
		if tx.Amount.LessThan(min) {
			min = tx.Amount
		}
		if tx.Amount.GreaterThan(max) {
			max = tx.Amount
		}
	}
	average := sumAmounts(txs).Div(decimal.NewFromInt(int64(len(txs))))
	return max.Sub(min).LessThan(average.Mul(decimal.NewFromFloat(0.2)))
}
