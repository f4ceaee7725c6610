package rules

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// RapidMovementRule detects funds leaving an account shortly after
// arriving: an outbound transfer moving a high percentage of the recent
// inflow within the configured window.
type RapidMovementRule struct {
	base
	types *txtype.Registry

	percentage  decimal.Decimal // outbound as a share of inflow, 0-100
	windowHours int
}

// NewRapidMovementRule builds the rule from its configuration.
func NewRapidMovementRule(cfg *domain.RuleConfig, types *txtype.Registry) *RapidMovementRule {
	return &RapidMovementRule{
		base:        base{cfg: cfg},
		types:       types,
		percentage:  paramDecimal(cfg, "percentage", decimal.NewFromInt(75)),
		windowHours: paramInt(cfg, "window_hours", 24),
	}
}

func (r *RapidMovementRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	windowStart := ec.AsOf.Add(-time.Duration(r.windowHours) * time.Hour)
	window := inWindow(ec.History, windowStart, ec.AsOf)

	inflow := sumAmounts(filterDirection(r.types, domain.DirectionInbound, window))
	if !inflow.IsPositive() {
		return false, nil, nil
	}

	moved := tx.Amount.Div(inflow).Mul(decimal.NewFromInt(100))
	if moved.LessThan(r.percentage) {
		return false, nil, nil
	}

	details := domain.Details{
		"outbound_amount":  tx.Amount,
		"inflow_total":     inflow,
		"moved_percentage": moved.Round(2),
		"threshold_pct":    r.percentage,
		"window_hours":     r.windowHours,
		"window_start":     windowStart,
		"window_end":       ec.AsOf,
	}
	if count, dests, ok := r.splittingPattern(tx, ec, window); ok {
		details["splitting"] = true
		details["outgoing_count"] = count
		details["destination_count"] = dests
	}

	return true, details, nil
}

// splittingPattern looks for a single large antecedent deposit fanned
// out through several outgoing transactions to distinct destination
// accounts. The antecedent must dwarf the triggering transaction, and
// the fan-out needs at least two legs to at least two destinations.
func (r *RapidMovementRule) splittingPattern(tx *domain.Transaction, ec *domain.EvalContext, window []*domain.Transaction) (int, int, bool) {
	var largest *domain.Transaction
	for _, in := range filterDirection(r.types, domain.DirectionInbound, window) {
		if largest == nil || in.Amount.GreaterThan(largest.Amount) {
			largest = in
		}
	}
	if largest == nil || !largest.Amount.GreaterThan(tx.Amount.Mul(decimal.NewFromInt(2))) {
		return 0, 0, false
	}

	outgoing := r.outboundLegs(inWindow(ec.History, largest.Timestamp, ec.AsOf))
	outgoing = append(outgoing, tx)

	destinations := make(map[string]struct{})
	for _, out := range outgoing {
		if out.CounterpartyAccount != "" {
			destinations[out.CounterpartyAccount] = struct{}{}
		}
	}
	if len(outgoing) < 2 || len(destinations) < 2 {
		return 0, 0, false
	}
	return len(outgoing), len(destinations), true
}

// outboundLegs keeps transfers and outbound-direction codes; transfers
// carry no direction in the registry but are fan-out legs here.
func (r *RapidMovementRule) outboundLegs(txs []*domain.Transaction) []*domain.Transaction {
	var out []*domain.Transaction
	for _, t := range txs {
		if r.types.Matches(txtype.GroupTransfer, t.TypeCode) || r.types.Direction(t.TypeCode) == domain.DirectionOutbound {
			out = append(out, t)
		}
	}
	return out
}
