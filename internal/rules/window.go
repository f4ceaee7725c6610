package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

// inWindow returns the history transactions with timestamps in [from, to).
// History excludes the transaction under evaluation, so callers that need
// the triggering transaction counted add it explicitly, exactly once.
func inWindow(history []*domain.Transaction, from, to time.Time) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range history {
		if !tx.Timestamp.Before(from) && tx.Timestamp.Before(to) {
			out = append(out, tx)
		}
	}
	return out
}

// filterGroup keeps only transactions whose type code falls under group.
func filterGroup(reg *txtype.Registry, group string, txs []*domain.Transaction) []*domain.Transaction {
	if group == txtype.GroupAll || group == "" {
		return txs
	}
	var out []*domain.Transaction
	for _, tx := range txs {
		if reg.Matches(group, tx.TypeCode) {
			out = append(out, tx)
		}
	}
	return out
}

// filterDirection keeps only transactions flowing the given direction.
func filterDirection(reg *txtype.Registry, direction string, txs []*domain.Transaction) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range txs {
		if reg.Direction(tx.TypeCode) == direction {
			out = append(out, tx)
		}
	}
	return out
}

// sumAmounts totals transaction amounts as fixed-point.
func sumAmounts(txs []*domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// daysAgo anchors a lookback window to the evaluation instant.
func daysAgo(asOf time.Time, days int) time.Time {
	return asOf.AddDate(0, 0, -days)
}

// monthsAgo anchors a lookback window to the evaluation instant.
func monthsAgo(asOf time.Time, months int) time.Time {
	return asOf.AddDate(0, -months, 0)
}
