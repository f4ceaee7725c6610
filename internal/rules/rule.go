// Package rules provides the detection rule implementations and the
// evaluation engine that runs them against transactions.
package rules

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Rule is a single detection check. Implementations are pure: they read
// the transaction and its evaluation context, decide whether the pattern
// is present, and report structured evidence. They never persist state
// and never compute a final score.
type Rule interface {
	// Info identifies the rule and the transaction type group it is
	// scoped to.
	Info() domain.RuleInfo

	// Config returns the live configuration backing the rule.
	Config() *domain.RuleConfig

	// Evaluate reports whether the rule triggers for the transaction,
	// with supporting details. An error marks an evaluation fault; the
	// engine logs and skips the rule, it never aborts the transaction.
	Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error)
}

// base carries the config plumbing shared by all builtin rules.
type base struct {
	cfg *domain.RuleConfig
}

func (b *base) Info() domain.RuleInfo {
	return domain.RuleInfo{
		ID:        b.cfg.ID,
		Name:      b.cfg.Name,
		Family:    b.cfg.Family,
		TypeGroup: b.cfg.TypeGroup,
	}
}

func (b *base) Config() *domain.RuleConfig { return b.cfg }

// paramInt reads an integer parameter. A malformed value falls back to the
// default with a warning; a missing value falls back silently.
func paramInt(cfg *domain.RuleConfig, key string, def int) int {
	if _, present := cfg.Parameters[key]; !present {
		return def
	}
	v, ok := cfg.Parameters.IntOk(key)
	if !ok {
		slog.Warn("malformed rule parameter, using default",
			"rule_id", cfg.ID, "param", key, "default", def)
		return def
	}
	return v
}

// paramDecimal reads a fixed-point parameter with the same fallback rules.
func paramDecimal(cfg *domain.RuleConfig, key string, def decimal.Decimal) decimal.Decimal {
	if _, present := cfg.Parameters[key]; !present {
		return def
	}
	v, ok := cfg.Parameters.DecimalOk(key)
	if !ok {
		slog.Warn("malformed rule parameter, using default",
			"rule_id", cfg.ID, "param", key, "default", def)
		return def
	}
	return v
}
