package rules

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ExpressionRule is a deployment-defined rule compiled from a CEL
// expression. Expressions see the transaction and a digest of its
// context and must evaluate to a boolean.
type ExpressionRule struct {
	base
	program cel.Program
}

// NewCELEnv creates the CEL environment shared by all expression rules.
func NewCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("type_code", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("counterparty_country", cel.StringType),
		cel.Variable("origin_country", cel.StringType),
		cel.Variable("destination_country", cel.StringType),
		cel.Variable("account_age_days", cel.IntType),
		cel.Variable("inactive_days", cel.IntType),
		cel.Variable("history_count", cel.IntType),
		cel.Variable("history_total", cel.DoubleType),
		cel.Variable("customer_risk", cel.StringType),
		cel.Variable("customer_type", cel.StringType),
		cel.Variable("pep", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewExpressionRule compiles the configured expression against the
// shared environment. Compilation failures surface at registration time
// so a bad expression never reaches the hot path.
func NewExpressionRule(cfg *domain.RuleConfig, env *cel.Env) (*ExpressionRule, error) {
	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}
	return &ExpressionRule{
		base:    base{cfg: cfg},
		program: program,
	}, nil
}

func (r *ExpressionRule) Evaluate(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext) (bool, domain.Details, error) {
	amount, _ := tx.Amount.Float64()
	historyTotal, _ := sumAmounts(ec.History).Float64()

	activation := map[string]any{
		"amount":               amount,
		"currency":             tx.Currency,
		"type_code":            tx.TypeCode,
		"channel":              tx.Channel,
		"counterparty_country": tx.CounterpartyCountry,
		"origin_country":       tx.OriginCountry,
		"destination_country":  tx.DestinationCountry,
		"account_age_days":     0,
		"inactive_days":        0,
		"history_count":        len(ec.History),
		"history_total":        historyTotal,
		"customer_risk":        "",
		"customer_type":        "",
		"pep":                  false,
	}
	if ec.Account != nil {
		activation["account_age_days"] = ec.Account.AgeDays(ec.AsOf)
		activation["inactive_days"] = ec.Account.InactiveDays(ec.AsOf)
	}
	if ec.Customer != nil {
		activation["customer_risk"] = ec.Customer.RiskRating
		activation["customer_type"] = ec.Customer.Type
		activation["pep"] = ec.Customer.PEP
	}

	out, _, err := r.program.Eval(activation)
	if err != nil {
		return false, nil, fmt.Errorf("expression evaluation failed: %w", err)
	}
	triggered, ok := out.(types.Bool)
	if !ok {
		return false, nil, fmt.Errorf("expression returned non-bool value")
	}
	if !bool(triggered) {
		return false, nil, nil
	}

	return true, domain.Details{
		"amount":     tx.Amount,
		"expression": r.cfg.Expression,
	}, nil
}
