// Package monitor orchestrates the detection pipeline: it assembles
// evaluation context, runs the rule engine, and hands hits to the
// alert generator.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

// ContextBuilder assembles the evaluation context for a transaction
// from the reference data store.
type ContextBuilder struct {
	repo        domain.Repository
	historyDays int
}

// NewContextBuilder creates a context builder with the given lookback.
func NewContextBuilder(repo domain.Repository, historyDays int) *ContextBuilder {
	if historyDays <= 0 {
		historyDays = 210
	}
	return &ContextBuilder{repo: repo, historyDays: historyDays}
}

// Build loads the account, customer, and account history for a
// transaction. Missing reference data degrades to a nil account or
// customer; rules that need them simply do not trigger.
func (b *ContextBuilder) Build(ctx context.Context, tx *domain.Transaction) (*domain.EvalContext, error) {
	asOf := tx.Timestamp
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	ec := &domain.EvalContext{AsOf: asOf}

	acct, err := b.repo.GetAccount(ctx, tx.AccountNumber)
	switch {
	case err == nil:
		ec.Account = acct
	case errors.Is(err, repository.ErrNotFound):
		slog.Warn("account not found for transaction, evaluating without account context",
			"account", tx.AccountNumber, "tx_id", tx.ID)
	default:
		return nil, fmt.Errorf("failed to load account %s: %w", tx.AccountNumber, err)
	}

	if ec.Account != nil && ec.Account.CustomerID != "" {
		cust, err := b.repo.GetCustomer(ctx, ec.Account.CustomerID)
		switch {
		case err == nil:
			ec.Customer = cust
		case errors.Is(err, repository.ErrNotFound):
			slog.Warn("customer not found for account",
				"customer_id", ec.Account.CustomerID, "account", tx.AccountNumber)
		default:
			return nil, fmt.Errorf("failed to load customer %s: %w", ec.Account.CustomerID, err)
		}
	}

	from := asOf.AddDate(0, 0, -b.historyDays)
	history, err := b.repo.GetAccountHistory(ctx, tx.AccountNumber, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load account history: %w", err)
	}
	ec.History = history

	return ec, nil
}
