// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*Transaction, error)
	// MarkProcessed flips the processed flag only if still unset, so a
	// replayed transaction is marked at most once.
	MarkProcessed(ctx context.Context, txID string) error
	// GetAccountHistory returns transactions for an account with
	// timestamps in [from, to), newest first.
	GetAccountHistory(ctx context.Context, accountNumber string, from, to time.Time) ([]*Transaction, error)

	// Reference data
	SaveAccount(ctx context.Context, acct *Account) error
	GetAccount(ctx context.Context, number string) (*Account, error)
	SaveCustomer(ctx context.Context, cust *Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, ruleID string) error

	// Scoring threshold operations
	SaveScoringThreshold(ctx context.Context, th *ScoringThreshold) error
	ListScoringThresholds(ctx context.Context, factor string) ([]*ScoringThreshold, error)

	// Alerts and cases
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	// GetOpenAlert returns the open (NEW or ASSIGNED) alert for the
	// account/rule pair, or ErrNotFound.
	GetOpenAlert(ctx context.Context, accountNumber, ruleID string) (*Alert, error)
	ListAlertsByAccount(ctx context.Context, accountNumber string) ([]*Alert, error)
	CountAlertsByAccount(ctx context.Context, accountNumber string) (int, error)
	SaveCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, reference string) (*Case, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
