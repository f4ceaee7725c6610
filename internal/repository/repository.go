// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateAlert = errors.New("open alert already exists")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const txColumns = `id, account_number, type_code, amount, currency,
	counterparty_account, counterparty_country, origin_country,
	destination_country, channel, reference, timestamp, created_at,
	processed, metadata`

// SaveTransaction stores a transaction. Re-saving an existing ID is a
// no-op so ingestion stays idempotent.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction ID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (` + txColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.AccountNumber, tx.TypeCode,
		tx.Amount.String(), tx.Currency,
		tx.CounterpartyAccount, tx.CounterpartyCountry,
		tx.OriginCountry, tx.DestinationCountry,
		tx.Channel, tx.Reference,
		tx.Timestamp, tx.CreatedAt,
		boolInt(tx.Processed), string(metadata),
	)
	return err
}

func (r *SQLRepository) scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var processed int
	var metadata, counterAcct, counterCountry, origin, dest, channel, ref sql.NullString

	err := row.Scan(
		&tx.ID, &tx.AccountNumber, &tx.TypeCode,
		&tx.Amount, &tx.Currency,
		&counterAcct, &counterCountry, &origin, &dest,
		&channel, &ref, &tx.Timestamp, &tx.CreatedAt,
		&processed, &metadata,
	)
	if err != nil {
		return nil, err
	}

	tx.CounterpartyAccount = counterAcct.String
	tx.CounterpartyCountry = counterCountry.String
	tx.OriginCountry = origin.String
	tx.DestinationCountry = dest.String
	tx.Channel = channel.String
	tx.Reference = ref.String
	tx.Processed = processed == 1
	if metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &tx.Metadata)
	}
	return &tx, nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = ?`

	tx, err := r.scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListUnprocessed returns unprocessed transactions oldest first, so a
// batch replays them in booking order.
func (r *SQLRepository) ListUnprocessed(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE processed = 0
		ORDER BY timestamp ASC
		LIMIT ?
	`
	return r.queryTransactions(ctx, query, limit)
}

// MarkProcessed flips the processed flag only when still unset.
func (r *SQLRepository) MarkProcessed(ctx context.Context, txID string) error {
	query := `UPDATE transactions SET processed = 1 WHERE id = ? AND processed = 0`
	_, err := r.db.ExecContext(ctx, r.rebind(query), txID)
	return err
}

// GetAccountHistory returns transactions for an account with timestamps
// in [from, to), newest first.
func (r *SQLRepository) GetAccountHistory(ctx context.Context, accountNumber string, from, to time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE account_number = ?
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp DESC
	`
	return r.queryTransactions(ctx, query, accountNumber, from, to)
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// SaveAccount upserts an account.
func (r *SQLRepository) SaveAccount(ctx context.Context, acct *domain.Account) error {
	if acct.Number == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO accounts (
			number, customer_id, currency, status, dormant_since,
			opened_at, last_activity_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			customer_id = excluded.customer_id,
			currency = excluded.currency,
			status = excluded.status,
			dormant_since = excluded.dormant_since,
			opened_at = excluded.opened_at,
			last_activity_at = excluded.last_activity_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		acct.Number, acct.CustomerID, acct.Currency, acct.Status,
		nullTime(acct.DormantSince), acct.OpenedAt,
		nullTime(acct.LastActivityAt), now, now,
	)
	return err
}

// GetAccount retrieves an account by number.
func (r *SQLRepository) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	query := `
		SELECT number, customer_id, currency, status, dormant_since,
		       opened_at, last_activity_at, created_at, updated_at
		FROM accounts WHERE number = ?
	`

	var acct domain.Account
	var currency sql.NullString
	var dormantSince, lastActivity sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), number).Scan(
		&acct.Number, &acct.CustomerID, &currency, &acct.Status,
		&dormantSince, &acct.OpenedAt, &lastActivity,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	acct.Currency = currency.String
	if dormantSince.Valid {
		acct.DormantSince = &dormantSince.Time
	}
	if lastActivity.Valid {
		acct.LastActivityAt = &lastActivity.Time
	}
	return &acct, nil
}

// SaveCustomer upserts a customer.
func (r *SQLRepository) SaveCustomer(ctx context.Context, cust *domain.Customer) error {
	if cust.ID == "" {
		return fmt.Errorf("%w: customer ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO customers (
			id, name, type, country_of_residence, risk_rating,
			incorporated_at, shell_company, non_profit, pep,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			country_of_residence = excluded.country_of_residence,
			risk_rating = excluded.risk_rating,
			incorporated_at = excluded.incorporated_at,
			shell_company = excluded.shell_company,
			non_profit = excluded.non_profit,
			pep = excluded.pep,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cust.ID, cust.Name, cust.Type, cust.CountryOfResidence,
		cust.RiskRating, nullTime(cust.IncorporatedAt),
		boolInt(cust.ShellCompany), boolInt(cust.NonProfit), boolInt(cust.PEP),
		now, now,
	)
	return err
}

// GetCustomer retrieves a customer by ID.
func (r *SQLRepository) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	query := `
		SELECT id, name, type, country_of_residence, risk_rating,
		       incorporated_at, shell_company, non_profit, pep,
		       created_at, updated_at
		FROM customers WHERE id = ?
	`

	var cust domain.Customer
	var country sql.NullString
	var incorporated sql.NullTime
	var shell, nonProfit, pep int

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&cust.ID, &cust.Name, &cust.Type, &country, &cust.RiskRating,
		&incorporated, &shell, &nonProfit, &pep,
		&cust.CreatedAt, &cust.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cust.CountryOfResidence = country.String
	if incorporated.Valid {
		cust.IncorporatedAt = &incorporated.Time
	}
	cust.ShellCompany = shell == 1
	cust.NonProfit = nonProfit == 1
	cust.PEP = pep == 1
	return &cust, nil
}

// SaveRuleConfig upserts a rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	params, _ := json.Marshal(rule.Parameters)
	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, family, type_group, parameters,
			expression, min_score, weight, enabled, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			family = excluded.family,
			type_group = excluded.type_group,
			parameters = excluded.parameters,
			expression = excluded.expression,
			min_score = excluded.min_score,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Family, rule.TypeGroup,
		string(params), rule.Expression, rule.MinScore, rule.Weight,
		boolInt(rule.Enabled), now,
	)
	return err
}

func scanRuleConfig(row interface{ Scan(...any) error }) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var params string
	var description, expression sql.NullString
	var enabled int

	err := row.Scan(
		&cfg.ID, &cfg.Name, &description, &cfg.Family, &cfg.TypeGroup,
		&params, &expression, &cfg.MinScore, &cfg.Weight, &enabled,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Description = description.String
	cfg.Expression = expression.String
	cfg.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(params), &cfg.Parameters); err != nil {
		return nil, fmt.Errorf("failed to parse parameters for rule %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

const ruleConfigColumns = `id, name, description, family, type_group,
	parameters, expression, min_score, weight, enabled, updated_at`

// GetRuleConfig retrieves a rule configuration by ID.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `SELECT ` + ruleConfigColumns + ` FROM rule_configs WHERE id = ?`

	cfg, err := scanRuleConfig(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListRuleConfigs retrieves all rule configurations ordered by ID.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `SELECT ` + ruleConfigColumns + ` FROM rule_configs ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRuleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteRuleConfig removes a rule configuration.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, ruleID string) error {
	query := `DELETE FROM rule_configs WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), ruleID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveScoringThreshold upserts a scoring threshold.
func (r *SQLRepository) SaveScoringThreshold(ctx context.Context, th *domain.ScoringThreshold) error {
	if th.ID == "" {
		return fmt.Errorf("%w: threshold ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO scoring_thresholds (id, factor, value, score, weight, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			factor = excluded.factor,
			value = excluded.value,
			score = excluded.score,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		th.ID, th.Factor, th.Value.String(), th.Score, th.Weight,
		boolInt(th.Enabled), now,
	)
	return err
}

// ListScoringThresholds retrieves thresholds, optionally filtered by
// factor. An empty factor returns all.
func (r *SQLRepository) ListScoringThresholds(ctx context.Context, factor string) ([]*domain.ScoringThreshold, error) {
	query := `
		SELECT id, factor, value, score, weight, enabled, updated_at
		FROM scoring_thresholds
	`
	var args []any
	if factor != "" {
		query += ` WHERE factor = ?`
		args = append(args, factor)
	}
	query += ` ORDER BY factor, value`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []*domain.ScoringThreshold
	for rows.Next() {
		var th domain.ScoringThreshold
		var enabled int
		if err := rows.Scan(&th.ID, &th.Factor, &th.Value, &th.Score,
			&th.Weight, &enabled, &th.UpdatedAt); err != nil {
			return nil, err
		}
		th.Enabled = enabled == 1
		thresholds = append(thresholds, &th)
	}
	return thresholds, rows.Err()
}

const alertColumns = `id, rule_id, rule_name, account_number, customer_id,
	tx_id, score, risk_level, status, narrative, details, assigned_to,
	created_at, updated_at`

// SaveAlert upserts an alert. Inserting a second open alert for the
// same account/rule pair returns ErrDuplicateAlert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("%w: alert ID is required", ErrInvalidInput)
	}

	details, _ := json.Marshal(alert.Details)

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assigned_to = excluded.assigned_to,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.RuleID, alert.RuleName, alert.AccountNumber,
		alert.CustomerID, alert.TxID, alert.Score, alert.RiskLevel,
		alert.Status, alert.Narrative, string(details), alert.AssignedTo,
		alert.CreatedAt, alert.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s rule %s", ErrDuplicateAlert, alert.AccountNumber, alert.RuleID)
	}
	return err
}

func scanAlert(row interface{ Scan(...any) error }) (*domain.Alert, error) {
	var alert domain.Alert
	var customerID, details, assignedTo sql.NullString

	err := row.Scan(
		&alert.ID, &alert.RuleID, &alert.RuleName, &alert.AccountNumber,
		&customerID, &alert.TxID, &alert.Score, &alert.RiskLevel,
		&alert.Status, &alert.Narrative, &details, &assignedTo,
		&alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	alert.CustomerID = customerID.String
	alert.AssignedTo = assignedTo.String
	if details.String != "" {
		json.Unmarshal([]byte(details.String), &alert.Details)
	}
	return &alert, nil
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// GetOpenAlert returns the open alert for an account/rule pair.
func (r *SQLRepository) GetOpenAlert(ctx context.Context, accountNumber, ruleID string) (*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE account_number = ? AND rule_id = ? AND status IN ('NEW', 'ASSIGNED')
		LIMIT 1
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), accountNumber, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlertsByAccount returns alerts for an account, newest first.
func (r *SQLRepository) ListAlertsByAccount(ctx context.Context, accountNumber string) ([]*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE account_number = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// CountAlertsByAccount returns the total number of alerts ever raised
// for an account, regardless of status.
func (r *SQLRepository) CountAlertsByAccount(ctx context.Context, accountNumber string) (int, error) {
	query := `SELECT COUNT(*) FROM alerts WHERE account_number = ?`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountNumber).Scan(&count)
	return count, err
}

// SaveCase stores a case record.
func (r *SQLRepository) SaveCase(ctx context.Context, c *domain.Case) error {
	if c.Reference == "" {
		return fmt.Errorf("%w: case reference is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO cases (
			reference, alert_id, account_number, customer_id,
			activity_type, window_start, window_end, total_amount,
			currency, summary, status, opened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.Reference, c.AlertID, c.AccountNumber, c.CustomerID,
		c.ActivityType, c.WindowStart, c.WindowEnd,
		c.TotalAmount.String(), c.Currency, c.Summary, c.Status,
		c.OpenedAt,
	)
	return err
}

// GetCase retrieves a case by reference.
func (r *SQLRepository) GetCase(ctx context.Context, reference string) (*domain.Case, error) {
	query := `
		SELECT reference, alert_id, account_number, customer_id,
		       activity_type, window_start, window_end, total_amount,
		       currency, summary, status, opened_at
		FROM cases WHERE reference = ?
	`

	var c domain.Case
	var customerID sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), reference).Scan(
		&c.Reference, &c.AlertID, &c.AccountNumber, &customerID,
		&c.ActivityType, &c.WindowStart, &c.WindowEnd, &c.TotalAmount,
		&c.Currency, &c.Summary, &c.Status, &c.OpenedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CustomerID = customerID.String
	return &c, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// isUniqueViolation detects unique index conflicts for both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
