package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL. Monetary amounts are
// stored as TEXT and handled as fixed-point decimals in Go.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_number TEXT NOT NULL,
    type_code TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    counterparty_account TEXT,
    counterparty_country TEXT,
    origin_country TEXT,
    destination_country TEXT,
    channel TEXT,
    reference TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_ts ON transactions(account_number, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_processed ON transactions(processed, timestamp);
`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    number TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    currency TEXT,
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    dormant_since TIMESTAMP,
    opened_at TIMESTAMP NOT NULL,
    last_activity_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    country_of_residence TEXT,
    risk_rating TEXT NOT NULL DEFAULT 'LOW',
    incorporated_at TIMESTAMP,
    shell_company INTEGER NOT NULL DEFAULT 0,
    non_profit INTEGER NOT NULL DEFAULT 0,
    pep INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    family TEXT NOT NULL,
    type_group TEXT NOT NULL DEFAULT 'ALL-ALL',
    parameters TEXT NOT NULL,
    expression TEXT,
    min_score INTEGER NOT NULL DEFAULT 0,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

const schemaScoringThresholds = `
CREATE TABLE IF NOT EXISTS scoring_thresholds (
    id TEXT PRIMARY KEY,
    factor TEXT NOT NULL,
    value TEXT NOT NULL,
    score INTEGER NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_thresholds_factor ON scoring_thresholds(factor, enabled);
`

// The partial unique index enforces at-most-one-open-alert per
// account/rule pair even across processes.
const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    rule_id TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    account_number TEXT NOT NULL,
    customer_id TEXT,
    tx_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'NEW',
    narrative TEXT NOT NULL,
    details TEXT,
    assigned_to TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_account ON alerts(account_number, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_dedupe
    ON alerts(account_number, rule_id)
    WHERE status IN ('NEW', 'ASSIGNED');
`

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    reference TEXT PRIMARY KEY,
    alert_id TEXT NOT NULL,
    account_number TEXT NOT NULL,
    customer_id TEXT,
    activity_type TEXT NOT NULL,
    window_start TIMESTAMP NOT NULL,
    window_end TIMESTAMP NOT NULL,
    total_amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    summary TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN',
    opened_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_account ON cases(account_number);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAccounts,
		schemaCustomers,
		schemaRuleConfigs,
		schemaScoringThresholds,
		schemaAlerts,
		schemaCases,
	}
}
