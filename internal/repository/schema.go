package repository

// Schema definitions for the FinGuard database.
// Compatible with both SQLite and PostgreSQL.

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    declared_income REAL NOT NULL,
    kyc_status TEXT NOT NULL,
    account_opening_date TIMESTAMP NOT NULL,
    linked_accounts INTEGER,
    risk_score REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_risk ON customers(risk_score);
CREATE INDEX IF NOT EXISTS idx_customers_kyc ON customers(kyc_status);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL REFERENCES customers(id),
    amount REAL NOT NULL,
    currency TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    beneficiary TEXT NOT NULL DEFAULT '',
    beneficiary_type TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    is_suspicious INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_beneficiary ON transactions(beneficiary);
`

// schemaReports stores each report as JSON next to the columns used for
// lookups.
const schemaReports = `
CREATE TABLE IF NOT EXISTS risk_reports (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    assessment_date TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_reports_customer ON risk_reports(customer_id, assessment_date);
CREATE INDEX IF NOT EXISTS idx_risk_reports_level ON risk_reports(risk_level);
`

const schemaNetworks = `
CREATE TABLE IF NOT EXISTS smurf_networks (
    id TEXT PRIMARY KEY,
    risk_score REAL NOT NULL,
    has_structuring INTEGER NOT NULL DEFAULT 0,
    detected_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_smurf_networks_detected ON smurf_networks(detected_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL DEFAULT '',
    network_id TEXT NOT NULL DEFAULT '',
    report_id TEXT NOT NULL DEFAULT '',
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT NOT NULL,
    risk_score REAL NOT NULL,
    triggered_rules TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'OPEN',
    assigned_to TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_status_risk ON alerts(status, risk_score);
CREATE INDEX IF NOT EXISTS idx_alerts_customer ON alerts(customer_id);
CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(alert_type);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCustomers,
		schemaTransactions,
		schemaReports,
		schemaNetworks,
		schemaAlerts,
	}
}
