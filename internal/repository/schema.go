package repository

// Schema definitions for the AMLGuard database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    from_account_id TEXT,
    to_account_id TEXT,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    description TEXT,
    location TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    risk_score REAL,
    ml_prediction TEXT,
    rules_hit TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    processed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_from_account ON transactions(from_account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    risk_score REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_transaction ON alerts(transaction_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, created_at);
`

// AllSchemas returns every schema statement in migration order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAlerts,
	}
}
