package repository

// Table definitions shared by SQLite and PostgreSQL.

const schemaStatements = `
CREATE TABLE IF NOT EXISTS statements (
    tenant_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    transactions TEXT NOT NULL,
    tx_count INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_statements_created ON statements(tenant_id, created_at);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    score INTEGER NOT NULL,
    recommendation TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metrics TEXT NOT NULL,
    scorecard TEXT NOT NULL,
    validation TEXT NOT NULL,
    alerts TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_fingerprint ON evaluations(tenant_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_evaluations_recommendation ON evaluations(tenant_id, recommendation);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(tenant_id, timestamp);
`

// schemaRedFlagRules holds per-tenant overrides of the built-in expense
// red-flag rules.
const schemaRedFlagRules = `
CREATE TABLE IF NOT EXISTS red_flag_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    points INTEGER NOT NULL,
    max_hits INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_red_flag_rules_tenant ON red_flag_rules(tenant_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaStatements,
		schemaEvaluations,
		schemaRedFlagRules,
	}
}
