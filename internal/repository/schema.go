package repository

// Schema definitions for the Kestrel dataset store.
// Compatible with both SQLite and PostgreSQL.

const schemaRuleDefinitions = `
CREATE TABLE IF NOT EXISTS rule_definitions (
    rule_id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    action TEXT,
    severity TEXT NOT NULL,
    imported_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_definitions_position ON rule_definitions(position);
`

// raw_transactions keeps each feed record verbatim so the normalizer sees
// exactly what the original feed contained.
const schemaRawTransactions = `
CREATE TABLE IF NOT EXISTS raw_transactions (
    position INTEGER PRIMARY KEY,
    record TEXT NOT NULL,
    imported_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuleDefinitions,
		schemaRawTransactions,
	}
}
