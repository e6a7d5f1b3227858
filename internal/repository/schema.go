package repository

// Schema definitions for the repayplan database.
// Compatible with both SQLite and PostgreSQL.

const schemaRulesDocuments = `
CREATE TABLE IF NOT EXISTS rules_documents (
    version TEXT PRIMARY KEY,
    document TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_documents_active ON rules_documents(active);
`

// schemaAssessments stores every engine run with its input for audit and replay.
const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    rules_version TEXT NOT NULL,
    consult_only INTEGER NOT NULL DEFAULT 0,
    monthly_repayment BIGINT NOT NULL DEFAULT 0,
    months INTEGER NOT NULL DEFAULT 0,
    input_hash TEXT NOT NULL,
    input TEXT,
    result TEXT NOT NULL,
    display TEXT NOT NULL,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_hash ON assessments(input_hash);
CREATE INDEX IF NOT EXISTS idx_assessments_version ON assessments(rules_version, consult_only);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRulesDocuments,
		schemaAssessments,
	}
}
