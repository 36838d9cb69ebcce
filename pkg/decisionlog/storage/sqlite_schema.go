package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the decision log schema.
// solved_at holds Unix nanoseconds in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL,
    version INTEGER NOT NULL,
    row_id TEXT,
    fallback BOOLEAN NOT NULL,
    request TEXT NOT NULL,
    request_hash TEXT NOT NULL,
    response TEXT,
    error TEXT,
    duration_us INTEGER NOT NULL,
    solved_at INTEGER NOT NULL,
    batch_id TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_slug ON decisions(slug);
CREATE INDEX IF NOT EXISTS idx_decisions_solved_at ON decisions(solved_at);
CREATE INDEX IF NOT EXISTS idx_decisions_row_id ON decisions(row_id);
CREATE INDEX IF NOT EXISTS idx_decisions_batch_id ON decisions(batch_id);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertDecision = `
INSERT INTO decisions (
    id, slug, version, row_id, fallback,
    request, request_hash, response, error,
    duration_us, solved_at, batch_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `id, slug, version, row_id, fallback, request, request_hash, response, error, duration_us, solved_at, batch_id`
