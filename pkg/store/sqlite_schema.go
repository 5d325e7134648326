package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the config store schema.
const Schema = `
CREATE TABLE IF NOT EXISTS providers (
    name TEXT PRIMARY KEY,
    enabled BOOLEAN NOT NULL,
    priority INTEGER NOT NULL,
    weight REAL NOT NULL,
    cost_per_gb REAL NOT NULL,
    gateway_host TEXT NOT NULL,
    gateway_port INTEGER NOT NULL,
    geo_coverage TEXT NOT NULL,         -- JSON array
    sticky_support BOOLEAN NOT NULL,
    max_sticky_seconds INTEGER NOT NULL,
    max_concurrent INTEGER NOT NULL,
    url_template TEXT NOT NULL,
    url_template_preset TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS routing_rules (
    id TEXT PRIMARY KEY,
    domain_pattern TEXT NOT NULL,
    preferred_providers TEXT NOT NULL,  -- JSON array
    required_country TEXT NOT NULL,
    session_type TEXT NOT NULL,
    sticky_duration_seconds INTEGER NOT NULL,
    max_retries INTEGER NOT NULL,
    failover BOOLEAN NOT NULL,
    min_success_rate REAL NOT NULL,
    priority INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_routing_rules_priority ON routing_rules(priority);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the newest recorded schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`
