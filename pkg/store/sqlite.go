package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// SQLiteConfig contains configuration for the SQLite config store.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" opens a private
	// in-memory database.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait for locks.
	// Default: 5s
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "proxyrouter.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements ConfigStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens the database and creates the schema if needed.
func NewSQLiteStore(config SQLiteConfig) (*SQLiteStore, error) {
	defaults := DefaultSQLiteConfig()
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaults.MaxOpenConns
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = defaults.MaxIdleConns
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = defaults.BusyTimeout
	}
	if config.Path == ":memory:" {
		// every connection would get its own empty database
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "store.sqlite"),
		now:    time.Now,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("config store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return newStorageError("sqlite", "enable_wal", err)
		}
	}

	timeout := int(s.config.BusyTimeout / time.Millisecond)
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout)); err != nil {
		return newStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return newStorageError("sqlite", "create_schema", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return newStorageError("sqlite", "check_schema_version", err)
	}
	if version.Valid && version.Int64 > SchemaVersion {
		return newStorageError("sqlite", "check_schema_version",
			fmt.Errorf("database schema version %d is newer than supported version %d", version.Int64, SchemaVersion))
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return newStorageError("sqlite", "insert_schema_version", err)
	}
	return nil
}

const upsertProvider = `
INSERT INTO providers (
    name, enabled, priority, weight, cost_per_gb, gateway_host, gateway_port,
    geo_coverage, sticky_support, max_sticky_seconds, max_concurrent,
    url_template, url_template_preset, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    enabled = excluded.enabled,
    priority = excluded.priority,
    weight = excluded.weight,
    cost_per_gb = excluded.cost_per_gb,
    gateway_host = excluded.gateway_host,
    gateway_port = excluded.gateway_port,
    geo_coverage = excluded.geo_coverage,
    sticky_support = excluded.sticky_support,
    max_sticky_seconds = excluded.max_sticky_seconds,
    max_concurrent = excluded.max_concurrent,
    url_template = excluded.url_template,
    url_template_preset = excluded.url_template_preset,
    updated_at = excluded.updated_at
`

const upsertRule = `
INSERT INTO routing_rules (
    id, domain_pattern, preferred_providers, required_country, session_type,
    sticky_duration_seconds, max_retries, failover, min_success_rate, priority,
    updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    domain_pattern = excluded.domain_pattern,
    preferred_providers = excluded.preferred_providers,
    required_country = excluded.required_country,
    session_type = excluded.session_type,
    sticky_duration_seconds = excluded.sticky_duration_seconds,
    max_retries = excluded.max_retries,
    failover = excluded.failover,
    min_success_rate = excluded.min_success_rate,
    priority = excluded.priority,
    updated_at = excluded.updated_at
`

// SaveProvider upserts a provider by name.
func (s *SQLiteStore) SaveProvider(ctx context.Context, cfg providers.Config) error {
	geo, err := marshalList(cfg.GeoCoverage)
	if err != nil {
		return newStorageError("sqlite", "save_provider", err)
	}

	_, err = s.db.ExecContext(ctx, upsertProvider,
		cfg.Name, cfg.Enabled, cfg.Priority, cfg.Weight, cfg.CostPerGB,
		cfg.GatewayHost, cfg.GatewayPort, geo, cfg.StickySupport,
		cfg.MaxStickySeconds, cfg.MaxConcurrent, cfg.URLTemplate,
		cfg.URLTemplatePreset, s.now().UTC(),
	)
	if err != nil {
		return newStorageError("sqlite", "save_provider", err)
	}

	s.logger.Debug("provider saved", "provider", cfg.Name, "enabled", cfg.Enabled)
	return nil
}

// ListProviders returns providers sorted by name.
func (s *SQLiteStore) ListProviders(ctx context.Context) ([]providers.Config, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, enabled, priority, weight, cost_per_gb, gateway_host, gateway_port,
       geo_coverage, sticky_support, max_sticky_seconds, max_concurrent,
       url_template, url_template_preset, updated_at
FROM providers ORDER BY name`)
	if err != nil {
		return nil, newStorageError("sqlite", "list_providers", err)
	}
	defer rows.Close()

	var out []providers.Config
	for rows.Next() {
		var (
			cfg providers.Config
			geo string
		)
		if err := rows.Scan(
			&cfg.Name, &cfg.Enabled, &cfg.Priority, &cfg.Weight, &cfg.CostPerGB,
			&cfg.GatewayHost, &cfg.GatewayPort, &geo, &cfg.StickySupport,
			&cfg.MaxStickySeconds, &cfg.MaxConcurrent, &cfg.URLTemplate,
			&cfg.URLTemplatePreset, &cfg.UpdatedAt,
		); err != nil {
			return nil, newStorageError("sqlite", "list_providers", err)
		}
		if cfg.GeoCoverage, err = unmarshalList(geo); err != nil {
			return nil, newStorageError("sqlite", "list_providers",
				fmt.Errorf("provider %q geo_coverage: %w", cfg.Name, err))
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "list_providers", err)
	}
	return out, nil
}

// SaveRoutingRule upserts a rule by ID.
func (s *SQLiteStore) SaveRoutingRule(ctx context.Context, rule routing.Rule) error {
	preferred, err := marshalList(rule.PreferredProviders)
	if err != nil {
		return newStorageError("sqlite", "save_rule", err)
	}

	_, err = s.db.ExecContext(ctx, upsertRule,
		rule.ID, rule.DomainPattern, preferred, rule.RequiredCountry,
		string(rule.SessionType), rule.StickyDurationSeconds, rule.MaxRetries,
		rule.Failover, rule.MinSuccessRate, rule.Priority, s.now().UTC(),
	)
	if err != nil {
		return newStorageError("sqlite", "save_rule", err)
	}

	s.logger.Debug("routing rule saved", "rule_id", rule.ID, "pattern", rule.DomainPattern)
	return nil
}

// ListRoutingRules returns rules sorted by ID.
func (s *SQLiteStore) ListRoutingRules(ctx context.Context) ([]routing.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, domain_pattern, preferred_providers, required_country, session_type,
       sticky_duration_seconds, max_retries, failover, min_success_rate, priority
FROM routing_rules ORDER BY id`)
	if err != nil {
		return nil, newStorageError("sqlite", "list_rules", err)
	}
	defer rows.Close()

	var out []routing.Rule
	for rows.Next() {
		var (
			r           routing.Rule
			preferred   string
			sessionType string
		)
		if err := rows.Scan(
			&r.ID, &r.DomainPattern, &preferred, &r.RequiredCountry, &sessionType,
			&r.StickyDurationSeconds, &r.MaxRetries, &r.Failover,
			&r.MinSuccessRate, &r.Priority,
		); err != nil {
			return nil, newStorageError("sqlite", "list_rules", err)
		}
		r.SessionType = providers.SessionType(sessionType)
		if r.PreferredProviders, err = unmarshalList(preferred); err != nil {
			return nil, newStorageError("sqlite", "list_rules",
				fmt.Errorf("rule %q preferred_providers: %w", r.ID, err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "list_rules", err)
	}
	return out, nil
}

// DeleteRoutingRule removes a rule. Unknown IDs return ErrNotFound.
func (s *SQLiteStore) DeleteRoutingRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return newStorageError("sqlite", "delete_rule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return newStorageError("sqlite", "delete_rule", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("routing rule deleted", "rule_id", id)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return newStorageError("sqlite", "close", err)
	}
	return nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalList(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}
