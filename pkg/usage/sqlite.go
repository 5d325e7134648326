package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger stores usage records in a SQLite database.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLiteLedger opens (or creates) the ledger at path and applies
// pending schema migrations.
func OpenSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage ledger %s: %w", path, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	if err := migrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	l := &SQLiteLedger{
		db:     db,
		logger: slog.Default().With("component", "usage.sqlite"),
		now:    time.Now,
	}
	l.logger.Info("usage ledger opened", "path", path, "schema_version", schemaVersion)
	return l, nil
}

// AppendUsageRecord inserts rec.
func (l *SQLiteLedger) AppendUsageRecord(ctx context.Context, rec Record) error {
	rec = prepare(rec, l.now)

	_, err := l.db.ExecContext(ctx, `
INSERT INTO usage_records (
	id, session_id, node_id, workflow_id, provider, bytes_transferred, cost,
	attempt, status_code, success, target_host, created_at_ns
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.NodeID, rec.WorkflowID, rec.Provider,
		rec.BytesTransferred, rec.Cost, rec.Attempt, rec.StatusCode,
		boolToInt(rec.Success), rec.TargetHost, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

// Query returns matching records, newest first.
func (l *SQLiteLedger) Query(ctx context.Context, f Filter) ([]Record, error) {
	where, args := whereClause(f)
	q := `
SELECT id, session_id, node_id, workflow_id, provider, bytes_transferred, cost,
       attempt, status_code, success, target_host, created_at_ns
FROM usage_records` + where + ` ORDER BY created_at_ns DESC, id`
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			success   int
			createdNs int64
		)
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.NodeID, &r.WorkflowID, &r.Provider,
			&r.BytesTransferred, &r.Cost, &r.Attempt, &r.StatusCode,
			&success, &r.TargetHost, &createdNs,
		); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.Success = success != 0
		r.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	return out, nil
}

// Summarize aggregates matching records by provider.
func (l *SQLiteLedger) Summarize(ctx context.Context, f Filter) (Summary, error) {
	where, args := whereClause(f)
	rows, err := l.db.QueryContext(ctx, `
SELECT provider, COUNT(*), COALESCE(SUM(success), 0),
       COALESCE(SUM(bytes_transferred), 0), COALESCE(SUM(cost), 0)
FROM usage_records`+where+` GROUP BY provider`, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize usage: %w", err)
	}
	defer rows.Close()

	var out []ProviderUsage
	for rows.Next() {
		var pu ProviderUsage
		if err := rows.Scan(&pu.Provider, &pu.Requests, &pu.Successes, &pu.Bytes, &pu.Cost); err != nil {
			return Summary{}, fmt.Errorf("scan usage summary: %w", err)
		}
		out = append(out, pu)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("summarize usage: %w", err)
	}
	return summarize(out), nil
}

// SpentSince returns the total cost of records created at or after t.
func (l *SQLiteLedger) SpentSince(ctx context.Context, t time.Time) (float64, error) {
	s, err := l.Summarize(ctx, Filter{Since: t})
	if err != nil {
		return 0, err
	}
	return s.TotalCost, nil
}

// DeleteBefore removes records created before t.
func (l *SQLiteLedger) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM usage_records WHERE created_at_ns < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete usage records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete usage records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.WorkflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, f.WorkflowID)
	}
	if f.Provider != "" {
		conds = append(conds, "provider = ?")
		args = append(args, f.Provider)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at_ns >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at_ns < ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
