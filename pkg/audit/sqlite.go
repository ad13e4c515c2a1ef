package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists audit events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing database handle and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureAuditSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single event.
func (s *SQLiteStore) Record(ctx context.Context, event Event) error {
	at := event.At
	if !at.IsZero() {
		at = at.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_invocations (
			call_id, tool, arguments, outcome, detail, duration_ms, at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.CallID,
		event.Tool,
		event.Arguments,
		event.Outcome,
		event.Detail,
		event.Duration.Milliseconds(),
		at,
	)
	return err
}

// List returns events matching the filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT call_id, tool, arguments, outcome, detail, duration_ms, at
		FROM tool_invocations
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.Tool != "" {
		addFilter("tool = ?", filter.Tool)
	}
	if filter.Outcome != "" {
		addFilter("outcome = ?", filter.Outcome)
	}
	if !filter.Since.IsZero() {
		addFilter("at >= ?", filter.Since.UTC())
	}
	query += where + " ORDER BY at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			durationMs int64
			at         sql.NullTime
		)
		if err := rows.Scan(
			&event.CallID,
			&event.Tool,
			&event.Arguments,
			&event.Outcome,
			&event.Detail,
			&durationMs,
			&at,
		); err != nil {
			return nil, err
		}
		event.Duration = time.Duration(durationMs) * time.Millisecond
		if at.Valid {
			event.At = at.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ensureAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id TEXT NOT NULL,
			tool TEXT NOT NULL,
			arguments TEXT,
			outcome TEXT NOT NULL,
			detail TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tool_invocations_tool ON tool_invocations(tool);
		CREATE INDEX IF NOT EXISTS idx_tool_invocations_outcome ON tool_invocations(outcome);
		CREATE INDEX IF NOT EXISTS idx_tool_invocations_at ON tool_invocations(at);
	`)
	return err
}
