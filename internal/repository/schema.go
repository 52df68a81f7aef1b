package store

import (
	"context"
	"fmt"
)

// schema is applied in order on every open. Each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		metadata   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		run_id     TEXT,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		metadata   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id     TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		agent_id   TEXT NOT NULL,
		status     TEXT NOT NULL,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at   DATETIME,
		error      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		run_id   TEXT NOT NULL REFERENCES runs(run_id),
		ts       INTEGER NOT NULL,
		type     TEXT NOT NULL,
		payload  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
		tool_call_id TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL REFERENCES runs(run_id),
		tool_name    TEXT NOT NULL,
		status       TEXT NOT NULL,
		args         TEXT,
		result       TEXT,
		error        TEXT,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_calls_run ON tool_calls(run_id)`,
}

func (s *SQLiteStore) applySchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return tx.Commit()
}
