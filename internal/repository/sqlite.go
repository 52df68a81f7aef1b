package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/dalia/internal/domain"
)

const (
	messageColumns  = `message_id, session_id, run_id, role, content, created_at, metadata`
	runColumns      = `run_id, session_id, agent_id, status, started_at, ended_at, error`
	eventColumns    = `event_id, run_id, ts, type, payload`
	toolCallColumns = `tool_call_id, run_id, tool_name, status, args, result, error, created_at, completed_at`
)

// SQLiteStore persists the chat transcript and the run audit trail in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and brings the schema up to date.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemoryDSN(dsn) {
		// every pooled connection to :memory: would see its own empty database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLiteStore{db: db}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// --- sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at, metadata) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.CreatedAt, optionalJSON(session.Metadata))
	return err
}

// GetSession returns (nil, nil) when the conversation has never been stored.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var (
		out      domain.Session
		metadata sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at, metadata FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&out.SessionID, &out.UserID, &out.CreatedAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Metadata = rawJSON(metadata)
	return &out, nil
}

// GetOrCreateSession is safe to call from concurrent turns on a fresh id.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	existing, err := s.GetSession(ctx, sessionID)
	if err != nil || existing != nil {
		return existing, err
	}

	created := &domain.Session{SessionID: sessionID, UserID: userID, CreatedAt: time.Now()}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`,
		created.SessionID, created.UserID, created.CreatedAt,
	); err != nil {
		return nil, err
	}
	return created, nil
}

// --- messages ---

func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, optionalText(message.RunID), message.Role,
		message.Content, message.CreatedAt, optionalJSON(message.Metadata))
	return err
}

// GetMessages lists a conversation oldest first. A non-empty before restricts
// the result to messages stored ahead of that message id.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int, before string) ([]domain.Message, error) {
	var q selectBuilder
	q.where("session_id = ?", sessionID)
	if before != "" {
		q.where("rowid < (SELECT rowid FROM messages WHERE message_id = ?)", before)
	}
	query, args := q.build(messageColumns, "messages", "created_at ASC, rowid ASC", limit)
	return s.listMessages(ctx, query, args...)
}

// GetRecentMessages keeps the newest limit messages and returns them oldest
// first, ready to be replayed to the model.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return s.GetMessages(ctx, sessionID, 0, "")
	}
	var q selectBuilder
	q.where("session_id = ?", sessionID)
	query, args := q.build(messageColumns, "messages", "created_at DESC, rowid DESC", limit)

	newestFirst, err := s.listMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

func (s *SQLiteStore) listMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(r rowScanner) (domain.Message, error) {
	var (
		m        domain.Message
		runID    sql.NullString
		metadata sql.NullString
	)
	if err := r.Scan(&m.MessageID, &m.SessionID, &runID, &m.Role, &m.Content, &m.CreatedAt, &metadata); err != nil {
		return m, err
	}
	m.RunID = runID.String
	m.Metadata = rawJSON(metadata)
	return m, nil
}

// --- runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, agent_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, run.AgentID, run.Status, run.StartedAt)
	return err
}

// GetRun returns (nil, nil) for an unknown run id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func scanRun(r rowScanner) (domain.Run, error) {
	var (
		run     domain.Run
		endedAt sql.NullTime
		errJSON sql.NullString
	)
	if err := r.Scan(&run.RunID, &run.SessionID, &run.AgentID, &run.Status, &run.StartedAt, &endedAt, &errJSON); err != nil {
		return run, err
	}
	run.EndedAt = optionalTime(endedAt)
	run.Error = rawJSON(errJSON)
	return run, nil
}

// UpdateRunCompleted stamps ended_at and moves the run to a terminal status.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		status, time.Now(), optionalJSON(errData), runID)
	return err
}

// --- events ---

func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, optionalJSON(event.Payload))
	return err
}

// GetEvents returns a run's audit trail in recording order. afterTs and types
// narrow the result when set; events sharing a millisecond keep insert order.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	var q selectBuilder
	q.where("run_id = ?", runID)
	if afterTs > 0 {
		q.where("ts > ?", afterTs)
	}
	if len(types) > 0 {
		q.whereIn("type", types)
	}
	query, args := q.build(eventColumns, "events", "ts ASC, rowid ASC", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			payload sql.NullString
		)
		if err := rows.Scan(&e.EventID, &e.RunID, &e.Ts, &e.Type, &payload); err != nil {
			return nil, err
		}
		e.Payload = rawJSON(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- tool calls ---

func (s *SQLiteStore) CreateToolCall(ctx context.Context, tc *domain.ToolCall) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (`+toolCallColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ToolCallID, tc.RunID, tc.ToolName, tc.Status,
		optionalJSON(tc.Args), optionalJSON(tc.Result), optionalJSON(tc.Error),
		tc.CreatedAt, tc.CompletedAt)
	return err
}

// GetToolCall returns (nil, nil) for an unknown tool call id.
func (s *SQLiteStore) GetToolCall(ctx context.Context, toolCallID string) (*domain.ToolCall, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolCallColumns+` FROM tool_calls WHERE tool_call_id = ?`, toolCallID)
	tc, err := scanToolCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

func scanToolCall(r rowScanner) (domain.ToolCall, error) {
	var (
		tc                    domain.ToolCall
		args, result, errJSON sql.NullString
		completedAt           sql.NullTime
	)
	if err := r.Scan(&tc.ToolCallID, &tc.RunID, &tc.ToolName, &tc.Status,
		&args, &result, &errJSON, &tc.CreatedAt, &completedAt); err != nil {
		return tc, err
	}
	tc.Args = rawJSON(args)
	tc.Result = rawJSON(result)
	tc.Error = rawJSON(errJSON)
	tc.CompletedAt = optionalTime(completedAt)
	return tc, nil
}

// UpdateToolCallResult completes a tool call once. The boolean is false when
// the call had already been completed and nothing changed.
func (s *SQLiteStore) UpdateToolCallResult(ctx context.Context, toolCallID string, status domain.ToolCallStatus, result []byte, errData []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tool_calls SET status = ?, result = ?, error = ?, completed_at = ?
		 WHERE tool_call_id = ? AND completed_at IS NULL`,
		status, optionalJSON(result), optionalJSON(errData), time.Now(), toolCallID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// selectBuilder assembles the filtered list queries above.
type selectBuilder struct {
	conds []string
	args  []any
}

func (b *selectBuilder) where(cond string, args ...any) {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
}

func (b *selectBuilder) whereIn(column string, values []string) {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	b.conds = append(b.conds, fmt.Sprintf("%s IN (%s)", column, marks))
	for _, v := range values {
		b.args = append(b.args, v)
	}
}

func (b *selectBuilder) build(columns, table, orderBy string, limit int) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", columns, table)
	if len(b.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conds, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	args := b.args
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	return sb.String(), args
}

func optionalText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optionalJSON(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid {
		return nil
	}
	return json.RawMessage(ns.String)
}

func optionalTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
