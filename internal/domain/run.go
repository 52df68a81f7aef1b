package domain

import (
	"encoding/json"
	"time"
)

// Run represents a single agent turn within a session.
type Run struct {
	RunID     string          `json:"run_id"`
	SessionID string          `json:"session_id"`
	AgentID   string          `json:"agent_id"`
	Status    RunStatus       `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// Event represents a trace event for replay.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ToolCall represents a tool execution record.
type ToolCall struct {
	ToolCallID  string          `json:"tool_call_id"`
	RunID       string          `json:"run_id"`
	ToolName    string          `json:"tool_name"`
	Status      ToolCallStatus  `json:"status"`
	Args        json.RawMessage `json:"args"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
