// Package domain defines the core domain models for the dalia backend.
package domain

// Role is the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "CREATED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusDone      RunStatus = "DONE"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// EventType represents the type of a trace event.
type EventType string

const (
	EventTypeRunStarted   EventType = "run_started"
	EventTypeUserInput    EventType = "user_input"
	EventTypeRunDone      EventType = "run_done"
	EventTypeRunFailed    EventType = "run_failed"
	EventTypeRunCancelled EventType = "run_cancelled"

	// LLM call events
	EventTypeLLMCallStarted EventType = "llm_call_started"
	EventTypeLLMCallDone    EventType = "llm_call_done"

	// Tool events
	EventTypeToolCallCreated EventType = "tool_call_created"
	EventTypePolicyDecision  EventType = "policy_decision"
	EventTypeToolResult      EventType = "tool_result"
)

// ToolCallStatus represents the status of a tool call.
type ToolCallStatus string

const (
	ToolCallStatusCreated   ToolCallStatus = "CREATED"
	ToolCallStatusBlocked   ToolCallStatus = "BLOCKED"
	ToolCallStatusRunning   ToolCallStatus = "RUNNING"
	ToolCallStatusSucceeded ToolCallStatus = "SUCCEEDED"
	ToolCallStatusFailed    ToolCallStatus = "FAILED"
)
