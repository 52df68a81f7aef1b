package domain

import "encoding/json"

// RunStartedPayload is the payload for run_started event.
type RunStartedPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Stream    bool   `json:"stream"`
}

// UserInputPayload is the payload for user_input event.
type UserInputPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// RunDonePayload is the payload for run_done event.
type RunDonePayload struct {
	Usage        *UsageData `json:"usage,omitempty"`
	FinalMessage string     `json:"final_message,omitempty"`
	ToolRounds   int        `json:"tool_rounds"`
}

// RunFailedPayload is the payload for run_failed event.
type RunFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UsageData represents token usage information.
type UsageData struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// LLMCallStartedPayload is the payload for llm_call_started event.
type LLMCallStartedPayload struct {
	RequestID string `json:"request_id"`
	Model     string `json:"model"`
	Stream    bool   `json:"stream"`
	Round     int    `json:"round"`
}

// LLMCallDonePayload is the payload for llm_call_done event.
type LLMCallDonePayload struct {
	RequestID        string `json:"request_id"`
	Model            string `json:"model"`
	LatencyMs        int64  `json:"latency_ms"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	ToolCalls        int    `json:"tool_calls,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ToolCallCreatedPayload is the payload for tool_call_created event.
type ToolCallCreatedPayload struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// PolicyDecisionPayload is the payload for policy_decision event.
type PolicyDecisionPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
}

// ToolResultPayload is the payload for tool_result event.
type ToolResultPayload struct {
	ToolCallID string          `json:"tool_call_id"`
	Status     ToolCallStatus  `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}
