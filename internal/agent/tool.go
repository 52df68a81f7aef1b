package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/dalia/internal/adapter/llm"
	"github.com/xiaot623/dalia/internal/domain"
	"github.com/xiaot623/dalia/policy"
)

const policyFailureReason = "policy evaluation failed"

// executeToolCall checks one requested call against the policy, runs it
// when allowed and returns the content handed back to the model. Failures
// are reported to the model rather than ending the run.
func (a *Agent) executeToolCall(ctx context.Context, t *turn, call llm.ToolCall) json.RawMessage {
	toolCallID := "tc_" + uuid.New().String()
	toolName := call.Function.Name

	ctx, span := a.tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool_call.id", toolCallID),
	))
	defer span.End()

	args, argMap, argErr := parseToolArgs(call.Function.Arguments)

	if err := a.recordEvent(ctx, t.runID, domain.EventTypeToolCallCreated, domain.ToolCallCreatedPayload{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Args:       args,
	}); err != nil {
		log.Printf("WARN: failed to record tool_call_created event: %v", err)
	}

	decision, reason := a.evaluatePolicy(ctx, t, toolName, argMap)
	a.metrics.ToolCall(toolName, decision)
	span.SetAttributes(attribute.String("policy.decision", decision))

	if err := a.recordEvent(ctx, t.runID, domain.EventTypePolicyDecision, domain.PolicyDecisionPayload{
		ToolCallID: toolCallID,
		Decision:   decision,
		Reason:     reason,
	}); err != nil {
		log.Printf("WARN: failed to record policy_decision event: %v", err)
	}

	now := time.Now()
	if decision != policy.DecisionAllow {
		errData := errorJSON("blocked by policy: " + reason)
		completedAt := now
		if err := a.store.CreateToolCall(ctx, &domain.ToolCall{
			ToolCallID:  toolCallID,
			RunID:       t.runID,
			ToolName:    toolName,
			Status:      domain.ToolCallStatusBlocked,
			Args:        args,
			Error:       errData,
			CreatedAt:   now,
			CompletedAt: &completedAt,
		}); err != nil {
			log.Printf("WARN: failed to save blocked tool call %s: %v", toolCallID, err)
		}
		a.recordToolResult(ctx, t.runID, toolCallID, domain.ToolCallStatusBlocked, nil, errData)
		return errData
	}

	if err := a.store.CreateToolCall(ctx, &domain.ToolCall{
		ToolCallID: toolCallID,
		RunID:      t.runID,
		ToolName:   toolName,
		Status:     domain.ToolCallStatusRunning,
		Args:       args,
		CreatedAt:  now,
	}); err != nil {
		log.Printf("WARN: failed to save tool call %s: %v", toolCallID, err)
	}

	var (
		result json.RawMessage
		err    = argErr
	)
	if err == nil {
		result, err = a.tools.Execute(ctx, toolName, args)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errData := errorJSON(err.Error())
		a.finishToolCall(ctx, t.runID, toolCallID, domain.ToolCallStatusFailed, nil, errData)
		return errData
	}

	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	a.finishToolCall(ctx, t.runID, toolCallID, domain.ToolCallStatusSucceeded, result, nil)
	return result
}

func (a *Agent) evaluatePolicy(ctx context.Context, t *turn, toolName string, args map[string]interface{}) (string, string) {
	if a.policy == nil {
		return policy.DecisionAllow, "no policy configured"
	}
	decision, reason, err := a.policy.Evaluate(ctx, policy.Input{
		ToolName:             toolName,
		Args:                 args,
		SessionID:            t.sessionID,
		Trading212Configured: a.cfg.Trading212Configured,
	})
	if err != nil {
		log.Printf("ERROR: policy evaluation failed for %s: %v", toolName, err)
		return policy.DecisionBlock, policyFailureReason
	}
	return decision, reason
}

func (a *Agent) finishToolCall(ctx context.Context, runID, toolCallID string, status domain.ToolCallStatus, result, errData json.RawMessage) {
	ctx = context.WithoutCancel(ctx)
	if _, err := a.store.UpdateToolCallResult(ctx, toolCallID, status, result, errData); err != nil {
		log.Printf("WARN: failed to update tool call %s: %v", toolCallID, err)
	}
	a.recordToolResult(ctx, runID, toolCallID, status, result, errData)
}

func (a *Agent) recordToolResult(ctx context.Context, runID, toolCallID string, status domain.ToolCallStatus, result, errData json.RawMessage) {
	if err := a.recordEvent(ctx, runID, domain.EventTypeToolResult, domain.ToolResultPayload{
		ToolCallID: toolCallID,
		Status:     status,
		Result:     result,
		Error:      errData,
	}); err != nil {
		log.Printf("WARN: failed to record tool_result event: %v", err)
	}
}

// parseToolArgs validates the model's argument string. Empty arguments
// mean an empty object.
func parseToolArgs(raw string) (json.RawMessage, map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var argMap map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &argMap); err != nil {
		encoded, _ := json.Marshal(raw)
		return encoded, nil, errors.New("invalid tool arguments: " + err.Error())
	}
	return json.RawMessage(raw), argMap, nil
}

func errorJSON(message string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": message})
	return b
}
