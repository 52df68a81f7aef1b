// Package policy evaluates tool calls against an OPA rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the document a tool call is evaluated against.
type Input struct {
	ToolName             string
	Args                 map[string]interface{}
	SessionID            string
	Trading212Configured bool
}

func (in Input) toMap() map[string]interface{} {
	args := in.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	return map[string]interface{}{
		"tool_name":             in.ToolName,
		"args":                  args,
		"session_id":            in.SessionID,
		"trading212_configured": in.Trading212Configured,
	}
}

// Evaluate checks the tool policy and returns the decision and its reason.
// The policy may produce either a bare decision string or an object with
// decision and reason keys.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input.toMap()))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			return "", "", fmt.Errorf("policy result has no decision")
		}
		return decision, reason, nil
	default:
		return "", "", fmt.Errorf("unexpected policy result type %T", val)
	}
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package tool_policy

default decision = {"decision": "allow", "reason": ""}

# Broker tools need credentials on the server.
decision = {"decision": "block", "reason": "Trading 212 API credentials are not configured on the server."} {
	startswith(input.tool_name, "trading212_")
	not input.trading212_configured
}

# The news endpoint caps results at 1000.
decision = {"decision": "block", "reason": "news sentiment limit must not exceed 1000"} {
	input.tool_name == "alphavantage_get_news_sentiment"
	input.args.limit > 1000
}
`
