package agent

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/dalia/internal/adapter/llm"
	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/domain"
)

// complete runs one model call for the turn and returns the generated
// content and any requested tool calls. When the turn streams, content is
// emitted as it arrives.
func (a *Agent) complete(ctx context.Context, t *turn, round int) (string, []llm.ToolCall, error) {
	requestID := "llm_" + uuid.New().String()[:8]
	startTime := time.Now()

	req := &llm.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: t.messages,
		Stream:   t.stream,
		Tools:    a.toolSpecs(),
	}

	if err := a.recordEvent(ctx, t.runID, domain.EventTypeLLMCallStarted, domain.LLMCallStartedPayload{
		RequestID: requestID,
		Model:     req.Model,
		Stream:    req.Stream,
		Round:     round,
	}); err != nil {
		log.Printf("WARN: failed to record llm_call_started event: %v", err)
	}

	var (
		content string
		calls   []llm.ToolCall
		usage   *llm.Usage
		err     error
	)
	if t.stream {
		content, calls, usage, err = a.completeStream(ctx, req, a.separatedEmit(t))
	} else {
		content, calls, usage, err = a.completeOnce(ctx, req)
	}

	elapsed := time.Since(startTime)
	a.metrics.ObserveLLM(t.stream, elapsed.Seconds())

	payload := domain.LLMCallDonePayload{
		RequestID: requestID,
		Model:     req.Model,
		LatencyMs: elapsed.Milliseconds(),
		ToolCalls: len(calls),
	}
	if usage != nil {
		payload.PromptTokens = usage.PromptTokens
		payload.CompletionTokens = usage.CompletionTokens
		payload.TotalTokens = usage.TotalTokens
		t.usage.PromptTokens += usage.PromptTokens
		t.usage.CompletionTokens += usage.CompletionTokens
		t.usage.TotalTokens += usage.TotalTokens
	}
	if err != nil {
		payload.Error = err.Error()
	}
	// The call may have ended because ctx was cancelled; the trace still
	// gets its llm_call_done.
	if recErr := a.recordEvent(context.WithoutCancel(ctx), t.runID, domain.EventTypeLLMCallDone, payload); recErr != nil {
		log.Printf("WARN: failed to record llm_call_done event: %v", recErr)
	}

	if err != nil {
		return "", nil, err
	}
	return content, calls, nil
}

// separatedEmit prefixes the first fragment of a round with roundSeparator
// when earlier rounds already produced text, so the streamed text matches
// the stored reply.
func (a *Agent) separatedEmit(t *turn) func(chat.Event) error {
	if t.reply.Len() == 0 {
		return t.emit
	}
	pending := true
	return func(ev chat.Event) error {
		if pending && ev.Kind == chat.EventContent && ev.Content != "" {
			pending = false
			ev.Content = roundSeparator + ev.Content
		}
		return t.emit(ev)
	}
}

func (a *Agent) completeOnce(ctx context.Context, req *llm.ChatCompletionRequest) (string, []llm.ToolCall, *llm.Usage, error) {
	resp, err := a.llm.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", nil, nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", nil, resp.Usage, nil
	}
	msg := resp.Choices[0].Message
	return msg.Content, normalizeToolCalls(msg.ToolCalls), resp.Usage, nil
}

func (a *Agent) completeStream(ctx context.Context, req *llm.ChatCompletionRequest, emit func(chat.Event) error) (string, []llm.ToolCall, *llm.Usage, error) {
	var content []byte
	acc := newToolCallAccumulator()

	usage, err := a.llm.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta == nil {
				continue
			}
			if choice.Delta.Content != "" {
				content = append(content, choice.Delta.Content...)
				if err := emit(chat.Event{Kind: chat.EventContent, Content: choice.Delta.Content}); err != nil {
					return err
				}
			}
			acc.add(choice.Delta.ToolCalls)
		}
		return nil
	})
	if err != nil {
		return "", nil, usage, err
	}
	return string(content), normalizeToolCalls(acc.calls()), usage, nil
}

func (a *Agent) toolSpecs() []llm.Tool {
	defs := a.tools.Definitions()
	if len(defs) == 0 {
		return nil
	}
	specs := make([]llm.Tool, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return specs
}

// toolCallAccumulator merges streamed tool call fragments by index.
type toolCallAccumulator struct {
	byIndex map[int]*llm.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*llm.ToolCall)}
}

func (acc *toolCallAccumulator) add(deltas []llm.ToolCall) {
	for i, delta := range deltas {
		idx := i
		if delta.Index != nil {
			idx = *delta.Index
		}
		call, ok := acc.byIndex[idx]
		if !ok {
			call = &llm.ToolCall{Type: "function"}
			acc.byIndex[idx] = call
		}
		if delta.ID != "" {
			call.ID = delta.ID
		}
		if delta.Type != "" {
			call.Type = delta.Type
		}
		if delta.Function.Name != "" {
			call.Function.Name = delta.Function.Name
		}
		call.Function.Arguments += delta.Function.Arguments
	}
}

func (acc *toolCallAccumulator) calls() []llm.ToolCall {
	if len(acc.byIndex) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(acc.byIndex))
	for idx := range acc.byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	calls := make([]llm.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		calls = append(calls, *acc.byIndex[idx])
	}
	return calls
}

// normalizeToolCalls drops stream indexes and fills missing ids so the
// calls can be echoed back to the model.
func normalizeToolCalls(calls []llm.ToolCall) []llm.ToolCall {
	out := calls[:0:0]
	for _, call := range calls {
		if call.Function.Name == "" {
			continue
		}
		call.Index = nil
		if call.Type == "" {
			call.Type = "function"
		}
		if call.ID == "" {
			call.ID = "call_" + uuid.New().String()[:8]
		}
		out = append(out, call)
	}
	return out
}
