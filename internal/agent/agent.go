// Package agent implements the finance assistant: it drives the model
// through tool rounds, checks every tool call against the policy engine
// and persists runs, events and the transcript.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/dalia/internal/adapter/llm"
	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/domain"
	"github.com/xiaot623/dalia/internal/metrics"
	store "github.com/xiaot623/dalia/internal/repository"
	"github.com/xiaot623/dalia/internal/tools"
	"github.com/xiaot623/dalia/policy"
)

// DefaultAgentID names the assistant in stored runs.
const DefaultAgentID = "dalia"

const anonymousUser = "anonymous"

// SystemPrompt is sent ahead of every conversation.
const SystemPrompt = `You are a helpful assistant that can help with stock portfolio and finance management.
You have access to the following tools:
- AlphaVantageToolkit: quotes, daily and intraday price series, symbol search, currency exchange rates and market news sentiment.
- Trading212Toolkit: the user's Trading 212 account information, cash balance, open positions and transaction history.
Format your response using markdown and use tables to display data where possible.`

var (
	// ErrMaxToolRounds is returned when the model keeps requesting tools
	// without producing an answer.
	ErrMaxToolRounds = errors.New("exceeded max tool rounds")
	// ErrEmptyResponse is returned when the model finishes without content.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Config tunes an Agent.
type Config struct {
	AgentID              string
	Model                string
	HistoryRuns          int
	MaxToolRounds        int
	Timeout              time.Duration
	Trading212Configured bool
}

// Agent answers chat turns using an LLM and the tool registry.
type Agent struct {
	store   store.Store
	llm     llm.LLMClient
	tools   *tools.Registry
	policy  *policy.Engine
	metrics *metrics.Metrics
	cfg     Config
	tracer  trace.Tracer
}

var _ chat.Agent = (*Agent)(nil)

// New creates an Agent. registry, engine and m may be nil.
func New(st store.Store, client llm.LLMClient, registry *tools.Registry, engine *policy.Engine, m *metrics.Metrics, cfg Config) *Agent {
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = 1
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Agent{
		store:   st,
		llm:     client,
		tools:   registry,
		policy:  engine,
		metrics: m,
		cfg:     cfg,
		tracer:  otel.Tracer("github.com/xiaot623/dalia/internal/agent"),
	}
}

// Run produces the full reply for one turn.
func (a *Agent) Run(ctx context.Context, sessionID, text string) (string, error) {
	return a.run(ctx, sessionID, text, nil)
}

// RunStream produces one turn, emitting content as the model generates it.
func (a *Agent) RunStream(ctx context.Context, sessionID, text string, emit func(chat.Event) error) error {
	if emit == nil {
		return fmt.Errorf("emit is required")
	}
	_, err := a.run(ctx, sessionID, text, emit)
	return err
}

// MessagesForSession returns the stored transcript, oldest first.
func (a *Agent) MessagesForSession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return a.store.GetMessages(ctx, sessionID, 0, "")
}

// turn carries the state of one run through its tool rounds.
type turn struct {
	runID     string
	sessionID string
	stream    bool
	emit      func(chat.Event) error
	messages  []llm.ChatMessage
	reply     strings.Builder
	usage     domain.UsageData
	rounds    int
}

func (a *Agent) run(ctx context.Context, sessionID, text string, emit func(chat.Event) error) (string, error) {
	if text == "" {
		return "", chat.ErrEmptyMessage
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("stream", emit != nil),
	))
	defer span.End()

	if _, err := a.store.GetOrCreateSession(ctx, sessionID, anonymousUser); err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	history, err := a.loadHistory(ctx, sessionID)
	if err != nil {
		return "", err
	}

	startedAt := time.Now()
	t := &turn{
		runID:     "run_" + uuid.New().String(),
		sessionID: sessionID,
		stream:    emit != nil,
		emit:      emit,
	}
	span.SetAttributes(attribute.String("run.id", t.runID))

	if err := a.store.CreateRun(ctx, &domain.Run{
		RunID:     t.runID,
		SessionID: sessionID,
		AgentID:   a.cfg.AgentID,
		Status:    domain.RunStatusRunning,
		StartedAt: startedAt,
	}); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	userMessage := &domain.Message{
		MessageID: "msg_" + uuid.New().String(),
		SessionID: sessionID,
		RunID:     t.runID,
		Role:      domain.RoleUser,
		Content:   text,
		CreatedAt: startedAt,
	}

	if err := a.recordEvent(ctx, t.runID, domain.EventTypeRunStarted, domain.RunStartedPayload{
		SessionID: sessionID,
		AgentID:   a.cfg.AgentID,
		Stream:    t.stream,
	}); err != nil {
		log.Printf("WARN: failed to record run_started event: %v", err)
	}
	if err := a.recordEvent(ctx, t.runID, domain.EventTypeUserInput, domain.UserInputPayload{
		MessageID: userMessage.MessageID,
		Content:   text,
	}); err != nil {
		log.Printf("WARN: failed to record user_input event: %v", err)
	}

	t.messages = make([]llm.ChatMessage, 0, len(history)+2)
	t.messages = append(t.messages, llm.ChatMessage{Role: llm.RoleSystem, Content: SystemPrompt})
	t.messages = append(t.messages, history...)
	t.messages = append(t.messages, llm.ChatMessage{Role: llm.RoleUser, Content: text})

	if err := a.loop(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.failRun(ctx, t, err)
		return "", err
	}

	reply := t.reply.String()
	if err := a.store.CreateMessage(ctx, userMessage); err != nil {
		a.failRun(ctx, t, err)
		return "", fmt.Errorf("failed to save user message: %w", err)
	}
	if err := a.store.CreateMessage(ctx, &domain.Message{
		MessageID: "msg_" + uuid.New().String(),
		SessionID: sessionID,
		RunID:     t.runID,
		Role:      domain.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}); err != nil {
		a.failRun(ctx, t, err)
		return "", fmt.Errorf("failed to save assistant message: %w", err)
	}

	if err := a.store.UpdateRunCompleted(ctx, t.runID, domain.RunStatusDone, nil); err != nil {
		log.Printf("WARN: failed to complete run %s: %v", t.runID, err)
	}
	usage := t.usage
	if err := a.recordEvent(ctx, t.runID, domain.EventTypeRunDone, domain.RunDonePayload{
		Usage:        &usage,
		FinalMessage: reply,
		ToolRounds:   t.rounds,
	}); err != nil {
		log.Printf("WARN: failed to record run_done event: %v", err)
	}
	return reply, nil
}

// roundSeparator joins the text of consecutive tool rounds in the reply.
const roundSeparator = "\n\n"

// loop calls the model until it answers without requesting tools.
func (a *Agent) loop(ctx context.Context, t *turn) error {
	for round := 0; ; round++ {
		content, calls, err := a.complete(ctx, t, round)
		if err != nil {
			return err
		}
		if content != "" && t.reply.Len() > 0 {
			t.reply.WriteString(roundSeparator)
		}
		t.reply.WriteString(content)

		if len(calls) == 0 {
			break
		}
		if t.rounds >= a.cfg.MaxToolRounds {
			if t.reply.Len() > 0 {
				break
			}
			return ErrMaxToolRounds
		}
		t.rounds++

		t.messages = append(t.messages, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			result := a.executeToolCall(ctx, t, call)
			t.messages = append(t.messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
				Content:    string(result),
			})
		}
	}

	if strings.TrimSpace(t.reply.String()) == "" {
		return ErrEmptyResponse
	}
	return nil
}

// loadHistory returns the last HistoryRuns exchanges as model messages.
func (a *Agent) loadHistory(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	if a.cfg.HistoryRuns <= 0 {
		return nil, nil
	}
	stored, err := a.store.GetRecentMessages(ctx, sessionID, a.cfg.HistoryRuns*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]llm.ChatMessage, 0, len(stored))
	for _, m := range stored {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		history = append(history, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return history, nil
}

// failRun marks the run failed, or cancelled when ctx ended it. Writes use
// a context that outlives the caller's cancellation.
func (a *Agent) failRun(ctx context.Context, t *turn, cause error) {
	ctxErr := ctx.Err()
	ctx = context.WithoutCancel(ctx)

	status := domain.RunStatusFailed
	eventType := domain.EventTypeRunFailed
	code := "agent_error"
	if ctxErr != nil {
		status = domain.RunStatusCancelled
		eventType = domain.EventTypeRunCancelled
		code = "cancelled"
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			code = "timeout"
		}
	} else {
		log.Printf("ERROR: run %s failed: %v", t.runID, cause)
	}

	payload := domain.RunFailedPayload{Code: code, Message: cause.Error()}
	errData, _ := json.Marshal(payload)
	if err := a.store.UpdateRunCompleted(ctx, t.runID, status, errData); err != nil {
		log.Printf("WARN: failed to update run %s: %v", t.runID, err)
	}
	if err := a.recordEvent(ctx, t.runID, eventType, payload); err != nil {
		log.Printf("WARN: failed to record %s event: %v", eventType, err)
	}
}
