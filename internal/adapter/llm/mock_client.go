package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	mockModelID     = "dalia-mock"
	mockChunkRunes  = 10
	mockEchoMaxRune = 100
)

// MockClient answers without any network access. It echoes the newest user
// message and never asks for a tool, so DALIA_MODE=MOCK exercises the whole
// chat path offline.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ LLMClient = (*MockClient)(nil)

func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := mockReply(req.Messages)
	return &ChatCompletionResponse{
		ID:      mockCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: RoleAssistant, Content: reply},
			FinishReason: "stop",
		}},
		Usage: estimateUsage(req.Messages, reply),
	}, nil
}

// CreateChatCompletionStream delivers the same echo as CreateChatCompletion in
// short rune-safe pieces.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	reply := mockReply(req.Messages)
	base := StreamChunk{
		ID:      mockCompletionID(),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   req.Model,
	}

	pieces := runeChunks(reply, mockChunkRunes)
	for i, piece := range pieces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := base
		choice := Choice{Delta: &ChatMessage{Role: RoleAssistant, Content: piece}}
		if i == len(pieces)-1 {
			choice.FinishReason = "stop"
		}
		chunk.Choices = []Choice{choice}
		if err := callback(&chunk); err != nil {
			return nil, err
		}
	}
	return estimateUsage(req.Messages, reply), nil
}

func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{ID: mockModelID, Object: "model", Created: time.Now().Unix(), OwnedBy: "dalia"}}, nil
}

func mockCompletionID() string {
	return "mock-" + uuid.NewString()
}

func mockReply(history []ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != RoleUser || history[i].Content == "" {
			continue
		}
		echo := []rune(history[i].Content)
		text := string(echo)
		if len(echo) > mockEchoMaxRune {
			text = string(echo[:mockEchoMaxRune]) + "..."
		}
		return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", text)
	}
	return "[MOCK] This is a mock response from the LLM client."
}

// estimateUsage approximates token counts at four bytes per token.
func estimateUsage(history []ChatMessage, reply string) *Usage {
	var prompt int
	for _, msg := range history {
		prompt += len(msg.Content) / 4
	}
	completion := len(reply) / 4
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

func runeChunks(s string, size int) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return []string{""}
	}
	out := make([]string, 0, (len(runes)+size-1)/size)
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return append(out, string(runes))
}
