package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientCreateChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gemini","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "key", time.Second)
	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gemini",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if resp.Model != "gemini" || len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientCreateChatCompletionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gemini",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
	})
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestClientCreateChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("expected streaming request with usage, got %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	var content strings.Builder
	chunks := 0
	usage, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{
		Model:    "gemini",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
	}, func(chunk *StreamChunk) error {
		chunks++
		for _, c := range chunk.Choices {
			if c.Delta != nil {
				content.WriteString(c.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream failed: %v", err)
	}
	if chunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", chunks)
	}
	if content.String() != "Hello" {
		t.Fatalf("unexpected content: %q", content.String())
	}
	if usage == nil || usage.TotalTokens != 5 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestClientCreateChatCompletionStreamToolCallDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"alphavantage_get_global_quote\",\"arguments\":\"{\\\"sym\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"bol\\\":\\\"IBM\\\"}\"}}]},\"finish_reason\":\"tool_calls\"}]}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	var args strings.Builder
	var name string
	_, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{Model: "gemini"}, func(chunk *StreamChunk) error {
		for _, tc := range chunk.Choices[0].Delta.ToolCalls {
			if tc.Index == nil || *tc.Index != 0 {
				t.Errorf("expected index 0, got %v", tc.Index)
			}
			if tc.Function.Name != "" {
				name = tc.Function.Name
			}
			args.WriteString(tc.Function.Arguments)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream failed: %v", err)
	}
	if name != "alphavantage_get_global_quote" || args.String() != `{"symbol":"IBM"}` {
		t.Fatalf("unexpected tool call: %s %s", name, args.String())
	}
}

func TestClientListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"object":"list","data":[{"id":"models/gemini-2.0-flash","object":"model","owned_by":"google"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0].OwnedBy != "google" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestMockClientStreamEchoesUserMessage(t *testing.T) {
	client := NewMockClient()
	var sb strings.Builder
	usage, err := client.CreateChatCompletionStream(context.Background(), &ChatCompletionRequest{
		Model:    "mock",
		Messages: []ChatMessage{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "what is my cash?"}},
	}, func(chunk *StreamChunk) error {
		sb.WriteString(chunk.Choices[0].Delta.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if !strings.Contains(sb.String(), "what is my cash?") {
		t.Fatalf("unexpected mock content: %q", sb.String())
	}
	if usage == nil {
		t.Fatalf("expected usage")
	}

	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "what is my cash?"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if resp.Choices[0].Message.Content != sb.String() {
		t.Fatalf("stream and non-stream replies differ: %q vs %q", sb.String(), resp.Choices[0].Message.Content)
	}
}

func TestNewLLMClientMode(t *testing.T) {
	if _, ok := NewLLMClient("mock", "", "", time.Second).(*MockClient); !ok {
		t.Fatalf("expected mock client")
	}
	if _, ok := NewLLMClient("", "http://localhost", "k", time.Second).(*Client); !ok {
		t.Fatalf("expected real client")
	}
}
