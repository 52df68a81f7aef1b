package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	completionsPath = "/chat/completions"
	modelsPath      = "/models"

	// streamLineLimit bounds a single SSE line; tool call chunks can be large.
	streamLineLimit = 1 << 20
)

// Client talks to an OpenAI-compatible chat completions endpoint. The base
// URL is the API root without the trailing /chat/completions, e.g.
// https://generativelanguage.googleapis.com/v1beta/openai for Gemini.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	req.Stream = false
	req.StreamOptions = nil

	var out ChatCompletionResponse
	if err := c.roundTrip(ctx, http.MethodPost, completionsPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateChatCompletionStream reads the SSE body line by line and hands each
// decoded chunk to callback. Undecodable data lines are skipped. The usage
// reported in the final chunk is returned.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	req.Stream = true
	req.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := c.send(ctx, http.MethodPost, completionsPath, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body)
	}

	var usage *Usage
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), streamLineLimit)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return usage, err
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return usage, nil
		}

		var chunk StreamChunk
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if err := callback(&chunk); err != nil {
			return usage, err
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, fmt.Errorf("failed to read stream: %w", err)
	}
	return usage, ctx.Err()
}

func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out ModelsResponse
	if err := c.roundTrip(ctx, http.MethodGet, modelsPath, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// roundTrip sends payload (if any) as JSON and decodes a 200 reply into out.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out any) error {
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func apiError(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("LLM API error [%d]: %s (type: %s)", status, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("LLM API error [%d]: %s", status, strings.TrimSpace(string(body)))
}
