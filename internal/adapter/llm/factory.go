package llm

import (
	"log"
	"strings"
	"time"
)

// ModeMock indicates mock mode should be used.
const ModeMock = "MOCK"

// NewLLMClient creates an LLM client for the given mode.
// If mode is MOCK, returns a MockClient; otherwise returns a real Client.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration) LLMClient {
	if strings.EqualFold(mode, ModeMock) {
		log.Println("DALIA_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, timeout)
}
