package testutils

import (
	"context"
	"sync"
)

// MockLLM is a scripted generative model. Responses are returned in order;
// once exhausted the last response repeats. Set Err to fail every call.
type MockLLM struct {
	mu sync.Mutex

	Responses []string
	Err       error

	// Prompts records every prompt received.
	Prompts []string
}

// NewMockLLM creates a MockLLM answering with the given responses.
func NewMockLLM(responses ...string) *MockLLM {
	return &MockLLM{Responses: responses}
}

// Call matches the generate.LLMCallFunc signature.
func (m *MockLLM) Call(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := len(m.Prompts) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of prompts received.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
