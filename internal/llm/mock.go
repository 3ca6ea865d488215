package llm

import (
	"context"
	"sync"
)

// MockGenerator is a scripted TextGenerator for tests. Responses are returned
// in order; when the script is exhausted it falls back to Default.
type MockGenerator struct {
	mu        sync.Mutex
	Responses []string
	Default   string
	Err       error
	Calls     []MockCall
}

// MockCall records the prompts of a single Complete invocation.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// Complete returns the next scripted response, or Err if set.
func (m *MockGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}
	return m.Default, nil
}

// CallCount returns how many times Complete has been invoked.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
