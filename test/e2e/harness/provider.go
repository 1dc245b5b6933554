package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/tombee/semroute/pkg/llm"
)

// Reply is one scripted provider answer.
type Reply struct {
	// Content is the text the provider returns.
	Content string

	// Err is returned instead of a result when set.
	Err error

	// Usage overrides the default token accounting when non-zero.
	Usage llm.UsageInfo
}

// MockProvider replays scripted replies in order and records every prompt
// it is asked to complete. Requests past the end of the script fail, so a
// drifting call sequence surfaces as a test failure rather than a replayed
// stale answer.
type MockProvider struct {
	mu      sync.Mutex
	replies []Reply
	calls   int
	prompts []string
}

// NewMockProvider creates a provider that answers with the given replies,
// one per Generate call.
func NewMockProvider(replies ...Reply) *MockProvider {
	return &MockProvider{replies: replies}
}

// Script converts plain reply texts into Replies with default usage.
func Script(contents ...string) []Reply {
	replies := make([]Reply, len(contents))
	for i, c := range contents {
		replies[i] = Reply{Content: c}
	}
	return replies
}

// ModelName reports the provider tag the stack was configured with.
func (m *MockProvider) ModelName() string { return "cohere" }

// Generate returns the next scripted reply.
func (m *MockProvider) Generate(_ context.Context, prompt string, _ *llm.ModelConfig) (*llm.GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	m.calls++

	if m.calls > len(m.replies) {
		return nil, fmt.Errorf("mock provider: call %d beyond the %d scripted replies", m.calls, len(m.replies))
	}

	reply := m.replies[m.calls-1]
	if reply.Err != nil {
		return nil, reply.Err
	}

	usage := reply.Usage
	if usage == (llm.UsageInfo{}) {
		usage = llm.UsageInfo{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Model: m.ModelName()}
	}
	return &llm.GenerationResult{Content: reply.Content, Usage: usage}, nil
}

// Calls reports how many times Generate ran.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of every prompt seen, in call order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Reset clears recorded prompts and rewinds the script.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.prompts = nil
}
