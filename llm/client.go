package llm

import (
	"context"
	"fmt"

	"github.com/quill-agent/quill/session"
	"github.com/quill-agent/quill/tools"
)

// syntheticCallID builds a stable identifier for providers that do not
// assign their own tool-call IDs.
func syntheticCallID(n int, name string) string {
	return fmt.Sprintf("call_%d_%s", n, name)
}

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// MockLLMClient echoes the last user message. It is the default when no
// provider is configured, and it keeps the rest of the program exercisable
// without credentials.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	lastUserMessage := ""
	if len(messages) > 0 {
		lastUserMessage = messages[len(messages)-1].Content
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock model with %d tools available. You said: %q", len(availableTools), lastUserMessage),
	}, nil
}
