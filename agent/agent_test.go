package agent

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quill-agent/quill/config"
	"github.com/quill-agent/quill/gateway"
	"github.com/quill-agent/quill/llm"
	"github.com/quill-agent/quill/policy"
	"github.com/quill-agent/quill/session"
	"github.com/quill-agent/quill/tools"
)

// scriptedLLM replays a fixed sequence of responses.
type scriptedLLM struct {
	responses []*session.Message
	calls     int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	resp := s.responses[s.calls]
	if s.calls < len(s.responses)-1 {
		s.calls++
	}
	return resp, nil
}

func newTestAgent(t *testing.T, client llm.LLMClient, mode Mode) (*Agent, string) {
	t.Helper()
	root := t.TempDir()
	t.Chdir(root)

	p, err := policy.Compile(policy.Config{WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.New(p, gateway.Capabilities{}, logger)

	cfg := &config.Config{
		Toolsets: []config.Toolset{{
			Name:  "default",
			Tools: []string{"read_file", "write_file", "delete_file"},
		}},
	}
	sess, err := session.New("test")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	a, err := New(context.Background(), cfg, sess, "", mode, client, ToolVerbosityNone, gw, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a, root
}

func TestProcessUserInputExecutesToolCalls(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{{
				ToolCallID: "call_1",
				Name:       "write_file",
				Args:       map[string]interface{}{"path": "note.txt", "content": "hello"},
			}},
		},
		{Role: "assistant", Content: "Done."},
	}}

	a, root := newTestAgent(t, client, ModeAuto)

	var assistantSaid []string
	err := a.ProcessUserInput(context.Background(), "create note.txt", ProcessCallbacks{
		OnAssistantMessage: func(m string) { assistantSaid = append(assistantSaid, m) },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "note.txt"))
	if err != nil {
		t.Fatalf("tool call did not create the file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("file content = %q", data)
	}
	if len(assistantSaid) != 1 || assistantSaid[0] != "Done." {
		t.Errorf("assistant messages = %v", assistantSaid)
	}

	// The tool result must be in the history so the model saw it.
	var toolMessages []session.Message
	for _, msg := range a.Session.Messages {
		if msg.Role == "tool" {
			toolMessages = append(toolMessages, msg)
		}
	}
	if len(toolMessages) != 1 {
		t.Fatalf("expected 1 tool message, got %d", len(toolMessages))
	}
	if toolMessages[0].ToolCalls[0].ToolCallID != "call_1" {
		t.Errorf("tool message not paired with call: %+v", toolMessages[0])
	}
}

func TestProcessUserInputDeclinedToolCall(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{{
				ToolCallID: "call_1",
				Name:       "delete_file",
				Args:       map[string]interface{}{"path": "keep.txt", "confirm": true},
			}},
		},
		{Role: "assistant", Content: "Understood."},
	}}

	a, root := newTestAgent(t, client, ModePrompt)
	if err := os.WriteFile(filepath.Join(root, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := a.ProcessUserInput(context.Background(), "delete keep.txt", ProcessCallbacks{
		ShouldExecuteTool: func(tc session.ToolCall) bool { return false },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "keep.txt")); err != nil {
		t.Error("declined tool call must not touch the file")
	}
	var declined bool
	for _, msg := range a.Session.Messages {
		if msg.Role == "tool" && strings.Contains(msg.Content, "declined") {
			declined = true
		}
	}
	if !declined {
		t.Error("expected a declined tool result in the history")
	}
}

func TestProcessUserInputUnavailableTool(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{{
				ToolCallID: "call_1",
				Name:       "launch_missiles",
				Args:       map[string]interface{}{},
			}},
		},
		{Role: "assistant", Content: "Sorry."},
	}}

	a, _ := newTestAgent(t, client, ModeAuto)

	var warned bool
	err := a.ProcessUserInput(context.Background(), "do it", ProcessCallbacks{
		OnWarning: func(string) { warned = true },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if !warned {
		t.Error("expected a warning for an unavailable tool")
	}

	var reported bool
	for _, msg := range a.Session.Messages {
		if msg.Role == "tool" && strings.Contains(msg.Content, "not available") {
			reported = true
		}
	}
	if !reported {
		t.Error("expected the error to be reported back to the model")
	}
}

func TestProcessUserInputToolErrorFedBack(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{{
				ToolCallID: "call_1",
				Name:       "read_file",
				Args:       map[string]interface{}{"path": "missing.txt"},
			}},
		},
		{Role: "assistant", Content: "The file does not exist."},
	}}

	a, _ := newTestAgent(t, client, ModeAuto)

	if err := a.ProcessUserInput(context.Background(), "read missing.txt", ProcessCallbacks{}); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	var errorFedBack bool
	for _, msg := range a.Session.Messages {
		if msg.Role == "tool" && strings.Contains(msg.Content, "Error executing tool") {
			errorFedBack = true
		}
	}
	if !errorFedBack {
		t.Error("tool failure should be returned to the model as a tool result")
	}
}
