package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quill-agent/quill/config"
	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/gateway"
	"github.com/quill-agent/quill/llm"
	"github.com/quill-agent/quill/session"
	"github.com/quill-agent/quill/tools"
)

type Mode string

const (
	// ModeAuto executes tool calls without asking.
	ModeAuto Mode = "auto"
	// ModePrompt asks before every tool call.
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// maxToolIterations bounds a single turn. A model that keeps requesting
// tools past this point is looping.
const maxToolIterations = 25

// ProcessCallbacks lets the frontend observe and steer a turn without the
// agent knowing anything about terminals.
type ProcessCallbacks struct {
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	ShouldExecuteTool  func(toolCall session.ToolCall) bool
	OnWarning          func(warning string)
}

type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity

	registry *tools.ToolRegistry
	logger   *slog.Logger
}

// New builds an agent for the named toolset. The tool registry and every
// built-in tool route through the given gateway.
func New(ctx context.Context, cfg *config.Config, sess *session.Session, toolset string, mode Mode,
	client llm.LLMClient, verbosity ToolVerbosity, gw *gateway.Gateway, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}

	registry := tools.NewToolRegistry(ctx, cfg, gw, logger)
	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		registry.Close()
		return nil, err
	}

	return &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      verbosity,
		registry:       registry,
		logger:         logger,
	}, nil
}

// Close shuts down the agent's tool registry, including any MCP servers.
func (a *Agent) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
}

// ProcessUserInput runs one turn: the user message goes to the model, tool
// calls are executed (or declined) until the model answers with plain text.
// Tool failures are reported back to the model as tool results rather than
// aborting the turn.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, callbacks ProcessCallbacks) error {
	a.Session.AddMessage(session.Message{Role: "user", Content: userInput})

	for iteration := 0; ; iteration++ {
		if iteration >= maxToolIterations {
			a.warn(callbacks, fmt.Sprintf("stopping after %d tool iterations", maxToolIterations))
			return a.saveSession(callbacks)
		}

		assistantResponse, err := a.LLMClient.Chat(ctx, a.Session.Messages, a.AvailableTools)
		if err != nil {
			return errors.Wrapf(err, "LLM chat failed")
		}

		a.Session.AddMessage(*assistantResponse)
		if assistantResponse.Content != "" && callbacks.OnAssistantMessage != nil {
			callbacks.OnAssistantMessage(assistantResponse.Content)
		}

		if len(assistantResponse.ToolCalls) == 0 {
			return a.saveSession(callbacks)
		}

		for _, toolCall := range assistantResponse.ToolCalls {
			a.Session.AddMessage(session.Message{
				Role:      "tool",
				Content:   a.executeToolCall(ctx, toolCall, callbacks),
				ToolCalls: []session.ToolCall{toolCall},
			})
		}

		if err := a.saveSession(callbacks); err != nil {
			return err
		}
	}
}

// executeToolCall runs one tool call and returns the text that goes back to
// the model, whether the call succeeded, failed, or was declined.
func (a *Agent) executeToolCall(ctx context.Context, toolCall session.ToolCall, callbacks ProcessCallbacks) string {
	if callbacks.OnToolCall != nil {
		callbacks.OnToolCall(toolCall)
	}

	if callbacks.ShouldExecuteTool != nil && !callbacks.ShouldExecuteTool(toolCall) {
		a.logger.Info("tool call declined", "tool", toolCall.Name)
		return fmt.Sprintf("The user declined to run tool '%s'.", toolCall.Name)
	}

	tool := a.findTool(toolCall.Name)
	if tool == nil {
		a.warn(callbacks, fmt.Sprintf("model requested unavailable tool '%s'", toolCall.Name))
		return fmt.Sprintf("Error: tool '%s' is not available.", toolCall.Name)
	}

	result, err := tool.Execute(ctx, toolCall.Args)
	if err != nil {
		a.logger.Warn("tool call failed", "tool", toolCall.Name, "kind", string(errors.KindOf(err)), "error", err)
		return fmt.Sprintf("Error executing tool '%s': %v", toolCall.Name, err)
	}

	if callbacks.OnToolResult != nil {
		callbacks.OnToolResult(toolCall, result)
	}
	return result
}

func (a *Agent) findTool(name string) tools.Tool {
	for _, t := range a.AvailableTools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *Agent) saveSession(callbacks ProcessCallbacks) error {
	if err := a.Session.Save(); err != nil {
		a.warn(callbacks, fmt.Sprintf("failed to save session: %v", err))
	}
	return nil
}

func (a *Agent) warn(callbacks ProcessCallbacks, warning string) {
	a.logger.Warn(warning)
	if callbacks.OnWarning != nil {
		callbacks.OnWarning(warning)
	}
}
