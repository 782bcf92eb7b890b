package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quill-agent/quill/config"
	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/gateway"
	"github.com/quill-agent/quill/tools/mcp"
)

// Tool defines the interface for any action the agent can take. Parameters
// returns the JSON-schema properties for the tool's arguments so providers
// can advertise a real schema instead of a free-form object.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry holds all available tools. Built-in tools delegate every
// effect to the gateway; MCP tools talk to their external server.
type ToolRegistry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.Client
}

// NewToolRegistry registers the built-in gateway-backed tools and connects
// any configured MCP servers. A server that fails to start is skipped with
// a warning; the built-ins are unaffected.
func NewToolRegistry(ctx context.Context, cfg *config.Config, gw *gateway.Gateway, logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.Client),
	}

	r.Register(&ReadFileTool{gw: gw})
	r.Register(&WriteFileTool{gw: gw})
	r.Register(&EditFileTool{gw: gw})
	r.Register(&DeleteFileTool{gw: gw})
	r.Register(&ListFilesTool{gw: gw})
	r.Register(&SearchFilesTool{gw: gw})
	r.Register(&ExecuteCommandTool{gw: gw})
	r.Register(&WebSearchTool{gw: gw})
	r.Register(&RepoTool{gw: gw})

	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewClient(ctx, server.Name, server.Command, server.Args)
		if err != nil {
			logger.Warn("skipping MCP server", "name", server.Name, "error", err)
			continue
		}
		r.mcpClients[server.Name] = client
		logger.Info("connected MCP server", "name", server.Name, "tools", len(client.ToolNames()))
	}

	return r
}

func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Close stops all MCP server subprocesses.
func (r *ToolRegistry) Close() {
	for _, client := range r.mcpClients {
		client.Stop()
	}
}

// GetActiveTools returns the tool instances for a given toolset. MCP tools
// are referenced as "<server>:<tool>", with "<server>:*" selecting every
// tool the server offers.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var activeTools []Tool
	for _, toolName := range ts.Tools {
		if server, tool, ok := strings.Cut(toolName, ":"); ok {
			client, found := r.mcpClients[server]
			if !found {
				return nil, errors.New("toolset %q references MCP server %q which is not configured", ts.Name, server)
			}
			if tool == "*" {
				for _, mcpTool := range client.Tools() {
					activeTools = append(activeTools, mcpTool)
				}
				continue
			}
			mcpTool, found := client.GetTool(tool)
			if !found {
				return nil, errors.New("MCP server %q does not provide tool %q", server, tool)
			}
			activeTools = append(activeTools, mcpTool)
			continue
		}

		t, ok := r.GetTool(toolName)
		if !ok {
			return nil, errors.New("tool %q from toolset %q is not registered", toolName, ts.Name)
		}
		activeTools = append(activeTools, t)
	}
	return activeTools, nil
}
