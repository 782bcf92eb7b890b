// Package mcp connects to external Model Context Protocol servers and
// exposes their tools alongside the built-in ones.
package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"sort"

	"github.com/quill-agent/quill/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]*MCPTool
}

// NewClient starts the MCP server subprocess and discovers the tools it
// provides, following list pagination to the end.
func NewClient(ctx context.Context, name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "quill", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	client := &Client{
		Name:  name,
		cmd:   cmd,
		conn:  conn,
		tools: make(map[string]*MCPTool),
	}
	listParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, listParams)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range toolList.Tools {
			client.tools[t.Name] = &MCPTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				parameters:  schemaProperties(t.InputSchema),
				client:      client,
			}
		}
		if toolList.NextCursor == "" {
			break
		}
		listParams.Cursor = toolList.NextCursor
	}
	return client, nil
}

// schemaProperties extracts the "properties" object from the server-provided
// input schema. A JSON round-trip keeps this independent of the SDK's schema
// representation.
func schemaProperties(schema any) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{}
	}
	var decoded struct {
		Properties map[string]interface{} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Properties == nil {
		return map[string]interface{}{}
	}
	return decoded.Properties
}

// GetTool returns a tool provided by this server by its short name.
func (c *Client) GetTool(toolName string) (*MCPTool, bool) {
	tool, ok := c.tools[toolName]
	return tool, ok
}

// Tools returns every tool the server offers, sorted by name so the order
// advertised to the model is stable across runs.
func (c *Client) Tools() []*MCPTool {
	out := make([]*MCPTool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].toolName < out[j].toolName })
	return out
}

// ToolNames returns the short names of every tool the server offers.
func (c *Client) ToolNames() []string {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// MCPTool is a tool available from an external MCP server. It satisfies the
// tools.Tool interface from the parent package.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	parameters  map[string]interface{}
	client      *Client
}

func (t *MCPTool) Name() string        { return t.toolName }
func (t *MCPTool) Description() string { return t.description }

func (t *MCPTool) Parameters() map[string]interface{} { return t.parameters }

// Execute calls the tool on the MCP server and concatenates the text content
// of the result.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on MCP server '%s'", t.toolName, t.serverName)
	}
	var out string
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	return out, nil
}
