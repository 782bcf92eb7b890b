package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/gateway"
)

// ExecuteCommandTool runs a command through the gateway. The model may pass
// either an argv array or a plain command string; a string is split on
// whitespace into a vector and is never handed to a shell.
type ExecuteCommandTool struct {
	gw *gateway.Gateway
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	return "Runs a program inside the workspace. Only commands on the configured allow-list are executed; " +
		"there is no shell, so pipes and redirection are not available."
}
func (t *ExecuteCommandTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"argv": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Program and arguments as separate strings.",
		},
		"command":         prop("string", "Alternative to argv: a command line split on whitespace."),
		"cwd":             prop("string", "Workspace-relative working directory."),
		"timeout_seconds": prop("integer", "Optional timeout; the policy ceiling always applies."),
	}
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	params := map[string]interface{}{}
	for k, v := range args {
		params[k] = v
	}
	if _, hasArgv := params["argv"]; !hasArgv {
		command, _ := params["command"].(string)
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return "", errors.E(errors.InvalidArgument, "provide either argv or a non-empty command")
		}
		params["argv"] = fields
	}
	delete(params, "command")

	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindRunCommand, Params: params})
	if res.Failure != nil {
		return "", res.Failure
	}

	out := res.Payload.(gateway.CommandOutput)
	var b strings.Builder
	fmt.Fprintf(&b, "Exit code: %d\n", out.ExitCode)
	if out.Stdout != "" {
		fmt.Fprintf(&b, "STDOUT:\n%s\n", out.Stdout)
	}
	if out.Stderr != "" {
		fmt.Fprintf(&b, "STDERR:\n%s\n", out.Stderr)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
