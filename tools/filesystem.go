package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/gateway"
)

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

// ReadFileTool reads a file through the gateway.
type ReadFileTool struct {
	gw *gateway.Gateway
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the content of a file inside the workspace, optionally restricted to a line range."
}
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"path":       prop("string", "Workspace-relative path of the file to read."),
		"start_line": prop("integer", "Optional first line to return (1-based)."),
		"end_line":   prop("integer", "Optional last line to return (inclusive)."),
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindReadFile, Params: args})
	if res.Failure != nil {
		return "", res.Failure
	}
	fc := res.Payload.(gateway.FileContent)
	return fc.Content, nil
}

// WriteFileTool writes a file through the gateway.
type WriteFileTool struct {
	gw *gateway.Gateway
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file inside the workspace. Mode is one of overwrite, append, create_only."
}
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"path":    prop("string", "Workspace-relative path of the file to write."),
		"content": prop("string", "Content to write."),
		"mode":    prop("string", "overwrite (default), append, or create_only."),
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindWriteFile, Params: args})
	if res.Failure != nil {
		return "", res.Failure
	}
	receipt := res.Payload.(gateway.WriteReceipt)
	return fmt.Sprintf("Wrote %d bytes to %s (%s)", receipt.BytesWritten, receipt.Path, receipt.Mode), nil
}

// EditFileTool replaces one exact snippet in a file. It reads and writes
// through the gateway so the policy applies to both halves of the edit.
type EditFileTool struct {
	gw *gateway.Gateway
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Replaces one exact occurrence of old_text with new_text in a file. old_text must match exactly once."
}
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"path":     prop("string", "Workspace-relative path of the file to edit."),
		"old_text": prop("string", "Exact existing text to replace; must be unique in the file."),
		"new_text": prop("string", "Replacement text."),
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	if oldText == "" {
		return "", errors.E(errors.InvalidArgument, "old_text must not be empty")
	}

	res := t.gw.Dispatch(ctx, gateway.Request{
		Kind:   gateway.KindReadFile,
		Params: map[string]interface{}{"path": path},
	})
	if res.Failure != nil {
		return "", res.Failure
	}
	content := res.Payload.(gateway.FileContent).Content

	occurrences := strings.Count(content, oldText)
	if occurrences == 0 {
		return "", errors.E(errors.InvalidArgument, "old_text not found in %s", path)
	}
	if occurrences > 1 {
		return "", errors.E(errors.InvalidArgument,
			"old_text matches %d locations in %s; provide a unique snippet", occurrences, path)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	res = t.gw.Dispatch(ctx, gateway.Request{
		Kind: gateway.KindWriteFile,
		Params: map[string]interface{}{
			"path": path, "content": updated, "mode": string(gateway.WriteOverwrite),
		},
	})
	if res.Failure != nil {
		return "", res.Failure
	}
	return fmt.Sprintf("Edited %s", path), nil
}

// DeleteFileTool deletes a single file through the gateway. The gateway
// refuses without confirm=true, so an accidental call cannot destroy data.
type DeleteFileTool struct {
	gw *gateway.Gateway
}

func (t *DeleteFileTool) Name() string { return "delete_file" }
func (t *DeleteFileTool) Description() string {
	return "Deletes a single file inside the workspace. Requires confirm=true; never deletes directories."
}
func (t *DeleteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"path":    prop("string", "Workspace-relative path of the file to delete."),
		"confirm": prop("boolean", "Must be true to actually delete."),
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindDeleteFile, Params: args})
	if res.Failure != nil {
		return "", res.Failure
	}
	return fmt.Sprintf("Deleted %s", res.Payload.(gateway.DeleteReceipt).Path), nil
}

// ListFilesTool lists directory contents. It is search_files with a
// single-level pattern, kept as a separate tool because models reach for
// "list" far more often than "glob".
type ListFilesTool struct {
	gw *gateway.Gateway
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "Lists files directly inside a workspace directory."
}
func (t *ListFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"directory": prop("string", "Workspace-relative directory to list. Defaults to the workspace root."),
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	dir, _ := args["directory"].(string)
	if dir == "" {
		dir = "."
	}
	res := t.gw.Dispatch(ctx, gateway.Request{
		Kind:   gateway.KindSearchFiles,
		Params: map[string]interface{}{"root": dir, "pattern": "*"},
	})
	if res.Failure != nil {
		return "", res.Failure
	}
	return formatMatches(dir, res.Payload.([]gateway.SearchMatch)), nil
}

// SearchFilesTool finds files by glob pattern.
type SearchFilesTool struct {
	gw *gateway.Gateway
}

func (t *SearchFilesTool) Name() string { return "search_files" }
func (t *SearchFilesTool) Description() string {
	return "Searches for files matching a glob pattern (doublestar syntax, e.g. **/*.go) under a workspace directory."
}
func (t *SearchFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"root":        prop("string", "Workspace-relative directory to search from. Defaults to the workspace root."),
		"pattern":     prop("string", "Glob pattern matched against paths relative to root."),
		"max_results": prop("integer", "Stop after this many matches."),
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindSearchFiles, Params: args})
	if res.Failure != nil {
		return "", res.Failure
	}
	root, _ := args["root"].(string)
	if root == "" {
		root = "."
	}
	return formatMatches(root, res.Payload.([]gateway.SearchMatch)), nil
}

func formatMatches(root string, matches []gateway.SearchMatch) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No files found under %s.", root)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "%s (%d bytes)\n", m.Path, m.Size)
	}
	return strings.TrimRight(b.String(), "\n")
}
