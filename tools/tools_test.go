package tools

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quill-agent/quill/config"
	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/gateway"
	"github.com/quill-agent/quill/policy"
)

func newTestRegistry(t *testing.T) (*ToolRegistry, string) {
	t.Helper()
	root := t.TempDir()
	p, err := policy.Compile(policy.Config{WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.New(p, gateway.Capabilities{}, logger)
	cfg := &config.Config{}
	return NewToolRegistry(context.Background(), cfg, gw, logger), root
}

func TestBuiltinToolsRegistered(t *testing.T) {
	registry, _ := newTestRegistry(t)
	for _, name := range []string{
		"read_file", "write_file", "edit_file", "delete_file",
		"list_files", "search_files", "execute_command",
		"web_search", "repo",
	} {
		tool, ok := registry.GetTool(name)
		if !ok {
			t.Fatalf("tool %q not registered", name)
		}
		if tool.Name() != name {
			t.Errorf("tool %q reports name %q", name, tool.Name())
		}
		if len(tool.Parameters()) == 0 {
			t.Errorf("tool %q advertises no parameters", name)
		}
	}
}

func TestGetActiveToolsUnknownTool(t *testing.T) {
	registry, _ := newTestRegistry(t)
	_, err := registry.GetActiveTools(&config.Toolset{Name: "broken", Tools: []string{"no_such_tool"}})
	if err == nil {
		t.Fatal("expected error for unregistered tool")
	}
}

func TestGetActiveToolsUnknownMCPServer(t *testing.T) {
	registry, _ := newTestRegistry(t)
	_, err := registry.GetActiveTools(&config.Toolset{Name: "broken", Tools: []string{"gopls:definition"}})
	if err == nil {
		t.Fatal("expected error for unconfigured MCP server")
	}
}

func TestEditFileReplacesUniqueSnippet(t *testing.T) {
	registry, root := newTestRegistry(t)
	path := filepath.Join(root, "main.txt")
	if err := os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool, _ := registry.GetTool("edit_file")
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "main.txt", "old_text": "beta", "new_text": "delta",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "main.txt") {
		t.Errorf("unexpected output %q", out)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "alpha\ndelta\ngamma\n" {
		t.Errorf("file after edit = %q", data)
	}
}

func TestEditFileRejectsAmbiguousSnippet(t *testing.T) {
	registry, root := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(root, "dup.txt"), []byte("x\nx\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool, _ := registry.GetTool("edit_file")
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "dup.txt", "old_text": "x", "new_text": "y",
	})
	if !errors.IsKind(err, errors.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestEditFileMissingSnippet(t *testing.T) {
	registry, root := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool, _ := registry.GetTool("edit_file")
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "a.txt", "old_text": "absent", "new_text": "y",
	})
	if !errors.IsKind(err, errors.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestExecuteCommandRequiresArgvOrCommand(t *testing.T) {
	registry, _ := newTestRegistry(t)
	tool, _ := registry.GetTool("execute_command")
	_, err := tool.Execute(context.Background(), map[string]interface{}{"command": "   "})
	if !errors.IsKind(err, errors.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestListFilesFormatsMatches(t *testing.T) {
	registry, root := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(root, "one.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "two.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool, _ := registry.GetTool("list_files")
	out, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "one.go") || !strings.Contains(out, "two.go") {
		t.Errorf("listing missing entries: %q", out)
	}
}
