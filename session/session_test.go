package session

import (
	"os"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })

	s, err := New("roundtrip")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Mode = "auto"
	s.Toolset = "default"
	s.AddMessage(Message{Role: "user", Content: "hello"})
	s.AddMessage(Message{
		Role:    "assistant",
		Content: "",
		ToolCalls: []ToolCall{{
			ToolCallID: "tc-1",
			Name:       "read_file",
			Args:       map[string]interface{}{"path": "main.go"},
		}},
	})
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("roundtrip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Mode != "auto" || loaded.Toolset != "default" {
		t.Errorf("session fields lost: %+v", loaded)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages", len(loaded.Messages))
	}
	tc := loaded.Messages[1].ToolCalls
	if len(tc) != 1 || tc[0].Name != "read_file" {
		t.Errorf("tool calls lost: %+v", tc)
	}
	if tc[0].Args["path"] != "main.go" {
		t.Errorf("tool args lost: %+v", tc[0].Args)
	}
}

func TestLoadMissingSession(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })

	if _, err := Load("never-created"); err == nil {
		t.Error("expected error for missing session")
	}
}
