package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/quill-agent/quill/session"
)

func TestGeminiSchemaForTool(t *testing.T) {
	tool := &MockTool{
		name: "search_files",
		parameters: map[string]interface{}{
			"pattern":     map[string]interface{}{"type": "string", "description": "Glob pattern."},
			"max_results": map[string]interface{}{"type": "integer"},
			"argv": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	}

	schema := geminiSchemaForTool(tool)
	if schema.Type != genai.TypeObject {
		t.Fatalf("schema type = %v", schema.Type)
	}
	if schema.Properties["pattern"].Type != genai.TypeString {
		t.Errorf("pattern type = %v", schema.Properties["pattern"].Type)
	}
	if schema.Properties["pattern"].Description != "Glob pattern." {
		t.Errorf("pattern description = %q", schema.Properties["pattern"].Description)
	}
	if schema.Properties["max_results"].Type != genai.TypeInteger {
		t.Errorf("max_results type = %v", schema.Properties["max_results"].Type)
	}
	argv := schema.Properties["argv"]
	if argv.Type != genai.TypeArray || argv.Items == nil || argv.Items.Type != genai.TypeString {
		t.Errorf("argv schema = %+v", argv)
	}
}

func TestConvertMessagesToGeminiContent(t *testing.T) {
	messages := []session.Message{
		{Role: "user", Content: "list the files"},
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{
				{ToolCallID: "call_0_list_files", Name: "list_files", Args: map[string]interface{}{}},
			},
		},
		{
			Role:    "tool",
			Content: "2 file(s)",
			ToolCalls: []session.ToolCall{
				{ToolCallID: "call_0_list_files", Name: "list_files"},
			},
		},
	}

	contents := convertMessagesToGeminiContent(messages)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("first role = %q", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("second role = %q", contents[1].Role)
	}
	if _, ok := contents[1].Parts[0].(genai.FunctionCall); !ok {
		t.Errorf("expected FunctionCall part, got %T", contents[1].Parts[0])
	}
	if contents[2].Role != "function" {
		t.Errorf("third role = %q", contents[2].Role)
	}
	fr, ok := contents[2].Parts[0].(genai.FunctionResponse)
	if !ok {
		t.Fatalf("expected FunctionResponse part, got %T", contents[2].Parts[0])
	}
	if fr.Name != "list_files" || fr.Response["result"] != "2 file(s)" {
		t.Errorf("function response = %+v", fr)
	}
}
