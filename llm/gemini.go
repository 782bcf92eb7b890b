package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/session"
	"github.com/quill-agent/quill/tools"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.E(errors.ConfigurationError, "GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{
		model: client.GenerativeModel(modelName),
	}, nil
}

// Chat sends a chat request to the Gemini API.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	history := convertMessagesToGeminiContent(messages)
	if len(history) == 0 {
		return nil, errors.E(errors.InvalidArgument, "no messages to send")
	}

	g.model.Tools = convertToolsToGeminiTools(availableTools)

	// The last message is the new prompt; everything before it is history.
	lastMessage := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return nil, errors.Wrap(errors.RemoteUnavailable, err, "failed to send message to Gemini")
	}

	return processGeminiResponse(resp)
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			parts := []genai.Part{}
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     msg.ToolCalls[0].Name,
					Response: map[string]any{"result": msg.Content},
				}},
			})
		default:
			// User and system messages both become user turns; Gemini has no
			// separate system role in the chat history.
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, tool := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  geminiSchemaForTool(tool),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// geminiSchemaForTool translates a tool's JSON-schema properties into the
// genai schema type.
func geminiSchemaForTool(t tools.Tool) *genai.Schema {
	props := map[string]*genai.Schema{}
	for name, raw := range t.Parameters() {
		spec, _ := raw.(map[string]interface{})
		props[name] = geminiSchemaFromSpec(spec)
	}
	schema := &genai.Schema{Type: genai.TypeObject}
	if len(props) > 0 {
		schema.Properties = props
	}
	return schema
}

func geminiSchemaFromSpec(spec map[string]interface{}) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeString}
	if spec == nil {
		return s
	}
	switch spec["type"] {
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
		if items, ok := spec["items"].(map[string]interface{}); ok {
			s.Items = geminiSchemaFromSpec(items)
		} else {
			s.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	if description, ok := spec["description"].(string); ok {
		s.Description = description
	}
	return s
}

// processGeminiResponse converts a Gemini API response into our internal
// session.Message format. Function calls are returned as tool calls for the
// agent loop to execute, never executed here.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	var responseContent string
	var toolCalls []session.ToolCall
	callCounter := 0

	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		case genai.FunctionCall:
			// Gemini does not assign call IDs; synthesize stable ones so the
			// results can be paired with the calls in the session history.
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: syntheticCallID(callCounter, v.Name),
				Name:       v.Name,
				Args:       v.Args,
			})
			callCounter++
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}

	return &session.Message{
		Role:      "assistant",
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
