package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/quill-agent/quill/gateway"
)

// WebSearchTool searches the web through the gateway's search capability.
type WebSearchTool struct {
	gw *gateway.Gateway
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Searches the web and returns ranked results with title, URL, and snippet."
}
func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"query":       prop("string", "The search query."),
		"max_results": prop("integer", "Number of results to return (default 5, max 20)."),
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindWebSearch, Params: args})
	if res.Failure != nil {
		return "", res.Failure
	}

	results := res.Payload.([]gateway.WebResult)
	if len(results) == 0 {
		return "No results.", nil
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
