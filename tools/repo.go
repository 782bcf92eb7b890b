package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/gateway"
)

// RepoTool exposes source-hosting operations through the gateway.
type RepoTool struct {
	gw *gateway.Gateway
}

func (t *RepoTool) Name() string { return "repo" }
func (t *RepoTool) Description() string {
	return "Performs GitHub operations: create_repo (name, description, private), " +
		"list_branches (owner, repo), search_code (query, max_results)."
}
func (t *RepoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"op":          prop("string", "One of create_repo, list_branches, search_code."),
		"name":        prop("string", "create_repo: repository name."),
		"description": prop("string", "create_repo: repository description."),
		"private": map[string]interface{}{
			"type":        "boolean",
			"description": "create_repo: create as private.",
		},
		"owner":       prop("string", "list_branches: repository owner."),
		"repo":        prop("string", "list_branches: repository name."),
		"query":       prop("string", "search_code: code search query."),
		"max_results": prop("integer", "search_code: result limit."),
	}
}

func (t *RepoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	res := t.gw.Dispatch(ctx, gateway.Request{Kind: gateway.KindRepoOp, Params: args})
	if res.Failure != nil {
		return "", res.Failure
	}

	switch payload := res.Payload.(type) {
	case gateway.RepoCreated:
		visibility := "public"
		if payload.Private {
			visibility = "private"
		}
		return fmt.Sprintf("Created %s repository %s: %s", visibility, payload.FullName, payload.URL), nil
	case []gateway.Branch:
		if len(payload) == 0 {
			return "No branches.", nil
		}
		var b strings.Builder
		for _, br := range payload {
			fmt.Fprintf(&b, "%s (%s)\n", br.Name, br.SHA)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	case []gateway.CodeMatch:
		if len(payload) == 0 {
			return "No code matches.", nil
		}
		var b strings.Builder
		for _, m := range payload {
			fmt.Fprintf(&b, "%s: %s\n   %s\n", m.Repository, m.Path, m.URL)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	default:
		return "", errors.New("unexpected repo payload type %T", payload)
	}
}
