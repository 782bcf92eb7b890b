package gateway

import (
	"context"
	"net/http"

	"github.com/google/go-github/v66/github"
	"github.com/quill-agent/quill/errors"
)

// RepoOp names one operation against the source-hosting API.
type RepoOp string

const (
	RepoCreate       RepoOp = "create_repo"
	RepoListBranches RepoOp = "list_branches"
	RepoSearchCode   RepoOp = "search_code"
)

// RepoCreated is the create_repo payload.
type RepoCreated struct {
	FullName string
	URL      string
	Private  bool
}

// Branch is one list_branches entry.
type Branch struct {
	Name string
	SHA  string
}

// CodeMatch is one search_code hit.
type CodeMatch struct {
	Repository string
	Path       string
	URL        string
}

type repoClient struct {
	gh *github.Client
}

func newRepoClient(token string) *repoClient {
	return &repoClient{gh: github.NewClient(nil).WithAuthToken(token)}
}

func (g *Gateway) repoOp(ctx context.Context, params map[string]interface{}) Result {
	if g.repo == nil {
		return failure(g.repoErr)
	}

	opStr, err := stringParam(params, "op")
	if err != nil {
		return failure(err)
	}

	switch RepoOp(opStr) {
	case RepoCreate:
		payload, err := g.repo.createRepo(ctx, params)
		if err != nil {
			return failure(err)
		}
		return success(payload)
	case RepoListBranches:
		// Reads are idempotent and get the single bounded retry.
		payload, err := g.retryOnce(ctx, func() (interface{}, error) {
			return g.repo.listBranches(ctx, params)
		})
		if err != nil {
			return failure(err)
		}
		return success(payload)
	case RepoSearchCode:
		payload, err := g.retryOnce(ctx, func() (interface{}, error) {
			return g.repo.searchCode(ctx, params)
		})
		if err != nil {
			return failure(err)
		}
		return success(payload)
	default:
		return failure(errors.E(errors.InvalidArgument, "unknown repo op %q", opStr))
	}
}

func (c *repoClient) createRepo(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	description, err := optionalStringParam(params, "description", "")
	if err != nil {
		return nil, err
	}
	private, err := boolParam(params, "private")
	if err != nil {
		return nil, err
	}

	repo, _, err := c.gh.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(private),
	})
	if err != nil {
		return nil, classifyGitHubError(err, "create_repo")
	}
	return RepoCreated{
		FullName: repo.GetFullName(),
		URL:      repo.GetHTMLURL(),
		Private:  repo.GetPrivate(),
	}, nil
}

func (c *repoClient) listBranches(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	owner, err := stringParam(params, "owner")
	if err != nil {
		return nil, err
	}
	repo, err := stringParam(params, "repo")
	if err != nil {
		return nil, err
	}

	branches, _, err := c.gh.Repositories.ListBranches(ctx, owner, repo, &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, classifyGitHubError(err, "list_branches")
	}

	out := make([]Branch, 0, len(branches))
	for _, b := range branches {
		out = append(out, Branch{Name: b.GetName(), SHA: b.GetCommit().GetSHA()})
	}
	return out, nil
}

func (c *repoClient) searchCode(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}
	maxResults, err := intParam(params, "max_results", 10)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 || maxResults > 100 {
		maxResults = 10
	}

	result, _, err := c.gh.Search.Code(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: maxResults},
	})
	if err != nil {
		return nil, classifyGitHubError(err, "search_code")
	}

	out := make([]CodeMatch, 0, len(result.CodeResults))
	for _, item := range result.CodeResults {
		out = append(out, CodeMatch{
			Repository: item.GetRepository().GetFullName(),
			Path:       item.GetPath(),
			URL:        item.GetHTMLURL(),
		})
		if len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

// classifyGitHubError maps API failures onto the gateway error kinds.
// Client-side 4xx responses mean the request itself was wrong; everything
// else is the remote being unavailable.
func classifyGitHubError(err error, op string) error {
	if resp, ok := err.(*github.ErrorResponse); ok && resp.Response != nil {
		switch resp.Response.StatusCode {
		case http.StatusNotFound:
			return errors.Wrap(errors.NotFound, err, "%s target not found", op)
		case http.StatusUnprocessableEntity, http.StatusBadRequest:
			return errors.Wrap(errors.InvalidArgument, err, "%s rejected by the API", op)
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Wrap(errors.PermissionDenied, err, "%s not permitted for this token", op)
		}
	}
	if _, ok := err.(*github.RateLimitError); ok {
		return errors.Wrap(errors.RemoteUnavailable, err, "%s rate limited", op)
	}
	return errors.Wrap(errors.RemoteUnavailable, err, "%s failed", op)
}
