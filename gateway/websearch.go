package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quill-agent/quill/errors"
)

const (
	defaultSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"
	searchTimeout         = 15 * time.Second
	maxWebSearchResults   = 20
)

// WebResult is one ranked web_search hit.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
}

// searchClient talks to the Brave Search API.
type searchClient struct {
	apiKey   string
	endpoint string
	hc       *http.Client
}

func newSearchClient(apiKey string) *searchClient {
	return &searchClient{
		apiKey:   apiKey,
		endpoint: defaultSearchEndpoint,
		hc:       &http.Client{Timeout: searchTimeout},
	}
}

func (g *Gateway) webSearch(ctx context.Context, params map[string]interface{}) Result {
	if g.search == nil {
		return failure(g.searchErr)
	}

	query, err := stringParam(params, "query")
	if err != nil {
		return failure(err)
	}
	maxResults, err := intParam(params, "max_results", 5)
	if err != nil {
		return failure(err)
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxResults > maxWebSearchResults {
		maxResults = maxWebSearchResults
	}

	// Search is idempotent, so a transient remote failure gets one retry.
	payload, err := g.retryOnce(ctx, func() (interface{}, error) {
		results, err := g.search.search(ctx, query, maxResults)
		if err != nil {
			return nil, err
		}
		return results, nil
	})
	if err != nil {
		return failure(err)
	}
	return success(payload)
}

func (c *searchClient) search(ctx context.Context, query string, limit int) ([]WebResult, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid search endpoint")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building search request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.RemoteUnavailable, err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, classifySearchStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var brave struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&brave); err != nil {
		return nil, errors.Wrap(errors.RemoteUnavailable, err, "failed to parse search response")
	}

	results := make([]WebResult, 0, len(brave.Web.Results))
	for _, item := range brave.Web.Results {
		results = append(results, WebResult{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Description,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// classifySearchStatus maps a non-200 search API status onto an error kind.
// Only RemoteUnavailable is retried, so a permanently bad request or a
// rejected key fails on the first attempt. 429 stays retryable.
func classifySearchStatus(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.E(errors.PermissionDenied,
			"search API rejected the credentials: status %d: %s", status, body)
	case status == http.StatusTooManyRequests:
		return errors.E(errors.RemoteUnavailable,
			"search API rate limited the request: status %d: %s", status, body)
	case status >= 400 && status < 500:
		return errors.E(errors.InvalidArgument,
			"search API rejected the request: status %d: %s", status, body)
	default:
		return errors.E(errors.RemoteUnavailable,
			"search API returned status %d: %s", status, body)
	}
}
