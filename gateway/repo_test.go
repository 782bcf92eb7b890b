package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/policy"
)

func attachRepo(t *testing.T, g *Gateway, srv *httptest.Server) {
	t.Helper()
	client := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = base
	g.repo = &repoClient{gh: client}
	g.repoErr = nil
}

func TestRepoOpListBranches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/repos/quill-agent/quill/branches") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"name": "main", "commit": map[string]string{"sha": "abc123"}},
			{"name": "dev", "commit": map[string]string{"sha": "def456"}},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, policy.Config{})
	attachRepo(t, g, srv)

	res := dispatch(t, g, KindRepoOp, map[string]interface{}{
		"op": "list_branches", "owner": "quill-agent", "repo": "quill",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("list_branches failed: %v", res.Failure)
	}
	branches := res.Payload.([]Branch)
	if len(branches) != 2 || branches[0].Name != "main" || branches[0].SHA != "abc123" {
		t.Errorf("branches = %+v", branches)
	}
}

func TestRepoOpCreateRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/user/repos") {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Name    string `json:"name"`
			Private bool   `json:"private"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"full_name": "me/" + body.Name,
			"html_url":  "https://github.com/me/" + body.Name,
			"private":   body.Private,
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, policy.Config{})
	attachRepo(t, g, srv)

	res := dispatch(t, g, KindRepoOp, map[string]interface{}{
		"op": "create_repo", "name": "sandbox", "private": true,
	})
	if res.Status != StatusSuccess {
		t.Fatalf("create_repo failed: %v", res.Failure)
	}
	created := res.Payload.(RepoCreated)
	if created.FullName != "me/sandbox" || !created.Private {
		t.Errorf("created = %+v", created)
	}
}

func TestRepoOpSearchCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 1,
			"items": []map[string]interface{}{
				{
					"path":       "gateway/gateway.go",
					"html_url":   "https://github.com/quill-agent/quill/blob/main/gateway/gateway.go",
					"repository": map[string]interface{}{"full_name": "quill-agent/quill"},
				},
			},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, policy.Config{})
	attachRepo(t, g, srv)

	res := dispatch(t, g, KindRepoOp, map[string]interface{}{
		"op": "search_code", "query": "Dispatch repo:quill-agent/quill",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("search_code failed: %v", res.Failure)
	}
	matches := res.Payload.([]CodeMatch)
	if len(matches) != 1 || matches[0].Repository != "quill-agent/quill" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestRepoOpMutationsNeverRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newTestGateway(t, policy.Config{})
	attachRepo(t, g, srv)

	res := dispatch(t, g, KindRepoOp, map[string]interface{}{
		"op": "create_repo", "name": "sandbox",
	})
	if errors.KindOf(res.Failure) != errors.RemoteUnavailable {
		t.Fatalf("want RemoteUnavailable, got %v", res.Failure)
	}
	if calls.Load() != 1 {
		t.Errorf("create_repo made %d attempts, must be exactly 1", calls.Load())
	}
}

func TestRepoOpNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, policy.Config{})
	attachRepo(t, g, srv)

	res := dispatch(t, g, KindRepoOp, map[string]interface{}{
		"op": "list_branches", "owner": "nobody", "repo": "nothing",
	})
	if errors.KindOf(res.Failure) != errors.NotFound {
		t.Errorf("want NotFound, got %v", res.Failure)
	}
}

func TestRepoOpUnknownOp(t *testing.T) {
	g := newTestGateway(t, policy.Config{})
	attachRepo(t, g, httptest.NewServer(http.NotFoundHandler()))

	res := dispatch(t, g, KindRepoOp, map[string]interface{}{"op": "force_push_main"})
	if errors.KindOf(res.Failure) != errors.InvalidArgument {
		t.Errorf("want InvalidArgument, got %v", res.Failure)
	}
}
