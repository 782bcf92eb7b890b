package gateway

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/policy"
)

// newTestGateway builds a gateway over a temp workspace with no remote
// capabilities wired. Tests that need search or repo clients attach them
// directly.
func newTestGateway(t *testing.T, cfg policy.Config) *Gateway {
	t.Helper()
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = t.TempDir()
	}
	p, err := policy.Compile(cfg)
	if err != nil {
		t.Fatalf("policy.Compile failed: %v", err)
	}
	return &Gateway{
		policy:    p,
		audit:     NewAuditWriter(filepath.Join(p.Root(), ".quill", "state")),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		searchErr: errors.E(errors.ConfigurationError, "web_search not wired in tests"),
		repoErr:   errors.E(errors.ConfigurationError, "repo not wired in tests"),
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	g := newTestGateway(t, policy.Config{})
	res := g.Dispatch(context.Background(), Request{Kind: "teleport"})
	if res.Status != StatusFailure {
		t.Fatal("expected failure for unknown kind")
	}
	if errors.KindOf(res.Failure) != errors.InvalidArgument {
		t.Errorf("kind = %v, want InvalidArgument", errors.KindOf(res.Failure))
	}
}

func TestFailureNeverCarriesPayload(t *testing.T) {
	g := newTestGateway(t, policy.Config{})
	res := g.Dispatch(context.Background(), Request{
		Kind:   KindReadFile,
		Params: map[string]interface{}{"path": "missing.txt"},
	})
	if res.Status != StatusFailure {
		t.Fatal("expected failure")
	}
	if res.Payload != nil {
		t.Errorf("failed result carries payload %v", res.Payload)
	}
}

func TestDisabledCapabilityLeavesOthersUsable(t *testing.T) {
	g := newTestGateway(t, policy.Config{})

	res := g.Dispatch(context.Background(), Request{
		Kind:   KindWebSearch,
		Params: map[string]interface{}{"query": "golang"},
	})
	if errors.KindOf(res.Failure) != errors.ConfigurationError {
		t.Errorf("web_search should fail with ConfigurationError, got %v", res.Failure)
	}

	res = g.Dispatch(context.Background(), Request{
		Kind:   KindWriteFile,
		Params: map[string]interface{}{"path": "note.txt", "content": "still works"},
	})
	if res.Status != StatusSuccess {
		t.Errorf("file capability should remain live: %v", res.Failure)
	}
}

func TestNewReadsCredentialsOnce(t *testing.T) {
	dir := t.TempDir()
	p, err := policy.Compile(policy.Config{WorkspaceRoot: dir})
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvBraveSearchAPIKey, "")
	t.Setenv(EnvGitHubToken, "tok")
	g := New(p, Capabilities{WebSearch: true, Repo: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if g.search != nil {
		t.Error("search client should be nil without an API key")
	}
	if errors.KindOf(g.searchErr) != errors.ConfigurationError {
		t.Errorf("searchErr = %v, want ConfigurationError", g.searchErr)
	}
	if g.repo == nil {
		t.Error("repo client should be wired when the token is present")
	}

	capErrs := g.CapabilityErrors()
	if len(capErrs) != 1 {
		t.Errorf("CapabilityErrors() = %v, want exactly one", capErrs)
	}
}

func TestDisabledByConfigIsPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	p, err := policy.Compile(policy.Config{WorkspaceRoot: dir})
	if err != nil {
		t.Fatal(err)
	}
	g := New(p, Capabilities{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := g.Dispatch(context.Background(), Request{
		Kind:   KindWebSearch,
		Params: map[string]interface{}{"query": "x"},
	})
	if errors.KindOf(res.Failure) != errors.PermissionDenied {
		t.Errorf("disabled capability should be PermissionDenied, got %v", res.Failure)
	}
}

func TestDispatchRecoversPanicIntoFailure(t *testing.T) {
	// A gateway with no policy makes every executor dereference nil; the
	// deferred recover must turn that into a failure Result instead of
	// crashing the caller.
	g := &Gateway{
		policy: nil,
		audit:  NewAuditWriter(filepath.Join(t.TempDir(), "state")),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	res := g.Dispatch(context.Background(), Request{
		Kind:   KindReadFile,
		Params: map[string]interface{}{"path": "x.txt"},
	})
	if res.Status != StatusFailure || res.Failure == nil {
		t.Fatalf("panic should surface as a failure Result, got %+v", res)
	}
	if res.Payload != nil {
		t.Errorf("recovered failure carries payload %v", res.Payload)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	g := newTestGateway(t, policy.Config{})
	root := g.policy.Root()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		name := []string{"a.txt", "b.txt", "c.txt"}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := g.Dispatch(context.Background(), Request{
				Kind:   KindReadFile,
				Params: map[string]interface{}{"path": name},
			})
			if res.Status != StatusSuccess {
				t.Errorf("concurrent read of %s failed: %v", name, res.Failure)
			}
		}()
	}
	wg.Wait()
}

func TestDispatchWritesAuditLine(t *testing.T) {
	g := newTestGateway(t, policy.Config{})
	g.Dispatch(context.Background(), Request{
		Kind:   KindWriteFile,
		Params: map[string]interface{}{"path": "x.txt", "content": "x"},
	})

	data, err := os.ReadFile(filepath.Join(g.policy.Root(), ".quill", "state", "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit file missing: %v", err)
	}
	if len(data) == 0 {
		t.Error("audit file is empty")
	}
}
