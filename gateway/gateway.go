// Package gateway is the sole mediator between agent-requested actions and
// their effects on the local system or remote APIs. Every action is policy
// checked before any OS or network primitive runs, produces exactly one
// Result, and is recorded in the audit log.
package gateway

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/policy"
)

// Kind identifies one action the gateway can perform. The set is closed;
// Dispatch handles every kind exhaustively and rejects anything else.
type Kind string

const (
	KindReadFile    Kind = "read_file"
	KindWriteFile   Kind = "write_file"
	KindDeleteFile  Kind = "delete_file"
	KindSearchFiles Kind = "search_files"
	KindRunCommand  Kind = "run_command"
	KindWebSearch   Kind = "web_search"
	KindRepoOp      Kind = "repo_op"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Request is one action to perform. It is treated as immutable once issued.
type Request struct {
	Kind   Kind
	Params map[string]interface{}
}

// Result is the single outcome of a Request. Failure is nil exactly when
// Status is StatusSuccess; a failed Result never carries a payload.
type Result struct {
	Status  Status
	Payload interface{}
	Failure error
}

func success(payload interface{}) Result {
	return Result{Status: StatusSuccess, Payload: payload}
}

func failure(err error) Result {
	return Result{Status: StatusFailure, Failure: err}
}

// Capabilities selects which remote capabilities the gateway wires up.
type Capabilities struct {
	WebSearch bool
	Repo      bool
}

// Env var names for remote capability credentials, read once at New.
const (
	EnvBraveSearchAPIKey = "BRAVE_SEARCH_API_KEY"
	EnvGitHubToken       = "GITHUB_TOKEN"
)

const retryBackoff = 250 * time.Millisecond

// Gateway executes actions under an immutable policy. It holds no mutable
// state across calls and is safe for concurrent Dispatch.
type Gateway struct {
	policy *policy.Policy
	audit  *AuditWriter
	logger *slog.Logger

	// Remote capability clients. A nil client means the capability is
	// unavailable and the paired error explains why.
	search    *searchClient
	searchErr error
	repo      *repoClient
	repoErr   error
}

// New builds a gateway over the given policy. Credentials are read from the
// environment exactly once; a capability that is enabled but missing its
// credential is disabled with a configuration error while everything else
// stays live.
func New(p *policy.Policy, caps Capabilities, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		policy: p,
		audit:  NewAuditWriter(filepath.Join(p.Root(), policy.StateDirName, "state")),
		logger: logger,
	}

	if !caps.WebSearch {
		g.searchErr = errors.E(errors.PermissionDenied, "web_search capability is disabled by configuration")
	} else if key := os.Getenv(EnvBraveSearchAPIKey); key == "" {
		g.searchErr = errors.E(errors.ConfigurationError,
			"web_search is enabled but %s is not set", EnvBraveSearchAPIKey)
	} else {
		g.search = newSearchClient(key)
	}

	if !caps.Repo {
		g.repoErr = errors.E(errors.PermissionDenied, "repo capability is disabled by configuration")
	} else if token := os.Getenv(EnvGitHubToken); token == "" {
		g.repoErr = errors.E(errors.ConfigurationError,
			"repo is enabled but %s is not set", EnvGitHubToken)
	} else {
		g.repo = newRepoClient(token)
	}

	return g
}

// CapabilityErrors reports capabilities that could not be wired at startup.
// The caller decides whether to warn or abort; the gateway itself keeps the
// remaining capabilities usable.
func (g *Gateway) CapabilityErrors() []error {
	var errs []error
	if g.searchErr != nil {
		errs = append(errs, g.searchErr)
	}
	if g.repoErr != nil {
		errs = append(errs, g.repoErr)
	}
	return errs
}

// Policy returns the immutable policy the gateway enforces.
func (g *Gateway) Policy() *policy.Policy { return g.policy }

// Dispatch executes one action and returns its single Result. A recovered
// panic becomes a failure Result so the one-request-one-result invariant
// holds even on internal faults.
func (g *Gateway) Dispatch(ctx context.Context, req Request) (res Result) {
	id := newRequestID()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = failure(errors.New("internal fault while executing %s: %v", req.Kind, r))
		}
		g.record(id, req, res, time.Since(started))
	}()

	switch req.Kind {
	case KindReadFile:
		return g.readFile(ctx, req.Params)
	case KindWriteFile:
		return g.writeFile(ctx, req.Params)
	case KindDeleteFile:
		return g.deleteFile(ctx, req.Params)
	case KindSearchFiles:
		return g.searchFiles(ctx, req.Params)
	case KindRunCommand:
		return g.runCommand(ctx, req.Params)
	case KindWebSearch:
		return g.webSearch(ctx, req.Params)
	case KindRepoOp:
		return g.repoOp(ctx, req.Params)
	default:
		return failure(errors.E(errors.InvalidArgument, "unknown action kind %q", req.Kind))
	}
}

func (g *Gateway) record(id string, req Request, res Result, elapsed time.Duration) {
	event := AuditEvent{
		Time:      time.Now().UTC(),
		RequestID: id,
		Action:    string(req.Kind),
		Status:    string(res.Status),
		Elapsed:   elapsed.Milliseconds(),
	}
	if res.Failure != nil {
		event.Error = res.Failure.Error()
		event.ErrorKind = string(errors.KindOf(res.Failure))
	}
	if err := g.audit.Append(event); err != nil {
		g.logger.Warn("audit append failed", "error", err)
	}

	if res.Failure != nil {
		g.logger.Debug("action failed",
			"request_id", id, "action", req.Kind,
			"kind", errors.KindOf(res.Failure), "error", res.Failure)
	} else {
		g.logger.Debug("action completed",
			"request_id", id, "action", req.Kind, "elapsed", elapsed)
	}
}

// retryOnce runs fn and, on a transient remote failure, retries exactly one
// time after a short backoff. Only idempotent remote reads go through here;
// destructive operations are never retried.
func (g *Gateway) retryOnce(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	payload, err := fn()
	if err == nil || !errors.IsKind(err, errors.RemoteUnavailable) {
		return payload, err
	}
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.Timeout, ctx.Err(), "cancelled before retry")
	case <-time.After(retryBackoff):
	}
	return fn()
}
