package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/quill-agent/quill/errors"
)

// StateDirName is the assistant's own state directory inside the workspace.
// It is hidden from every action no matter what the configuration says, so
// sessions and the audit log never leak into reads or searches.
const StateDirName = ".quill"

// Default limits applied when the configuration leaves them unset.
const (
	DefaultCommandTimeout   = 10 * time.Second
	DefaultMaxOutputBytes   = 50 * 1024
	DefaultMaxOutputLines   = 1000
	DefaultMaxFileBytes     = 100 * 1024
	DefaultSearchMaxResults = 100
	SearchResultsHardCap    = 1000
)

// Config is the raw material a Policy is compiled from. The gateway never
// sees this type; it holds only the compiled, immutable Policy.
type Config struct {
	// WorkspaceRoot confines every file operation. Empty means the process
	// working directory.
	WorkspaceRoot string

	// Hidden paths are invisible to every action. Doublestar globs matched
	// against the workspace-relative path.
	Hidden []string

	// ReadOnly paths reject write_file and delete_file. Same glob syntax.
	ReadOnly []string

	// AllowedCommands are regular expressions matched against the
	// space-joined argv of run_command. An empty list denies all commands.
	AllowedCommands []string

	CommandTimeout   time.Duration
	MaxOutputBytes   int
	MaxOutputLines   int
	MaxFileBytes     int64
	SearchMaxResults int
}

// Policy is the compiled capability policy. It is immutable after Compile
// and safe for concurrent use.
type Policy struct {
	root             string
	hidden           []string
	readOnly         []string
	allowedCommands  []*regexp.Regexp
	commandTimeout   time.Duration
	maxOutputBytes   int
	maxOutputLines   int
	maxFileBytes     int64
	searchMaxResults int
}

// Compile validates the configuration and produces an immutable Policy.
// Glob patterns and command regexes are checked up front so that a bad
// pattern surfaces at startup, not on the first matching request.
func Compile(cfg Config) (*Policy, error) {
	root := cfg.WorkspaceRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrapf(err, "could not determine working directory")
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid workspace root %q", root)
	}
	// Resolve the root once so later containment checks compare resolved
	// paths against a resolved base.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	for _, pattern := range append(append([]string{}, cfg.Hidden...), cfg.ReadOnly...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.New("invalid glob pattern %q in policy", pattern)
		}
	}

	compiled := make([]*regexp.Regexp, 0, len(cfg.AllowedCommands))
	for _, pattern := range cfg.AllowedCommands {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid allowed_commands pattern %q", pattern)
		}
		compiled = append(compiled, re)
	}

	// The state directory is hidden unconditionally; configuration can only
	// add to the hidden list, never expose it.
	hidden := append([]string{}, cfg.Hidden...)
	hidden = append(hidden, StateDirName, StateDirName+"/**")

	p := &Policy{
		root:             abs,
		hidden:           hidden,
		readOnly:         append([]string{}, cfg.ReadOnly...),
		allowedCommands:  compiled,
		commandTimeout:   cfg.CommandTimeout,
		maxOutputBytes:   cfg.MaxOutputBytes,
		maxOutputLines:   cfg.MaxOutputLines,
		maxFileBytes:     cfg.MaxFileBytes,
		searchMaxResults: cfg.SearchMaxResults,
	}
	if p.commandTimeout <= 0 {
		p.commandTimeout = DefaultCommandTimeout
	}
	if p.maxOutputBytes <= 0 {
		p.maxOutputBytes = DefaultMaxOutputBytes
	}
	if p.maxOutputLines <= 0 {
		p.maxOutputLines = DefaultMaxOutputLines
	}
	if p.maxFileBytes <= 0 {
		p.maxFileBytes = DefaultMaxFileBytes
	}
	if p.searchMaxResults <= 0 {
		p.searchMaxResults = DefaultSearchMaxResults
	}
	return p, nil
}

// Root returns the absolute, symlink-resolved workspace root.
func (p *Policy) Root() string { return p.root }

func (p *Policy) CommandTimeout() time.Duration { return p.commandTimeout }
func (p *Policy) MaxOutputBytes() int           { return p.maxOutputBytes }
func (p *Policy) MaxOutputLines() int           { return p.maxOutputLines }
func (p *Policy) MaxFileBytes() int64           { return p.maxFileBytes }
func (p *Policy) SearchMaxResults() int         { return p.searchMaxResults }

// CheckRead resolves path against the workspace root and verifies the
// resolved location is inside it and not hidden. It returns the absolute
// path to operate on.
func (p *Policy) CheckRead(path string) (string, error) {
	abs, rel, err := p.resolve(path)
	if err != nil {
		return "", err
	}
	if matchAny(p.hidden, rel) {
		return "", errors.E(errors.PermissionDenied, "path %q is hidden by policy", path)
	}
	return abs, nil
}

// CheckWrite is CheckRead plus the read-only list.
func (p *Policy) CheckWrite(path string) (string, error) {
	abs, rel, err := p.resolve(path)
	if err != nil {
		return "", err
	}
	if matchAny(p.hidden, rel) {
		return "", errors.E(errors.PermissionDenied, "path %q is hidden by policy", path)
	}
	if matchAny(p.readOnly, rel) {
		return "", errors.E(errors.PermissionDenied, "path %q is read-only by policy", path)
	}
	return abs, nil
}

// Contains reports whether abs (already absolute) lies inside the workspace
// root. Used by the search walker to re-verify reported paths.
func (p *Policy) Contains(abs string) bool {
	rel, err := filepath.Rel(p.root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

// IsHidden reports whether the workspace-relative path matches a hidden glob.
func (p *Policy) IsHidden(rel string) bool {
	return matchAny(p.hidden, filepath.ToSlash(rel))
}

// CheckCommand validates argv against the command allow-list. It never
// spawns anything; an empty allow-list denies every command.
func (p *Policy) CheckCommand(argv []string) error {
	if len(argv) == 0 {
		return errors.E(errors.InvalidArgument, "empty command")
	}
	joined := strings.Join(argv, " ")
	for _, re := range p.allowedCommands {
		if re.MatchString(joined) {
			return nil
		}
	}
	return errors.E(errors.PermissionDenied, "command %q is not in the allowed command list", joined)
}

// resolve turns a caller-supplied path into (absolute, workspace-relative)
// form, rejecting anything that escapes the root. Symlinks on the existing
// portion of the path are resolved before the containment check so a link
// pointing outside the workspace cannot smuggle an operation out.
func (p *Policy) resolve(path string) (string, string, error) {
	if path == "" {
		return "", "", errors.E(errors.InvalidArgument, "empty path")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.root, abs)
	}
	abs = filepath.Clean(abs)

	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid path %q", path)
	}
	if !p.containsResolved(resolved) {
		return "", "", errors.E(errors.PermissionDenied, "path %q is outside the workspace %q", path, p.root)
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid path %q", path)
	}
	return abs, filepath.ToSlash(rel), nil
}

func (p *Policy) containsResolved(abs string) bool {
	if abs == p.root {
		return true
	}
	return strings.HasPrefix(abs, p.root+string(filepath.Separator))
}

// resolveExisting resolves symlinks on the longest existing prefix of abs
// and re-joins the non-existing remainder, so containment can be checked
// for paths that are about to be created.
func resolveExisting(abs string) (string, error) {
	remainder := ""
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("cannot resolve %q", abs)
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

func matchAny(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
