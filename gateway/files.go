package gateway

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/policy"
)

// WriteMode selects how write_file treats an existing file.
type WriteMode string

const (
	WriteOverwrite  WriteMode = "overwrite"
	WriteAppend     WriteMode = "append"
	WriteCreateOnly WriteMode = "create_only"
)

// FileContent is the read_file payload.
type FileContent struct {
	Path      string
	Content   string
	StartLine int // 1-based, 0 when the whole file was returned
	EndLine   int
}

// WriteReceipt is the write_file payload.
type WriteReceipt struct {
	Path         string
	BytesWritten int
	Mode         WriteMode
}

// DeleteReceipt is the delete_file payload.
type DeleteReceipt struct {
	Path string
}

// SearchMatch is one search_files hit. Path is workspace-relative.
type SearchMatch struct {
	Path string
	Size int64
}

func (g *Gateway) readFile(_ context.Context, params map[string]interface{}) Result {
	path, err := stringParam(params, "path")
	if err != nil {
		return failure(err)
	}
	startLine, err := intParam(params, "start_line", 0)
	if err != nil {
		return failure(err)
	}
	endLine, err := intParam(params, "end_line", 0)
	if err != nil {
		return failure(err)
	}

	abs, err := g.policy.CheckRead(path)
	if err != nil {
		return failure(err)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return failure(errors.E(errors.NotFound, "file %q does not exist", path))
	}
	if err != nil {
		return failure(errors.Wrapf(err, "could not stat %q", path))
	}
	if info.IsDir() {
		return failure(errors.E(errors.InvalidArgument, "%q is a directory", path))
	}
	if info.Size() > g.policy.MaxFileBytes() {
		return failure(errors.E(errors.InvalidArgument,
			"file %q is %d bytes, larger than the %d byte limit", path, info.Size(), g.policy.MaxFileBytes()))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return failure(errors.Wrapf(err, "failed to read file %q", path))
	}

	content := string(data)
	if startLine > 0 || endLine > 0 {
		content, err = sliceLines(content, startLine, endLine)
		if err != nil {
			return failure(err)
		}
	}

	return success(FileContent{
		Path:      path,
		Content:   content,
		StartLine: startLine,
		EndLine:   endLine,
	})
}

// sliceLines returns the 1-based inclusive [start, end] line range.
func sliceLines(content string, start, end int) (string, error) {
	lines := strings.Split(content, "\n")
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return "", errors.E(errors.InvalidArgument,
			"invalid line range %d-%d for a file with %d lines", start, end, len(lines))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

func (g *Gateway) writeFile(_ context.Context, params map[string]interface{}) Result {
	path, err := stringParam(params, "path")
	if err != nil {
		return failure(err)
	}
	content, ok := params["content"].(string)
	if !ok {
		return failure(errors.E(errors.InvalidArgument, "missing required parameter %q", "content"))
	}
	modeStr, err := optionalStringParam(params, "mode", string(WriteOverwrite))
	if err != nil {
		return failure(err)
	}
	mode := WriteMode(modeStr)

	abs, err := g.policy.CheckWrite(path)
	if err != nil {
		return failure(err)
	}

	switch mode {
	case WriteOverwrite, WriteAppend, WriteCreateOnly:
	default:
		return failure(errors.E(errors.InvalidArgument, "unknown write mode %q", mode))
	}

	// Parent directories are created on demand, but only inside the
	// workspace; CheckWrite already guaranteed containment.
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return failure(errors.Wrapf(err, "could not create parent directory for %q", path))
	}

	var flags int
	switch mode {
	case WriteOverwrite:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case WriteAppend:
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case WriteCreateOnly:
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(abs, flags, 0644)
	if err != nil {
		if mode == WriteCreateOnly && os.IsExist(err) {
			return failure(errors.E(errors.InvalidArgument,
				"file %q already exists and mode is create_only", path))
		}
		return failure(errors.Wrapf(err, "failed to open %q for writing", path))
	}
	n, writeErr := f.WriteString(content)
	closeErr := f.Close()
	if writeErr != nil {
		return failure(errors.Wrapf(writeErr, "failed to write to %q", path))
	}
	if closeErr != nil {
		return failure(errors.Wrapf(closeErr, "failed to close %q", path))
	}

	return success(WriteReceipt{Path: path, BytesWritten: n, Mode: mode})
}

func (g *Gateway) deleteFile(_ context.Context, params map[string]interface{}) Result {
	path, err := stringParam(params, "path")
	if err != nil {
		return failure(err)
	}
	confirm, err := boolParam(params, "confirm")
	if err != nil {
		return failure(err)
	}
	// Deletion is irreversible, so it requires a non-default opt-in. The
	// check runs before anything touches the filesystem.
	if !confirm {
		return failure(errors.E(errors.InvalidArgument,
			"refusing to delete %q: pass confirm=true to delete", path))
	}

	abs, err := g.policy.CheckWrite(path)
	if err != nil {
		return failure(err)
	}

	info, err := os.Lstat(abs)
	if os.IsNotExist(err) {
		return failure(errors.E(errors.NotFound, "file %q does not exist", path))
	}
	if err != nil {
		return failure(errors.Wrapf(err, "could not stat %q", path))
	}
	if info.IsDir() {
		return failure(errors.E(errors.InvalidArgument,
			"%q is a directory; delete_file removes single files only", path))
	}

	if err := os.Remove(abs); err != nil {
		return failure(errors.Wrapf(err, "failed to delete %q", path))
	}
	return success(DeleteReceipt{Path: path})
}

func (g *Gateway) searchFiles(ctx context.Context, params map[string]interface{}) Result {
	root, err := optionalStringParam(params, "root", ".")
	if err != nil {
		return failure(err)
	}
	pattern, err := optionalStringParam(params, "pattern", "**/*")
	if err != nil {
		return failure(err)
	}
	maxResults, err := intParam(params, "max_results", g.policy.SearchMaxResults())
	if err != nil {
		return failure(err)
	}
	if maxResults <= 0 {
		return failure(errors.E(errors.InvalidArgument, "max_results must be positive"))
	}
	if maxResults > policy.SearchResultsHardCap {
		maxResults = policy.SearchResultsHardCap
	}
	if !doublestar.ValidatePattern(pattern) {
		return failure(errors.E(errors.InvalidArgument, "invalid glob pattern %q", pattern))
	}

	absRoot, err := g.policy.CheckRead(root)
	if err != nil {
		return failure(err)
	}
	info, err := os.Stat(absRoot)
	if os.IsNotExist(err) {
		return failure(errors.E(errors.NotFound, "directory %q does not exist", root))
	}
	if err != nil {
		return failure(errors.Wrapf(err, "could not stat %q", root))
	}
	if !info.IsDir() {
		return failure(errors.E(errors.InvalidArgument, "%q is not a directory", root))
	}

	matches, err := g.walkMatches(ctx, absRoot, pattern, maxResults)
	if err != nil {
		return failure(err)
	}
	return success(matches)
}

// walkMatches walks absRoot collecting files whose workspace-relative path
// matches pattern, stopping as soon as max results are found. Symbolic
// links are never followed: link entries are reported against their literal
// location only if their target stays inside the workspace, and linked
// directories are never descended into, so the walk cannot escape the root.
// Each call restarts the walk from scratch.
func (g *Gateway) walkMatches(ctx context.Context, absRoot, pattern string, max int) ([]SearchMatch, error) {
	var matches []SearchMatch
	workspace := g.policy.Root()

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(workspace, path)
		if relErr != nil || !g.policy.Contains(path) {
			return nil
		}
		if g.policy.IsHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// A link is only reported when its target resolves inside the
			// workspace; either way it is never traversed.
			resolved, rerr := filepath.EvalSymlinks(path)
			if rerr != nil || !g.policy.Contains(resolved) {
				return nil
			}
		}

		matchRel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		ok, merr := doublestar.Match(pattern, filepath.ToSlash(matchRel))
		if merr != nil || !ok {
			return nil
		}

		var size int64
		if info, ierr := d.Info(); ierr == nil {
			size = info.Size()
		}
		matches = append(matches, SearchMatch{Path: filepath.ToSlash(rel), Size: size})
		if len(matches) >= max {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		if err == ctx.Err() {
			return nil, errors.Wrap(errors.Timeout, err, "search cancelled")
		}
		return nil, errors.Wrapf(err, "search under %q failed", absRoot)
	}
	return matches, nil
}
