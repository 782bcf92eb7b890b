package gateway

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/quill-agent/quill/errors"
)

// CommandOutput is the run_command payload. A non-zero exit code is still a
// successful action; only failures to run the command at all (policy denial,
// timeout, missing binary) produce a failure Result.
type CommandOutput struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// waitDelay bounds how long Wait blocks on lingering pipe readers after the
// process group has been killed.
const commandWaitDelay = 5 * time.Second

func (g *Gateway) runCommand(ctx context.Context, params map[string]interface{}) Result {
	argv, err := stringSliceParam(params, "argv")
	if err != nil {
		return failure(err)
	}
	if len(argv) == 0 {
		return failure(errors.E(errors.InvalidArgument, "argv must contain at least the program name"))
	}
	cwd, err := optionalStringParam(params, "cwd", ".")
	if err != nil {
		return failure(err)
	}
	timeoutSecs, err := intParam(params, "timeout_seconds", 0)
	if err != nil {
		return failure(err)
	}

	// Policy gate runs strictly before any process is spawned.
	if err := g.policy.CheckCommand(argv); err != nil {
		return failure(err)
	}

	absCwd, err := g.policy.CheckRead(cwd)
	if err != nil {
		return failure(err)
	}

	timeout := g.policy.CommandTimeout()
	if timeoutSecs > 0 {
		requested := time.Duration(timeoutSecs) * time.Second
		if requested < timeout {
			timeout = requested
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Arguments are passed as an explicit vector; no shell ever interprets
	// them, which closes off metacharacter injection.
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = absCwd
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminateProcessGroup(cmd) }
	cmd.WaitDelay = commandWaitDelay

	stdout := &boundedBuffer{max: g.policy.MaxOutputBytes(), maxLines: g.policy.MaxOutputLines()}
	stderr := &boundedBuffer{max: g.policy.MaxOutputBytes(), maxLines: g.policy.MaxOutputLines()}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return failure(errors.E(errors.Timeout,
			"command %q exceeded the %s timeout and was terminated", argv[0], timeout))
	}
	if ctx.Err() != nil {
		return failure(errors.Wrap(errors.Timeout, ctx.Err(), "command %q cancelled", argv[0]))
	}

	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			if execErr, isExec := runErr.(*exec.Error); isExec && execErr.Err == exec.ErrNotFound {
				return failure(errors.E(errors.NotFound, "command %q not found", argv[0]))
			}
			return failure(errors.Wrapf(runErr, "failed to run command %q", argv[0]))
		}
		exitCode = exitErr.ExitCode()
	}

	return success(CommandOutput{
		ExitCode:        exitCode,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
	})
}

// boundedBuffer keeps at most max bytes and maxLines lines, silently
// discarding the rest while reporting the full write as consumed so the
// child never blocks on a full pipe. maxLines <= 0 means no line cap.
type boundedBuffer struct {
	buf       bytes.Buffer
	max       int
	maxLines  int
	lines     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	consumed := len(p)
	if b.truncated {
		return consumed, nil
	}
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return consumed, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
		b.truncated = true
	}
	if b.maxLines > 0 {
		for i := 0; i < len(p); i++ {
			if p[i] != '\n' {
				continue
			}
			b.lines++
			if b.lines >= b.maxLines {
				p = p[:i+1]
				b.truncated = true
				break
			}
		}
	}
	b.buf.Write(p)
	return consumed, nil
}

func (b *boundedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
