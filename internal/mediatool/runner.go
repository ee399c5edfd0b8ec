// Package mediatool runs the external media binaries (ffprobe and ffmpeg)
// behind a narrow subprocess interface, and builds probe, encode and
// thumbnail operations on top of it.
package mediatool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

const maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

// Invocation is a single tool execution request.
type Invocation struct {
	Tool    string // logical name, e.g. "ffprobe", used in logs and metrics
	Path    string // binary to execute
	Args    []string
	Timeout time.Duration
}

// Result is the structured outcome of a tool execution.
type Result struct {
	Stdout     []byte
	ExitCode   int
	StderrTail string
	Duration   time.Duration
	TimedOut   bool
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r Result) IsSuccess() bool { return r.ExitCode == 0 && !r.TimedOut }

// ToolRunner executes one tool invocation. Implementations must not retry.
type ToolRunner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ToolError reports a failed invocation with its exit code and stderr tail.
type ToolError struct {
	Tool       string
	ExitCode   int
	StderrTail string
	TimedOut   bool
	Err        error
}

func (e *ToolError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s timed out: %s", e.Tool, truncate(e.StderrTail, 512))
	case e.Err != nil && e.ExitCode == -1:
		return fmt.Sprintf("%s could not run: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("%s exited %d: %s", e.Tool, e.ExitCode, truncate(e.StderrTail, 512))
	}
}

func (e *ToolError) Unwrap() error { return e.Err }

// SubprocessRunner is the production ToolRunner.
type SubprocessRunner struct {
	logger *slog.Logger
}

func NewSubprocessRunner(logger *slog.Logger) *SubprocessRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessRunner{logger: logger}
}

// Run executes inv and returns a *ToolError for non-zero exit, timeout or
// a binary that could not be started. The Result is populated in every case.
func (r *SubprocessRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	r.logger.Debug("executing media tool", "tool", inv.Tool, "args", inv.Args, "timeout", inv.Timeout)

	err := cmd.Run()
	res := Result{
		Stdout:     stdout.Bytes(),
		StderrTail: stderr.String(),
		Duration:   time.Since(start),
		TimedOut:   errors.Is(ctx.Err(), context.DeadlineExceeded),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
	}

	if err == nil && !res.TimedOut {
		r.logger.Debug("media tool succeeded", "tool", inv.Tool, "duration_ms", res.Duration.Milliseconds())
		return res, nil
	}

	r.logger.Warn("media tool failed",
		"tool", inv.Tool,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"duration_ms", res.Duration.Milliseconds(),
		"stderr_tail", truncate(res.StderrTail, 512),
	)
	return res, &ToolError{
		Tool:       inv.Tool,
		ExitCode:   res.ExitCode,
		StderrTail: res.StderrTail,
		TimedOut:   res.TimedOut,
		Err:        err,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		tail := append([]byte(nil), lw.w.Bytes()[lw.w.Len()-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
