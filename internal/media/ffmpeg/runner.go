package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mergeflow/internal/logging"
	"mergeflow/internal/metrics"
	"mergeflow/internal/services"
)

// Operation names label invocations in logs and metrics.
const (
	OpProbe           = "probe"
	OpExtractAudio    = "extract_audio"
	OpExtractSubtitle = "extract_subtitle"
	OpNormalizeAudio  = "normalize_audio"
	OpCompressAudio   = "compress_audio"
	OpConvertSubtitle = "convert_subtitle"
	OpMerge           = "merge"
)

const (
	// DefaultTimeout bounds one tool invocation.
	DefaultTimeout = 300 * time.Second
	// DiagnosticLimit caps the diagnostic text kept from a failed call.
	DiagnosticLimit = 500
	stderrCapture   = 64 * 1024
	waitDelay       = 5 * time.Second
)

// Invocation describes one tool call.
type Invocation struct {
	Operation     string
	Args          []string
	CaptureStdout bool
}

// Result reports how a tool call ended. A non-zero exit is a Result, not an
// error; errors are reserved for calls that could not run or timed out.
type Result struct {
	ExitCode   int
	Stdout     []byte
	Diagnostic string
	Elapsed    time.Duration
}

// OK reports a zero exit status.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Runner executes tool invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs a binary as a child process.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExecRunner constructs a runner for binary with the given timeout.
func NewExecRunner(binary string, timeout time.Duration, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{
		Binary:  binary,
		Timeout: timeout,
		Logger:  logging.NewComponentLogger(logger, "tool-runner"),
	}
}

// Run executes the invocation. A context that is already done prevents the
// call from starting; a context cancelled mid-call is honoured only after the
// process exits.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	binary := strings.TrimSpace(r.Binary)
	if binary == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "", inv.Operation, "tool binary not configured", nil)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	toolCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(toolCtx, binary, inv.Args...)
	cmd.WaitDelay = waitDelay
	var stdout bytes.Buffer
	if inv.CaptureStdout {
		cmd.Stdout = &stdout
	}
	stderr := &cappedBuffer{limit: stderrCapture}
	cmd.Stderr = stderr

	logger := logging.WithContext(ctx, r.Logger)
	logger.Debug("tool invocation started",
		logging.String("binary", binary),
		logging.String("operation", inv.Operation),
		logging.String("args", strings.Join(inv.Args, " ")),
	)

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Stdout:     stdout.Bytes(),
		Diagnostic: services.Truncate(stderr.String(), DiagnosticLimit),
		Elapsed:    time.Since(start),
	}

	if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
		metrics.ObserveToolCall(inv.Operation, "timeout")
		return result, services.Wrap(services.ErrTimeout, "", inv.Operation,
			fmt.Sprintf("%s exceeded %s", binary, timeout), toolCtx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			metrics.ObserveToolCall(inv.Operation, "error")
			return result, services.Wrap(services.ErrExternalTool, "", inv.Operation, "start "+binary, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	if result.OK() {
		metrics.ObserveToolCall(inv.Operation, "ok")
	} else {
		metrics.ObserveToolCall(inv.Operation, "exit")
	}
	if err := ctx.Err(); err != nil {
		logger.Debug("tool result discarded after cancellation",
			logging.String("operation", inv.Operation),
			logging.Duration("elapsed", result.Elapsed),
		)
		return Result{}, err
	}

	logger.Debug("tool invocation finished",
		logging.String("operation", inv.Operation),
		logging.Int("exit_code", result.ExitCode),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// CommonArgs prefixes ffmpeg arguments with the flags every call shares:
// quiet banner, no stdin, overwrite outputs, errors-only logging.
func CommonArgs(args ...string) []string {
	out := make([]string, 0, len(args)+6)
	out = append(out, "-hide_banner", "-nostdin", "-y", "-v", "error")
	return append(out, args...)
}

// cappedBuffer keeps the first limit bytes written to it and drops the rest
// while still reporting full writes so the child never blocks.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
