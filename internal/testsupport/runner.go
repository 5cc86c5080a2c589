package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"mergeflow/internal/media/ffmpeg"
)

// FakeRunner is an in-process ffmpeg.Runner. Probe invocations answer from
// Probes; every other invocation writes a file at its last argument.
type FakeRunner struct {
	// Probes maps a path, a base name, or a base-name suffix to ffprobe JSON.
	Probes map[string]string
	// OutputSizes sets the bytes written per operation (default 1024).
	OutputSizes map[string]int64
	// Failures maps an operation to the exit code it should report.
	Failures map[string]int
	// Errors maps an operation to an error returned by its next call only,
	// the way ffmpeg.ExecRunner reports a tool timeout.
	Errors map[string]error
	// Delay is slept on every call before the result is produced.
	Delay time.Duration
	// OnRun observes every invocation before it runs.
	OnRun func(ffmpeg.Invocation)

	mu    sync.Mutex
	calls []ffmpeg.Invocation
}

// NewFakeRunner returns a runner with empty tables.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Probes:      map[string]string{},
		OutputSizes: map[string]int64{},
		Failures:    map[string]int{},
		Errors:      map[string]error{},
	}
}

// Run implements ffmpeg.Runner with the same cancellation contract as
// ffmpeg.ExecRunner: a started call completes before the context is checked.
func (f *FakeRunner) Run(ctx context.Context, inv ffmpeg.Invocation) (ffmpeg.Result, error) {
	if err := ctx.Err(); err != nil {
		return ffmpeg.Result{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	hook, delay := f.OnRun, f.Delay
	injected, hasErr := f.Errors[inv.Operation]
	if hasErr {
		delete(f.Errors, inv.Operation)
	}
	f.mu.Unlock()

	if hook != nil {
		hook(inv)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if hasErr {
		return ffmpeg.Result{ExitCode: -1}, injected
	}
	result := f.result(inv)
	if err := ctx.Err(); err != nil {
		return ffmpeg.Result{}, err
	}
	return result, nil
}

// Calls returns every invocation seen so far.
func (f *FakeRunner) Calls() []ffmpeg.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the invocations of one operation.
func (f *FakeRunner) CallsFor(operation string) []ffmpeg.Invocation {
	var out []ffmpeg.Invocation
	for _, call := range f.Calls() {
		if call.Operation == operation {
			out = append(out, call)
		}
	}
	return out
}

func (f *FakeRunner) result(inv ffmpeg.Invocation) ffmpeg.Result {
	if len(inv.Args) == 0 {
		return ffmpeg.Result{ExitCode: 1, Diagnostic: "no arguments"}
	}
	target := inv.Args[len(inv.Args)-1]

	if inv.CaptureStdout {
		payload, ok := f.probeFor(target)
		if !ok {
			return ffmpeg.Result{ExitCode: 1, Diagnostic: target + ": No such file or directory"}
		}
		return ffmpeg.Result{Stdout: []byte(payload)}
	}

	f.mu.Lock()
	code, failing := f.Failures[inv.Operation]
	size, sized := f.OutputSizes[inv.Operation]
	f.mu.Unlock()
	if failing {
		return ffmpeg.Result{ExitCode: code, Diagnostic: "simulated " + inv.Operation + " failure"}
	}
	if !sized {
		size = 1024
	}
	if err := writeSparse(target, size); err != nil {
		return ffmpeg.Result{ExitCode: 1, Diagnostic: err.Error()}
	}
	return ffmpeg.Result{}
}

func (f *FakeRunner) probeFor(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payload, ok := f.Probes[path]; ok {
		return payload, true
	}
	base := filepath.Base(path)
	if payload, ok := f.Probes[base]; ok {
		return payload, true
	}
	keys := make([]string, 0, len(f.Probes))
	for key := range f.Probes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if strings.HasSuffix(base, key) {
			return f.Probes[key], true
		}
	}
	return "", false
}

func writeSparse(path string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
