package preflight

import (
	"context"

	"mergeflow/internal/config"
	"mergeflow/internal/deps"
)

// MinWorkFreeBytes is the free space the work directory must have. A pair
// holds a source, a target, extracted tracks and the output at once.
const MinWorkFreeBytes int64 = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinWorkFreeBytes),
		CheckDirectoryAccess("Outbox directory", cfg.Paths.OutboxDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Command}
		if status.Detail != "" {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// CheckSystemDeps evaluates the external binaries configured in cfg. Both
// the daemon and the CLI status command use it.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.Check(ctx, deps.MediaTools(cfg.Tools.FFmpeg, cfg.Tools.FFprobe))
}
