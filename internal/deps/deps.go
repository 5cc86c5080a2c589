package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds each version probe.
const probeTimeout = 5 * time.Second

// Requirement defines an external binary mergeflow relies on. When
// VersionArg is set the binary is run with it to confirm it executes and to
// capture its version banner.
type Requirement struct {
	Name        string
	Command     string
	VersionArg  string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Check resolves every requirement on PATH and probes its version,
// concurrently. Results keep the order of requirements; available commands
// are reported by their resolved path.
func Check(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	var g errgroup.Group
	for i, req := range requirements {
		g.Go(func() error {
			results[i] = check(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func check(ctx context.Context, req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}
	status.Command = resolved
	if req.VersionArg == "" {
		status.Available = true
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, resolved, req.VersionArg).Output() //nolint:gosec
	if err != nil {
		status.Detail = fmt.Sprintf("%s %s failed: %v", resolved, req.VersionArg, err)
		return status
	}
	status.Available = true
	status.Version = parseVersion(out)
	return status
}

// parseVersion pulls the token after "version" from the first output line,
// e.g. "ffmpeg version 6.1.1-3ubuntu5 Copyright ..." yields "6.1.1-3ubuntu5".
// Without that marker the whole first line is returned.
func parseVersion(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return ""
	}
	line := strings.TrimSpace(sc.Text())
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if strings.EqualFold(fields[i], "version") {
			return fields[i+1]
		}
	}
	return line
}

// MediaTools lists the binaries every merge needs.
func MediaTools(ffmpeg, ffprobe string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			VersionArg:  "-version",
			Description: "Required for extraction, normalization and merging",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			VersionArg:  "-version",
			Description: "Required for stream inspection",
		},
	}
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
