package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mergeflow/internal/config"
)

// ConfigOption adjusts a test configuration before its directories are
// created.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns the default configuration rooted in a fresh temp
// directory, listening on an ephemeral localhost port. Options run before
// EnsureDirectories.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	for dir, field := range map[string]*string{
		"work":   &cfg.Paths.WorkDir,
		"logs":   &cfg.Paths.LogDir,
		"outbox": &cfg.Paths.OutboxDir,
		"state":  &cfg.Paths.StateDir,
	} {
		*field = filepath.Join(base, dir)
	}
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Tools.ProgressIntervalSeconds = 1

	b := &configBuilder{t: t, baseDir: base, cfg: &cfg}
	for _, opt := range opts {
		opt(b)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithLabelSource selects filename or caption labels.
func WithLabelSource(source string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.LabelSource = source
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, binDir, name, "exit 0\n")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
