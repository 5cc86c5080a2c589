package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mergeflow/internal/config"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(config.ConfigPathEnv, "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".config", "mergeflow", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	wantWork := filepath.Join(tempHome, ".local", "share", "mergeflow", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.ToolTimeout() != 300*time.Second {
		t.Fatalf("unexpected tool timeout %s", cfg.ToolTimeout())
	}
	if cfg.AudioCeilingBytes() != 20*1024*1024 {
		t.Fatalf("unexpected ceiling %d", cfg.AudioCeilingBytes())
	}
	if cfg.Merge.LabelSource != config.LabelSourceFilename {
		t.Fatalf("unexpected label source %q", cfg.Merge.LabelSource)
	}
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("MERGEFLOW_API_TOKEN", "secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
work_dir = "` + filepath.Join(dir, "work") + `"

[merge]
audio_ceiling_mb = 5
label_source = "Caption"

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WorkDir != filepath.Join(dir, "work") {
		t.Fatalf("unexpected work dir %q", cfg.Paths.WorkDir)
	}
	if cfg.Merge.AudioCeilingMB != 5 {
		t.Fatalf("unexpected ceiling %d", cfg.Merge.AudioCeilingMB)
	}
	if cfg.Merge.LabelSource != config.LabelSourceCaption {
		t.Fatalf("label source not normalized: %q", cfg.Merge.LabelSource)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format not normalized: %q", cfg.Logging.Format)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.API.Token)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[merge]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"zero ceiling", func(c *config.Config) { c.Merge.AudioCeilingMB = 0 }, "audio_ceiling_mb"},
		{"bad label source", func(c *config.Config) { c.Merge.LabelSource = "title" }, "label_source"},
		{"odd sample rate", func(c *config.Config) { c.Merge.SampleRate = 12345 }, "sample_rate"},
		{"zero timeout", func(c *config.Config) { c.Tools.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"bad schedule", func(c *config.Config) { c.Janitor.Schedule = "every tuesday" }, "janitor.schedule"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutboxDir = filepath.Join(base, "outbox")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.LogDir, cfg.Paths.OutboxDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestConfigPathFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv(config.ConfigPathEnv, "")
	if got, err := config.DefaultConfigPath(); err != nil || got != filepath.Join(xdg, "mergeflow", "config.toml") {
		t.Fatalf("DefaultConfigPath = %q, %v", got, err)
	}

	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(explicit, []byte("[merge]\naudio_ceiling_mb = 40\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MERGEFLOW_TEST_DIR", dir)
	t.Setenv(config.ConfigPathEnv, "$MERGEFLOW_TEST_DIR/custom.toml")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != explicit {
		t.Fatalf("resolved %q exists=%v, want %q", resolved, exists, explicit)
	}
	if cfg.Merge.AudioCeilingMB != 40 {
		t.Fatalf("audio ceiling = %d, want 40", cfg.Merge.AudioCeilingMB)
	}
}
