package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	OutboxDir string `toml:"outbox_dir"`
	StateDir  string `toml:"state_dir"`
}

// API contains the HTTP control surface settings.
type API struct {
	Bind               string `toml:"bind"`
	Token              string `toml:"token"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
}

// Tools contains external media tool settings.
type Tools struct {
	FFmpeg                  string `toml:"ffmpeg"`
	FFprobe                 string `toml:"ffprobe"`
	TimeoutSeconds          int    `toml:"timeout_seconds"`
	ProgressIntervalSeconds int    `toml:"progress_interval_seconds"`
}

// Merge contains track normalization and merge settings.
type Merge struct {
	AudioCeilingMB    int    `toml:"audio_ceiling_mb"`
	SampleRate        int    `toml:"sample_rate"`
	LabelSource       string `toml:"label_source"`
	DefaultAudioCodec string `toml:"default_audio_codec"`
}

// Janitor contains the stale work directory sweep settings.
type Janitor struct {
	Schedule    string `toml:"schedule"`
	MaxAgeHours int    `toml:"max_age_hours"`
}

// Progress contains progress event throttling settings.
type Progress struct {
	MinIntervalMS int `toml:"min_interval_ms"`
	Burst         int `toml:"burst"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mergeflow.
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Tools         Tools         `toml:"tools"`
	Merge         Merge         `toml:"merge"`
	Janitor       Janitor       `toml:"janitor"`
	Progress      Progress      `toml:"progress"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// ConfigPathEnv names an environment variable that selects the config file
// when no explicit path is given.
const ConfigPathEnv = "MERGEFLOW_CONFIG"

// DefaultConfigPath returns mergeflow/config.toml under the user config
// directory ($XDG_CONFIG_HOME, falling back to ~/.config).
func DefaultConfigPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return ExpandPath(filepath.Join(xdg, "mergeflow", "config.toml"))
	}
	return ExpandPath("~/.config/mergeflow/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory is loaded first so its variables can feed the
// environment overrides. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// resolveConfigPath picks the config file. An explicit path (flag, then
// $MERGEFLOW_CONFIG) is used whether or not it exists; otherwise the first
// existing file among the user config path and ./mergeflow.toml wins, and
// the user config path is reported when neither exists.
func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		ok, err := isFile(expanded)
		if err != nil {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, ok, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("mergeflow.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return !info.IsDir(), nil
	}
}

// EnsureDirectories creates the directories the daemon and CLI write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.OutboxDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ToolTimeout bounds a single ffmpeg/ffprobe invocation.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// ProgressInterval is the period of progress ticks emitted during tool runs.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Tools.ProgressIntervalSeconds) * time.Second
}

// AudioCeilingBytes is the size limit for a normalized audio track.
func (c *Config) AudioCeilingBytes() int64 {
	return int64(c.Merge.AudioCeilingMB) * 1024 * 1024
}

// JanitorMaxAge is the age after which an unlocked work directory is swept.
func (c *Config) JanitorMaxAge() time.Duration {
	return time.Duration(c.Janitor.MaxAgeHours) * time.Hour
}

// HistoryPath is the sqlite database that records run statistics.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath guards against two daemons sharing one state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mergeflow.lock")
}

// ExpandPath resolves environment variables and a leading "~" in a
// configured path and returns it absolute. Empty input stays empty.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	value = os.ExpandEnv(value)
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, value[1:])
	}
	abs, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// CreateSample atomically writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending config: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.WriteString(sampleConfig); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration.
func Sample() string {
	return sampleConfig
}
