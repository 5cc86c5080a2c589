package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeMerge()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Janitor.Schedule = strings.TrimSpace(c.Janitor.Schedule)
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = defaultJanitorSchedule
	}
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv(envAPIToken); ok && c.API.Token == "" {
		c.API.Token = value
	}
	if value, ok := os.LookupEnv(envNtfyTopic); ok && c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = value
	}
	if value, ok := os.LookupEnv(envWorkDir); ok && strings.TrimSpace(value) != "" {
		c.Paths.WorkDir = value
	}
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.outbox_dir", &c.Paths.OutboxDir, defaultOutboxDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := ExpandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
}

func (c *Config) normalizeMerge() {
	c.Merge.LabelSource = strings.ToLower(strings.TrimSpace(c.Merge.LabelSource))
	if c.Merge.LabelSource == "" {
		c.Merge.LabelSource = LabelSourceFilename
	}
	c.Merge.DefaultAudioCodec = strings.ToLower(strings.TrimSpace(c.Merge.DefaultAudioCodec))
	if c.Merge.DefaultAudioCodec == "" {
		c.Merge.DefaultAudioCodec = defaultAudioCodec
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
