package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateJanitor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.API.RateLimitPerMinute < 0 {
		return errors.New("api.rate_limit_per_minute must be >= 0")
	}
	if c.Progress.MinIntervalMS < 0 || c.Progress.Burst < 0 {
		return errors.New("progress.min_interval_ms and progress.burst must be >= 0")
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.TimeoutSeconds <= 0 {
		return errors.New("tools.timeout_seconds must be positive")
	}
	if c.Tools.ProgressIntervalSeconds <= 0 {
		return errors.New("tools.progress_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.AudioCeilingMB <= 0 {
		return errors.New("merge.audio_ceiling_mb must be positive")
	}
	switch c.Merge.SampleRate {
	case 8000, 16000, 22050, 24000, 32000, 44100, 48000:
	default:
		return fmt.Errorf("merge.sample_rate %d is not a supported rate", c.Merge.SampleRate)
	}
	switch c.Merge.LabelSource {
	case LabelSourceFilename, LabelSourceCaption:
	default:
		return fmt.Errorf("merge.label_source must be %q or %q", LabelSourceFilename, LabelSourceCaption)
	}
	return nil
}

func (c *Config) validateJanitor() error {
	if c.Janitor.MaxAgeHours <= 0 {
		return errors.New("janitor.max_age_hours must be positive")
	}
	if _, err := cron.ParseStandard(c.Janitor.Schedule); err != nil {
		return fmt.Errorf("janitor.schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
