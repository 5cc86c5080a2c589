package config

const (
	defaultWorkDir          = "~/.local/share/mergeflow/work"
	defaultLogDir           = "~/.local/share/mergeflow/logs"
	defaultOutboxDir        = "~/.local/share/mergeflow/outbox"
	defaultStateDir         = "~/.local/share/mergeflow/state"
	defaultAPIBind          = "127.0.0.1:7490"
	defaultRateLimit        = 120
	defaultFFmpeg           = "ffmpeg"
	defaultFFprobe          = "ffprobe"
	defaultToolTimeout      = 300
	defaultProgressInterval = 2
	defaultAudioCeilingMB   = 20
	defaultSampleRate       = 48000
	defaultAudioCodec       = "aac"
	defaultJanitorSchedule  = "@every 30m"
	defaultJanitorMaxAge    = 24
	defaultProgressMinMS    = 1000
	defaultProgressBurst    = 3
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	LabelSourceFilename     = "filename"
	LabelSourceCaption      = "caption"
	envAPIToken             = "MERGEFLOW_API_TOKEN"
	envNtfyTopic            = "MERGEFLOW_NTFY_TOPIC"
	envWorkDir              = "MERGEFLOW_WORK_DIR"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			OutboxDir: defaultOutboxDir,
			StateDir:  defaultStateDir,
		},
		API: API{
			Bind:               defaultAPIBind,
			RateLimitPerMinute: defaultRateLimit,
		},
		Tools: Tools{
			FFmpeg:                  defaultFFmpeg,
			FFprobe:                 defaultFFprobe,
			TimeoutSeconds:          defaultToolTimeout,
			ProgressIntervalSeconds: defaultProgressInterval,
		},
		Merge: Merge{
			AudioCeilingMB:    defaultAudioCeilingMB,
			SampleRate:        defaultSampleRate,
			LabelSource:       LabelSourceFilename,
			DefaultAudioCodec: defaultAudioCodec,
		},
		Janitor: Janitor{
			Schedule:    defaultJanitorSchedule,
			MaxAgeHours: defaultJanitorMaxAge,
		},
		Progress: Progress{
			MinIntervalMS: defaultProgressMinMS,
			Burst:         defaultProgressBurst,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
