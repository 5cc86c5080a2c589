package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"mergeflow/internal/logging"
	"mergeflow/internal/media/ffmpeg"
	"mergeflow/internal/media/ffprobe"
	"mergeflow/internal/services"
)

// Prober lists the streams of local media files.
type Prober struct {
	runner ffmpeg.Runner
	logger *slog.Logger
}

// NewProber constructs a prober that executes ffprobe through runner.
func NewProber(runner ffmpeg.Runner, logger *slog.Logger) *Prober {
	return &Prober{runner: runner, logger: logging.NewComponentLogger(logger, "prober")}
}

// Probe inspects path. Any tool failure, malformed payload, or payload with
// no streams is reported as services.ErrProbe.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, services.Wrap(services.ErrProbe, "analyzing", "ffprobe", "empty path", nil)
	}
	res, err := p.runner.Run(ctx, ffmpeg.Invocation{
		Operation:     ffmpeg.OpProbe,
		Args:          ffprobe.Args(path),
		CaptureStdout: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ProbeResult{}, ctx.Err()
		}
		return ProbeResult{}, services.Wrap(services.ErrProbe, "analyzing", "ffprobe", "invocation failed", err)
	}
	if !res.OK() {
		return ProbeResult{}, services.Wrap(services.ErrProbe, "analyzing", "ffprobe",
			fmt.Sprintf("exit %d: %s", res.ExitCode, res.Diagnostic), nil)
	}
	decoded, err := ffprobe.Decode(res.Stdout)
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrProbe, "analyzing", "ffprobe", "decode payload", err)
	}

	result := FromFFprobe(decoded)
	logging.WithContext(ctx, p.logger).Debug("probe complete",
		logging.String("path", path),
		logging.Int("video_streams", result.Count(KindVideo)),
		logging.Int("audio_streams", result.Count(KindAudio)),
		logging.Int("subtitle_streams", result.Count(KindSubtitle)),
	)
	return result, nil
}

// FromFFprobe converts a decoded ffprobe payload.
func FromFFprobe(decoded ffprobe.Result) ProbeResult {
	result := ProbeResult{Size: decoded.SizeBytes()}
	if d := decoded.DurationSeconds(); !math.IsNaN(d) && d > 0 {
		result.Duration = d
	}
	counters := map[StreamKind]int{}
	for _, s := range decoded.Streams {
		kind := kindOf(s.CodecType)
		info := StreamInfo{
			Kind:      kind,
			Index:     s.Index,
			KindIndex: counters[kind],
			Codec:     strings.ToLower(strings.TrimSpace(s.CodecName)),
			Channels:  s.Channels,
			Language:  s.Language(),
			Duration:  s.DurationSeconds(),
			Default:   s.IsDefault(),
		}
		if rate, err := strconv.Atoi(strings.TrimSpace(s.SampleRate)); err == nil {
			info.SampleRate = rate
		}
		if kind == KindSubtitle {
			info.TextBased = IsTextSubtitle(info.Codec)
		}
		counters[kind]++
		result.Streams = append(result.Streams, info)
	}
	return result
}

func kindOf(codecType string) StreamKind {
	switch strings.ToLower(strings.TrimSpace(codecType)) {
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	case "subtitle":
		return KindSubtitle
	default:
		return KindOther
	}
}
