package tracks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/media/ffmpeg"
)

// Extractor demuxes one stream into an isolated file.
type Extractor struct {
	runner ffmpeg.Runner
	logger *slog.Logger
}

// NewExtractor constructs an extractor that runs ffmpeg through runner.
func NewExtractor(runner ffmpeg.Runner, logger *slog.Logger) *Extractor {
	return &Extractor{runner: runner, logger: logging.NewComponentLogger(logger, "extractor")}
}

// codecArgs stream-copies unless a subtitle is written to a SubRip file.
// mov_text cannot be copied into Matroska, so callers extract it as .srt.
func codecArgs(kind media.StreamKind, out string) []string {
	if kind == media.KindSubtitle && strings.EqualFold(filepath.Ext(out), ".srt") {
		return []string{"-c:s", "srt", out}
	}
	return []string{"-c", "copy", out}
}

// Extract copies stream kindIndex of the given kind from path into out. A
// subtitle bound for a .srt file is converted instead of copied.
// It returns false when the stream is missing, the container is unreadable,
// the call was cancelled, or the output is empty; partial output is removed.
func (e *Extractor) Extract(ctx context.Context, path string, kind media.StreamKind, kindIndex int, out string) bool {
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String("input", path),
		logging.String("kind", string(kind)),
		logging.Int("kind_index", kindIndex),
	)

	var op, selector string
	switch kind {
	case media.KindAudio:
		op, selector = ffmpeg.OpExtractAudio, fmt.Sprintf("0:a:%d", kindIndex)
	case media.KindSubtitle:
		op, selector = ffmpeg.OpExtractSubtitle, fmt.Sprintf("0:s:%d", kindIndex)
	default:
		logger.Warn("unsupported stream kind for extraction")
		return false
	}
	if kindIndex < 0 || out == "" {
		logger.Warn("invalid extraction request", logging.String("output", out))
		return false
	}

	res, err := e.runner.Run(ctx, ffmpeg.Invocation{
		Operation: op,
		Args:      ffmpeg.CommonArgs(append([]string{"-i", path, "-map", selector}, codecArgs(kind, out)...)...),
	})
	if err != nil {
		removeQuietly(out)
		logger.Warn("extraction did not run", logging.Error(err))
		return false
	}
	if !res.OK() {
		removeQuietly(out)
		logger.Warn("extraction failed",
			logging.Int("exit_code", res.ExitCode),
			logging.String("diagnostic", res.Diagnostic),
		)
		return false
	}
	info, statErr := os.Stat(out)
	if statErr != nil || info.Size() == 0 {
		removeQuietly(out)
		logger.Warn("extraction produced no data", logging.String("output", out))
		return false
	}
	logger.Debug("stream extracted",
		logging.String("output", out),
		logging.Int64("size_bytes", info.Size()),
		logging.Duration("elapsed", res.Elapsed),
	)
	return true
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
