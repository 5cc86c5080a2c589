package merger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mergeflow/internal/language"
	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/media/ffmpeg"
	"mergeflow/internal/services"
)

// Track is an external stream file to inject.
type Track struct {
	Path string
	// Language is any recognised code; empty leaves the tag unset.
	Language string
}

// Request describes one merge.
type Request struct {
	BasePath string
	// BaseStreams are the probed streams of BasePath. They decide whether an
	// injected track becomes the default and which stream indices it lands on.
	BaseStreams []media.StreamInfo
	Audio       *Track
	Subtitle    *Track
	OutputPath  string
}

// Result reports a completed merge.
type Result struct {
	OutputPath       string
	AudioInjected    bool
	SubtitleInjected bool
	SizeBytes        int64
	Elapsed          time.Duration
}

// Merger drives ffmpeg remux calls.
type Merger struct {
	runner ffmpeg.Runner
	logger *slog.Logger
}

// New constructs a merger that runs ffmpeg through runner.
func New(runner ffmpeg.Runner, logger *slog.Logger) *Merger {
	return &Merger{runner: runner, logger: logging.NewComponentLogger(logger, "merger")}
}

// Merge produces req.OutputPath. A non-zero exit is reported as
// services.ErrMerge carrying the truncated diagnostic.
func (m *Merger) Merge(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.BasePath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "merging", "merge", "base and output paths are required", nil)
	}
	if _, err := os.Stat(req.BasePath); err != nil {
		return Result{}, services.Wrap(services.ErrMerge, "merging", "stat base", req.BasePath, err)
	}
	for _, track := range []*Track{req.Audio, req.Subtitle} {
		if track == nil {
			continue
		}
		if _, err := os.Stat(track.Path); err != nil {
			return Result{}, services.Wrap(services.ErrMerge, "merging", "stat track", track.Path, err)
		}
	}

	tmpPath := filepath.Join(filepath.Dir(req.OutputPath), ".merge-"+filepath.Base(req.OutputPath)+".tmp")
	args := BuildArgs(req, tmpPath)

	logger := logging.WithContext(ctx, m.logger)
	logger.Debug("executing merge",
		logging.String("base", req.BasePath),
		logging.Bool("inject_audio", req.Audio != nil),
		logging.Bool("inject_subtitle", req.Subtitle != nil),
	)

	res, err := m.runner.Run(ctx, ffmpeg.Invocation{Operation: ffmpeg.OpMerge, Args: args})
	if err != nil {
		_ = os.Remove(tmpPath)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, services.Wrap(services.ErrMerge, "merging", "ffmpeg", "invocation failed", err)
	}
	if !res.OK() {
		_ = os.Remove(tmpPath)
		return Result{}, services.Wrap(services.ErrMerge, "merging", "ffmpeg",
			fmt.Sprintf("exit %d: %s", res.ExitCode, services.Truncate(res.Diagnostic, ffmpeg.DiagnosticLimit)), nil)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmpPath)
		return Result{}, services.Wrap(services.ErrMerge, "merging", "verify", "ffmpeg produced no output", err)
	}
	if err := os.Rename(tmpPath, req.OutputPath); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, services.Wrap(services.ErrMerge, "merging", "rename", req.OutputPath, err)
	}

	logger.Info("merge complete",
		logging.String(logging.FieldEventType, "merge_complete"),
		logging.String("output", req.OutputPath),
		logging.Int64("size_bytes", info.Size()),
		logging.Duration("elapsed", res.Elapsed),
	)
	return Result{
		OutputPath:       req.OutputPath,
		AudioInjected:    req.Audio != nil,
		SubtitleInjected: req.Subtitle != nil,
		SizeBytes:        info.Size(),
		Elapsed:          res.Elapsed,
	}, nil
}

// BuildArgs constructs the ffmpeg arguments for req writing to outputPath.
func BuildArgs(req Request, outputPath string) []string {
	baseAudio, baseSubs := 0, 0
	var movText []int
	for _, s := range req.BaseStreams {
		switch s.Kind {
		case media.KindAudio:
			baseAudio++
		case media.KindSubtitle:
			if s.Codec == "mov_text" {
				movText = append(movText, baseSubs)
			}
			baseSubs++
		}
	}

	args := []string{"-i", req.BasePath}
	audioInput, subInput := -1, -1
	next := 1
	if req.Audio != nil {
		args = append(args, "-i", req.Audio.Path)
		audioInput = next
		next++
	}
	if req.Subtitle != nil {
		args = append(args, "-i", req.Subtitle.Path)
		subInput = next
	}

	args = append(args, "-map", "0:v", "-map", "0:a?", "-map", "0:s?", "-map", "0:t?")
	if audioInput > 0 {
		args = append(args, "-map", strconv.Itoa(audioInput)+":a:0")
	}
	if subInput > 0 {
		args = append(args, "-map", strconv.Itoa(subInput)+":s:0")
	}

	args = append(args, "-c", "copy")
	for _, idx := range movText {
		args = append(args, "-c:s:"+strconv.Itoa(idx), "srt")
	}

	if req.Audio != nil {
		args = append(args, trackOptions("a", baseAudio, req.Audio.Language)...)
	}
	if req.Subtitle != nil {
		args = append(args, trackOptions("s", baseSubs, req.Subtitle.Language)...)
	}

	args = append(args,
		"-max_interleave_delta", "0",
		"-avoid_negative_ts", "make_zero",
		"-f", "matroska",
		outputPath,
	)
	return ffmpeg.CommonArgs(args...)
}

// trackOptions sets disposition and language for the injected stream, which
// lands right after the base streams of the same kind. It is the default
// only when the base has none of that kind.
func trackOptions(kind string, baseCount int, lang string) []string {
	spec := kind + ":" + strconv.Itoa(baseCount)
	disposition := "0"
	if baseCount == 0 {
		disposition = "default"
	}
	opts := []string{"-disposition:" + spec, disposition}
	if strings.TrimSpace(lang) != "" {
		if code := language.ToISO3(lang); code != "und" {
			opts = append(opts,
				"-metadata:s:"+spec, "language="+code,
				"-metadata:s:"+spec, "title="+language.DisplayName(lang),
			)
		}
	}
	return opts
}
