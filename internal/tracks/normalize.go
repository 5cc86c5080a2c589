package tracks

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mergeflow/internal/logging"
	"mergeflow/internal/media/ffmpeg"
	"mergeflow/internal/services"
)

const (
	normalizedBitrate = "192k"
	bitsPerByte       = 8
)

// Normalizer re-encodes extracted tracks.
type Normalizer struct {
	runner ffmpeg.Runner
	logger *slog.Logger
}

// NewNormalizer constructs a normalizer that runs ffmpeg through runner.
func NewNormalizer(runner ffmpeg.Runner, logger *slog.Logger) *Normalizer {
	return &Normalizer{runner: runner, logger: logging.NewComponentLogger(logger, "normalizer")}
}

// NormalizeAudio re-encodes the first audio stream of in to profile and
// returns the new path. Timestamps are resampled from zero so the track
// seeks cleanly once muxed.
func (n *Normalizer) NormalizeAudio(ctx context.Context, in string, profile AudioProfile) (string, error) {
	profile = profile.Normalized()
	spec := encoderFor(profile.Codec)
	out := derivedPath(in, "norm", ".mka")

	args := []string{
		"-i", in,
		"-map", "0:a:0",
		"-vn", "-sn", "-dn",
		"-c:a", spec.encoder,
		"-ac", strconv.Itoa(profile.Channels),
		"-ar", strconv.Itoa(profile.SampleRate),
	}
	if spec.lossy {
		args = append(args, "-b:a", normalizedBitrate)
	}
	args = append(args, "-af", "aresample=async=1:first_pts=0", out)

	if err := n.run(ctx, ffmpeg.OpNormalizeAudio, args, out); err != nil {
		return "", services.Wrap(services.ErrNormalize, "normalizing", "audio", filepath.Base(in), err)
	}
	logging.WithContext(ctx, n.logger).Debug("audio normalized",
		logging.String("input", in),
		logging.String("output", out),
		logging.String("codec", profile.Codec),
		logging.Int("channels", profile.Channels),
		logging.Int("sample_rate", profile.SampleRate),
	)
	return out, nil
}

// TargetBitrate computes the bitrate in kbps that fits durationSec seconds
// into ceilingBytes, clamped to [64,256] for the low-overhead family and
// [96,320] otherwise.
func TargetBitrate(ceilingBytes int64, durationSec float64, codec string) int {
	lo, hi := 96, 320
	if LowOverhead(codec) {
		lo, hi = 64, 256
	}
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return lo
	}
	kbps := math.Floor(float64(ceilingBytes) * bitsPerByte / (durationSec * 1000))
	switch {
	case kbps < float64(lo):
		return lo
	case kbps > float64(hi):
		return hi
	default:
		return int(kbps)
	}
}

// EnforceSizeCeiling returns path unchanged when it already fits under
// ceilingBytes or the duration is unknown. Otherwise it re-encodes once at
// TargetBitrate and returns the compressed path. Compression is best effort:
// on failure the original path is returned.
func (n *Normalizer) EnforceSizeCeiling(ctx context.Context, path string, durationSec float64, ceilingBytes int64, codec string) string {
	logger := logging.WithContext(ctx, n.logger).With(logging.String("input", path))
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("size check failed", logging.Error(err))
		return path
	}
	if ceilingBytes <= 0 || info.Size() <= ceilingBytes {
		return path
	}
	if durationSec <= 0 || math.IsNaN(durationSec) {
		logger.Warn("track exceeds size ceiling but duration is unknown",
			logging.Int64("size_bytes", info.Size()),
			logging.Int64("ceiling_bytes", ceilingBytes),
		)
		return path
	}

	spec := compressionEncoder(codec)
	kbps := TargetBitrate(ceilingBytes, durationSec, spec.codec)
	out := derivedPath(path, "ceil", ".mka")
	args := []string{
		"-i", path,
		"-map", "0:a:0",
		"-c:a", spec.encoder,
		"-b:a", fmt.Sprintf("%dk", kbps),
		out,
	}
	if err := n.run(ctx, ffmpeg.OpCompressAudio, args, out); err != nil {
		logger.Warn("compression failed; keeping original track",
			logging.Error(err),
			logging.Int("bitrate_kbps", kbps),
			logging.String(logging.FieldImpact, "injected audio exceeds size ceiling"),
		)
		return path
	}
	logger.Info("audio compressed to fit ceiling",
		logging.Int64("size_bytes", info.Size()),
		logging.Int64("ceiling_bytes", ceilingBytes),
		logging.Int("bitrate_kbps", kbps),
		logging.String("output", out),
	)
	return out
}

// NormalizeSubtitle converts the first subtitle stream of in to SubRip at
// out. No size ceiling applies.
func (n *Normalizer) NormalizeSubtitle(ctx context.Context, in, out string) (string, error) {
	if out == "" {
		out = derivedPath(in, "norm", ".srt")
	}
	args := []string{"-i", in, "-map", "0:s:0", "-c:s", "srt", out}
	if err := n.run(ctx, ffmpeg.OpConvertSubtitle, args, out); err != nil {
		return "", services.Wrap(services.ErrNormalize, "normalizing", "subtitle", filepath.Base(in), err)
	}
	return out, nil
}

// run executes one encode and verifies a non-empty output. Any failure
// removes the partial output.
func (n *Normalizer) run(ctx context.Context, op string, args []string, out string) error {
	res, err := n.runner.Run(ctx, ffmpeg.Invocation{Operation: op, Args: ffmpeg.CommonArgs(args...)})
	if err != nil {
		removeQuietly(out)
		return err
	}
	if !res.OK() {
		removeQuietly(out)
		return fmt.Errorf("exit %d: %s", res.ExitCode, res.Diagnostic)
	}
	info, err := os.Stat(out)
	if err != nil {
		removeQuietly(out)
		return fmt.Errorf("missing output: %w", err)
	}
	if info.Size() == 0 {
		removeQuietly(out)
		return fmt.Errorf("empty output")
	}
	return nil
}

// derivedPath places a sibling of path with a tag and new extension.
func derivedPath(path, tag, ext string) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return stem + "." + tag + ext
}
