package ffprobe

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Result is the subset of `ffprobe -show_format -show_streams` output that
// track selection and the audio ceiling need.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Duration    string            `json:"duration"`
	SampleRate  string            `json:"sample_rate"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
	Disposition map[string]int    `json:"disposition"`
}

// Format is the container section. ffprobe reports numbers as strings.
type Format struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// ErrNoStreams reports a payload that decoded but listed no streams.
var ErrNoStreams = errors.New("ffprobe: no streams")

// Args returns the ffprobe arguments that produce the JSON payload Decode expects.
func Args(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
}

// Decode parses an ffprobe JSON payload. A payload with zero streams is an
// error since nothing downstream can use it.
func Decode(payload []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	if len(result.Streams) == 0 {
		return Result{}, ErrNoStreams
	}
	return result, nil
}

// StreamCount returns the number of streams of the given codec type.
func (r Result) StreamCount(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, 0 when absent,
// or NaN when the value is not a number.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// DurationSeconds returns the stream duration, falling back to 0 when the
// stream does not report one.
func (s Stream) DurationSeconds() float64 {
	d := parseFloat(s.Duration)
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

// Tag returns a stream tag by case-insensitive key. Matroska muxers write
// "language" while some MP4 muxers write "LANGUAGE".
func (s Stream) Tag(key string) string {
	if v, ok := s.Tags[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range s.Tags {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Language returns the stream's language tag, if any.
func (s Stream) Language() string { return s.Tag("language") }

// IsDefault reports the default disposition flag.
func (s Stream) IsDefault() bool {
	return s.Disposition["default"] == 1
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
