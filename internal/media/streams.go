package media

import "strings"

// StreamKind classifies a container stream.
type StreamKind string

const (
	KindVideo    StreamKind = "video"
	KindAudio    StreamKind = "audio"
	KindSubtitle StreamKind = "subtitle"
	KindOther    StreamKind = "other"
)

// StreamInfo describes one stream found by the prober.
type StreamInfo struct {
	Kind StreamKind `json:"kind"`
	// Index is the absolute stream index in the container.
	Index int `json:"index"`
	// KindIndex is the position among streams of the same kind, as used by
	// ffmpeg selectors such as 0:a:1.
	KindIndex  int     `json:"kind_index"`
	Codec      string  `json:"codec"`
	Channels   int     `json:"channels,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Default    bool    `json:"default,omitempty"`
	// TextBased is set for subtitle streams that can be converted to SubRip.
	TextBased bool `json:"text_based,omitempty"`
}

// ProbeResult lists the streams of a file plus container-level numbers.
type ProbeResult struct {
	Streams  []StreamInfo `json:"streams"`
	Duration float64      `json:"duration"`
	Size     int64        `json:"size"`
}

// OfKind returns the streams of one kind in container order.
func (r ProbeResult) OfKind(kind StreamKind) []StreamInfo {
	var out []StreamInfo
	for _, s := range r.Streams {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of streams of one kind.
func (r ProbeResult) Count(kind StreamKind) int {
	n := 0
	for _, s := range r.Streams {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// DurationFor returns the stream duration, falling back to the container's.
func (r ProbeResult) DurationFor(s StreamInfo) float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	return r.Duration
}

var textSubtitleCodecs = map[string]struct{}{
	"subrip":    {},
	"srt":       {},
	"ass":       {},
	"ssa":       {},
	"webvtt":    {},
	"mov_text":  {},
	"text":      {},
	"microdvd":  {},
	"subviewer": {},
	"realtext":  {},
}

var imageSubtitleCodecs = map[string]struct{}{
	"hdmv_pgs_subtitle": {},
	"dvd_subtitle":      {},
	"dvb_subtitle":      {},
	"xsub":              {},
}

// IsTextSubtitle reports codecs that ffmpeg can convert to SubRip.
func IsTextSubtitle(codec string) bool {
	_, ok := textSubtitleCodecs[strings.ToLower(strings.TrimSpace(codec))]
	return ok
}

// IsImageSubtitle reports bitmap subtitle codecs, which cannot be converted.
func IsImageSubtitle(codec string) bool {
	_, ok := imageSubtitleCodecs[strings.ToLower(strings.TrimSpace(codec))]
	return ok
}
