package tracks

import (
	"strings"

	"mergeflow/internal/media"
)

// DefaultSampleRate applies when neither the profile nor the base stream
// names one.
const DefaultSampleRate = 48000

// AudioProfile is the encoding an injected audio track is normalized to.
type AudioProfile struct {
	Codec      string
	Channels   int
	SampleRate int
}

type encoderSpec struct {
	codec   string
	encoder string
	lossy   bool
}

var encoders = map[string]encoderSpec{
	"aac":    {codec: "aac", encoder: "aac", lossy: true},
	"ac3":    {codec: "ac3", encoder: "ac3", lossy: true},
	"eac3":   {codec: "eac3", encoder: "eac3", lossy: true},
	"opus":   {codec: "opus", encoder: "libopus", lossy: true},
	"mp3":    {codec: "mp3", encoder: "libmp3lame", lossy: true},
	"vorbis": {codec: "vorbis", encoder: "libvorbis", lossy: true},
	"flac":   {codec: "flac", encoder: "flac"},
}

// ProfileFor derives the profile from the base file's first audio stream.
// A base without audio uses fallbackCodec, stereo, and sampleRate.
func ProfileFor(base []media.StreamInfo, fallbackCodec string, sampleRate int) AudioProfile {
	for _, s := range base {
		if s.Kind != media.KindAudio {
			continue
		}
		rate := s.SampleRate
		if rate <= 0 {
			rate = sampleRate
		}
		return AudioProfile{Codec: s.Codec, Channels: s.Channels, SampleRate: rate}.Normalized()
	}
	return AudioProfile{Codec: fallbackCodec, Channels: 2, SampleRate: sampleRate}.Normalized()
}

// Normalized clamps channels to [1,2], replaces codecs without a known
// encoder by AAC, and fills in the sample rate. Opus only runs at 48 kHz.
func (p AudioProfile) Normalized() AudioProfile {
	spec := encoderFor(p.Codec)
	p.Codec = spec.codec
	switch {
	case p.Channels <= 0:
		p.Channels = 2
	case p.Channels > 2:
		p.Channels = 2
	}
	if p.SampleRate <= 0 || p.Codec == "opus" {
		p.SampleRate = DefaultSampleRate
	}
	return p
}

func encoderFor(codec string) encoderSpec {
	if spec, ok := encoders[strings.ToLower(strings.TrimSpace(codec))]; ok {
		return spec
	}
	return encoders["aac"]
}

// compressionEncoder picks the encoder for a bitrate-capped re-encode.
// Lossless codecs cannot honour a bitrate, so they compress to AAC.
func compressionEncoder(codec string) encoderSpec {
	spec := encoderFor(codec)
	if !spec.lossy {
		return encoders["aac"]
	}
	return spec
}

// LowOverhead reports codecs that stay transparent at low bitrates.
func LowOverhead(codec string) bool {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "opus", "libopus", "vorbis", "libvorbis":
		return true
	default:
		return false
	}
}
