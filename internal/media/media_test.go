package media_test

import (
	"context"
	"errors"
	"testing"

	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/services"
	"mergeflow/internal/testsupport"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "AAC", "codec_type": "audio", "channels": 6, "sample_rate": "48000",
     "duration": "1420.5", "tags": {"language": "jpn"}, "disposition": {"default": 1}},
    {"index": 2, "codec_name": "hdmv_pgs_subtitle", "codec_type": "subtitle", "tags": {"LANGUAGE": "eng"}},
    {"index": 3, "codec_name": "ass", "codec_type": "subtitle"},
    {"index": 4, "codec_name": "ttf", "codec_type": "attachment"}
  ],
  "format": {"duration": "1421.0", "size": "734003200"}
}`

func TestNewFileLabelModes(t *testing.T) {
	spec := media.FileSpec{Name: "Show.S02E05.720p.mkv", Caption: "Show episode 9", Handle: "/in/a.mkv"}

	byName := media.NewFile(spec, media.LabelFromFilename)
	if got := byName.Key().String(); got != "S02E05" {
		t.Fatalf("filename mode key = %s, want S02E05", got)
	}
	if byName.Info().Quality != 720 {
		t.Fatalf("quality = %d, want 720", byName.Info().Quality)
	}

	byCaption := media.NewFile(spec, media.LabelFromCaption)
	if got := byCaption.Key().String(); got != "S01E09" {
		t.Fatalf("caption mode key = %s, want S01E09", got)
	}
	if byCaption.LabelFallback() {
		t.Fatal("caption present, fallback should be false")
	}

	spec.Caption = "  "
	fallback := media.NewFile(spec, media.LabelFromCaption)
	if !fallback.LabelFallback() || fallback.Label() != spec.Name {
		t.Fatalf("expected filename fallback, got label %q fallback=%v", fallback.Label(), fallback.LabelFallback())
	}
}

func TestFileOutputName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Show.S01E01.mp4", "Show.S01E01.mkv"},
		{"Show: Part 1?.avi", "Show- Part 1.mkv"},
		{"already.mkv", "already.mkv"},
		{"???", "S01E00.mkv"},
	}
	for _, tt := range tests {
		file := media.NewFile(media.FileSpec{Name: tt.name}, media.LabelFromFilename)
		if got := file.OutputName(); got != tt.want {
			t.Fatalf("OutputName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestProbeClassifiesStreams(t *testing.T) {
	runner := testsupport.NewFakeRunner()
	runner.Probes["episode.mkv"] = sampleProbe
	prober := media.NewProber(runner, logging.NewNop())

	result, err := prober.Probe(context.Background(), "/work/episode.mkv")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.Count(media.KindVideo) != 1 || result.Count(media.KindAudio) != 1 || result.Count(media.KindSubtitle) != 2 {
		t.Fatalf("unexpected stream counts: %+v", result.Streams)
	}
	if result.Size != 734003200 || result.Duration != 1421.0 {
		t.Fatalf("container numbers = %d/%v", result.Size, result.Duration)
	}

	audio := result.OfKind(media.KindAudio)[0]
	if audio.Codec != "aac" || audio.Channels != 6 || audio.SampleRate != 48000 || audio.Language != "jpn" || !audio.Default {
		t.Fatalf("audio stream = %+v", audio)
	}
	if audio.KindIndex != 0 || audio.Index != 1 {
		t.Fatalf("audio indexes = %d/%d", audio.Index, audio.KindIndex)
	}

	subs := result.OfKind(media.KindSubtitle)
	if subs[0].TextBased || subs[0].Language != "eng" {
		t.Fatalf("pgs subtitle = %+v", subs[0])
	}
	if !subs[1].TextBased || subs[1].KindIndex != 1 {
		t.Fatalf("ass subtitle = %+v", subs[1])
	}
	if got := result.DurationFor(subs[1]); got != 1421.0 {
		t.Fatalf("DurationFor fallback = %v", got)
	}
}

func TestProbeFailures(t *testing.T) {
	runner := testsupport.NewFakeRunner()
	runner.Probes["empty.mkv"] = `{"streams": [], "format": {}}`
	runner.Probes["broken.mkv"] = `{"streams": [`
	prober := media.NewProber(runner, logging.NewNop())

	for _, path := range []string{"/w/missing.mkv", "/w/empty.mkv", "/w/broken.mkv", ""} {
		_, err := prober.Probe(context.Background(), path)
		if !errors.Is(err, services.ErrProbe) {
			t.Fatalf("Probe(%q) error = %v, want ErrProbe", path, err)
		}
	}
}

func TestProbeCancelledBeforeStart(t *testing.T) {
	runner := testsupport.NewFakeRunner()
	runner.Probes["episode.mkv"] = sampleProbe
	prober := media.NewProber(runner, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := prober.Probe(ctx, "/work/episode.mkv"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(runner.Calls()) != 0 {
		t.Fatal("runner should not be invoked after cancellation")
	}
}

func TestSubtitleCodecFamilies(t *testing.T) {
	for _, codec := range []string{"subrip", "SRT", "webvtt", "mov_text"} {
		if !media.IsTextSubtitle(codec) {
			t.Fatalf("%s should be text based", codec)
		}
	}
	for _, codec := range []string{"hdmv_pgs_subtitle", "dvd_subtitle", "xsub"} {
		if media.IsTextSubtitle(codec) || !media.IsImageSubtitle(codec) {
			t.Fatalf("%s should be image based", codec)
		}
	}
}
