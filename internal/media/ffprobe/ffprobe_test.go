package ffprobe

import (
	"errors"
	"math"
	"testing"
)

const samplePayload = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 6, "duration": "1420.5",
     "tags": {"LANGUAGE": "jpn"}, "disposition": {"default": 1}},
    {"index": 2, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "eng"}}
  ],
  "format": {"duration": "1421.0", "size": "734003200"}
}`

func TestDecode(t *testing.T) {
	result, err := Decode([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.StreamCount("video") != 1 || result.StreamCount("AUDIO") != 1 || result.StreamCount("subtitle") != 1 {
		t.Fatalf("unexpected stream counts: %+v", result.Streams)
	}
	audio := result.Streams[1]
	if audio.Language() != "jpn" {
		t.Fatalf("expected case-insensitive language tag, got %q", audio.Language())
	}
	if !audio.IsDefault() || result.Streams[2].IsDefault() {
		t.Fatal("unexpected default dispositions")
	}
	if audio.DurationSeconds() != 1420.5 {
		t.Fatalf("unexpected stream duration %v", audio.DurationSeconds())
	}
	if result.DurationSeconds() != 1421 || result.SizeBytes() != 734003200 {
		t.Fatalf("unexpected format values: %v %d", result.DurationSeconds(), result.SizeBytes())
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Decode([]byte(`{"streams": [], "format": {}}`)); !errors.Is(err, ErrNoStreams) {
		t.Fatalf("expected ErrNoStreams, got %v", err)
	}
}

func TestInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if (Stream{Duration: "N/A"}).DurationSeconds() != 0 {
		t.Fatal("expected unparseable stream duration to read as 0")
	}
}
