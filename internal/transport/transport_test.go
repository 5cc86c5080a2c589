package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/services"
	"mergeflow/internal/transport"
)

func newLocal(t *testing.T) (*transport.Local, string) {
	t.Helper()
	outbox := filepath.Join(t.TempDir(), "outbox")
	l, err := transport.NewLocal(outbox, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	return l, outbox
}

type progressLog struct {
	mu    sync.Mutex
	calls [][2]int64
}

func (p *progressLog) fn(done, total int64) {
	p.mu.Lock()
	p.calls = append(p.calls, [2]int64{done, total})
	p.mu.Unlock()
}

func (p *progressLog) last() [2]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return [2]int64{-1, -1}
	}
	return p.calls[len(p.calls)-1]
}

func TestDownloadLocalPathAndFileURL(t *testing.T) {
	l, _ := newLocal(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "Show S01E01.mkv")
	content := strings.Repeat("x", 3<<20)
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, handle := range []string{src, "file://" + src} {
		dest := filepath.Join(dir, "dest.mkv")
		var prog progressLog
		file := media.NewFile(media.FileSpec{Name: "Show S01E01.mkv", Handle: handle}, media.LabelFromFilename)
		got, err := l.Download(context.Background(), file, dest, prog.fn)
		if err != nil {
			t.Fatalf("download %s: %v", handle, err)
		}
		if got != dest {
			t.Fatalf("path = %s, want %s", got, dest)
		}
		data, err := os.ReadFile(dest)
		if err != nil || len(data) != len(content) {
			t.Fatalf("dest size = %d err=%v", len(data), err)
		}
		if last := prog.last(); last[0] != int64(len(content)) || last[1] != int64(len(content)) {
			t.Fatalf("last progress = %v", last)
		}
		_ = os.Remove(dest)
	}
}

func TestDownloadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep1.mkv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	l, _ := newLocal(t)
	dest := filepath.Join(t.TempDir(), "target.mkv")
	file := media.NewFile(media.FileSpec{Name: "ep1.mkv", Handle: srv.URL + "/ep1.mkv"}, media.LabelFromFilename)
	if _, err := l.Download(context.Background(), file, dest, nil); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "remote-bytes" {
		t.Fatalf("content = %q", data)
	}

	missing := media.NewFile(media.FileSpec{Name: "ep2.mkv", Handle: srv.URL + "/ep2.mkv?token=secret"}, media.LabelFromFilename)
	_, err := l.Download(context.Background(), missing, dest, nil)
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("err = %v, want download error", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks query string: %v", err)
	}
}

func TestDownloadFailures(t *testing.T) {
	l, _ := newLocal(t)
	dest := filepath.Join(t.TempDir(), "d.mkv")

	empty := media.NewFile(media.FileSpec{Name: "x.mkv"}, media.LabelFromFilename)
	if _, err := l.Download(context.Background(), empty, dest, nil); !errors.Is(err, services.ErrDownload) {
		t.Fatalf("empty handle err = %v", err)
	}
	missing := media.NewFile(media.FileSpec{Name: "x.mkv", Handle: "/does/not/exist.mkv"}, media.LabelFromFilename)
	if _, err := l.Download(context.Background(), missing, dest, nil); !errors.Is(err, services.ErrDownload) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("partial download left behind: %v", err)
	}
}

func TestDownloadHonoursCancellation(t *testing.T) {
	l, _ := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	file := media.NewFile(media.FileSpec{Name: "x.mkv", Handle: "/dev/null"}, media.LabelFromFilename)
	if _, err := l.Download(ctx, file, filepath.Join(t.TempDir(), "d"), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUploadDeliversIntoOutbox(t *testing.T) {
	l, outbox := newLocal(t)
	src := filepath.Join(t.TempDir(), "Show S01E01.mkv")
	if err := os.WriteFile(src, []byte("merged"), 0o644); err != nil {
		t.Fatal(err)
	}

	var prog progressLog
	if err := l.Upload(context.Background(), src, "Show - Episode 1 [Dual Audio]", prog.fn); err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outbox, "Show S01E01.mkv"))
	if err != nil || string(data) != "merged" {
		t.Fatalf("outbox content = %q err=%v", data, err)
	}
	caption, err := os.ReadFile(filepath.Join(outbox, "Show S01E01.mkv.caption.txt"))
	if err != nil || strings.TrimSpace(string(caption)) != "Show - Episode 1 [Dual Audio]" {
		t.Fatalf("caption = %q err=%v", caption, err)
	}
	if last := prog.last(); last[0] != 6 {
		t.Fatalf("last progress = %v", last)
	}

	entries, _ := os.ReadDir(outbox)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temporary file left in outbox: %s", e.Name())
		}
	}
}

func TestUploadSkipsCaptionMatchingName(t *testing.T) {
	l, outbox := newLocal(t)
	src := filepath.Join(t.TempDir(), "out.mkv")
	if err := os.WriteFile(src, []byte("m"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Upload(context.Background(), src, "out.mkv", nil); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outbox, "out.mkv.caption.txt")); !os.IsNotExist(err) {
		t.Fatalf("unexpected caption sidecar: %v", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	l, _ := newLocal(t)
	err := l.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.mkv"), "", nil)
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("err = %v, want upload error", err)
	}
}

func TestNewLocalRequiresOutbox(t *testing.T) {
	if _, err := transport.NewLocal("", 0, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

type countingSink struct {
	mu       sync.Mutex
	events   []pipeline.Event
	finished int
}

func (c *countingSink) Event(e pipeline.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *countingSink) Finished(pipeline.Summary) {
	c.mu.Lock()
	c.finished++
	c.mu.Unlock()
}

func TestThrottledSinkDropsBurstButKeepsMilestones(t *testing.T) {
	next := &countingSink{}
	sink := transport.NewThrottledSink(next, time.Hour, 1)

	sink.Event(pipeline.Event{PairIndex: 0, Stage: pipeline.StageDownloading, Percent: 0})
	for i := 1; i <= 50; i++ {
		sink.Event(pipeline.Event{PairIndex: 0, Stage: pipeline.StageDownloading, Percent: float64(i)})
	}
	sink.Event(pipeline.Event{PairIndex: 0, Stage: pipeline.StageMerging})
	sink.Event(pipeline.Event{PairIndex: 0, Stage: pipeline.StageCompleted})
	sink.Event(pipeline.Event{PairIndex: 0, Stage: pipeline.StageCompleted})
	sink.Finished(pipeline.Summary{})

	next.mu.Lock()
	defer next.mu.Unlock()
	var stages []pipeline.Stage
	for _, e := range next.events {
		stages = append(stages, e.Stage)
	}
	// Stage entry, one budgeted tick, the merge entry and both terminal events.
	if len(next.events) != 5 {
		t.Fatalf("forwarded %d events: %v", len(next.events), stages)
	}
	if stages[len(stages)-1] != pipeline.StageCompleted {
		t.Fatalf("terminal event dropped: %v", stages)
	}
	if next.finished != 1 {
		t.Fatalf("finished = %d", next.finished)
	}
}

func TestThrottledSinkUnlimited(t *testing.T) {
	next := &countingSink{}
	sink := transport.NewThrottledSink(next, 0, 0)
	for i := 0; i < 20; i++ {
		sink.Event(pipeline.Event{Stage: pipeline.StageNormalizing, Percent: -1})
	}
	if len(next.events) != 20 {
		t.Fatalf("forwarded %d, want 20", len(next.events))
	}
}

func TestHubRetainsRecentEvents(t *testing.T) {
	hub := transport.NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Event(pipeline.Event{OwnerID: 1, RunID: "a", PairIndex: i})
	}
	hub.Event(pipeline.Event{OwnerID: 2, RunID: "b"})

	got := hub.Recent(1, 0)
	if len(got) != 3 || got[0].PairIndex != 2 || got[2].PairIndex != 4 {
		t.Fatalf("recent = %+v", got)
	}
	if got := hub.Recent(1, 1); len(got) != 1 || got[0].PairIndex != 4 {
		t.Fatalf("recent(1) = %+v", got)
	}

	hub.Event(pipeline.Event{OwnerID: 1, RunID: "c"})
	if got := hub.Recent(1, 0); len(got) != 1 || got[0].RunID != "c" {
		t.Fatalf("new run did not reset buffer: %+v", got)
	}

	if _, ok := hub.LastSummary(1); ok {
		t.Fatal("unexpected summary")
	}
	hub.Finished(pipeline.Summary{OwnerID: 1, RunID: "c", Total: 2})
	if s, ok := hub.LastSummary(1); !ok || s.Total != 2 {
		t.Fatalf("summary = %+v ok=%v", s, ok)
	}
}
