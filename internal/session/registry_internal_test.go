package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/pipeline"
)

type countingRunner struct{ runs atomic.Int32 }

func (c *countingRunner) Run(_ context.Context, req pipeline.Request) pipeline.Summary {
	c.runs.Add(1)
	return pipeline.Summary{RunID: req.RunID, OwnerID: req.OwnerID}
}

func TestOwnerLocksArePruned(t *testing.T) {
	reg := NewRegistry(context.Background(), &countingRunner{}, Options{}, logging.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for owner := int64(1); owner <= 20; owner++ {
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := reg.Start(ctx, owner, ""); err != nil {
					t.Errorf("start owner %d: %v", owner, err)
				}
				_, _ = reg.AddFile(owner, media.FileSpec{Name: "a.mkv", Handle: "h"})
			}()
		}
	}
	wg.Wait()

	for owner := int64(1); owner <= 20; owner++ {
		if _, err := reg.Cancel(ctx, owner); err != nil {
			t.Fatalf("cancel owner %d: %v", owner, err)
		}
	}

	reg.mu.Lock()
	owners, sessions := len(reg.owners), len(reg.sessions)
	reg.mu.Unlock()
	if owners != 0 || sessions != 0 {
		t.Fatalf("owner locks = %d, sessions = %d, want 0 and 0", owners, sessions)
	}
}

func TestBeginRefusesStoppedSession(t *testing.T) {
	runner := &countingRunner{}
	reg := NewRegistry(context.Background(), runner, Options{}, logging.NewNop())

	s := newSession(7, media.LabelFromFilename)
	spec := media.FileSpec{Name: "Show S01E01.mkv", Handle: "h"}
	s.sources = []media.File{media.NewFile(spec, media.LabelFromFilename)}
	s.targets = []media.File{media.NewFile(spec, media.LabelFromFilename)}
	s.phase = PhaseCollectingTarget

	if err := s.stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if reg.begin(s) {
		t.Fatal("a stopped session must not start processing")
	}
	if err := reg.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if n := runner.runs.Load(); n != 0 {
		t.Fatalf("runner called %d times, want 0", n)
	}
	snap := s.snapshot()
	if snap.Phase != PhaseTerminated || !snap.Cancelled || snap.RunID != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
