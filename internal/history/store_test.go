package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mergeflow/internal/history"
	"mergeflow/internal/pipeline"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func summary(runID string, owner int64, finished time.Time, succeeded, failed int) pipeline.Summary {
	s := pipeline.Summary{
		RunID:      runID,
		OwnerID:    owner,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Total:      succeeded + failed,
		Succeeded:  succeeded,
		Failed:     failed,
	}
	for i := 0; i < succeeded; i++ {
		s.Outcomes = append(s.Outcomes, pipeline.PairOutcome{
			Index: i, Key: "S01E0" + string(rune('1'+i)), Status: pipeline.PairCompleted,
			Source: "src.mkv", Target: "dub.mkv", Output: "src.mkv",
			AudioInjected: true, Elapsed: 1500 * time.Millisecond,
		})
	}
	for i := succeeded; i < succeeded+failed; i++ {
		s.Outcomes = append(s.Outcomes, pipeline.PairOutcome{
			Index: i, Key: "S01E0" + string(rune('1'+i)), Status: pipeline.PairFailed,
			Error: "merge failed", ErrorKind: "merge",
			Steps: []pipeline.StepResult{
				{Stage: pipeline.StageDownloading, OK: true, Artifacts: []string{"src.mkv"}},
				{Stage: pipeline.StageMerging, Diagnostic: "mkvmerge exited 2"},
			},
		})
	}
	return s
}

func TestRecordRunAndStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.RecordRun(ctx, summary("r1", 7, base, 2, 1)); err != nil {
		t.Fatalf("record r1: %v", err)
	}
	if err := store.RecordRun(ctx, summary("r2", 7, base.Add(time.Hour), 3, 0)); err != nil {
		t.Fatalf("record r2: %v", err)
	}

	stats, ok, err := store.Stats(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("stats: ok=%v err=%v", ok, err)
	}
	if stats.Runs != 2 || stats.PairsMerged != 5 || stats.PairsFailed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.FirstRunAt.Equal(base) || !stats.LastRunAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("stats times = %v .. %v", stats.FirstRunAt, stats.LastRunAt)
	}

	runs, err := store.RecentRuns(ctx, 7, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "r2" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[1].Outcome != "completed" || runs[1].Failed != 1 {
		t.Fatalf("r1 = %+v", runs[1])
	}

	outcomes, err := store.Outcomes(ctx, "r1")
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if !outcomes[0].AudioInjected || outcomes[0].Elapsed != 1500*time.Millisecond {
		t.Fatalf("outcome 0 = %+v", outcomes[0])
	}
	if outcomes[2].Status != pipeline.PairFailed || outcomes[2].ErrorKind != "merge" {
		t.Fatalf("outcome 2 = %+v", outcomes[2])
	}
	if outcomes[0].Steps != nil {
		t.Fatalf("outcome 0 steps = %+v, want none", outcomes[0].Steps)
	}
	steps := outcomes[2].Steps
	if len(steps) != 2 || steps[1].Stage != pipeline.StageMerging || steps[1].OK || steps[1].Diagnostic != "mkvmerge exited 2" {
		t.Fatalf("outcome 2 steps = %+v", steps)
	}
}

func TestRecordRunIsIdempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	s := summary("dup", 1, time.Now(), 1, 0)
	for i := 0; i < 2; i++ {
		if err := store.RecordRun(ctx, s); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	stats, _, err := store.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Runs != 1 || stats.PairsMerged != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRecordRunRequiresID(t *testing.T) {
	store := openStore(t)
	if err := store.RecordRun(context.Background(), pipeline.Summary{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestStatsUnknownOwner(t *testing.T) {
	store := openStore(t)
	_, ok, err := store.Stats(context.Background(), 99)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestTopOwners(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()
	for i, tc := range []struct {
		owner  int64
		merged int
	}{{1, 2}, {2, 5}, {3, 1}} {
		if err := store.RecordRun(ctx, summary(string(rune('a'+i)), tc.owner, now, tc.merged, 0)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	top, err := store.TopOwners(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].OwnerID != 2 || top[1].OwnerID != 1 {
		t.Fatalf("top = %+v", top)
	}
}

func TestPruneKeepsTotals(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.RecordRun(ctx, summary("old", 4, old, 1, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordRun(ctx, summary("new", 4, time.Now(), 1, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}

	removed, err := store.Prune(ctx, old.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	outcomes, err := store.Outcomes(ctx, "old")
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("pruned run kept %d outcomes", len(outcomes))
	}
	stats, _, err := store.Stats(ctx, 4)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Runs != 2 {
		t.Fatalf("runs = %d, want 2", stats.Runs)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.RecordRun(context.Background(), summary("keep", 1, time.Now(), 1, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	runs, err := store.RecentRuns(context.Background(), 1, 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs=%v err=%v", runs, err)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("err = %v, want schema mismatch", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
