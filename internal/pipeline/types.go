package pipeline

import (
	"context"
	"time"

	"mergeflow/internal/matcher"
	"mergeflow/internal/media"
	"mergeflow/internal/merger"
	"mergeflow/internal/tracks"
)

// ProgressFunc receives transfer progress. total is 0 when unknown.
type ProgressFunc func(done, total int64)

// Transport moves content in and out of the run.
type Transport interface {
	// Download writes the content of file to dest and returns the final path.
	Download(ctx context.Context, file media.File, dest string, progress ProgressFunc) (string, error)
	// Upload delivers the file at path with caption.
	Upload(ctx context.Context, path, caption string, progress ProgressFunc) error
}

// Sink receives run progress. Event is best effort and may be throttled;
// Finished is delivered exactly once per run.
type Sink interface {
	Event(Event)
	Finished(Summary)
}

// Prober lists the streams of a file.
type Prober interface {
	Probe(ctx context.Context, path string) (media.ProbeResult, error)
}

// Extractor demuxes one stream.
type Extractor interface {
	Extract(ctx context.Context, path string, kind media.StreamKind, kindIndex int, out string) bool
}

// Normalizer re-encodes extracted tracks.
type Normalizer interface {
	NormalizeAudio(ctx context.Context, in string, profile tracks.AudioProfile) (string, error)
	EnforceSizeCeiling(ctx context.Context, path string, durationSec float64, ceilingBytes int64, codec string) string
	NormalizeSubtitle(ctx context.Context, in, out string) (string, error)
}

// Merger produces the output container.
type Merger interface {
	Merge(ctx context.Context, req merger.Request) (merger.Result, error)
}

// Stage names a step as reported to the sink.
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageAnalyzing   Stage = "analyzing"
	StageExtracting  Stage = "extracting"
	StageNormalizing Stage = "normalizing"
	StageMerging     Stage = "merging"
	StageUploading   Stage = "uploading"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
	StageCancelled   Stage = "cancelled"
)

// Terminal reports stages that end a pair.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// Event is one progress report.
type Event struct {
	RunID     string `json:"run_id"`
	OwnerID   int64  `json:"owner_id"`
	Stage     Stage  `json:"stage"`
	PairIndex int    `json:"pair_index"`
	PairTotal int    `json:"pair_total"`
	Key       string `json:"key"`
	FileName  string `json:"file_name"`
	// Percent is the progress within the stage, or -1 when unknown.
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Time      time.Time `json:"time"`
}

// PairStatus is the final state of one pair.
type PairStatus string

const (
	PairCompleted PairStatus = "completed"
	PairFailed    PairStatus = "failed"
	PairCancelled PairStatus = "cancelled"
)

// PairOutcome reports how one pair ended.
type PairOutcome struct {
	Index            int           `json:"index"`
	Key              string        `json:"key"`
	Source           string        `json:"source"`
	Target           string        `json:"target"`
	Output           string        `json:"output,omitempty"`
	Status           PairStatus    `json:"status"`
	Error            string        `json:"error,omitempty"`
	ErrorKind        string        `json:"error_kind,omitempty"`
	AudioInjected    bool          `json:"audio_injected"`
	SubtitleInjected bool          `json:"subtitle_injected"`
	Elapsed          time.Duration `json:"elapsed"`
	Steps            []StepResult  `json:"steps,omitempty"`
}

// StepResult records how one step of a pair ended. Artifacts are file names
// inside the pair's work directory and no longer exist once the run ends.
type StepResult struct {
	Stage      Stage    `json:"stage"`
	OK         bool     `json:"ok"`
	Artifacts  []string `json:"artifacts,omitempty"`
	Diagnostic string   `json:"diagnostic,omitempty"`
}

// Summary is delivered once when a run ends.
type Summary struct {
	RunID             string        `json:"run_id"`
	OwnerID           int64         `json:"owner_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Total             int           `json:"total"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	Cancelled         bool          `json:"cancelled"`
	UnmatchedSources  int           `json:"unmatched_sources"`
	UnmatchedTargets  int           `json:"unmatched_targets"`
	DroppedDuplicates int           `json:"dropped_duplicates"`
	Outcomes          []PairOutcome `json:"outcomes"`
	// Error is set when the run itself failed rather than a single pair.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Outcome labels the run for metrics and history.
func (s Summary) Outcome() string {
	switch {
	case s.Cancelled:
		return "cancelled"
	case s.Error != "":
		return "failed"
	default:
		return "completed"
	}
}

// Request describes one run.
type Request struct {
	OwnerID int64
	RunID   string
	Match   matcher.Result
	Sink    Sink
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Event(Event)      {}
func (NopSink) Finished(Summary) {}
