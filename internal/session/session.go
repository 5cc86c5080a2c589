package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"mergeflow/internal/media"
	"mergeflow/internal/pipeline"
)

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseCollectingSource Phase = "collecting_source"
	PhaseCollectingTarget Phase = "collecting_target"
	PhaseProcessing       Phase = "processing"
	PhaseTerminated       Phase = "terminated"
)

// Session is the state of one owner's session.
type Session struct {
	ownerID     int64
	labelSource media.LabelSource
	createdAt   time.Time

	mu              sync.Mutex
	phase           Phase
	sources         []media.File
	targets         []media.File
	awaitingConfirm bool
	runID           string
	summary         *pipeline.Summary
	cancelled       bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(ownerID int64, labelSource media.LabelSource) *Session {
	return &Session{
		ownerID:     ownerID,
		labelSource: labelSource,
		createdAt:   time.Now(),
		phase:       PhaseCollectingSource,
	}
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	OwnerID         int64             `json:"owner_id"`
	Phase           Phase             `json:"phase"`
	LabelSource     media.LabelSource `json:"label_source"`
	Sources         []media.FileSpec  `json:"sources"`
	Targets         []media.FileSpec  `json:"targets"`
	AwaitingConfirm bool              `json:"awaiting_confirm"`
	Cancelled       bool              `json:"cancelled"`
	RunID           string            `json:"run_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Summary         *pipeline.Summary `json:"summary,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		OwnerID:         s.ownerID,
		Phase:           s.phase,
		LabelSource:     s.labelSource,
		Sources:         specs(s.sources),
		Targets:         specs(s.targets),
		AwaitingConfirm: s.awaitingConfirm,
		Cancelled:       s.cancelled,
		RunID:           s.runID,
		CreatedAt:       s.createdAt,
	}
	if s.summary != nil {
		sum := *s.summary
		sum.Outcomes = slices.Clone(sum.Outcomes)
		snap.Summary = &sum
	}
	return snap
}

func specs(files []media.File) []media.FileSpec {
	out := make([]media.FileSpec, 0, len(files))
	for _, f := range files {
		out = append(out, f.Spec())
	}
	return out
}

// stop signals the session and waits for its run, if any, to finish its
// cleanup. It returns early when ctx ends.
func (s *Session) stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancelled = true
	cancel, done := s.cancel, s.done
	if done == nil {
		s.phase = PhaseTerminated
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
