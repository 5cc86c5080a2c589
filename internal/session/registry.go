package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"mergeflow/internal/logging"
	"mergeflow/internal/matcher"
	"mergeflow/internal/media"
	"mergeflow/internal/metrics"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/services"
)

// Runner executes one pipeline run. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Summary
}

// Options configure a Registry.
type Options struct {
	// LabelSource is the default label mode for new sessions.
	LabelSource media.LabelSource
	// Sink builds the progress sink for a run. Nil discards events.
	Sink func(ownerID int64, runID string) pipeline.Sink
	// OnStarted observes every run as it enters processing.
	OnStarted func(ownerID int64, runID string, pairs int)
	// OnFinished observes every completed run after it is recorded.
	OnFinished func(pipeline.Summary)
}

// AdvanceResult reports the outcome of an advance signal.
type AdvanceResult struct {
	Snapshot Snapshot `json:"session"`
	// Warning is set when processing needs an explicit confirmation.
	Warning string `json:"warning,omitempty"`
}

// Registry holds at most one session per owner.
type Registry struct {
	base   context.Context
	runner Runner
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
	owners   map[int64]*ownerMutex

	runs sync.WaitGroup
}

// NewRegistry constructs a registry whose runs derive from base, so
// cancelling base stops every run.
func NewRegistry(base context.Context, runner Runner, opts Options, logger *slog.Logger) *Registry {
	if opts.LabelSource == "" {
		opts.LabelSource = media.LabelFromFilename
	}
	return &Registry{
		base:     base,
		runner:   runner,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "sessions"),
		sessions: make(map[int64]*Session),
		owners:   make(map[int64]*ownerMutex),
	}
}

// ownerMutex counts the callers holding or waiting on one owner's lock.
type ownerMutex struct {
	sync.Mutex
	refs int
}

// lockOwner serializes every operation for one owner and returns the
// unlock func. The entry is dropped once no caller holds or waits on it.
func (r *Registry) lockOwner(ownerID int64) func() {
	r.mu.Lock()
	m, ok := r.owners[ownerID]
	if !ok {
		m = &ownerMutex{}
		r.owners[ownerID] = m
	}
	m.refs++
	r.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		r.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(r.owners, ownerID)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) lookup(ownerID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ownerID]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "session", "lookup", fmt.Sprintf("no session for owner %d", ownerID), nil)
	}
	return s, nil
}

func (r *Registry) remove(ownerID int64, s *Session) {
	r.mu.Lock()
	if current, ok := r.sessions[ownerID]; ok && current == s {
		delete(r.sessions, ownerID)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetSessionsActive(n)
}

// Start opens a fresh session for owner. An existing session is cancelled
// and its cleanup awaited first. An empty labelSource uses the default.
func (r *Registry) Start(ctx context.Context, ownerID int64, labelSource media.LabelSource) (Snapshot, error) {
	defer r.lockOwner(ownerID)()

	if old, err := r.lookup(ownerID); err == nil {
		r.logger.Info("superseding existing session",
			logging.Int64(logging.FieldOwnerID, ownerID),
			logging.String("phase", string(old.snapshot().Phase)),
		)
		if err := old.stop(ctx); err != nil {
			return Snapshot{}, services.Wrap(services.ErrConflict, "session", "start", "previous session still shutting down", err)
		}
		r.remove(ownerID, old)
	}

	switch labelSource {
	case "":
		labelSource = r.opts.LabelSource
	case media.LabelFromFilename, media.LabelFromCaption:
	default:
		return Snapshot{}, services.Wrap(services.ErrValidation, "session", "start", fmt.Sprintf("unknown label source %q", labelSource), nil)
	}

	s := newSession(ownerID, labelSource)
	r.mu.Lock()
	r.sessions[ownerID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetSessionsActive(n)

	r.logger.Info("session started",
		logging.Int64(logging.FieldOwnerID, ownerID),
		logging.String("label_source", string(labelSource)),
		logging.String(logging.FieldEventType, "session_started"),
	)
	return s.snapshot(), nil
}

// AddFile appends a file to the list the session is collecting.
func (r *Registry) AddFile(ownerID int64, spec media.FileSpec) (Snapshot, error) {
	defer r.lockOwner(ownerID)()

	s, err := r.lookup(ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	if spec.Handle == "" {
		return Snapshot{}, services.Wrap(services.ErrValidation, "session", "add file", "file handle is required", nil)
	}

	s.mu.Lock()
	file := media.NewFile(spec, s.labelSource)
	switch s.phase {
	case PhaseCollectingSource:
		s.sources = append(s.sources, file)
	case PhaseCollectingTarget:
		s.targets = append(s.targets, file)
		s.awaitingConfirm = false
	default:
		phase := s.phase
		s.mu.Unlock()
		return Snapshot{}, services.Wrap(services.ErrConflict, "session", "add file", fmt.Sprintf("session is %s", phase), nil)
	}
	s.mu.Unlock()

	if file.LabelFallback() {
		r.logger.Debug("caption missing; parsed filename instead",
			logging.Int64(logging.FieldOwnerID, ownerID),
			logging.String("name", file.Name()),
		)
	}
	return s.snapshot(), nil
}

// Advance moves the session forward. Advancing from target collection with
// unequal file counts returns a warning and waits for Confirm or Cancel.
func (r *Registry) Advance(ownerID int64) (AdvanceResult, error) {
	defer r.lockOwner(ownerID)()

	s, err := r.lookup(ownerID)
	if err != nil {
		return AdvanceResult{}, err
	}

	s.mu.Lock()
	switch s.phase {
	case PhaseCollectingSource:
		if len(s.sources) == 0 {
			s.mu.Unlock()
			return AdvanceResult{}, services.Wrap(services.ErrValidation, "session", "advance", "no source files collected", nil)
		}
		s.phase = PhaseCollectingTarget
		s.mu.Unlock()
		return AdvanceResult{Snapshot: s.snapshot()}, nil

	case PhaseCollectingTarget:
		if len(s.targets) == 0 {
			s.mu.Unlock()
			return AdvanceResult{}, services.Wrap(services.ErrValidation, "session", "advance", "no target files collected", nil)
		}
		if len(s.sources) != len(s.targets) {
			s.awaitingConfirm = true
			warning := fmt.Sprintf("%d source files but %d target files; confirm to continue or cancel", len(s.sources), len(s.targets))
			s.mu.Unlock()
			return AdvanceResult{Snapshot: s.snapshot(), Warning: warning}, nil
		}
		s.mu.Unlock()
		if !r.begin(s) {
			return AdvanceResult{}, errStopped("advance")
		}
		return AdvanceResult{Snapshot: s.snapshot()}, nil

	default:
		phase := s.phase
		s.mu.Unlock()
		return AdvanceResult{}, services.Wrap(services.ErrConflict, "session", "advance", fmt.Sprintf("session is %s", phase), nil)
	}
}

// Confirm starts processing after a count-mismatch warning.
func (r *Registry) Confirm(ownerID int64) (Snapshot, error) {
	defer r.lockOwner(ownerID)()

	s, err := r.lookup(ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	if s.phase != PhaseCollectingTarget || !s.awaitingConfirm {
		s.mu.Unlock()
		return Snapshot{}, services.Wrap(services.ErrConflict, "session", "confirm", "nothing to confirm", nil)
	}
	s.mu.Unlock()
	if !r.begin(s) {
		return Snapshot{}, errStopped("confirm")
	}
	return s.snapshot(), nil
}

// Cancel terminates the owner's session in any phase and waits for its
// cleanup, or until ctx ends.
func (r *Registry) Cancel(ctx context.Context, ownerID int64) (Snapshot, error) {
	defer r.lockOwner(ownerID)()

	s, err := r.lookup(ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.stop(ctx); err != nil {
		return s.snapshot(), services.Wrap(services.ErrTimeout, "session", "cancel", "cleanup still running", err)
	}
	r.remove(ownerID, s)
	r.logger.Info("session cancelled",
		logging.Int64(logging.FieldOwnerID, ownerID),
		logging.String(logging.FieldEventType, "session_cancelled"),
	)
	return s.snapshot(), nil
}

// Get returns the owner's current session.
func (r *Registry) Get(ownerID int64) (Snapshot, error) {
	s, err := r.lookup(ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// List returns every registered session ordered by owner.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		switch {
		case a.OwnerID < b.OwnerID:
			return -1
		case a.OwnerID > b.OwnerID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Done returns a channel closed when the owner's run finishes, or nil when
// the owner has no running session.
func (r *Registry) Done(ownerID int64) <-chan struct{} {
	s, err := r.lookup(ownerID)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown cancels every session and waits for all runs to finish.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.stop(ctx); err != nil {
			return err
		}
		r.remove(s.ownerID, s)
	}

	waited := make(chan struct{})
	go func() {
		r.runs.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errStopped(op string) error {
	return services.Wrap(services.ErrConflict, "session", op, "session was cancelled", nil)
}

// begin moves s to processing and launches its run. It returns false when
// s was stopped first, which Shutdown can do without the owner lock. The
// caller holds the owner lock.
func (r *Registry) begin(s *Session) bool {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(r.base)
	runID := uuid.NewString()
	s.phase = PhaseProcessing
	s.awaitingConfirm = false
	s.runID = runID
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	match := matcher.Match(s.sources, s.targets)
	s.mu.Unlock()

	var sink pipeline.Sink = pipeline.NopSink{}
	if r.opts.Sink != nil {
		sink = r.opts.Sink(s.ownerID, runID)
	}

	r.logger.Info("processing started",
		logging.Int64(logging.FieldOwnerID, s.ownerID),
		logging.String(logging.FieldRunID, runID),
		logging.Int(logging.FieldPairCount, len(match.Valid())),
		logging.String(logging.FieldEventType, "processing_started"),
	)

	if r.opts.OnStarted != nil {
		r.opts.OnStarted(s.ownerID, runID, len(match.Valid()))
	}

	r.runs.Add(1)
	go func() {
		defer r.runs.Done()
		defer close(done)
		defer cancel()

		summary := r.runner.Run(ctx, pipeline.Request{
			OwnerID: s.ownerID,
			RunID:   runID,
			Match:   match,
			Sink:    sink,
		})

		s.mu.Lock()
		s.phase = PhaseTerminated
		s.summary = &summary
		s.mu.Unlock()
		r.remove(s.ownerID, s)

		if r.opts.OnFinished != nil {
			r.opts.OnFinished(summary)
		}
	}()
	return true
}
