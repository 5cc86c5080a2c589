package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"mergeflow/internal/config"
	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/media/ffmpeg"
	"mergeflow/internal/merger"
	"mergeflow/internal/metrics"
	"mergeflow/internal/services"
	"mergeflow/internal/tracks"
	"mergeflow/internal/workdir"
)

// Options tune a run.
type Options struct {
	WorkRoot         string
	CeilingBytes     int64
	SampleRate       int
	DefaultCodec     string
	ProgressInterval time.Duration
}

// Deps are the collaborators a run drives.
type Deps struct {
	Transport  Transport
	Prober     Prober
	Extractor  Extractor
	Normalizer Normalizer
	Merger     Merger
}

// Orchestrator runs the per-pair pipeline.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New constructs an orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if deps.Transport == nil || deps.Prober == nil || deps.Extractor == nil || deps.Normalizer == nil || deps.Merger == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "transport, prober, extractor, normalizer, and merger are required", nil)
	}
	if strings.TrimSpace(opts.WorkRoot) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "work root is required", nil)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = tracks.DefaultSampleRate
	}
	if opts.DefaultCodec == "" {
		opts.DefaultCodec = "aac"
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// NewFromConfig wires the ffmpeg-backed collaborators described by cfg.
func NewFromConfig(cfg *config.Config, transport Transport, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config is required", nil)
	}
	probeRunner := ffmpeg.NewExecRunner(cfg.Tools.FFprobe, cfg.ToolTimeout(), logger)
	toolRunner := ffmpeg.NewExecRunner(cfg.Tools.FFmpeg, cfg.ToolTimeout(), logger)
	return New(Deps{
		Transport:  transport,
		Prober:     media.NewProber(probeRunner, logger),
		Extractor:  tracks.NewExtractor(toolRunner, logger),
		Normalizer: tracks.NewNormalizer(toolRunner, logger),
		Merger:     merger.New(toolRunner, logger),
	}, Options{
		WorkRoot:         cfg.Paths.WorkDir,
		CeilingBytes:     cfg.AudioCeilingBytes(),
		SampleRate:       cfg.Merge.SampleRate,
		DefaultCodec:     cfg.Merge.DefaultAudioCodec,
		ProgressInterval: cfg.ProgressInterval(),
	}, logger)
}

// Run processes every valid pair of req.Match in key order and returns the
// summary it delivered to req.Sink. The run's work directory is released
// before Run returns, including after a panic.
func (o *Orchestrator) Run(ctx context.Context, req Request) (summary Summary) {
	sink := req.Sink
	if sink == nil {
		sink = NopSink{}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	ctx = services.WithOwnerID(ctx, req.OwnerID)
	ctx = services.WithRunID(ctx, req.RunID)
	logger := logging.WithContext(ctx, o.logger)

	pairs := req.Match.Valid()
	summary = Summary{
		RunID:             req.RunID,
		OwnerID:           req.OwnerID,
		StartedAt:         time.Now(),
		Total:             len(pairs),
		UnmatchedSources:  req.Match.UnmatchedSources,
		UnmatchedTargets:  req.Match.UnmatchedTargets,
		DroppedDuplicates: req.Match.DroppedDuplicates(),
	}
	metrics.RunStarted()

	var scope *workdir.Scope
	defer func() {
		if r := recover(); r != nil {
			summary.Error = fmt.Sprintf("internal error: %v", r)
			summary.ErrorKind = "internal"
			logger.Error("pipeline panic",
				logging.String(logging.FieldEventType, "pipeline_panic"),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldImpact, "run aborted"),
			)
		}
		if scope != nil {
			if err := scope.Release(); err != nil {
				logger.Warn("failed to release run directory",
					logging.Error(err),
					logging.String(logging.FieldEventType, "workdir_release_failed"),
					logging.String(logging.FieldErrorHint, "the janitor will retry on its next sweep"),
				)
			}
		}
		summary.FinishedAt = time.Now()
		metrics.RunFinished(summary.Outcome())
		sink.Finished(summary)
		logger.Info("run finished",
			logging.String(logging.FieldEventType, "run_finished"),
			logging.String("outcome", summary.Outcome()),
			logging.Int("succeeded", summary.Succeeded),
			logging.Int("failed", summary.Failed),
			logging.Int(logging.FieldPairCount, summary.Total),
			logging.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
		)
	}()

	if n := summary.DroppedDuplicates; n > 0 {
		logging.WarnWithContext(logger, "duplicate episode keys dropped", "duplicates_dropped",
			logging.Int("count", n),
			logging.String(logging.FieldImpact, "later files sharing a season/episode were ignored"),
			logging.String(logging.FieldErrorHint, "send one file per episode"),
		)
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int(logging.FieldPairCount, len(pairs)),
		logging.Int("unmatched_sources", summary.UnmatchedSources),
		logging.Int("unmatched_targets", summary.UnmatchedTargets),
	)

	if err := ctx.Err(); err != nil {
		summary.Cancelled = true
		return summary
	}
	var err error
	scope, err = workdir.Acquire(o.opts.WorkRoot, req.OwnerID, req.RunID)
	if err != nil {
		summary.Error = err.Error()
		summary.ErrorKind = services.Kind(err)
		return summary
	}

	for i, pair := range pairs {
		index := i + 1
		outcome := o.runPair(ctx, scope, sink, req, index, len(pairs), pair)
		summary.Outcomes = append(summary.Outcomes, outcome)
		metrics.ObservePair(string(outcome.Status), outcome.ErrorKind)

		switch outcome.Status {
		case PairCompleted:
			summary.Succeeded++
		case PairFailed:
			summary.Failed++
		case PairCancelled:
			summary.Cancelled = true
		}
		if summary.Cancelled {
			break
		}
	}
	return summary
}

// checkpoint reports a cancelled run.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", services.ErrCancelled, err)
	}
	return nil
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled)
}
