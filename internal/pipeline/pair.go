package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mergeflow/internal/logging"
	"mergeflow/internal/matcher"
	"mergeflow/internal/media"
	"mergeflow/internal/merger"
	"mergeflow/internal/metrics"
	"mergeflow/internal/services"
	"mergeflow/internal/tracks"
	"mergeflow/internal/workdir"
)

type extractedTrack struct {
	kind      media.StreamKind
	kindIndex int
	path      string
	language  string
	duration  float64
}

// pairRun carries the state of one pair through its steps. It is confined
// to the run goroutine except for emit, which heartbeat and transfer
// callbacks may call concurrently.
type pairRun struct {
	o      *Orchestrator
	ctx    context.Context
	sink   Sink
	req    Request
	index  int
	total  int
	pair   matcher.Pair
	dir    string
	logger *slog.Logger

	stage      Stage
	stageStart time.Time
	steps      []StepResult
	sampler    *logging.ProgressSampler
}

func (o *Orchestrator) runPair(ctx context.Context, scope *workdir.Scope, sink Sink, req Request, index, total int, pair matcher.Pair) (outcome PairOutcome) {
	start := time.Now()
	ctx = services.WithPairIndex(ctx, index)
	outcome = PairOutcome{
		Index:  index,
		Key:    pair.Key.String(),
		Source: pair.Source.Name(),
		Target: pair.Target.Name(),
	}
	p := &pairRun{
		o:       o,
		ctx:     ctx,
		sink:    sink,
		req:     req,
		index:   index,
		total:   total,
		pair:    pair,
		logger:  logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldEpisodeKey, outcome.Key)),
		sampler: logging.NewProgressSampler(transferLogStep),
	}
	defer func() {
		p.closeStage()
		if err := scope.RemovePair(index); err != nil {
			p.logger.Warn("failed to remove pair directory",
				logging.Error(err),
				logging.String(logging.FieldEventType, "pair_cleanup_failed"),
				logging.String(logging.FieldImpact, "disk space held until the run ends"),
			)
		}
		outcome.Elapsed = time.Since(start)
		outcome.Steps = p.steps
	}()

	if pair.Valid() && pair.TitleSimilarity < titleSimilarityWarn {
		p.logger.Warn("source and target titles differ",
			logging.String(logging.FieldEventType, "title_mismatch"),
			logging.Float64("similarity", pair.TitleSimilarity),
			logging.String("source", pair.Source.Label()),
			logging.String("target", pair.Target.Label()),
			logging.String(logging.FieldImpact, "pair may combine different series"),
		)
	}

	dir, err := scope.PairDir(index)
	if err == nil {
		p.dir = dir
		var res merger.Result
		res, err = p.process()
		if err == nil {
			outcome.Status = PairCompleted
			outcome.Output = filepath.Base(res.OutputPath)
			outcome.AudioInjected = res.AudioInjected
			outcome.SubtitleInjected = res.SubtitleInjected
			p.emit(StageCompleted, 100, outcome.Output, "")
			p.logger.Info("pair completed",
				logging.String(logging.FieldEventType, "pair_completed"),
				logging.String("output", outcome.Output),
				logging.Bool("audio_injected", res.AudioInjected),
				logging.Bool("subtitle_injected", res.SubtitleInjected),
			)
			return outcome
		}
	}

	if isCancelled(ctx, err) {
		p.record(false, "cancelled")
		outcome.Status = PairCancelled
		outcome.ErrorKind = "cancelled"
		p.emit(StageCancelled, -1, "cancelled", outcome.ErrorKind)
		p.logger.Info("pair cancelled",
			logging.String(logging.FieldEventType, "pair_cancelled"),
			logging.String("stage", string(p.stage)),
		)
		return outcome
	}

	p.record(false, err.Error())
	outcome.Status = PairFailed
	outcome.Error = err.Error()
	outcome.ErrorKind = services.Kind(err)
	p.emit(StageFailed, -1, services.Truncate(outcome.Error, 200), outcome.ErrorKind)
	logging.WarnWithContext(p.logger, "pair failed", "pair_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, outcome.ErrorKind),
		logging.String("stage", string(p.stage)),
		logging.String(logging.FieldImpact, "pair skipped; run continues"),
		logging.String(logging.FieldErrorHint, hintFor(outcome.ErrorKind)),
	)
	return outcome
}

const titleSimilarityWarn = 0.5

func (p *pairRun) process() (merger.Result, error) {
	ctx := p.ctx
	deps := p.o.deps

	// Target: fetch, analyze, extract, then drop the download.
	if err := p.enter(StageDownloading, p.pair.Target.Name()); err != nil {
		return merger.Result{}, err
	}
	targetPath, err := p.download(*p.pair.Target, "target")
	if err != nil {
		return merger.Result{}, err
	}
	if err := p.enter(StageAnalyzing, p.pair.Target.Name()); err != nil {
		return merger.Result{}, err
	}
	targetProbe, err := p.probe(targetPath, "target")
	if err != nil {
		return merger.Result{}, err
	}
	p.record(true, fmt.Sprintf("%d streams", len(targetProbe.Streams)))
	if err := p.enter(StageExtracting, ""); err != nil {
		return merger.Result{}, err
	}
	extracted, err := p.extract(targetPath, targetProbe)
	removeArtifact(targetPath)
	if err != nil {
		return merger.Result{}, err
	}
	if len(extracted) == 0 {
		return merger.Result{}, services.Wrap(services.ErrExtract, string(StageExtracting), "target", "nothing to inject: no audio or text subtitle streams", nil)
	}
	extractedPaths := make([]string, 0, len(extracted))
	for _, t := range extracted {
		extractedPaths = append(extractedPaths, t.path)
	}
	p.record(true, "", extractedPaths...)

	// Source: fetch and analyze the base file.
	if err := p.enter(StageDownloading, p.pair.Source.Name()); err != nil {
		return merger.Result{}, err
	}
	sourcePath, err := p.download(*p.pair.Source, "source")
	if err != nil {
		return merger.Result{}, err
	}
	if err := p.enter(StageAnalyzing, p.pair.Source.Name()); err != nil {
		return merger.Result{}, err
	}
	sourceProbe, err := p.probe(sourcePath, "source")
	if err != nil {
		return merger.Result{}, err
	}
	p.record(true, fmt.Sprintf("%d streams", len(sourceProbe.Streams)))

	if err := p.enter(StageNormalizing, ""); err != nil {
		return merger.Result{}, err
	}
	audios, subs, err := p.normalize(extracted, sourceProbe)
	if err != nil {
		return merger.Result{}, err
	}
	if len(audios) == 0 && len(subs) == 0 {
		return merger.Result{}, services.Wrap(services.ErrNormalize, string(StageNormalizing), "tracks", "no extracted track survived normalization", nil)
	}
	normalized := make([]string, 0, len(audios)+len(subs))
	for _, t := range append(append([]merger.Track(nil), audios...), subs...) {
		normalized = append(normalized, t.Path)
	}
	p.record(true, "", normalized...)

	if err := p.enter(StageMerging, ""); err != nil {
		return merger.Result{}, err
	}
	mergeReq := merger.Request{
		BasePath:    sourcePath,
		BaseStreams: sourceProbe.Streams,
		OutputPath:  filepath.Join(p.dir, p.pair.Source.OutputName()),
	}
	if len(audios) > 0 {
		mergeReq.Audio = &audios[0]
	}
	if len(subs) > 0 {
		mergeReq.Subtitle = &subs[0]
	}
	var res merger.Result
	p.withHeartbeat(func() { res, err = deps.Merger.Merge(ctx, mergeReq) })
	if cerr := checkpoint(ctx); cerr != nil {
		return merger.Result{}, cerr
	}
	if err != nil {
		return merger.Result{}, err
	}
	p.record(true, "", res.OutputPath)
	removeArtifact(sourcePath)
	for _, t := range audios {
		removeArtifact(t.Path)
	}
	for _, t := range subs {
		removeArtifact(t.Path)
	}

	if err := p.enter(StageUploading, filepath.Base(res.OutputPath)); err != nil {
		return merger.Result{}, err
	}
	caption := p.pair.Source.Caption()
	if caption == "" {
		caption = filepath.Base(res.OutputPath)
	}
	err = deps.Transport.Upload(ctx, res.OutputPath, caption, p.transferProgress(StageUploading))
	removeArtifact(res.OutputPath)
	if err != nil {
		if isCancelled(ctx, err) {
			return merger.Result{}, checkpointOr(ctx, err)
		}
		if !errors.Is(err, services.ErrUpload) {
			err = services.Wrap(services.ErrUpload, string(StageUploading), "output", filepath.Base(res.OutputPath), err)
		}
		return merger.Result{}, err
	}
	p.record(true, "")
	return res, nil
}

func (p *pairRun) download(file media.File, role string) (string, error) {
	dest := filepath.Join(p.dir, role+filepath.Ext(file.SafeName()))
	path, err := p.o.deps.Transport.Download(p.ctx, file, dest, p.transferProgress(StageDownloading))
	if err != nil {
		removeArtifact(dest)
		if isCancelled(p.ctx, err) {
			return "", checkpointOr(p.ctx, err)
		}
		if !errors.Is(err, services.ErrDownload) {
			err = services.Wrap(services.ErrDownload, string(StageDownloading), role, file.Name(), err)
		}
		return "", err
	}
	if err := checkpoint(p.ctx); err != nil {
		return "", err
	}
	p.record(true, "", path)
	return path, nil
}

func (p *pairRun) probe(path, role string) (media.ProbeResult, error) {
	var (
		res media.ProbeResult
		err error
	)
	p.withHeartbeat(func() { res, err = p.o.deps.Prober.Probe(p.ctx, path) })
	if cerr := checkpoint(p.ctx); cerr != nil {
		return media.ProbeResult{}, cerr
	}
	if err != nil {
		return media.ProbeResult{}, fmt.Errorf("%s: %w", role, err)
	}
	return res, nil
}

// extract demuxes every audio stream and every text subtitle stream. A
// stream that fails to extract is skipped; only cancellation is an error.
func (p *pairRun) extract(targetPath string, probe media.ProbeResult) ([]extractedTrack, error) {
	var out []extractedTrack
	for _, s := range probe.Streams {
		var name string
		switch {
		case s.Kind == media.KindAudio:
			name = fmt.Sprintf("audio-%02d.mka", s.KindIndex)
		case s.Kind == media.KindSubtitle && s.TextBased && s.Codec == "mov_text":
			name = fmt.Sprintf("subtitle-%02d.raw.srt", s.KindIndex)
		case s.Kind == media.KindSubtitle && s.TextBased:
			name = fmt.Sprintf("subtitle-%02d.mks", s.KindIndex)
		case s.Kind == media.KindSubtitle:
			p.logger.Info("skipping image-based subtitle",
				logging.String("codec", s.Codec),
				logging.Int("kind_index", s.KindIndex),
			)
			continue
		default:
			continue
		}
		if err := checkpoint(p.ctx); err != nil {
			return nil, err
		}
		path := filepath.Join(p.dir, name)
		var ok bool
		p.withHeartbeat(func() { ok = p.o.deps.Extractor.Extract(p.ctx, targetPath, s.Kind, s.KindIndex, path) })
		if err := checkpoint(p.ctx); err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Warn("stream extraction failed; skipping",
				logging.String("kind", string(s.Kind)),
				logging.Int("kind_index", s.KindIndex),
				logging.String(logging.FieldImpact, "track not injected"),
			)
			continue
		}
		lang := s.Language
		if strings.EqualFold(lang, "und") {
			lang = ""
		}
		out = append(out, extractedTrack{
			kind:      s.Kind,
			kindIndex: s.KindIndex,
			path:      path,
			language:  lang,
			duration:  probe.DurationFor(s),
		})
	}
	return out, nil
}

// normalize converts every extracted track. Raw extractions are deleted as
// soon as they are converted; a track that fails is dropped.
func (p *pairRun) normalize(extracted []extractedTrack, sourceProbe media.ProbeResult) ([]merger.Track, []merger.Track, error) {
	opts := p.o.opts
	norm := p.o.deps.Normalizer
	profile := tracks.ProfileFor(sourceProbe.Streams, opts.DefaultCodec, opts.SampleRate)

	var audios, subs []merger.Track
	for _, t := range extracted {
		if err := checkpoint(p.ctx); err != nil {
			return nil, nil, err
		}
		switch t.kind {
		case media.KindAudio:
			var (
				path string
				err  error
			)
			p.withHeartbeat(func() { path, err = norm.NormalizeAudio(p.ctx, t.path, profile) })
			removeArtifact(t.path)
			if cerr := checkpoint(p.ctx); cerr != nil {
				return nil, nil, cerr
			}
			if err != nil {
				p.logger.Warn("audio normalization failed; dropping track",
					logging.Error(err),
					logging.Int("kind_index", t.kindIndex),
					logging.String(logging.FieldImpact, "track not injected"),
				)
				continue
			}
			var final string
			p.withHeartbeat(func() { final = norm.EnforceSizeCeiling(p.ctx, path, t.duration, opts.CeilingBytes, profile.Codec) })
			if final != path {
				removeArtifact(path)
				metrics.ObserveCompression(true)
			} else if opts.CeilingBytes > 0 && fileSize(path) > opts.CeilingBytes {
				metrics.ObserveCompression(false)
			}
			if cerr := checkpoint(p.ctx); cerr != nil {
				return nil, nil, cerr
			}
			audios = append(audios, merger.Track{Path: final, Language: t.language})

		case media.KindSubtitle:
			out := filepath.Join(p.dir, fmt.Sprintf("subtitle-%02d.srt", t.kindIndex))
			var (
				path string
				err  error
			)
			p.withHeartbeat(func() { path, err = norm.NormalizeSubtitle(p.ctx, t.path, out) })
			removeArtifact(t.path)
			if cerr := checkpoint(p.ctx); cerr != nil {
				return nil, nil, cerr
			}
			if err != nil {
				p.logger.Warn("subtitle conversion failed; dropping track",
					logging.Error(err),
					logging.Int("kind_index", t.kindIndex),
					logging.String(logging.FieldImpact, "track not injected"),
				)
				continue
			}
			lang := t.language
			if lang == "" {
				lang = tracks.DetectSubtitleLanguage(path)
			}
			subs = append(subs, merger.Track{Path: path, Language: lang})
		}
	}
	return audios, subs, nil
}

// enter checks for cancellation and moves the pair to stage.
func (p *pairRun) enter(stage Stage, message string) error {
	if err := checkpoint(p.ctx); err != nil {
		return err
	}
	p.closeStage()
	p.stage = stage
	p.stageStart = time.Now()
	p.emit(stage, 0, message, "")
	return nil
}

// record appends the result of the current stage.
func (p *pairRun) record(ok bool, diagnostic string, artifacts ...string) {
	step := StepResult{
		Stage:      p.stage,
		OK:         ok,
		Diagnostic: services.Truncate(diagnostic, 500),
	}
	for _, a := range artifacts {
		step.Artifacts = append(step.Artifacts, filepath.Base(a))
	}
	p.steps = append(p.steps, step)
}

func (p *pairRun) closeStage() {
	if p.stage != "" && !p.stageStart.IsZero() {
		metrics.ObserveStage(string(p.stage), time.Since(p.stageStart))
		p.stageStart = time.Time{}
	}
}

func (p *pairRun) emit(stage Stage, percent float64, message, errorKind string) {
	p.sink.Event(Event{
		RunID:     p.req.RunID,
		OwnerID:   p.req.OwnerID,
		Stage:     stage,
		PairIndex: p.index,
		PairTotal: p.total,
		Key:       p.pair.Key.String(),
		FileName:  p.pair.Source.Name(),
		Percent:   percent,
		Message:   message,
		ErrorKind: errorKind,
		Time:      time.Now(),
	})
}

// withHeartbeat runs fn while reporting the current stage at the configured
// progress interval, so long tool calls still show signs of life.
func (p *pairRun) withHeartbeat(fn func()) {
	interval := p.o.opts.ProgressInterval
	if interval <= 0 {
		fn()
		return
	}
	stage := p.stage
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.emit(stage, -1, "", "")
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()
	fn()
}

// transferLogStep is the percent step between transfer progress log lines.
const transferLogStep = 25

func (p *pairRun) transferProgress(stage Stage) ProgressFunc {
	return func(done, total int64) {
		percent := -1.0
		if total > 0 {
			percent = float64(done) * 100 / float64(total)
		}
		p.emit(stage, percent, "", "")
		if p.sampler.ShouldLog(percent, string(stage)) {
			p.logger.Debug("transfer progress",
				logging.String("stage", string(stage)),
				logging.Int64("done_bytes", done),
				logging.Int64("total_bytes", total),
			)
		}
	}
}

func checkpointOr(ctx context.Context, err error) error {
	if cerr := checkpoint(ctx); cerr != nil {
		return cerr
	}
	return fmt.Errorf("%w: %w", services.ErrCancelled, err)
}

func removeArtifact(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = os.RemoveAll(path)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func hintFor(kind string) string {
	switch kind {
	case "download":
		return "check the file handle is reachable"
	case "probe":
		return "the file may be corrupt or not a media container"
	case "extract":
		return "the target has no audio or text subtitle streams to inject"
	case "normalize":
		return "check ffmpeg supports the source audio codec"
	case "merge":
		return "inspect the ffmpeg diagnostic in the error"
	case "upload":
		return "check the outbox destination is writable"
	case "timeout":
		return "raise tools.timeout_seconds for very long files"
	default:
		return "see logs for details"
	}
}
