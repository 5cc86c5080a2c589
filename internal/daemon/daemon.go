package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"mergeflow/internal/api"
	"mergeflow/internal/config"
	"mergeflow/internal/history"
	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/metrics"
	"mergeflow/internal/notifications"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/preflight"
	"mergeflow/internal/services"
	"mergeflow/internal/session"
	"mergeflow/internal/transport"
	"mergeflow/internal/workdir"
)

const shutdownTimeout = 30 * time.Second

// Options override collaborators, mainly for tests.
type Options struct {
	// Runner replaces the ffmpeg-backed orchestrator.
	Runner session.Runner
	// Preflight replaces preflight.RunAll.
	Preflight func(ctx context.Context, cfg *config.Config) []preflight.Result
	// Notifier replaces the config-driven notification service.
	Notifier notifications.Service
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool               `json:"running"`
	PID         int                `json:"pid"`
	Address     string             `json:"address,omitempty"`
	LockPath    string             `json:"lock_path"`
	HistoryPath string             `json:"history_path"`
	Sessions    int                `json:"sessions"`
	Checks      []preflight.Result `json:"checks"`
}

// Daemon coordinates the API, sessions and background maintenance.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	lock      *flock.Flock
	running   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	addr     string
	registry *session.Registry
}

// New validates cfg and prepares a daemon. Nothing is started until Run.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if opts.Preflight == nil {
		opts.Preflight = preflight.RunAll
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(cfg)
	}
	return &Daemon{
		cfg:    cfg,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "daemon"),
		lock:   flock.New(cfg.LockPath()),
		ready:  make(chan struct{}),
	}, nil
}

// Ready is closed once the API is accepting connections.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Addr returns the API listen address once Ready is closed.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Run serves until ctx ends. It returns an error when another daemon holds
// the state directory or a preflight check fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "init", "create directories", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConflict, "daemon", "lock", "another mergeflow daemon instance is already running", nil)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if failed := preflight.Failed(d.opts.Preflight(ctx, d.cfg)); len(failed) > 0 {
		for _, r := range failed {
			logging.ErrorWithContext(d.logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "run mergeflow status for details"),
			)
		}
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight", fmt.Sprintf("%d checks failed", len(failed)), nil)
	}

	// Nothing can be running yet, so every unlocked run directory is an orphan.
	orphans := workdir.CleanStale(ctx, d.cfg.Paths.WorkDir, 0, d.logger)
	metrics.AddWorkdirRemoved(len(orphans.Removed))
	if len(orphans.Removed) > 0 {
		d.logger.Info("removed orphaned work directories",
			logging.Int("count", len(orphans.Removed)),
			logging.Int64("reclaimed_bytes", orphans.ReclaimedBytes),
			logging.String(logging.FieldEventType, "orphans_removed"),
		)
	}

	store, err := history.Open(d.cfg.HistoryPath())
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "history", "open history store", err)
	}
	defer store.Close()

	runner := d.opts.Runner
	if runner == nil {
		local, err := transport.NewLocal(d.cfg.Paths.OutboxDir, 0, d.logger)
		if err != nil {
			return err
		}
		orch, err := pipeline.NewFromConfig(d.cfg, local, d.logger)
		if err != nil {
			return err
		}
		runner = orch
	}

	hub := transport.NewHub(0)
	interval := time.Duration(d.cfg.Progress.MinIntervalMS) * time.Millisecond
	runCtx, stopRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRuns()
	registry := session.NewRegistry(runCtx, runner, session.Options{
		LabelSource: media.LabelSource(d.cfg.Merge.LabelSource),
		Sink: func(int64, string) pipeline.Sink {
			return transport.NewThrottledSink(hub, interval, d.cfg.Progress.Burst)
		},
		OnStarted:  d.onStarted,
		OnFinished: d.onFinished(store),
	}, d.logger)

	janitor, err := workdir.NewJanitor(d.cfg.Paths.WorkDir, d.cfg.JanitorMaxAge(), d.cfg.Janitor.Schedule, d.logger)
	if err != nil {
		return err
	}
	janitor.OnSweep(func(res workdir.CleanResult) {
		metrics.AddWorkdirRemoved(len(res.Removed))
	})

	server, err := api.New(api.Deps{
		Sessions: registry,
		Events:   hub,
		History:  store,
		Status: func(ctx context.Context) []preflight.Result {
			return d.opts.Preflight(ctx, d.cfg)
		},
	}, api.Options{
		Bind:               d.cfg.API.Bind,
		Token:              d.cfg.API.Token,
		RateLimitPerMinute: d.cfg.API.RateLimitPerMinute,
	}, d.logger)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", strings.TrimSpace(d.cfg.API.Bind))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "listen", d.cfg.API.Bind, err)
	}
	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.registry = registry
	d.mu.Unlock()

	janitor.Start()
	d.logger.Info("mergeflow daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.String("address", ln.Addr().String()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	d.readyOnce.Do(func() { close(d.ready) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		janitor.Stop(shutdownCtx)
		if err := registry.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("sessions did not stop in time", logging.Error(err))
		}
		return nil
	})
	err = g.Wait()
	d.logger.Info("mergeflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

func (d *Daemon) onStarted(ownerID int64, runID string, pairs int) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := d.opts.Notifier.Publish(ctx, notifications.EventRunStarted, notifications.Payload{
		"owner": fmt.Sprint(ownerID),
		"run":   runID,
		"pairs": fmt.Sprint(pairs),
	})
	if err != nil {
		d.logger.Debug("run start notification failed", logging.Error(err))
	}
}

func (d *Daemon) onFinished(store *history.Store) func(pipeline.Summary) {
	return func(summary pipeline.Summary) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := store.RecordRun(ctx, summary); err != nil {
			logging.WarnWithContext(d.logger, "run history not recorded", "history_write_failed",
				logging.String(logging.FieldRunID, summary.RunID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "run missing from history"),
			)
		}
		notifications.PublishSummary(ctx, d.opts.Notifier, summary, d.logger)
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		Address:     d.Addr(),
		LockPath:    d.cfg.LockPath(),
		HistoryPath: d.cfg.HistoryPath(),
		Checks:      d.opts.Preflight(ctx, d.cfg),
	}
	d.mu.Lock()
	registry := d.registry
	d.mu.Unlock()
	if registry != nil {
		status.Sessions = len(registry.List())
	}
	return status
}
