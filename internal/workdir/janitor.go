package workdir

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mergeflow/internal/logging"
)

// Janitor runs CleanStale on a cron schedule.
type Janitor struct {
	root   string
	maxAge time.Duration
	logger *slog.Logger

	scheduler *cron.Cron
	mu        sync.Mutex
	last      CleanResult
	onSweep   func(CleanResult)
}

// NewJanitor schedules sweeps of root. schedule is a standard five-field
// cron expression or a descriptor such as "@every 30m".
func NewJanitor(root string, maxAge time.Duration, schedule string, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		root:      root,
		maxAge:    maxAge,
		logger:    logging.NewComponentLogger(logger, "janitor"),
		scheduler: cron.New(),
	}
	if _, err := j.scheduler.AddFunc(schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule janitor: %w", err)
	}
	return j, nil
}

// OnSweep registers a callback invoked after every sweep.
func (j *Janitor) OnSweep(fn func(CleanResult)) {
	j.mu.Lock()
	j.onSweep = fn
	j.mu.Unlock()
}

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.scheduler.Start()
	j.logger.Debug("janitor started", logging.String("root", j.root), logging.Duration("max_age", j.maxAge))
}

// Stop halts the schedule and waits for a running sweep, or until ctx ends.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.scheduler.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep removes stale run directories now.
func (j *Janitor) Sweep(ctx context.Context) CleanResult {
	result := CleanStale(ctx, j.root, j.maxAge, j.logger)
	j.mu.Lock()
	j.last = result
	hook := j.onSweep
	j.mu.Unlock()
	if hook != nil {
		hook(result)
	}
	return result
}

// Last returns the result of the most recent sweep.
func (j *Janitor) Last() CleanResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
