package transport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mergeflow/internal/metrics"
	"mergeflow/internal/pipeline"
)

// ThrottledSink forwards events to next at a bounded rate. Terminal events
// and the first event of each stage always pass; the rest are dropped when
// the budget is spent. Finished is never throttled.
type ThrottledSink struct {
	next    pipeline.Sink
	limiter *rate.Limiter

	mu        sync.Mutex
	lastStage map[int]pipeline.Stage
}

// NewThrottledSink allows one event per interval with the given burst.
func NewThrottledSink(next pipeline.Sink, interval time.Duration, burst int) *ThrottledSink {
	if next == nil {
		next = pipeline.NopSink{}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledSink{
		next:      next,
		limiter:   rate.NewLimiter(limit, burst),
		lastStage: make(map[int]pipeline.Stage),
	}
}

func (s *ThrottledSink) Event(e pipeline.Event) {
	s.mu.Lock()
	changed := s.lastStage[e.PairIndex] != e.Stage
	s.lastStage[e.PairIndex] = e.Stage
	s.mu.Unlock()

	if changed || e.Stage.Terminal() || s.limiter.Allow() {
		s.next.Event(e)
		return
	}
	metrics.IncEventsDropped()
}

func (s *ThrottledSink) Finished(summary pipeline.Summary) {
	s.next.Finished(summary)
}
