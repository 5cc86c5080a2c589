// Package metrics exposes Prometheus collectors for runs, pairs, pipeline
// stages, and external tool calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mergeflow_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"}) // outcome=completed|cancelled|failed

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mergeflow_runs_active",
		Help: "Pipeline runs currently in progress",
	})

	pairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mergeflow_pairs_total",
		Help: "Processed pairs by status and error kind",
	}, []string{"status", "error_kind"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mergeflow_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mergeflow_tool_calls_total",
		Help: "External tool invocations by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome=ok|exit|error|timeout

	compressionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mergeflow_audio_compressions_total",
		Help: "Size ceiling enforcement results",
	}, []string{"result"}) // result=compressed|fallback

	workdirRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mergeflow_workdir_removed_total",
		Help: "Stale run directories removed by the janitor",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mergeflow_sessions_active",
		Help: "Sessions currently registered",
	})

	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mergeflow_progress_events_dropped_total",
		Help: "Progress events suppressed by throttling",
	})
)

// RunStarted marks a run as in progress.
func RunStarted() { runsActive.Inc() }

// RunFinished records the outcome of a run.
func RunFinished(outcome string) {
	runsActive.Dec()
	runsTotal.WithLabelValues(label(outcome)).Inc()
}

// ObservePair counts one pair outcome.
func ObservePair(status, errorKind string) {
	pairsTotal.WithLabelValues(label(status), errorKind).Inc()
}

// ObserveStage records time spent in a stage.
func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(label(stage)).Observe(elapsed.Seconds())
}

// ObserveToolCall counts one external tool invocation.
func ObserveToolCall(operation, outcome string) {
	toolCallsTotal.WithLabelValues(label(operation), label(outcome)).Inc()
}

// ObserveCompression counts a size ceiling decision.
func ObserveCompression(compressed bool) {
	if compressed {
		compressionsTotal.WithLabelValues("compressed").Inc()
		return
	}
	compressionsTotal.WithLabelValues("fallback").Inc()
}

// AddWorkdirRemoved counts directories reclaimed by the janitor.
func AddWorkdirRemoved(n int) {
	if n > 0 {
		workdirRemovedTotal.Add(float64(n))
	}
}

// SetSessionsActive reports the size of the session registry.
func SetSessionsActive(n int) { sessionsActive.Set(float64(n)) }

// IncEventsDropped counts a throttled progress event.
func IncEventsDropped() { eventsDroppedTotal.Inc() }

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
