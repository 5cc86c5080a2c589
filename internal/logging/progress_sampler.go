package logging

import (
	"math"
	"strings"
)

// ProgressSampler picks which progress updates deserve a log line: the first
// update of each stage, then the first update to reach each step of percent.
// Negative percents mean the total is unknown and only stage changes count.
// The zero value is not usable; nil logs everything.
type ProgressSampler struct {
	step  float64
	stage string
	next  float64
}

// NewProgressSampler returns a sampler with the given step in percent
// (default 10).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether an update at percent in stage should be logged.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	changed := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage, s.next, changed = stage, 0, true
	}
	percent = math.Min(percent, 100)
	if percent < 0 || percent < s.next {
		return changed
	}
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	return true
}

// Reset forgets the current stage so the next update always logs.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.stage, s.next = "", 0
}
