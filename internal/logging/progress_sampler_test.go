package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name     string
		step     float64
		wantStep float64
	}{
		{"default step for zero", 0, 10},
		{"default step for negative", -1, 10},
		{"custom step", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := NewProgressSampler(tt.step); s.step != tt.wantStep {
				t.Errorf("step = %v, want %v", s.step, tt.wantStep)
			}
		})
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "downloading") {
		t.Error("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerStageChange(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(0, "downloading") {
		t.Error("first stage should log")
	}
	if s.ShouldLog(0, " downloading ") {
		t.Error("same stage and bucket should not log again")
	}
	if !s.ShouldLog(0, "merging") {
		t.Error("different stage should log")
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{4, false},
		{10, true},
		{19, false},
		{55, true},
		{100, true},
		{140, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, "uploading"); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "downloading") {
		t.Error("stage change should log with unknown percent")
	}
	if s.ShouldLog(-1, "downloading") {
		t.Error("unknown percent should not log on its own")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(90, "uploading")
	s.Reset()
	if !s.ShouldLog(90, "uploading") {
		t.Error("expected log after reset")
	}
}
