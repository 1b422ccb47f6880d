package driftline

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func stateOf(anxiety, trust, openness float64) EmotionalState {
	s := NewEmotionalState()
	s.Metrics[MetricAnxiety] = anxiety
	s.Metrics[MetricTrust] = trust
	s.Metrics[MetricOpenness] = openness
	return s
}

func TestClassifyMode(t *testing.T) {
	tests := []struct {
		name                     string
		anxiety, trust, openness float64
		want                     Mode
	}{
		{"decompensating", 0.85, 0.5, 0.5, ModeDecompensating},
		{"decompensating beats trusting", 0.9, 0.9, 0.9, ModeDecompensating},
		{"triggered", 0.7, 0.5, 0.2, ModeTriggered},
		{"guarded", 0.5, 0.3, 0.4, ModeGuarded},
		{"trusting", 0.5, 0.7, 0.7, ModeTrusting},
		{"recovering", 0.3, 0.6, 0.5, ModeRecovering},
		{"baseline", 0.5, 0.5, 0.5, ModeBaseline},
		{"anxiety boundary is strict", 0.8, 0.5, 0.5, ModeBaseline},
		{"triggered anxiety boundary", 0.6, 0.5, 0.2, ModeBaseline},
		{"trusting boundary", 0.5, 0.6, 0.7, ModeBaseline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyMode(stateOf(tt.anxiety, tt.trust, tt.openness))
			if got != tt.want {
				t.Errorf("ClassifyMode(%.2f, %.2f, %.2f) = %s, want %s",
					tt.anxiety, tt.trust, tt.openness, got, tt.want)
			}
		})
	}
}

func TestClassifyModeMissingMetricsUseDefault(t *testing.T) {
	s := EmotionalState{Metrics: map[string]float64{}}
	if got := ClassifyMode(s); got != ModeBaseline {
		t.Errorf("expected baseline for all-default metrics, got %s", got)
	}
}

func TestApplyResponseEffectsSupportive(t *testing.T) {
	s := NewEmotionalState()
	e := DefaultDriftEngine()
	e.ApplyResponseEffects(&s, "I understand this must be hard for you")

	if !near(s.Trust(), 0.55) || !near(s.Openness(), 0.564) || !near(s.Anxiety(), 0.501) {
		t.Errorf("unexpected state: anxiety=%.3f trust=%.3f openness=%.3f", s.Anxiety(), s.Trust(), s.Openness())
	}
	if s.Mode != ModeBaseline {
		t.Errorf("expected baseline, got %s", s.Mode)
	}
}

func TestApplyResponseEffectsDismissive(t *testing.T) {
	s := NewEmotionalState()
	DefaultDriftEngine().ApplyResponseEffects(&s, "You should just get over it")

	if !near(s.Anxiety(), 0.57) || !near(s.Trust(), 0.36) || !near(s.Openness(), 0.43) {
		t.Errorf("unexpected state: anxiety=%.3f trust=%.3f openness=%.3f", s.Anxiety(), s.Trust(), s.Openness())
	}
	if s.Mode != ModeGuarded {
		t.Errorf("expected guarded, got %s", s.Mode)
	}
}

func TestApplyResponseEffectsClamps(t *testing.T) {
	s := stateOf(1.0, 0.0, 0.0)
	DefaultDriftEngine().ApplyResponseEffects(&s, "You should just get over it")
	if s.Anxiety() != 1 || s.Trust() != 0 || s.Openness() != 0 {
		t.Errorf("metrics must stay in [0,1], got %v", s.Metrics)
	}
}

func TestApplyContextShift(t *testing.T) {
	s := NewEmotionalState()
	sc := Scenario{
		Name:        "Bad day at work",
		Description: "Criticized in front of the crew",
		Effects:     map[string]float64{MetricAnxiety: 0.35, MetricOpenness: -0.25, "not_a_metric": 0.5},
	}
	DefaultDriftEngine().ApplyContextShift(&s, sc)

	if !near(s.Anxiety(), 0.85) {
		t.Errorf("anxiety: expected 0.85, got %.3f", s.Anxiety())
	}
	if _, ok := s.Metrics["not_a_metric"]; ok {
		t.Error("unknown metrics must not be added")
	}
	if s.Mode != ModeDecompensating {
		t.Errorf("expected decompensating, got %s", s.Mode)
	}
	if len(s.Memory) != 1 || s.Memory[0] != "context: Criticized in front of the crew" {
		t.Errorf("unexpected memory: %v", s.Memory)
	}
}

func TestApplyContextShiftLabelFallsBackToName(t *testing.T) {
	s := NewEmotionalState()
	DefaultDriftEngine().ApplyContextShift(&s, Scenario{Name: "Poor sleep"})
	if s.Memory[0] != "context: Poor sleep" {
		t.Errorf("got %q", s.Memory[0])
	}
	if !near(s.Anxiety(), 0.5) {
		t.Errorf("scenario without effects must not change metrics, anxiety=%.3f", s.Anxiety())
	}
}

func TestMemoryLimit(t *testing.T) {
	s := NewEmotionalState()
	e := DefaultDriftEngine()
	for i := 0; i < MemoryLimit+3; i++ {
		e.Remember(&s, fmt.Sprintf("entry %d", i))
	}
	if len(s.Memory) != MemoryLimit {
		t.Fatalf("expected %d entries, got %d", MemoryLimit, len(s.Memory))
	}
	if s.Memory[0] != "entry 3" || s.Memory[MemoryLimit-1] != "entry 7" {
		t.Errorf("oldest entries should be evicted first: %v", s.Memory)
	}
}

func TestTeachingNoteDismissive(t *testing.T) {
	s := stateOf(0.57, 0.36, 0.43)
	note := GenerateTeachingNote(s, "You should just get over it", ModeGuarded)
	lines := strings.Split(note, "\n")
	want := []string{noteAdvice, noteMinimizing, noteBrief}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), note)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestTeachingNoteReflection(t *testing.T) {
	s := NewEmotionalState()
	note := GenerateTeachingNote(s, "I understand, it sounds like this must be hard for you", ModeBaseline)
	if !strings.Contains(note, noteReflection) {
		t.Errorf("expected reflection praise, got %q", note)
	}
	if strings.Contains(note, noteAdvice) {
		t.Errorf("'must' alone should not be flagged as advice: %q", note)
	}
}

func TestTeachingNoteStackedQuestions(t *testing.T) {
	note := GenerateTeachingNote(NewEmotionalState(), "How was work? Did you sleep? What did you eat today?", ModeBaseline)
	if !strings.Contains(note, noteStackedQs) {
		t.Errorf("expected stacked-question warning, got %q", note)
	}
}

func TestTeachingNoteModeLines(t *testing.T) {
	msg := "Can you tell me more about what the last few weeks have been like for you?"

	note := GenerateTeachingNote(stateOf(0.7, 0.3, 0.2), msg, ModeTriggered)
	if !strings.Contains(note, noteDefensive) {
		t.Errorf("expected defensive line, got %q", note)
	}
	note = GenerateTeachingNote(stateOf(0.4, 0.7, 0.7), msg, ModeTrusting)
	if !strings.Contains(note, noteAlliance) {
		t.Errorf("expected alliance line, got %q", note)
	}
	note = GenerateTeachingNote(stateOf(0.9, 0.5, 0.5), msg, ModeDecompensating)
	if !strings.Contains(note, noteCrisis) {
		t.Errorf("expected crisis line, got %q", note)
	}
}

func TestTeachingNoteDefault(t *testing.T) {
	note := GenerateTeachingNote(NewEmotionalState(), "I am glad that you came in to talk with me today", ModeBaseline)
	if note != noteSolidByDefault {
		t.Errorf("expected default note, got %q", note)
	}
}

func TestCustomPolicy(t *testing.T) {
	p := DefaultDriftPolicy()
	p.Modes.DecompensatingAnxiety = 0.95
	e := NewDriftEngine(p)
	if got := e.ClassifyMode(stateOf(0.9, 0.5, 0.5)); got != ModeBaseline {
		t.Errorf("custom threshold ignored: got %s", got)
	}
}
