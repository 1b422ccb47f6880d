package driftline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestAssessTrend(t *testing.T) {
	tests := []struct {
		metric string
		values []float64
		want   string
	}{
		{MetricTrust, []float64{0.4}, "Insufficient data"},
		{MetricTrust, []float64{0.4, 0.6}, "Strong improvement (+0.20)"},
		{MetricTrust, []float64{0.4, 0.5}, "Moderate improvement (+0.10)"},
		{MetricTrust, []float64{0.5, 0.3}, "Significant decline (-0.20)"},
		{MetricTrust, []float64{0.5, 0.52}, "Stable (+0.02)"},
		{MetricAnxiety, []float64{0.7, 0.5}, "Significant reduction (-0.20) ✓"},
		{MetricAnxiety, []float64{0.5, 0.6}, "Slight increase (+0.10)"},
		{MetricOpenness, []float64{0.3, 0.4}, "Moderate increase (+0.10) ✓"},
		{MetricOpenness, []float64{0.5, 0.3}, "Significant decrease (-0.20) ⚠"},
	}
	for _, tt := range tests {
		if got := AssessTrend(tt.metric, tt.values); got != tt.want {
			t.Errorf("AssessTrend(%s, %v) = %q, want %q", tt.metric, tt.values, got, tt.want)
		}
	}
}

func TestRecommendations(t *testing.T) {
	recs := Recommendations(NewEmotionalState())
	if len(recs) != 2 || recs[0] != "Continue with current therapeutic approach" {
		t.Errorf("balanced state: %v", recs)
	}

	st := stateOf(0.9, 0.3, 0.2)
	st.Mode = ModeDecompensating
	recs = Recommendations(st)
	joined := strings.Join(recs, "\n")
	for _, want := range []string{"rapport building", "high anxiety", "guarded", "CRISIS INTERVENTION"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in %v", want, recs)
		}
	}
}

func TestBuildReport(t *testing.T) {
	p := testPersona()
	start := NewEmotionalState()
	after := stateOf(0.501, 0.55, 0.564)
	after.Memory = []string{"shared thoughts"}
	turns := []ConversationTurn{{
		Student:  "I understand this must be hard for you",
		Client:   "Yeah.",
		Strategy: StrategyTemplates,
		Mode:     ModeBaseline,
		State:    after,
	}}

	r := BuildReport(p, turns, []EmotionalState{start, after}, "Sam")
	if r.Client.Name != "Jack" || r.Student != "Sam" || len(r.Turns) != 1 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.Turns[0].Trust != 0.55 {
		t.Errorf("per-turn state not recorded: %+v", r.Turns[0])
	}
	if r.Progress["trust_progress"] != "Stable (+0.05)" {
		t.Errorf("unexpected trust progress %q", r.Progress["trust_progress"])
	}

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"client", "interactions", "final_state", "metrics", "recommendations"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("export missing %q", key)
		}
	}

	summary := r.Summary()
	if !strings.Contains(summary, "Number of Interactions: 1") || !strings.Contains(summary, "Trust Development:") {
		t.Errorf("unexpected summary:\n%s", summary)
	}

	transcript := RenderTranscript(p, turns, after)
	if !strings.Contains(transcript, "STATE AFTER TURN 1 (baseline)") || !strings.Contains(transcript, "1. shared thoughts") {
		t.Errorf("unexpected transcript:\n%s", transcript)
	}
}
