package driftline

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// Trend bands: changes beyond ±strongTrend are significant, beyond ±mildTrend moderate.
const (
	mildTrend   = 0.05
	strongTrend = 0.15
)

// Report summarizes a session for review and instructor assessment.
type Report struct {
	Student         string            `json:"student_name,omitempty"`
	GeneratedAt     time.Time         `json:"timestamp"`
	Client          ReportClient      `json:"client"`
	Turns           []ReportTurn      `json:"interactions"`
	FinalState      EmotionalState    `json:"final_state"`
	Progress        map[string]string `json:"metrics"`
	Recommendations []string          `json:"recommendations"`
}

// ReportClient identifies the persona.
type ReportClient struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
	Role string `json:"role"`
}

// ReportTurn is one exchange with the state after it.
type ReportTurn struct {
	Student  string   `json:"student"`
	Client   string   `json:"client"`
	Scenario string   `json:"scenario,omitempty"`
	Strategy Strategy `json:"strategy,omitempty"`
	Mode     Mode     `json:"mode"`
	Anxiety  float64  `json:"anxiety"`
	Trust    float64  `json:"trust"`
	Openness float64  `json:"openness"`
}

// BuildReport assembles a report from a session's turns and state history. states
// is the full history (start, shifts, turns); the last entry is the final state.
func BuildReport(persona *Persona, turns []ConversationTurn, states []EmotionalState, student string) *Report {
	r := &Report{
		Student:     student,
		GeneratedAt: time.Now(),
		Client:      ReportClient{Name: persona.Name, Age: persona.Age, Role: persona.Role},
		Progress:    make(map[string]string),
	}
	if len(states) > 0 {
		r.FinalState = states[len(states)-1].Clone()
	} else {
		r.FinalState = persona.DefaultState.Clone()
		r.FinalState.fillDefaults()
	}

	for _, t := range turns {
		r.Turns = append(r.Turns, ReportTurn{
			Student:  t.Student,
			Client:   t.Client,
			Scenario: t.Scenario,
			Strategy: t.Strategy,
			Mode:     t.Mode,
			Anxiety:  t.State.Anxiety(),
			Trust:    t.State.Trust(),
			Openness: t.State.Openness(),
		})
	}

	r.Progress["trust_progress"] = AssessTrend(MetricTrust, series(states, MetricTrust))
	r.Progress["anxiety_progress"] = AssessTrend(MetricAnxiety, series(states, MetricAnxiety))
	r.Progress["openness_progress"] = AssessTrend(MetricOpenness, series(states, MetricOpenness))
	r.Recommendations = Recommendations(r.FinalState)
	return r
}

func series(states []EmotionalState, metric string) []float64 {
	var out []float64
	for _, st := range states {
		if v, ok := st.Value(metric); ok {
			out = append(out, v)
		}
	}
	return out
}

// AssessTrend labels the change between the first and last value. For anxiety a
// decrease is the improvement.
func AssessTrend(metric string, values []float64) string {
	if len(values) < 2 {
		return "Insufficient data"
	}
	change := math.Round((values[len(values)-1]-values[0])*1000) / 1000

	switch metric {
	case MetricAnxiety:
		switch {
		case change < -strongTrend:
			return fmt.Sprintf("Significant reduction (%.2f) ✓", change)
		case change < -mildTrend:
			return fmt.Sprintf("Moderate reduction (%.2f) ✓", change)
		case change > strongTrend:
			return fmt.Sprintf("Significant increase (+%.2f) ⚠", change)
		case change > mildTrend:
			return fmt.Sprintf("Slight increase (+%.2f)", change)
		}
	case MetricTrust:
		switch {
		case change > strongTrend:
			return fmt.Sprintf("Strong improvement (+%.2f)", change)
		case change > mildTrend:
			return fmt.Sprintf("Moderate improvement (+%.2f)", change)
		case change < -strongTrend:
			return fmt.Sprintf("Significant decline (%.2f)", change)
		case change < -mildTrend:
			return fmt.Sprintf("Slight decline (%.2f)", change)
		}
	default:
		switch {
		case change > strongTrend:
			return fmt.Sprintf("Significant increase (+%.2f) ✓", change)
		case change > mildTrend:
			return fmt.Sprintf("Moderate increase (+%.2f) ✓", change)
		case change < -strongTrend:
			return fmt.Sprintf("Significant decrease (%.2f) ⚠", change)
		case change < -mildTrend:
			return fmt.Sprintf("Slight decrease (%.2f)", change)
		}
	}
	return fmt.Sprintf("Stable (%+.2f)", change)
}

// Recommendations suggests focus areas for the next session from the final state.
func Recommendations(final EmotionalState) []string {
	var recs []string
	switch trust := final.Trust(); {
	case trust < 0.4:
		recs = append(recs,
			"Focus on rapport building and validation in next session",
			"Avoid pushing for deep disclosure too quickly")
	case trust > 0.7:
		recs = append(recs,
			"Strong therapeutic alliance established",
			"May be ready for deeper exploration of difficult topics")
	}
	if final.Anxiety() > 0.7 {
		recs = append(recs,
			"Client experiencing high anxiety - prioritize safety and stability",
			"Consider anxiety management techniques and grounding")
	}
	if final.Openness() < 0.3 {
		recs = append(recs,
			"Client is guarded - respect pace and boundaries",
			"Use more open-ended questions and active listening")
	}
	switch final.Mode {
	case ModeDecompensating:
		recs = append(recs,
			"⚠ CLIENT MAY NEED CRISIS INTERVENTION",
			"Assess safety and consider referral to mental health services")
	case ModeTriggered:
		recs = append(recs,
			"Client ended session in defensive state",
			"Begin next session with rapport repair")
	}
	if len(recs) == 0 {
		recs = append(recs,
			"Continue with current therapeutic approach",
			"Build on positive progress from this session")
	}
	return recs
}

// WriteJSON writes the assessment export.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

const rule = "─────────────────────────────────────────────────────────────"

// Summary renders the plain-text session summary.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SESSION SUMMARY REPORT\n\n")
	fmt.Fprintf(&b, "Client: %s\n", r.Client.Name)
	fmt.Fprintf(&b, "Date: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Number of Interactions: %d\n\n%s\n\nINTERACTION OVERVIEW:\n", len(r.Turns), rule)
	for i, t := range r.Turns {
		fmt.Fprintf(&b, "\nTurn %d:\n  Student: %s\n  Client Mode: %s\n  Anxiety: %.2f | Trust: %.2f\n",
			i+1, truncate(t.Student, 80), t.Mode, t.Anxiety, t.Trust)
	}
	fmt.Fprintf(&b, "\n%s\n\nFINAL STATE:\n", rule)
	fmt.Fprintf(&b, "• Anxiety:          %.2f\n", r.FinalState.Anxiety())
	fmt.Fprintf(&b, "• Trust:            %.2f\n", r.FinalState.Trust())
	fmt.Fprintf(&b, "• Openness:         %.2f\n", r.FinalState.Openness())
	fmt.Fprintf(&b, "• Mode:             %s\n", r.FinalState.Mode)
	fmt.Fprintf(&b, "\n%s\n\nTHERAPEUTIC PROGRESS INDICATORS:\n\n", rule)
	fmt.Fprintf(&b, "Trust Development:    %s\n", r.Progress["trust_progress"])
	fmt.Fprintf(&b, "Anxiety Management:   %s\n", r.Progress["anxiety_progress"])
	fmt.Fprintf(&b, "Openness to Engage:   %s\n", r.Progress["openness_progress"])
	fmt.Fprintf(&b, "\n%s\n\nRECOMMENDATIONS FOR FUTURE SESSIONS:\n", rule)
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "• %s\n", rec)
	}
	return b.String()
}

// RenderTranscript renders turns with the state progression after each one, ending
// with the final emotional memory.
func RenderTranscript(persona *Persona, turns []ConversationTurn, final EmotionalState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OT MENTAL HEALTH SIMULATION TRANSCRIPT\n\n")
	fmt.Fprintf(&b, "Client: %s (%d, %s)\n", persona.Name, persona.Age, persona.Role)

	for i, t := range turns {
		fmt.Fprintf(&b, "\n%s\n\n", rule)
		if t.Scenario != "" {
			fmt.Fprintf(&b, "Context: %s\n\n", t.Scenario)
		}
		fmt.Fprintf(&b, "STUDENT:\n%s\n\n%s:\n%s\n", t.Student, strings.ToUpper(persona.Name), t.Client)
		fmt.Fprintf(&b, "\nSTATE AFTER TURN %d (%s):\n", i+1, t.State.Mode)
		for _, name := range t.State.MetricNames() {
			v := t.State.Metrics[name]
			fmt.Fprintf(&b, "• %-20s %.2f %s\n", name, v, strings.Repeat("█", int(v*10)))
		}
	}

	fmt.Fprintf(&b, "\n%s\n\nEMOTIONAL MEMORY:\n", rule)
	if len(final.Memory) == 0 {
		b.WriteString("No emotional memories recorded yet.\n")
	} else {
		for i, m := range final.Memory {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, m)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
