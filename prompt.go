package driftline

import (
	"fmt"
	"sort"
	"strings"
)

const (
	relevantFactCount  = 3
	promptHistoryTurns = 2
	defaultSituation   = "Normal day, no specific external stressors right now"
	contextMemoryLabel = "context:"
)

// BuildInstruction renders the instruction sent to a backend: persona identity and
// background, the facts most relevant to the message, the current situation, the
// numeric state, tone guidance for the mode and the recent conversation, ending on
// the persona's open turn label.
func BuildInstruction(persona *Persona, state EmotionalState, mode Mode, history []ConversationTurn, message string) string {
	name := persona.Name
	if name == "" {
		name = unnamedPersonaFallback
	}
	lower := strings.ToLower(message)
	tone := persona.Tone(mode)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %d, %s. In OT therapy session.\n\n", name, persona.Age, persona.Role)
	fmt.Fprintf(&b, "RESPOND as %s only. 5-6 sentences. Be authentic. NO analysis or questions.\n\n", name)
	fmt.Fprintf(&b, "BACKGROUND: %s\n\n", strings.TrimSpace(persona.SystemPrompt))

	b.WriteString("LIFE CONTEXT:\n")
	for _, f := range RelevantFacts(persona.Facts, message, relevantFactCount) {
		fmt.Fprintf(&b, "• %s\n", f)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "CURRENT SITUATION: %s\n\n", CurrentSituation(state))
	fmt.Fprintf(&b, "EMOTIONAL STATE (%s): Anxiety %.2f, Trust %.2f, Openness %.2f\n\n",
		mode, state.Anxiety(), state.Trust(), state.Openness())
	fmt.Fprintf(&b, "TONE: %s Example: %q\n\n", tone.Voice, tone.Example)

	if style := strings.TrimSpace(persona.ReasoningStyle); style != "" {
		fmt.Fprintf(&b, "HOW YOU THINK: %s\n\n", style)
	}
	if triggerHit(lower, persona.Triggers) {
		b.WriteString("SENSITIVE: This touches something you are defensive about. Let that show.\n\n")
	}

	if len(history) > 0 {
		b.WriteString("CONVERSATION SO FAR:\n")
		start := max(0, len(history)-promptHistoryTurns)
		for _, t := range history[start:] {
			fmt.Fprintf(&b, "Student: %s\n%s: %s\n\n", t.Student, name, t.Client)
		}
	}

	fmt.Fprintf(&b, "Student: %s\n%s:", message, name)
	return b.String()
}

// RelevantFacts returns up to n facts ranked by keyword-category overlap with the
// message. Ties keep their original order.
func RelevantFacts(facts []string, message string, n int) []string {
	if len(facts) == 0 || n <= 0 {
		return nil
	}
	lower := strings.ToLower(message)
	type scored struct {
		score int
		fact  string
	}
	ranked := make([]scored, len(facts))
	for i, f := range facts {
		ranked[i] = scored{factScore(lower, f), f}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, 0, min(n, len(ranked)))
	for _, r := range ranked[:min(n, len(ranked))] {
		out = append(out, r.fact)
	}
	return out
}

// CurrentSituation returns the most recent context entry from emotional memory.
func CurrentSituation(state EmotionalState) string {
	for i := len(state.Memory) - 1; i >= 0; i-- {
		if m := state.Memory[i]; strings.HasPrefix(m, contextMemoryLabel) {
			return strings.TrimSpace(strings.TrimPrefix(m, contextMemoryLabel))
		}
	}
	return defaultSituation
}
