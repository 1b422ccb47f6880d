package driftline

import "strings"

// SuggestionGroup is a titled set of example student lines.
type SuggestionGroup struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

var openingSuggestions = []SuggestionGroup{
	{Title: "Warm Introduction", Lines: []string{
		"Hi, I'm [your name], an occupational therapy student. I'm here to support you. How are you doing today?"}},
	{Title: "Purpose Clarification", Lines: []string{
		"Hello! I'm [name], studying occupational therapy. I'm wondering what brings you here today?"}},
	{Title: "Collaborative Start", Lines: []string{
		"Hi [client name], thanks for meeting with me. What would be most helpful to talk about today?"}},
}

var techniqueSuggestions = SuggestionGroup{Title: "Therapeutic Techniques", Lines: []string{
	"Validation: That sounds really challenging. How has this been affecting you?",
	"Open Question: Can you tell me more about...?",
	"Reflection: It sounds like you're feeling... Is that right?",
	"Explore Meaning: What does that mean to you?",
}}

// Suggest returns example responses for the student's next turn. With no turns yet it
// offers opening approaches; otherwise it targets low trust, high anxiety and low
// openness in the current state, followed by general techniques.
func Suggest(state EmotionalState, turns int) []SuggestionGroup {
	if turns == 0 {
		return append([]SuggestionGroup(nil), openingSuggestions...)
	}
	var out []SuggestionGroup
	if state.ValueOr(MetricTrust, defaultMetricValue) < 0.4 {
		out = append(out, SuggestionGroup{Title: "Build Trust", Lines: []string{
			"I appreciate you sharing that with me. That takes courage.",
			"I'm here to support you, not judge. Your experiences matter.",
			"What you're feeling makes complete sense given what you've described.",
		}})
	}
	if state.ValueOr(MetricAnxiety, defaultMetricValue) > 0.6 {
		out = append(out, SuggestionGroup{Title: "Reduce Anxiety", Lines: []string{
			"I notice this might be bringing up some difficult feelings. Would you like to take a moment?",
			"There's no rush. We can talk about this at whatever pace feels right for you.",
			"What would help you feel more comfortable right now?",
		}})
	}
	if state.ValueOr(MetricOpenness, defaultMetricValue) < 0.4 {
		out = append(out, SuggestionGroup{Title: "Encourage Openness", Lines: []string{
			"I'm curious to hear more about that, if you're comfortable sharing.",
			"What does a typical day look like for you?",
			"Tell me about something you enjoy doing.",
		}})
	}
	return append(out, techniqueSuggestions)
}

// FormatSuggestions renders groups as a bulleted list.
func FormatSuggestions(groups []SuggestionGroup) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(g.Title + ":\n")
		for _, l := range g.Lines {
			b.WriteString("  - " + l + "\n")
		}
	}
	return b.String()
}
