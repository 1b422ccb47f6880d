package driftline

import (
	"regexp"
	"strings"
)

const (
	// LeakageFiller replaces replies that echo prompt instructions.
	LeakageFiller = "I'm doing alright today. Just keeping things running, like always."
	// EmptyFiller replaces replies that are empty after cleanup.
	EmptyFiller = "Sorry, I didn't catch that. Could you rephrase?"
)

var (
	reDashBlock     = regexp.MustCompile(`(?s)---.*?---`)
	reBracketed     = regexp.MustCompile(`\[.*?\]`)
	reColonQuestion = regexp.MustCompile(`(?s)\s*:\s*[A-Z][^.!?]*\?.*$`)
	reAnswerTail    = regexp.MustCompile(`(?s)\[Answer:.*$`)
	reQuestionTail  = regexp.MustCompile(`(?s)\[Question:.*$`)
	rePipeTail      = regexp.MustCompile(`(?s)<\|[^|]*\|>.*$`)
)

// Model meta-commentary that ends the in-character text.
var metaMarkers = []string{
	"<|Question|>", "<|Answer|>", "<|Analysis|>", "<|beginning", "<|end", "<|template", "<|conversation",
	"\n(a)", "\n(b)", "\n(c)",
	" : ", ": Identify", ": What", ": How", ": Why", ": Describe",
	"[Answer:", "[Question:", "[Analysis:",
	"What emotions", "How might", "Why do you think", "This response shows",
	"Notice how", "Observe that", "Identify the elements", "What possible factors", "Consider how",
}

var leakagePrefixes = []string{"be sure to"}
var leakageFragments = []string{"use correct"}

// CleanGeneration turns raw backend output into a reply. It reports artifact=true when
// the text was replaced by a filler line.
func CleanGeneration(raw, personaName string) (string, bool) {
	text := strings.TrimSpace(raw)
	text = reDashBlock.ReplaceAllString(text, "")
	text = reBracketed.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	// Drop a leading role label.
	for _, label := range roleLabels(personaName) {
		if strings.HasPrefix(text, label) {
			text = strings.TrimSpace(text[len(label):])
		}
	}

	// Stop where the model starts writing the next turn.
	for _, stop := range stopMarkers(personaName) {
		if i := strings.Index(text, stop); i >= 0 {
			text = strings.TrimSpace(text[:i])
			break
		}
	}
	for _, m := range metaMarkers {
		if i := strings.Index(text, m); i >= 0 {
			text = strings.TrimSpace(text[:i])
			break
		}
	}
	text = reColonQuestion.ReplaceAllString(text, "")
	text = reAnswerTail.ReplaceAllString(text, "")
	text = reQuestionTail.ReplaceAllString(text, "")
	text = rePipeTail.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	lower := strings.ToLower(text)
	for _, p := range leakagePrefixes {
		if strings.HasPrefix(lower, p) {
			return LeakageFiller, true
		}
	}
	if containsAny(lower, leakageFragments) {
		return LeakageFiller, true
	}
	if text == "" {
		return EmptyFiller, true
	}
	return text, false
}

func stopMarkers(personaName string) []string {
	stops := []string{"Student:"}
	if personaName != "" {
		stops = append(stops, "\n"+personaName+":")
	}
	return stops
}

func roleLabels(personaName string) []string {
	labels := []string{"Student:"}
	if personaName != "" {
		labels = append(labels, personaName+":")
	}
	return labels
}
