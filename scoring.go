package driftline

import (
	"math"
	"strings"
)

// ResponseScore is the metric change a student message causes.
type ResponseScore struct {
	Trust    float64
	Openness float64
	Anxiety  float64
}

// ScoreResponse scores student text with the default policy.
func ScoreResponse(text string) ResponseScore {
	return defaultEngine.ScoreResponse(text)
}

// ScoreResponse computes metric deltas from lexical cues in the student's text.
// Each distinct phrase counts once, however often it appears.
//
//	positive = w.Validating×validating + w.OpenQuestion×openQuestion + w.Empathy×empathy
//	negative = w.Advice×advice + w.Minimizing×minimizing
//	trust    = positive − negative
//	openness = 0.8×positive − 0.5×negative
//	anxiety  = 0.5×negative − 0.3×positive
func (e *DriftEngine) ScoreResponse(text string) ResponseScore {
	lower := strings.ToLower(text)
	lx, w := e.policy.Lexicon, e.policy.Weights

	positive := w.Validating*float64(countPhrases(lower, lx.Validating)) +
		w.OpenQuestion*float64(countPhrases(lower, lx.OpenQuestion)) +
		w.Empathy*float64(countPhrases(lower, lx.Empathy))
	negative := w.Advice*float64(countPhrases(lower, lx.Advice)) +
		w.Minimizing*float64(countPhrases(lower, lx.Minimizing))

	score := ResponseScore{
		Trust:    positive - negative,
		Openness: w.OpennessFromPositive*positive - w.OpennessFromNegative*negative,
		Anxiety:  w.AnxietyFromNegative*negative - w.AnxietyFromPositive*positive,
	}

	// Too short reads as dismissive, too long as overwhelming.
	words := wordCount(text)
	if words < w.ShortMessageWords {
		score.Openness -= w.ShortMessagePenalty
	} else if words > w.LongMessageWords {
		score.Anxiety += w.LongMessagePenalty
	}
	return score
}

// countPhrases returns how many phrases occur at least once in lower.
func countPhrases(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}

func containsAny(lower string, phrases []string) bool {
	return countPhrases(lower, phrases) > 0
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// round3 rounds to 3 decimals and clamps to [0,1].
func round3(v float64) float64 {
	return math.Max(0, math.Min(1, math.Round(v*1000)/1000))
}
