package driftline

import (
	"strings"
)

// DriftEngine owns the transition rules for EmotionalState: context shifts, response
// effects, mode classification and teaching notes. It holds no state of its own and is
// safe for concurrent use; the states it mutates belong to the caller.
type DriftEngine struct {
	policy DriftPolicy
}

// NewDriftEngine creates an engine with the given policy.
func NewDriftEngine(policy DriftPolicy) *DriftEngine {
	return &DriftEngine{policy: policy}
}

var defaultEngine = NewDriftEngine(DefaultDriftPolicy())

// DefaultDriftEngine returns an engine using DefaultDriftPolicy.
func DefaultDriftEngine() *DriftEngine { return defaultEngine }

// Policy returns the engine's policy.
func (e *DriftEngine) Policy() DriftPolicy { return e.policy }

// ClassifyMode classifies with the default policy.
func ClassifyMode(s EmotionalState) Mode {
	return defaultEngine.ClassifyMode(s)
}

// ClassifyMode maps the core metrics to a mode. First matching rule wins; all
// comparisons are strict, so boundary values fall through.
func (e *DriftEngine) ClassifyMode(s EmotionalState) Mode {
	t := e.policy.Modes
	anxiety, trust, openness := s.Anxiety(), s.Trust(), s.Openness()

	switch {
	case anxiety > t.DecompensatingAnxiety:
		return ModeDecompensating
	case anxiety > t.TriggeredAnxiety && openness < t.TriggeredOpenness:
		return ModeTriggered
	case trust < t.GuardedTrust && openness < t.GuardedOpenness:
		return ModeGuarded
	case trust > t.TrustingTrust && openness > t.TrustingOpenness:
		return ModeTrusting
	case anxiety < t.RecoveringAnxiety && trust > t.RecoveringTrust:
		return ModeRecovering
	default:
		return ModeBaseline
	}
}

// Reclassify recomputes s.Mode from the current metrics and returns it.
func (e *DriftEngine) Reclassify(s *EmotionalState) Mode {
	s.Mode = e.ClassifyMode(*s)
	return s.Mode
}

// ApplyContextShift adds a scenario's effects to the metrics s already tracks and
// records the context in emotional memory. Unknown metric names are ignored.
func (e *DriftEngine) ApplyContextShift(s *EmotionalState, sc Scenario) *EmotionalState {
	e.addDeltas(s, sc.Effects)
	s.remember("context: " + sc.Label())
	e.Reclassify(s)
	return s
}

// ApplyResponseEffects scores the student's text and applies the deltas to s.
func (e *DriftEngine) ApplyResponseEffects(s *EmotionalState, text string) *EmotionalState {
	score := e.ScoreResponse(text)
	e.addDeltas(s, map[string]float64{
		MetricTrust:    score.Trust,
		MetricOpenness: score.Openness,
		MetricAnxiety:  score.Anxiety,
	})
	e.Reclassify(s)
	return s
}

// Remember appends a memory entry, evicting the oldest beyond MemoryLimit.
func (e *DriftEngine) Remember(s *EmotionalState, entry string) {
	s.remember(entry)
}

func (e *DriftEngine) addDeltas(s *EmotionalState, deltas map[string]float64) {
	if s.Metrics == nil {
		s.fillDefaults()
	}
	for k, d := range deltas {
		if v, ok := s.Metrics[k]; ok {
			s.Metrics[k] = round3(v + d)
		}
	}
}

// Teaching-note lines, in rule order.
const (
	noteAdvice         = "⚠️ Advice-giving detected. Consider asking open questions instead of giving directives."
	noteMinimizing     = "⚠️ Potential minimizing language. Avoid words that might diminish the client's experience."
	noteStackedQs      = "⚠️ Multiple questions detected. Consider asking one question at a time to avoid overwhelming the client."
	noteBrief          = "💡 Very brief response. Consider adding validation or reflection before asking questions."
	noteReflection     = "✅ Good use of reflection and validation."
	noteOpenQuestion   = "✅ Effective use of open-ended questions."
	noteDefensive      = "📊 Client is defensive. Consider backing off and focusing on rapport building."
	noteAlliance       = "📊 Strong therapeutic alliance forming. This is a good time to explore deeper issues."
	noteCrisis         = "🚨 Client may be in crisis. Assess safety and consider referral to crisis services."
	noteSolidByDefault = "✅ Solid therapeutic response. Continue building rapport."
)

// GenerateTeachingNote produces teaching feedback with the default policy.
func GenerateTeachingNote(s EmotionalState, text string, mode Mode) string {
	return defaultEngine.TeachingNote(s, text, mode)
}

// TeachingNote critiques the student's message. Every matching rule adds a line.
func (e *DriftEngine) TeachingNote(s EmotionalState, text string, mode Mode) string {
	lower := strings.ToLower(text)
	lx, tr := e.policy.Lexicon, e.policy.Teaching
	var notes []string

	if containsAny(lower, lx.NoteAdvice) {
		notes = append(notes, noteAdvice)
	}
	if containsAny(lower, lx.NoteMinimizing) {
		notes = append(notes, noteMinimizing)
	}
	if strings.Count(lower, "?") > tr.MaxQuestions {
		notes = append(notes, noteStackedQs)
	}
	if wordCount(text) < tr.BriefWords {
		notes = append(notes, noteBrief)
	}
	if containsAny(lower, lx.NoteReflection) {
		notes = append(notes, noteReflection)
	}
	if containsAny(lower, lx.NoteOpenQuestion) {
		notes = append(notes, noteOpenQuestion)
	}
	if mode == ModeTriggered && s.Trust() < tr.DefensiveTrust {
		notes = append(notes, noteDefensive)
	}
	if mode == ModeTrusting && s.Openness() > tr.AllianceOpenness {
		notes = append(notes, noteAlliance)
	}
	if mode == ModeDecompensating {
		notes = append(notes, noteCrisis)
	}

	if len(notes) == 0 {
		notes = append(notes, noteSolidByDefault)
	}
	return strings.Join(notes, "\n")
}
