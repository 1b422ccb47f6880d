package driftline

// DriftPolicy holds every hand-tuned constant the drift engine uses. The values in
// DefaultDriftPolicy drive the teaching-feedback scenarios; change them as a set.
type DriftPolicy struct {
	Modes    ModeThresholds
	Weights  ScoringWeights
	Lexicon  Lexicon
	Teaching TeachingRules
}

// ModeThresholds are the strict-inequality cut points of the mode decision list.
type ModeThresholds struct {
	DecompensatingAnxiety float64 // anxiety above → decompensating
	TriggeredAnxiety      float64 // anxiety above and openness below → triggered
	TriggeredOpenness     float64
	GuardedTrust          float64 // trust below and openness below → guarded
	GuardedOpenness       float64
	TrustingTrust         float64 // trust above and openness above → trusting
	TrustingOpenness      float64
	RecoveringAnxiety     float64 // anxiety below and trust above → recovering
	RecoveringTrust       float64
}

// ScoringWeights convert phrase counts into metric deltas.
type ScoringWeights struct {
	Validating   float64
	OpenQuestion float64
	Empathy      float64
	Advice       float64
	Minimizing   float64

	OpennessFromPositive float64
	OpennessFromNegative float64
	AnxietyFromNegative  float64
	AnxietyFromPositive  float64

	ShortMessageWords   int // fewer words than this costs openness
	ShortMessagePenalty float64
	LongMessageWords    int // more words than this raises anxiety
	LongMessagePenalty  float64
}

// Lexicon is the phrase sets matched against lowercased student text.
type Lexicon struct {
	Validating   []string
	OpenQuestion []string
	Empathy      []string
	Advice       []string
	Minimizing   []string

	// Teaching-note cues are narrower than the scoring sets: "must" and "easy" move
	// metrics but are not flagged to the student.
	NoteAdvice       []string
	NoteMinimizing   []string
	NoteReflection   []string
	NoteOpenQuestion []string

	// Memory-tag cues: validation in trusting mode, criticism in triggered mode.
	MemoryValidated  []string
	MemoryCriticized []string
}

// TeachingRules are the thresholds behind teaching-note lines.
type TeachingRules struct {
	MaxQuestions     int
	BriefWords       int
	DefensiveTrust   float64
	AllianceOpenness float64
}

// DefaultDriftPolicy returns the standard thresholds, weights and phrase sets.
func DefaultDriftPolicy() DriftPolicy {
	return DriftPolicy{
		Modes: ModeThresholds{
			DecompensatingAnxiety: 0.8,
			TriggeredAnxiety:      0.6,
			TriggeredOpenness:     0.3,
			GuardedTrust:          0.4,
			GuardedOpenness:       0.5,
			TrustingTrust:         0.6,
			TrustingOpenness:      0.6,
			RecoveringAnxiety:     0.4,
			RecoveringTrust:       0.5,
		},
		Weights: ScoringWeights{
			Validating:           0.05,
			OpenQuestion:         0.04,
			Empathy:              0.03,
			Advice:               0.08,
			Minimizing:           0.06,
			OpennessFromPositive: 0.8,
			OpennessFromNegative: 0.5,
			AnxietyFromNegative:  0.5,
			AnxietyFromPositive:  0.3,
			ShortMessageWords:    5,
			ShortMessagePenalty:  0.05,
			LongMessageWords:     100,
			LongMessagePenalty:   0.05,
		},
		Lexicon: Lexicon{
			Validating:   []string{"understand", "sounds like", "seems", "feel", "must be", "makes sense"},
			OpenQuestion: []string{"tell me more", "what's that like", "how", "what"},
			Empathy:      []string{"hard", "difficult", "challenging", "tough"},
			Advice:       []string{"should", "need to", "have to", "must", "why don't you"},
			Minimizing:   []string{"just", "simply", "easy", "only", "at least"},

			NoteAdvice:       []string{"should", "need to", "have to"},
			NoteMinimizing:   []string{"just", "simply", "only"},
			NoteReflection:   []string{"sounds like", "seems", "hear you"},
			NoteOpenQuestion: []string{"tell me more", "what's that like"},

			MemoryValidated:  []string{"understand", "hear you", "makes sense"},
			MemoryCriticized: []string{"should", "need to", "why don't"},
		},
		Teaching: TeachingRules{
			MaxQuestions:     2,
			BriefWords:       10,
			DefensiveTrust:   0.4,
			AllianceOpenness: 0.6,
		},
	}
}
