package driftline

import (
	"strings"
)

// Variant selects a wording within a topic. Which variant applies is decided from the
// mode and metrics alone; the wording for it comes from the persona's row.
type Variant string

const (
	VariantClosed      Variant = "closed"  // guarded or triggered register
	VariantOpen        Variant = "open"    // trusting register
	VariantNeutral     Variant = "neutral" // everything else
	VariantClosedAbout Variant = "closed_about"
	VariantSevereOpen  Variant = "severe_open"
	VariantSevere      Variant = "severe"
	VariantMild        Variant = "mild"
	VariantAnxious     Variant = "anxious"
	VariantCalm        Variant = "calm"
	VariantOverwhelmed Variant = "overwhelmed"
)

// GenericPersona is the row used when a persona has no entry for a topic and variant.
const GenericPersona = "*"

type templateKey struct {
	persona string
	topic   Topic
	variant Variant
}

const (
	painSevereThreshold    = 0.6
	feelingsAnxiousCutoff  = 0.6
	defaultPainLevel       = 0.5
	resilienceReflectLead  = "You know what? "
	namePlaceholder        = "{name}"
	defaultCrisisPause     = "I don't feel safe right now. I need to pause."
	defaultCrisisStep      = "I need to step away. This is too much right now."
	defaultResistanceLine  = "I'm not really in the mood to talk about this."
	defaultDeflectionLine  = "It's not that deep. I'm just tired."
	recoveringLine         = "I'm feeling a bit better actually. Still working through things, but... yeah, better."
	baselineCheckInLine    = "I'm doing okay. What did you want to talk about?"
	unnamedPersonaFallback = "Client"
)

// TemplateSelector is the deterministic reply engine used when no backend is available
// or templates are forced. Lines are keyed by (persona × topic × variant); new personas
// only need new rows. Add rows before the selector is shared.
type TemplateSelector struct {
	lines map[templateKey]string
}

// NewTemplateSelector returns a selector loaded with the built-in persona rows.
func NewTemplateSelector() *TemplateSelector {
	ts := &TemplateSelector{lines: make(map[templateKey]string)}
	for persona, rows := range builtinTemplates {
		for topic, variants := range rows {
			for v, line := range variants {
				ts.Add(persona, topic, v, line)
			}
		}
	}
	return ts
}

var defaultSelector = NewTemplateSelector()

// Add registers a line. Persona names are matched case-insensitively.
func (ts *TemplateSelector) Add(persona string, topic Topic, v Variant, line string) {
	ts.lines[templateKey{personaKey(persona), topic, v}] = line
}

// Personas returns the persona names with dedicated rows.
func (ts *TemplateSelector) Personas() []string {
	seen := make(map[string]bool)
	var out []string
	for k := range ts.lines {
		if k.persona != GenericPersona && !seen[k.persona] {
			seen[k.persona] = true
			out = append(out, k.persona)
		}
	}
	return out
}

func (ts *TemplateSelector) lookup(persona string, topic Topic, v Variant) (string, bool) {
	if line, ok := ts.lines[templateKey{personaKey(persona), topic, v}]; ok {
		return line, true
	}
	line, ok := ts.lines[templateKey{GenericPersona, topic, v}]
	return line, ok
}

func personaKey(name string) string {
	if name == GenericPersona {
		return name
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// SelectTemplate picks a reply with the built-in rows.
func SelectTemplate(message, personaName string, mode Mode, state EmotionalState, persona *Persona, history []ConversationTurn) string {
	return defaultSelector.Select(message, personaName, mode, state, persona, history)
}

// Select picks a reply. First match wins: opening greeting, crisis query while
// decompensating, topic (work, pain, feelings, family), then a mode-based line.
func (ts *TemplateSelector) Select(message, personaName string, mode Mode, state EmotionalState, persona *Persona, history []ConversationTurn) string {
	if persona == nil {
		persona = &Persona{Name: personaName}
	}
	if len(history) == 0 && IsGreeting(message) {
		return ts.render(personaName, TopicGreeting, greetingVariant(mode))
	}
	if IsCrisisQuery(message) && mode == ModeDecompensating {
		return persona.Script(ScriptCrisis, defaultCrisisPause)
	}

	lower := strings.ToLower(message)
	switch topic := DetectTopic(message); topic {
	case TopicWork:
		return ts.render(personaName, topic, registerVariant(mode, ModeGuarded, ModeTriggered))
	case TopicPain:
		return ts.render(personaName, topic, painVariant(mode, state))
	case TopicFeelings:
		return ts.render(personaName, topic, feelingsVariant(mode, state, lower))
	case TopicFamily:
		return ts.render(personaName, topic, registerVariant(mode, ModeTriggered))
	}
	return ts.modeResponse(personaName, mode, persona)
}

func (ts *TemplateSelector) modeResponse(personaName string, mode Mode, persona *Persona) string {
	switch mode {
	case ModeDecompensating:
		return persona.Script(ScriptCrisis, defaultCrisisStep)
	case ModeTriggered:
		return persona.Script(ScriptResistance, defaultResistanceLine)
	case ModeGuarded:
		return persona.Script(ScriptDeflection, defaultDeflectionLine)
	case ModeTrusting:
		if len(persona.ResilienceHooks) > 0 {
			return resilienceReflectLead + persona.ResilienceHooks[0]
		}
	case ModeRecovering:
		return ts.renderOr(personaName, TopicMode, Variant(ModeRecovering), recoveringLine)
	}
	return ts.renderOr(personaName, TopicMode, Variant(ModeBaseline), baselineCheckInLine)
}

func (ts *TemplateSelector) render(personaName string, topic Topic, v Variant) string {
	return ts.renderOr(personaName, topic, v, baselineCheckInLine)
}

func (ts *TemplateSelector) renderOr(personaName string, topic Topic, v Variant, def string) string {
	line, ok := ts.lookup(personaName, topic, v)
	if !ok && v != VariantNeutral {
		line, ok = ts.lookup(personaName, topic, VariantNeutral)
	}
	if !ok {
		line = def
	}
	name := strings.TrimSpace(personaName)
	if name == "" {
		name = unnamedPersonaFallback
	}
	return strings.ReplaceAll(line, namePlaceholder, name)
}

func greetingVariant(mode Mode) Variant {
	return registerVariant(mode, ModeGuarded, ModeTriggered)
}

// registerVariant maps trusting to open, any of closedModes to closed, else neutral.
func registerVariant(mode Mode, closedModes ...Mode) Variant {
	if mode == ModeTrusting {
		return VariantOpen
	}
	for _, m := range closedModes {
		if mode == m {
			return VariantClosed
		}
	}
	return VariantNeutral
}

func painVariant(mode Mode, state EmotionalState) Variant {
	if state.ValueOr(MetricPhysicalDiscomfort, defaultPainLevel) <= painSevereThreshold {
		return VariantMild
	}
	if mode == ModeTrusting {
		return VariantSevereOpen
	}
	return VariantSevere
}

func feelingsVariant(mode Mode, state EmotionalState, lower string) Variant {
	switch mode {
	case ModeDecompensating:
		return VariantOverwhelmed
	case ModeTriggered, ModeGuarded:
		if strings.Contains(lower, "about") {
			return VariantClosedAbout
		}
		return VariantClosed
	case ModeTrusting:
		if state.Anxiety() > feelingsAnxiousCutoff {
			return VariantAnxious
		}
		return VariantCalm
	}
	return VariantNeutral
}

// DetermineMemoryTag labels how the persona experienced the exchange, using the
// default policy's cues.
func DetermineMemoryTag(message string, mode Mode, state EmotionalState) string {
	return defaultEngine.MemoryTag(message, mode, state)
}

// MemoryTag labels how the persona experienced the exchange.
func (e *DriftEngine) MemoryTag(message string, mode Mode, state EmotionalState) string {
	lower := strings.ToLower(message)
	lx := e.policy.Lexicon
	switch mode {
	case ModeTrusting:
		if containsAny(lower, lx.MemoryValidated) {
			return "felt validated"
		}
		return "felt safe to open up"
	case ModeTriggered:
		if containsAny(lower, lx.MemoryCriticized) {
			return "felt criticized"
		}
		return "felt defensive"
	case ModeGuarded:
		return "felt cautious"
	case ModeDecompensating:
		return "felt overwhelmed"
	}
	return "shared thoughts"
}

// Maya greets the same way in every mode.
const mayaGreeting = "Hello. I'm Maya. I appreciate you taking the time to talk with me."

type templateRows map[Topic]map[Variant]string

var builtinTemplates = map[string]templateRows{
	GenericPersona: {
		TopicGreeting: {
			VariantClosed:  "Hi. So... how is this supposed to work?",
			VariantNeutral: "Hi, I'm {name}. Not totally sure what to expect, but I'm here.",
		},
		TopicWork: {
			VariantClosed:  "Work's work. I'd rather not get into it.",
			VariantOpen:    "Honestly, work has been wearing me down. There's always more to do than there's time for, and it's starting to get to me.",
			VariantNeutral: "Work's fine. Busy, but fine.",
		},
		TopicPain: {
			VariantSevereOpen: "My body's been hurting more than I let on. Some days it's hard to get through everything I need to do.",
			VariantSevere:     "It's nothing. I just push through it.",
			VariantMild:       "Physically I'm doing alright today.",
		},
		TopicFeelings: {
			VariantOverwhelmed: "I don't... everything's just a lot right now. I can't really explain it. I'm just overwhelmed.",
			VariantClosedAbout: "I don't know. Fine, I guess?",
			VariantClosed:      "I'm fine. Just tired.",
			VariantAnxious:     "Honestly? Anxious. There's a lot going on and it all just builds up.",
			VariantCalm:        "Better than I have been, actually. Still working on things, but it's manageable.",
			VariantNeutral:     "I'm alright. Just dealing with the usual stuff.",
		},
		TopicFamily: {
			VariantClosed:  "I'd rather not talk about family right now.",
			VariantOpen:    "Family's complicated. We care about each other, but we don't always understand each other.",
			VariantNeutral: "Family's fine. Nothing new there.",
		},
		TopicMode: {
			Variant(ModeRecovering): recoveringLine,
			Variant(ModeBaseline):   baselineCheckInLine,
		},
	},
	"jack": {
		TopicGreeting: {
			VariantClosed:  "Hey. So... what exactly are we doing here?",
			VariantNeutral: "Hi. I'm Jack. Not really sure what to expect from this, but... yeah, here I am.",
		},
		TopicWork: {
			VariantClosed:  "I'd rather not get into it. Work is work, you know?",
			VariantOpen:    "My brother's been on my case all week. It's like... I can't do anything right in his eyes. And my dad just backs him up because 'he's the foreman.' It's frustrating.",
			VariantNeutral: "Work's... fine. Same stuff, different day. Framing houses, dealing with Mike being Mike.",
		},
		TopicPain: {
			VariantSevereOpen: "My knee's been killing me lately. Some days I'm limping by noon. I used to be able to do so much more physically, and now... yeah, it's frustrating.",
			VariantSevere:     "It's whatever. I just take some ibuprofen and push through. Not like I have a choice.",
			VariantMild:       "Knee's okay today. Manageable.",
		},
		TopicFeelings: {
			VariantAnxious: "Honestly? Anxious. Like there's this constant pressure I can't shake. Work, family expectations, feeling stuck... it all just builds up.",
			VariantCalm:    "Better than I have been, actually. Still stressed, but like... manageable stress?",
		},
		TopicFamily: {
			VariantClosed:  "Can we talk about something else?",
			VariantOpen:    "My dad and I mostly just coexist. He works a lot, I work a lot. My brother... that's complicated since he's also my boss. Mom moved to Arizona years ago.",
			VariantNeutral: "Family's fine. Nothing new there.",
		},
	},
	"maya": {
		TopicGreeting: {
			VariantClosed:  mayaGreeting,
			VariantOpen:    mayaGreeting,
			VariantNeutral: mayaGreeting,
		},
		TopicWork: {
			VariantClosed:  "It's just work stress. Everyone deals with it, right?",
			VariantOpen:    "Honestly? I feel like I'm drowning. Between agency work and freelance projects, I'm just... constantly behind. And my review is coming up, so there's that pressure too.",
			VariantNeutral: "Work's been busy. Lots of deadlines. The usual design agency chaos.",
		},
		TopicPain: {
			VariantSevereOpen: "The headaches are almost daily now, and my wrists hurt when I'm working. I keep thinking, what if I'm doing permanent damage? But I can't afford to stop working.",
			VariantSevere:     "I get headaches sometimes. Probably just from staring at screens all day. Everyone in design deals with it.",
			VariantMild:       "Physically I'm okay. Just the usual screen fatigue.",
		},
		TopicFeelings: {
			VariantAnxious: "Overwhelmed, mostly. And scared that I'm not good enough for this. Everyone else seems to handle everything so much better than me.",
			VariantCalm:    "I'm doing okay. Some days are harder than others, but I'm managing.",
		},
		TopicFamily: {
			VariantClosed:  "I don't really want to get into family stuff right now.",
			VariantOpen:    "My parents are supportive but they don't really understand creative work. My sister's a nurse practitioner and everyone's always comparing us. It's... yeah, it's a thing.",
			VariantNeutral: "Family's good. I talk to them pretty regularly.",
		},
	},
}
