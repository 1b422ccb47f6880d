package driftline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var requiredPersonaKeys = []string{"persona_name", "age", "role", "system_prompt", "facts", "default_state"}

// Modes every persona should describe in tone_guidance. Recovering falls back to the
// default voice.
var recommendedToneModes = []Mode{ModeBaseline, ModeGuarded, ModeTriggered, ModeTrusting, ModeDecompensating}

var recommendedScripts = []string{ScriptCrisis, ScriptDeflection, ScriptTestingTrust, ScriptResistance}

// ParsePersona decodes a persona record (YAML or JSON). Missing required fields and
// non-numeric core metrics are errors; missing optional state fields are filled with
// defaults and reported as warnings.
func ParsePersona(data []byte, source string) (*Persona, []string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, &ConfigurationError{Record: source, Reason: "decode: " + err.Error()}
	}
	if raw == nil {
		return nil, nil, &ConfigurationError{Record: source, Reason: "empty persona record"}
	}
	for _, key := range requiredPersonaKeys {
		if _, ok := raw[key]; !ok {
			return nil, nil, &ConfigurationError{Record: source, Field: key, Reason: "required"}
		}
	}

	var warnings []string
	state, ok := raw["default_state"].(map[string]any)
	if !ok {
		return nil, nil, &ConfigurationError{Record: source, Field: "default_state", Reason: "must be a mapping"}
	}
	for _, key := range coreMetrics {
		if _, present := state[key]; !present {
			warnings = append(warnings, fmt.Sprintf("default_state.%s missing, using %.1f", key, defaultMetricValue))
		}
	}
	for key, v := range state {
		if key == "mode" || key == "emotional_memory" {
			continue
		}
		if !isNumber(v) {
			return nil, nil, &ConfigurationError{Record: source, Field: "default_state." + key, Reason: "must be numeric"}
		}
	}
	if _, present := state["mode"]; !present {
		warnings = append(warnings, "default_state.mode missing, using baseline")
	}
	if _, isList := raw["facts"].([]any); !isList {
		warnings = append(warnings, "facts should be a list")
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, nil, &ConfigurationError{Record: source, Reason: "decode: " + err.Error()}
	}
	more, err := p.Validate()
	if err != nil {
		if ce, ok := err.(*ConfigurationError); ok && ce.Record == "" {
			ce.Record = source
		}
		return nil, nil, err
	}
	return &p, append(warnings, more...), nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int64, float64:
		return true
	}
	return false
}

// Validate checks that the persona can drive a simulation. Gaps that only degrade
// output quality are returned as warnings.
func (p *Persona) Validate() ([]string, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, &ConfigurationError{Record: p.Name, Field: "persona_name", Reason: "must not be empty"}
	}
	for _, key := range p.DefaultState.MetricNames() {
		v := p.DefaultState.Metrics[key]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, &ConfigurationError{Record: p.Name, Field: "default_state." + key, Reason: "must be between 0 and 1"}
		}
	}

	var warnings []string
	if len(p.ToneGuidance) == 0 {
		warnings = append(warnings, "tone_guidance missing")
	} else {
		var missing []string
		for _, m := range recommendedToneModes {
			if _, ok := p.ToneGuidance[m]; !ok {
				missing = append(missing, string(m))
			}
		}
		if len(missing) > 0 {
			warnings = append(warnings, "tone_guidance missing modes: "+strings.Join(missing, ", "))
		}
	}
	var missingScripts []string
	for _, k := range recommendedScripts {
		if p.Scripts[k] == "" {
			missingScripts = append(missingScripts, k)
		}
	}
	if len(missingScripts) > 0 {
		warnings = append(warnings, "scripts missing: "+strings.Join(missingScripts, ", "))
	}
	return warnings, nil
}

// LoadPersona reads and parses a persona file.
func LoadPersona(path string) (*Persona, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read persona %s: %w", path, err)
	}
	return ParsePersona(data, path)
}

// SavePersona writes a persona as YAML.
func SavePersona(p *Persona, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadPersonasFromDir loads every .yaml, .yml and .json persona in dir, keyed by file
// name without extension. Invalid files are skipped with a warning. A missing
// directory yields an empty set.
func LoadPersonasFromDir(dir string, logger *zap.Logger) (map[string]*Persona, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := make(map[string]*Persona)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("reading personas dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, warnings, err := LoadPersona(path)
		if err != nil {
			logger.Warn("skipping persona", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, w := range warnings {
			logger.Debug("persona warning", zap.String("path", path), zap.String("warning", w))
		}
		result[strings.TrimSuffix(entry.Name(), ext)] = p
	}
	return result, nil
}

// SortedPersonaIDs returns the catalog keys in order.
func SortedPersonaIDs(personas map[string]*Persona) []string {
	ids := make([]string, 0, len(personas))
	for id := range personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindPersona looks a persona up by catalog ID or, case-insensitively, by name.
func FindPersona(personas map[string]*Persona, key string) (*Persona, bool) {
	if p, ok := personas[key]; ok {
		return p, true
	}
	for _, id := range SortedPersonaIDs(personas) {
		if strings.EqualFold(personas[id].Name, key) {
			return personas[id], true
		}
	}
	return nil, false
}

// DefaultPersona returns a complete development persona.
func DefaultPersona(name string, age int, role string) *Persona {
	return &Persona{
		Name:         name,
		Age:          age,
		Role:         role,
		SystemPrompt: fmt.Sprintf("You are %s, a %d-year-old %s. Respond naturally and stay in character.", name, age, role),
		Facts: FactList{
			fmt.Sprintf("%s is %d years old", name, age),
			fmt.Sprintf("%s works as a %s", name, role),
		},
		Triggers:       []string{"criticism", "pressure", "isolation"},
		ReasoningStyle: "Tends to analyze situations carefully before responding.",
		ToneGuidance: map[Mode]ToneGuidance{
			ModeBaseline:       {Voice: "Calm and thoughtful", Example: "I'm doing okay today, thanks for asking."},
			ModeGuarded:        {Voice: "Brief and cautious", Example: "I'd rather not talk about that right now."},
			ModeTriggered:      {Voice: "Defensive or withdrawn", Example: "I don't see how that's relevant."},
			ModeTrusting:       {Voice: "Open and reflective", Example: "You know, I've been thinking about what you said last time..."},
			ModeDecompensating: {Voice: "Fragmented and overwhelmed", Example: "I just... I can't... it's too much."},
		},
		Scripts: map[string]string{
			ScriptCrisis:       "I'm not feeling safe right now. I need to step away.",
			ScriptDeflection:   "It's fine. I don't want to make a big deal out of it.",
			ScriptTestingTrust: "Why are you asking about that?",
			ScriptResistance:   "I don't see how talking about this helps.",
		},
		ResilienceHooks: []string{
			fmt.Sprintf("%s has coping strategies they've used before", name),
			fmt.Sprintf("%s values certain relationships in their life", name),
		},
		DefaultState: NewEmotionalState(),
	}
}
