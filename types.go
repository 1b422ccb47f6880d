package driftline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Mode is the discrete behavioral classification of a persona.
type Mode string

const (
	ModeBaseline       Mode = "baseline"
	ModeGuarded        Mode = "guarded"        // cautious, brief
	ModeTriggered      Mode = "triggered"      // defensive, withdrawn
	ModeTrusting       Mode = "trusting"       // open, reflective
	ModeRecovering     Mode = "recovering"     // calmer, hopeful
	ModeDecompensating Mode = "decompensating" // overwhelmed, possible crisis
)

// AllModes lists every mode in classification order.
var AllModes = []Mode{ModeDecompensating, ModeTriggered, ModeGuarded, ModeTrusting, ModeRecovering, ModeBaseline}

// Core metric names. Every EmotionalState carries these three.
const (
	MetricAnxiety            = "anxiety"
	MetricTrust              = "trust"
	MetricOpenness           = "openness"
	MetricPhysicalDiscomfort = "physical_discomfort"
)

var coreMetrics = []string{MetricAnxiety, MetricTrust, MetricOpenness}

// MemoryLimit bounds emotional memory; the oldest entries are evicted first.
const MemoryLimit = 5

const defaultMetricValue = 0.5

// EmotionalState is a persona's current emotional vector.
// Mode is derived from Metrics by the drift engine and is never authoritative on its own.
type EmotionalState struct {
	Metrics map[string]float64
	Mode    Mode
	Memory  []string
}

// NewEmotionalState returns a state with the core metrics at their defaults.
func NewEmotionalState() EmotionalState {
	s := EmotionalState{Metrics: make(map[string]float64), Mode: ModeBaseline}
	s.fillDefaults()
	return s
}

func (s *EmotionalState) fillDefaults() {
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64)
	}
	for _, k := range coreMetrics {
		if _, ok := s.Metrics[k]; !ok {
			s.Metrics[k] = defaultMetricValue
		}
	}
	if s.Mode == "" {
		s.Mode = ModeBaseline
	}
}

// Value returns a numeric metric and whether the state tracks it.
func (s EmotionalState) Value(name string) (float64, bool) {
	v, ok := s.Metrics[name]
	return v, ok
}

// ValueOr returns a numeric metric, or def if the state does not track it.
func (s EmotionalState) ValueOr(name string, def float64) float64 {
	if v, ok := s.Metrics[name]; ok {
		return v
	}
	return def
}

func (s EmotionalState) Anxiety() float64  { return s.ValueOr(MetricAnxiety, defaultMetricValue) }
func (s EmotionalState) Trust() float64    { return s.ValueOr(MetricTrust, defaultMetricValue) }
func (s EmotionalState) Openness() float64 { return s.ValueOr(MetricOpenness, defaultMetricValue) }

// MetricNames returns the tracked metric names, core metrics first then the rest sorted.
func (s EmotionalState) MetricNames() []string {
	names := make([]string, 0, len(s.Metrics))
	var extra []string
	for _, k := range coreMetrics {
		if _, ok := s.Metrics[k]; ok {
			names = append(names, k)
		}
	}
	for k := range s.Metrics {
		if !isCoreMetric(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Clone returns a deep copy.
func (s EmotionalState) Clone() EmotionalState {
	c := EmotionalState{Mode: s.Mode}
	c.Metrics = make(map[string]float64, len(s.Metrics))
	for k, v := range s.Metrics {
		c.Metrics[k] = v
	}
	if s.Memory != nil {
		c.Memory = append([]string(nil), s.Memory...)
	}
	return c
}

// remember appends an entry to emotional memory, keeping the last MemoryLimit entries.
func (s *EmotionalState) remember(entry string) {
	s.Memory = append(s.Memory, entry)
	if over := len(s.Memory) - MemoryLimit; over > 0 {
		s.Memory = append([]string(nil), s.Memory[over:]...)
	}
}

func isCoreMetric(name string) bool {
	for _, k := range coreMetrics {
		if k == name {
			return true
		}
	}
	return false
}

// flat returns the persona-file representation of the state.
func (s EmotionalState) flat() map[string]any {
	out := make(map[string]any, len(s.Metrics)+2)
	for k, v := range s.Metrics {
		out[k] = v
	}
	out["mode"] = string(s.Mode)
	mem := s.Memory
	if mem == nil {
		mem = []string{}
	}
	out["emotional_memory"] = mem
	return out
}

func (s *EmotionalState) fromFlat(raw map[string]any) error {
	s.Metrics = make(map[string]float64)
	s.Mode = ""
	s.Memory = nil
	for k, v := range raw {
		switch k {
		case "mode":
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("mode must be a string, got %T", v)
			}
			s.Mode = Mode(str)
		case "emotional_memory":
			list, ok := v.([]any)
			if !ok {
				if v == nil {
					continue
				}
				return fmt.Errorf("emotional_memory must be a list, got %T", v)
			}
			for _, item := range list {
				s.Memory = append(s.Memory, fmt.Sprint(item))
			}
		default:
			switch n := v.(type) {
			case int:
				s.Metrics[k] = float64(n)
			case int64:
				s.Metrics[k] = float64(n)
			case float64:
				s.Metrics[k] = math.Round(n*1000) / 1000
			default:
				return fmt.Errorf("metric %s must be numeric, got %T", k, v)
			}
		}
	}
	if len(s.Memory) > MemoryLimit {
		s.Memory = s.Memory[len(s.Memory)-MemoryLimit:]
	}
	s.fillDefaults()
	return nil
}

// MarshalJSON writes the flat persona-file representation.
func (s EmotionalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.flat())
}

// UnmarshalJSON reads the flat representation, filling missing core metrics with 0.5.
func (s *EmotionalState) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.fromFlat(raw)
}

// MarshalYAML writes the flat persona-file representation.
func (s EmotionalState) MarshalYAML() (any, error) {
	return s.flat(), nil
}

// UnmarshalYAML reads the flat representation, filling missing core metrics with 0.5.
func (s *EmotionalState) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return s.fromFlat(raw)
}

// ToneGuidance describes how a persona sounds in one mode.
type ToneGuidance struct {
	Voice   string `yaml:"voice" json:"voice"`
	Example string `yaml:"example" json:"example"`
}

// Script keys every persona should define.
const (
	ScriptCrisis       = "crisis"
	ScriptDeflection   = "deflection"
	ScriptTestingTrust = "testing_trust"
	ScriptResistance   = "resistance"
)

// Persona is an immutable client profile. Sessions copy DefaultState; the persona itself
// is never mutated after loading.
type Persona struct {
	Name            string                `yaml:"persona_name" json:"persona_name"`
	Age             int                   `yaml:"age" json:"age"`
	Role            string                `yaml:"role" json:"role"`
	SystemPrompt    string                `yaml:"system_prompt" json:"system_prompt"`
	Facts           FactList              `yaml:"facts" json:"facts"`
	Triggers        []string              `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	ReasoningStyle  string                `yaml:"reasoning_style,omitempty" json:"reasoning_style,omitempty"`
	ToneGuidance    map[Mode]ToneGuidance `yaml:"tone_guidance,omitempty" json:"tone_guidance,omitempty"`
	Scripts         map[string]string     `yaml:"scripts,omitempty" json:"scripts,omitempty"`
	ResilienceHooks []string              `yaml:"resilience_hooks,omitempty" json:"resilience_hooks,omitempty"`
	DefaultState    EmotionalState        `yaml:"default_state" json:"default_state"`
}

// Script returns a canned script, or def when the persona lacks it.
func (p *Persona) Script(key, def string) string {
	if s, ok := p.Scripts[key]; ok && s != "" {
		return s
	}
	return def
}

// Tone returns tone guidance for a mode with a neutral default voice.
func (p *Persona) Tone(mode Mode) ToneGuidance {
	tg := p.ToneGuidance[mode]
	if tg.Voice == "" {
		tg.Voice = "Natural and authentic"
	}
	return tg
}

// FactList is an ordered list of biographical facts. A YAML mapping is accepted and
// flattened to its values in document order.
type FactList []string

func (f *FactList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*f = list
	case yaml.MappingNode:
		var list []string
		for i := 1; i < len(node.Content); i += 2 {
			list = append(list, node.Content[i].Value)
		}
		*f = list
	default:
		*f = nil
	}
	return nil
}

// Scenario is a contextual event whose effects shift a persona's metrics.
type Scenario struct {
	Name        string             `yaml:"scenario" json:"scenario"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Effects     map[string]float64 `yaml:"effects,omitempty" json:"effects,omitempty"`
}

// Label is the description when present, otherwise the name.
func (s Scenario) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return s.Name
}

// ConversationTurn is one student/persona exchange.
type ConversationTurn struct {
	Student  string         `json:"student"`
	Client   string         `json:"client"`
	Scenario string         `json:"scenario,omitempty"`
	Strategy Strategy       `json:"strategy,omitempty"`
	Mode     Mode           `json:"mode,omitempty"`
	State    EmotionalState `json:"state"` // state after the reply
	At       time.Time      `json:"at"`
}

// Config holds Simulator initialization parameters.
type Config struct {
	DBPath             string        `yaml:"db_path"`       // SQLite transcript store (default: ./data/driftline.db)
	PersonaDir         string        `yaml:"persona_dir"`   // default: ./personas
	ScenarioPath       string        `yaml:"scenario_path"` // default: ./contexts/scenarios.json
	Hosted             HostedConfig  `yaml:"hosted"`
	Remote             RemoteConfig  `yaml:"remote"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"` // default 2h
	SweepInterval      time.Duration `yaml:"sweep_interval"`       // default 10m
	RecorderBuffer     int           `yaml:"recorder_buffer"`      // default 64
	DisableStore       bool          `yaml:"disable_store"`

	Policy *DriftPolicy `yaml:"-"`
	Logger *zap.Logger  `yaml:"-"`

	// Explicit backends take precedence over Hosted/Remote provider settings.
	HostedBackend Backend `yaml:"-"`
	RemoteBackend Backend `yaml:"-"`
}

// HostedConfig selects the hosted-model backend: "ollama", "gemini", or "" for none.
type HostedConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	Host     string        `yaml:"host"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RemoteConfig selects the remote API backend: "anthropic" or "" for none.
type RemoteConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./data/driftline.db"
	}
	if c.PersonaDir == "" {
		c.PersonaDir = "./personas"
	}
	if c.ScenarioPath == "" {
		c.ScenarioPath = "./contexts/scenarios.json"
	}
	if c.SessionIdleTimeout == 0 {
		c.SessionIdleTimeout = 2 * time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.RecorderBuffer == 0 {
		c.RecorderBuffer = 64
	}
	if c.Remote.RequestsPerSecond == 0 {
		c.Remote.RequestsPerSecond = 1
	}
	if c.Policy == nil {
		p := DefaultDriftPolicy()
		c.Policy = &p
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
