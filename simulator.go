package driftline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Simulator hosts persona sessions: it loads the persona and scenario catalogs,
// resolves generation backends, and owns the transcript store.
// It provides StartSession, Respond, ShiftContext and EndSession for training front ends.
type Simulator struct {
	config     Config
	store      *Store
	recorder   *AsyncRecorder
	dispatcher *Dispatcher
	registry   *Registry
	logger     *zap.Logger

	mu        sync.RWMutex
	personas  map[string]*Persona
	scenarios []Scenario

	cancelSweep context.CancelFunc
}

// Init creates a Simulator, opens the store, loads catalogs and starts the idle sweep.
func Init(ctx context.Context, cfg Config) (*Simulator, error) {
	cfg.ApplyDefaults()
	logger := cfg.Logger

	sim := &Simulator{config: cfg, logger: logger}

	if !cfg.DisableStore {
		store, err := NewStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		sim.store = store
		sim.recorder = NewAsyncRecorder(store, cfg.RecorderBuffer, logger.Named("recorder"))
	}

	hosted, remote, err := buildBackends(ctx, cfg)
	if err != nil {
		sim.closeStore()
		return nil, err
	}
	opts := []DispatcherOption{
		WithEngine(NewDriftEngine(*cfg.Policy)),
		WithLogger(logger.Named("dispatch")),
	}
	if hosted != nil {
		opts = append(opts, WithHostedBackend(hosted))
	}
	if remote != nil {
		opts = append(opts, WithRemoteBackend(remote))
	}
	sim.dispatcher = NewDispatcher(opts...)

	if err := sim.Reload(); err != nil {
		sim.closeStore()
		return nil, err
	}

	var ender SessionEnder
	if sim.recorder != nil {
		ender = sim.recorder
	}
	sim.registry = NewRegistry(cfg.SessionIdleTimeout, ender, logger)
	if cfg.SweepInterval > 0 {
		sim.startSweepWorker(cfg.SweepInterval)
	}

	logger.Info("simulator initialized",
		zap.String("db", cfg.DBPath),
		zap.Bool("store", sim.store != nil),
		zap.Stringer("backends", sim.dispatcher.Availability()),
		zap.Int("personas", len(sim.personas)),
		zap.Int("scenarios", len(sim.scenarios)))
	return sim, nil
}

// buildBackends constructs the configured hosted and remote backends. Explicit
// backends in the config win over provider settings.
func buildBackends(ctx context.Context, cfg Config) (hosted, remote Backend, err error) {
	hosted = cfg.HostedBackend
	if hosted == nil {
		switch cfg.Hosted.Provider {
		case "":
		case "ollama":
			model := cfg.Hosted.Model
			if model == "" {
				model = "llama3.2"
			}
			var opts []OllamaOption
			if cfg.Hosted.Host != "" {
				opts = append(opts, WithOllamaHost(cfg.Hosted.Host))
			}
			if cfg.Hosted.Timeout > 0 {
				opts = append(opts, WithOllamaTimeout(cfg.Hosted.Timeout))
			}
			hosted = NewOllamaBackend(model, opts...)
		case "gemini":
			var opts []GeminiOption
			if cfg.Hosted.Model != "" {
				opts = append(opts, WithGeminiModel(cfg.Hosted.Model))
			}
			if cfg.Hosted.Host != "" {
				opts = append(opts, WithGeminiBaseURL(cfg.Hosted.Host))
			}
			if cfg.Hosted.Timeout > 0 {
				opts = append(opts, WithGeminiTimeout(cfg.Hosted.Timeout))
			}
			g, gerr := NewGeminiBackend(ctx, cfg.Hosted.APIKey, opts...)
			if gerr != nil {
				return nil, nil, &ConfigurationError{Record: "config", Field: "hosted", Reason: gerr.Error()}
			}
			hosted = g
		default:
			return nil, nil, &ConfigurationError{Record: "config", Field: "hosted.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Hosted.Provider)}
		}
	}

	remote = cfg.RemoteBackend
	if remote == nil {
		switch cfg.Remote.Provider {
		case "":
		case "anthropic":
			if cfg.Remote.APIKey == "" {
				return nil, nil, &ConfigurationError{Record: "config", Field: "remote.api_key", Reason: "required for anthropic"}
			}
			opts := []AnthropicOption{WithAnthropicRate(cfg.Remote.RequestsPerSecond)}
			if cfg.Remote.Model != "" {
				opts = append(opts, WithAnthropicModel(cfg.Remote.Model))
			}
			if cfg.Remote.BaseURL != "" {
				opts = append(opts, WithAnthropicBaseURL(cfg.Remote.BaseURL))
			}
			if cfg.Remote.Timeout > 0 {
				opts = append(opts, WithAnthropicTimeout(cfg.Remote.Timeout))
			}
			remote = NewAnthropicBackend(cfg.Remote.APIKey, opts...)
		default:
			return nil, nil, &ConfigurationError{Record: "config", Field: "remote.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Remote.Provider)}
		}
	}
	return hosted, remote, nil
}

// Reload re-reads the persona directory and scenario file.
func (sim *Simulator) Reload() error {
	personas, err := LoadPersonasFromDir(sim.config.PersonaDir, sim.logger)
	if err != nil {
		return err
	}
	scenarios, err := LoadScenarios(sim.config.ScenarioPath)
	if err != nil {
		return err
	}
	sim.mu.Lock()
	sim.personas = personas
	sim.scenarios = scenarios
	sim.mu.Unlock()
	return nil
}

// Personas returns the catalog IDs of loaded personas.
func (sim *Simulator) Personas() []string {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return SortedPersonaIDs(sim.personas)
}

// Persona looks up a persona by catalog ID or name.
func (sim *Simulator) Persona(key string) (*Persona, error) {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	p, ok := FindPersona(sim.personas, key)
	if !ok {
		return nil, &ConfigurationError{Record: key, Field: "persona", Reason: "not found"}
	}
	return p, nil
}

// Scenarios returns the loaded scenarios.
func (sim *Simulator) Scenarios() []Scenario {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return append([]Scenario(nil), sim.scenarios...)
}

// Dispatcher returns the shared response dispatcher.
func (sim *Simulator) Dispatcher() *Dispatcher { return sim.dispatcher }

// Store returns the transcript store, or nil when persistence is disabled.
func (sim *Simulator) Store() *Store { return sim.store }

// StartSession begins a session with the named persona.
func (sim *Simulator) StartSession(personaKey string) (*Session, error) {
	p, err := sim.Persona(personaKey)
	if err != nil {
		return nil, err
	}
	opts := []SessionOption{WithSessionLogger(sim.logger.Named("session"))}
	if sim.recorder != nil {
		opts = append(opts, WithRecorder(sim.recorder))
	}
	s, err := NewSession(p, sim.dispatcher, opts...)
	if err != nil {
		return nil, err
	}
	if sim.store != nil {
		if err := sim.store.CreateSession(s.ID(), p.Name); err != nil {
			sim.logger.Warn("create session record failed", zap.String("session", s.ID()), zap.Error(err))
		}
	}
	sim.registry.Add(s)
	return s, nil
}

// Session returns a live session.
func (sim *Simulator) Session(id string) (*Session, error) {
	return sim.registry.Get(id)
}

// Respond answers a student message in the given session.
func (sim *Simulator) Respond(ctx context.Context, sessionID, message string, forced ForcedMode) (*Result, error) {
	s, err := sim.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Respond(ctx, message, forced)
}

// ShiftContext applies a named scenario to a session.
func (sim *Simulator) ShiftContext(sessionID, scenario string) (EmotionalState, error) {
	s, err := sim.registry.Get(sessionID)
	if err != nil {
		return EmotionalState{}, err
	}
	sc, err := FindScenario(sim.Scenarios(), scenario)
	if err != nil {
		return EmotionalState{}, err
	}
	return s.ShiftContext(sc), nil
}

// Suggest returns suggested student responses for a session's current state.
func (sim *Simulator) Suggest(sessionID string) ([]SuggestionGroup, error) {
	s, err := sim.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return Suggest(s.State(), len(s.Turns())), nil
}

// Report builds the assessment report for a live session.
func (sim *Simulator) Report(sessionID, student string) (*Report, error) {
	s, err := sim.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return BuildReport(s.Persona(), s.Turns(), s.StateHistory(), student), nil
}

// EndSession removes a session and returns its final report.
func (sim *Simulator) EndSession(sessionID, student string) (*Report, error) {
	s, err := sim.registry.End(sessionID)
	if err != nil {
		return nil, err
	}
	return BuildReport(s.Persona(), s.Turns(), s.StateHistory(), student), nil
}

// Close stops the sweep worker, flushes pending records and closes the store.
func (sim *Simulator) Close() error {
	if sim.cancelSweep != nil {
		sim.cancelSweep()
	}
	return sim.closeStore()
}

func (sim *Simulator) closeStore() error {
	if sim.recorder != nil {
		sim.recorder.Close()
		sim.recorder = nil
	}
	if sim.store == nil {
		return nil
	}
	err := sim.store.Close()
	sim.store = nil
	return err
}
