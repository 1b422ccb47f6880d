package driftline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSimulator(t *testing.T, cfg Config) *Simulator {
	t.Helper()
	cfg.PersonaDir = "personas"
	cfg.ScenarioPath = filepath.Join("contexts", "scenarios.json")
	sim, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sim.Close() })
	return sim
}

func TestSimulatorTemplatesOnly(t *testing.T) {
	sim := testSimulator(t, Config{DisableStore: true})

	assert.Nil(t, sim.Store())
	assert.Contains(t, sim.Personas(), "jack")
	assert.NotEmpty(t, sim.Scenarios())
	assert.Equal(t, "templates-only", sim.Dispatcher().Availability().String())

	s, err := sim.StartSession("Jack")
	require.NoError(t, err)

	groups, err := sim.Suggest(s.ID())
	require.NoError(t, err)
	assert.Equal(t, "Warm Introduction", groups[0].Title)

	res, err := sim.Respond(context.Background(), s.ID(), "Hi, I'm Sam, an OT student", ForceNone)
	require.NoError(t, err)
	assert.Equal(t, StrategyTemplates, res.Strategy)
	assert.NotEmpty(t, res.Reply)

	_, err = sim.Respond(context.Background(), s.ID(), "Hi", ForceAI)
	assert.Error(t, err)

	rep, err := sim.EndSession(s.ID(), "Sam")
	require.NoError(t, err)
	assert.Len(t, rep.Turns, 1)
	assert.Equal(t, "Sam", rep.Student)

	_, err = sim.Session(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSimulatorShiftContext(t *testing.T) {
	sim := testSimulator(t, Config{DisableStore: true})
	s, err := sim.StartSession("jack")
	require.NoError(t, err)
	before := s.State().Anxiety()

	st, err := sim.ShiftContext(s.ID(), "bad day at work")
	require.NoError(t, err)
	assert.Greater(t, st.Anxiety(), before)
	assert.Equal(t, "Bad day at work", s.ActiveScenario())

	_, err = sim.ShiftContext(s.ID(), "Lottery win")
	assert.ErrorIs(t, err, ErrUnknownScenario)

	_, err = sim.ShiftContext("missing", "Poor sleep")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSimulatorUnknownPersona(t *testing.T) {
	sim := testSimulator(t, Config{DisableStore: true})
	_, err := sim.StartSession("nobody")
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestSimulatorHostedBackend(t *testing.T) {
	hosted := &fakeBackend{name: "ollama/test", reply: "Jack: Work's been rough."}
	sim := testSimulator(t, Config{DisableStore: true, HostedBackend: hosted})
	assert.Equal(t, "hosted", sim.Dispatcher().Availability().String())

	s, err := sim.StartSession("jack")
	require.NoError(t, err)
	res, err := sim.Respond(context.Background(), s.ID(), "How is work going?", ForceNone)
	require.NoError(t, err)
	assert.Equal(t, "Work's been rough.", res.Reply)
	assert.Equal(t, "ollama/test", res.Backend)
}

func TestSimulatorPersistsTranscript(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "driftline.db")
	sim, err := Init(context.Background(), Config{
		DBPath:       dbPath,
		PersonaDir:   "personas",
		ScenarioPath: filepath.Join("contexts", "scenarios.json"),
	})
	require.NoError(t, err)

	s, err := sim.StartSession("maya")
	require.NoError(t, err)
	_, err = sim.ShiftContext(s.ID(), "Poor sleep")
	require.NoError(t, err)
	_, err = sim.Respond(context.Background(), s.ID(), "That sounds really difficult", ForceTemplates)
	require.NoError(t, err)
	_, err = sim.Respond(context.Background(), s.ID(), "What helps you relax?", ForceTemplates)
	require.NoError(t, err)
	_, err = sim.EndSession(s.ID(), "")
	require.NoError(t, err)
	require.NoError(t, sim.Close())

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	turns, err := store.LoadTurns(s.ID())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "That sounds really difficult", turns[0].Student)
	assert.Equal(t, "Poor sleep", turns[0].Scenario)

	shifts, err := store.ContextShifts(s.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"Poor sleep"}, shifts)

	sessions, err := store.ListSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Maya", sessions[0].Persona)
	assert.Equal(t, 2, sessions[0].Turns)
	assert.False(t, sessions[0].EndedAt.IsZero())
}

func TestBuildBackendsConfigErrors(t *testing.T) {
	cases := []Config{
		{Hosted: HostedConfig{Provider: "llamafile"}},
		{Remote: RemoteConfig{Provider: "anthropic"}},
		{Remote: RemoteConfig{Provider: "openai", APIKey: "k"}},
		{Hosted: HostedConfig{Provider: "gemini"}},
	}
	for _, cfg := range cases {
		cfg.ApplyDefaults()
		_, _, err := buildBackends(context.Background(), cfg)
		var ce *ConfigurationError
		assert.True(t, errors.As(err, &ce), "config %+v", cfg)
	}
}

func TestBuildBackendsProviders(t *testing.T) {
	cfg := Config{
		Hosted: HostedConfig{Provider: "ollama", Host: "http://127.0.0.1:1"},
		Remote: RemoteConfig{Provider: "anthropic", APIKey: "k", Model: "claude-test"},
	}
	cfg.ApplyDefaults()
	hosted, remote, err := buildBackends(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3.2", hosted.Name())
	assert.Equal(t, "anthropic/claude-test", remote.Name())
}
