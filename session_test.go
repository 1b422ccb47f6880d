package driftline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	mu     sync.Mutex
	turns  []TurnRecord
	shifts []string
}

func (m *memoryRecorder) RecordTurn(rec TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, rec)
	return nil
}

func (m *memoryRecorder) RecordContextShift(sessionID, persona, scenario string, state EmotionalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts = append(m.shifts, scenario)
	return nil
}

type panickingBackend struct{}

func (panickingBackend) Name() string { return "panic" }
func (panickingBackend) Generate(ctx context.Context, instruction string) (string, error) {
	panic("unexpected nil")
}

func TestSessionRespondCommitsState(t *testing.T) {
	rec := &memoryRecorder{}
	s, err := NewSession(testPersona(), nil, WithRecorder(rec))
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())

	res, err := s.Respond(context.Background(), "You should just get over it", ForceNone)
	require.NoError(t, err)

	st := s.State()
	assert.Equal(t, ModeGuarded, st.Mode)
	assert.InDelta(t, 0.36, st.Trust(), 1e-9)
	assert.Equal(t, res.State, st)

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "You should just get over it", turns[0].Student)
	assert.Equal(t, res.Reply, turns[0].Client)
	assert.Equal(t, ModeGuarded, turns[0].State.Mode)
	assert.Len(t, s.StateHistory(), 2)

	require.Len(t, rec.turns, 1)
	assert.Equal(t, 0, rec.turns[0].Index)
	assert.Equal(t, s.ID(), rec.turns[0].SessionID)
	assert.Equal(t, StrategyTemplates, rec.turns[0].Strategy)
}

func TestSessionStateCopiesAreIndependent(t *testing.T) {
	s, err := NewSession(testPersona(), nil)
	require.NoError(t, err)

	st := s.State()
	st.Metrics[MetricTrust] = 0.99
	st.Memory = append(st.Memory, "tampered")
	assert.InDelta(t, 0.5, s.State().Trust(), 1e-9)
	assert.Empty(t, s.State().Memory)
}

func TestSessionFailedRespondLeavesState(t *testing.T) {
	failing := &fakeBackend{name: "ollama/test", err: errors.New("timeout")}
	s, err := NewSession(testPersona(), NewDispatcher(WithHostedBackend(failing)))
	require.NoError(t, err)
	before := s.State()

	_, err = s.Respond(context.Background(), "You should just get over it", ForceAI)
	require.Error(t, err)
	var be *BackendError
	assert.ErrorAs(t, err, &be)

	assert.Equal(t, before, s.State())
	assert.Empty(t, s.Turns())
	assert.Len(t, s.StateHistory(), 1)
}

func TestSessionPanicBecomesSimulationFailed(t *testing.T) {
	s, err := NewSession(testPersona(), NewDispatcher(WithHostedBackend(panickingBackend{})))
	require.NoError(t, err)
	before := s.State()

	_, err = s.Respond(context.Background(), "How are you?", ForceNone)
	assert.ErrorIs(t, err, ErrSimulationFailed)
	assert.Equal(t, before, s.State())
	assert.Empty(t, s.Turns())

	// The session stays usable.
	_, err = s.Respond(context.Background(), "How are you?", ForceTemplates)
	assert.NoError(t, err)
}

func TestSessionShiftContext(t *testing.T) {
	rec := &memoryRecorder{}
	s, err := NewSession(testPersona(), nil, WithRecorder(rec))
	require.NoError(t, err)

	st := s.ShiftContext(Scenario{
		Name:    "Family conflict",
		Effects: map[string]float64{MetricAnxiety: 0.2, MetricOpenness: -0.3},
	})
	assert.Equal(t, ModeTriggered, st.Mode)
	assert.Equal(t, "Family conflict", s.ActiveScenario())
	assert.Equal(t, []string{"Family conflict"}, rec.shifts)
	assert.Equal(t, "Family conflict", CurrentSituation(s.State()))

	res, err := s.Respond(context.Background(), "Tell me about your dad", ForceNone)
	require.NoError(t, err)
	assert.Equal(t, "Family conflict", s.Turns()[0].Scenario)
	assert.NotEmpty(t, res.Reply)
}

func TestSessionReset(t *testing.T) {
	s, err := NewSession(testPersona(), nil)
	require.NoError(t, err)
	s.ShiftContext(Scenario{Name: "Bad day", Effects: map[string]float64{MetricAnxiety: 0.4}})
	_, err = s.Respond(context.Background(), "Hi", ForceNone)
	require.NoError(t, err)

	s.Reset()
	assert.Empty(t, s.Turns())
	assert.Empty(t, s.ActiveScenario())
	assert.InDelta(t, 0.5, s.State().Anxiety(), 1e-9)
	assert.Len(t, s.StateHistory(), 1)
}

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession(nil, nil)
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)

	p := testPersona()
	p.DefaultState.Metrics[MetricAnxiety] = 2
	_, err = NewSession(p, nil)
	assert.ErrorAs(t, err, &ce)
}

func TestSessionConcurrentResponds(t *testing.T) {
	s, err := NewSession(testPersona(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Respond(context.Background(), "That sounds really difficult", ForceNone)
		}()
	}
	wg.Wait()
	assert.Len(t, s.Turns(), 8)
	assert.Len(t, s.StateHistory(), 9)
	assert.LessOrEqual(t, len(s.State().Memory), MemoryLimit)
}

func TestSessionResetKeepsTranscript(t *testing.T) {
	store := testStore(t)
	s, err := NewSession(testPersona(), nil, WithRecorder(store))
	require.NoError(t, err)

	_, err = s.Respond(context.Background(), "How was your week?", ForceTemplates)
	require.NoError(t, err)
	s.Reset()
	_, err = s.Respond(context.Background(), "Let's start over. How are you?", ForceTemplates)
	require.NoError(t, err)
	assert.Len(t, s.Turns(), 1)

	turns, err := store.LoadTurns(s.ID())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, 0, turns[0].Index)
	assert.Equal(t, 1, turns[1].Index)
	assert.Equal(t, "Let's start over. How are you?", turns[1].Student)
}
