package driftline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one training conversation with a persona. It exclusively owns its
// EmotionalState: callers read copies, and only ShiftContext and Respond change it.
// A failed Respond leaves state and history as they were.
type Session struct {
	id         string
	persona    *Persona
	dispatcher *Dispatcher
	recorder   TurnRecorder
	logger     *zap.Logger

	mu         sync.Mutex
	state      EmotionalState
	history    []EmotionalState // state after session start and after every mutation
	turns      []ConversationTurn
	recorded   int // turns handed to the recorder; survives Reset so indexes stay unique
	scenario   string
	startedAt  time.Time
	lastActive time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRecorder persists turns (and context shifts, if the recorder supports them).
func WithRecorder(r TurnRecorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithSessionLogger sets the session logger (default: the no-op logger).
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// NewSession starts a conversation from the persona's default state.
func NewSession(persona *Persona, d *Dispatcher, opts ...SessionOption) (*Session, error) {
	if persona == nil {
		return nil, &ConfigurationError{Record: "session", Field: "persona", Reason: "missing"}
	}
	if _, err := persona.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		d = NewDispatcher()
	}
	now := time.Now()
	s := &Session{
		id:         uuid.NewString(),
		persona:    persona,
		dispatcher: d,
		logger:     zap.NewNop(),
		startedAt:  now,
		lastActive: now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id), zap.String("persona", persona.Name))
	s.resetLocked()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Persona returns the persona this session simulates.
func (s *Session) Persona() *Persona { return s.persona }

// StartedAt returns when the session (or its last reset) began.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// LastActive returns the time of the last mutation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// State returns a copy of the current state.
func (s *Session) State() EmotionalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// ActiveScenario returns the name of the last applied scenario, or "".
func (s *Session) ActiveScenario() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenario
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConversationTurn(nil), s.turns...)
}

// StateHistory returns copies of every state the session has passed through.
func (s *Session) StateHistory() []EmotionalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EmotionalState, len(s.history))
	for i, st := range s.history {
		out[i] = st.Clone()
	}
	return out
}

// ShiftContext applies a scenario to the session's state.
func (s *Session) ShiftContext(sc Scenario) EmotionalState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	s.dispatcher.Engine().ApplyContextShift(&next, sc)
	s.state = next
	s.scenario = sc.Name
	s.history = append(s.history, next.Clone())
	s.lastActive = time.Now()

	if cr, ok := s.recorder.(ContextRecorder); ok {
		if err := cr.RecordContextShift(s.id, s.persona.Name, sc.Name, next); err != nil {
			s.logger.Warn("record context shift failed", zap.Error(err))
		}
	}
	s.logger.Debug("context shifted", zap.String("scenario", sc.Name), zap.String("mode", string(next.Mode)))
	return next.Clone()
}

// Respond answers a student message. Backend errors surface only when the AI path was
// forced; other internal failures return ErrSimulationFailed.
func (s *Session) Respond(ctx context.Context, message string, forced ForcedMode) (*Result, error) {
	return s.respond(ctx, message, forced, nil)
}

// RespondStream is Respond with partial text pushed to onToken by streaming backends.
func (s *Session) RespondStream(ctx context.Context, message string, forced ForcedMode, onToken func(string)) (*Result, error) {
	return s.respond(ctx, message, forced, onToken)
}

func (s *Session) respond(ctx context.Context, message string, forced ForcedMode, onToken func(string)) (res *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request panicked", zap.Any("panic", r))
			res, err = nil, fmt.Errorf("%w: %v", ErrSimulationFailed, r)
		}
	}()

	res, err = s.dispatcher.Generate(ctx, Request{
		Message: message,
		Persona: s.persona,
		History: s.turns,
		State:   s.state,
		Forced:  forced,
		OnToken: onToken,
	})
	if err != nil {
		s.logger.Warn("respond failed", zap.Error(err))
		return nil, err
	}

	// Commit only after the request fully succeeded.
	now := time.Now()
	turn := ConversationTurn{
		Student:  message,
		Client:   res.Reply,
		Scenario: s.scenario,
		Strategy: res.Strategy,
		Mode:     res.Mode,
		State:    res.State.Clone(),
		At:       now,
	}
	s.state = res.State.Clone()
	s.turns = append(s.turns, turn)
	s.history = append(s.history, res.State.Clone())
	s.lastActive = now

	if s.recorder != nil {
		rec := TurnRecord{
			SessionID:    s.id,
			Persona:      s.persona.Name,
			Index:        s.recorded,
			Student:      message,
			Client:       res.Reply,
			Scenario:     s.scenario,
			Strategy:     res.Strategy,
			Backend:      res.Backend,
			Mode:         res.Mode,
			State:        res.State.Clone(),
			TeachingNote: res.TeachingNote,
			At:           now,
		}
		s.recorded++
		if rerr := s.recorder.RecordTurn(rec); rerr != nil {
			s.logger.Warn("record turn failed", zap.Error(rerr))
		}
	}
	s.logger.Debug("responded",
		zap.String("strategy", string(res.Strategy)),
		zap.String("mode", string(res.Mode)))
	return res, nil
}

// Reset discards the conversation and returns to the persona's default state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	st := s.persona.DefaultState.Clone()
	st.fillDefaults()
	s.dispatcher.Engine().Reclassify(&st)
	s.state = st
	s.history = []EmotionalState{st.Clone()}
	s.turns = nil
	s.scenario = ""
	s.startedAt = time.Now()
	s.lastActive = s.startedAt
}
