package driftline

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTurn(session string, index int) TurnRecord {
	st := stateOf(0.57, 0.36, 0.43)
	st.Mode = ModeGuarded
	st.Memory = []string{"felt cautious"}
	return TurnRecord{
		SessionID:    session,
		Persona:      "Jack",
		Index:        index,
		Student:      "You should just get over it",
		Client:       "It's not a big deal.",
		Scenario:     "Bad day",
		Strategy:     StrategyTemplates,
		Backend:      "local",
		Mode:         ModeGuarded,
		State:        st,
		TeachingNote: noteAdvice,
		At:           time.Date(2026, 3, 1, 10, 0, index, 0, time.UTC),
	}
}

func TestRecordAndLoadTurns(t *testing.T) {
	s := testStore(t)

	for _, i := range []int{1, 0} {
		if err := s.RecordTurn(testTurn("sess-1", i)); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.LoadTurns("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Index != 0 || turns[1].Index != 1 {
		t.Errorf("turns should be ordered by index: %d, %d", turns[0].Index, turns[1].Index)
	}
	got := turns[0]
	if got.Persona != "Jack" || got.Strategy != StrategyTemplates || got.Backend != "local" || got.Mode != ModeGuarded {
		t.Errorf("unexpected turn: %+v", got)
	}
	if got.State.Trust() != 0.36 || len(got.State.Memory) != 1 || got.State.Mode != ModeGuarded {
		t.Errorf("state not preserved: %+v", got.State)
	}
	if !got.At.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", got.At)
	}
}

func TestRecordTurnDuplicateIndex(t *testing.T) {
	s := testStore(t)
	if err := s.RecordTurn(testTurn("sess-1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTurn(testTurn("sess-1", 0)); err == nil {
		t.Error("expected unique constraint error for a repeated turn index")
	}
}

func TestSessionsLifecycle(t *testing.T) {
	s := testStore(t)
	if err := s.CreateSession("a", "Jack"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSession("a", "Jack"); err != nil {
		t.Fatalf("re-creating a session should be a no-op: %v", err)
	}
	if err := s.RecordTurn(testTurn("b", 0)); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListSessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	counts := map[string]int{}
	for _, ss := range list {
		counts[ss.ID] = ss.Turns
		if !ss.EndedAt.IsZero() {
			t.Errorf("session %s should be open", ss.ID)
		}
	}
	if counts["a"] != 0 || counts["b"] != 1 {
		t.Errorf("unexpected turn counts: %v", counts)
	}

	if err := s.EndSession("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	list, _ = s.ListSessions(10)
	for _, ss := range list {
		if ss.ID == "a" && ss.EndedAt.IsZero() {
			t.Error("session a should be ended")
		}
	}
}

func TestContextShifts(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"Bad day", "Poor sleep"} {
		if err := s.RecordContextShift("sess-1", "Maya", name, NewEmotionalState()); err != nil {
			t.Fatal(err)
		}
	}
	shifts, err := s.ContextShifts("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(shifts) != 2 || shifts[0] != "Bad day" || shifts[1] != "Poor sleep" {
		t.Errorf("unexpected shifts: %v", shifts)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTurn(testTurn("sess-1", 0)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewStore(path)
	if err != nil {
		t.Fatalf("reopen should not re-run migrations: %v", err)
	}
	defer s.Close()
	turns, err := s.LoadTurns("sess-1")
	if err != nil || len(turns) != 1 {
		t.Errorf("expected 1 turn after reopen, got %d (%v)", len(turns), err)
	}
}
