package driftline

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeEnder struct {
	mu    sync.Mutex
	ended []string
}

func (f *fakeEnder) EndSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return nil
}

func newTestSession(t *testing.T, id string) *Session {
	t.Helper()
	s, err := NewSession(testPersona(), nil, WithSessionID(id))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRegistryAddGetEnd(t *testing.T) {
	ender := &fakeEnder{}
	r := NewRegistry(time.Hour, ender, nil)
	r.Add(newTestSession(t, "b"))
	r.Add(newTestSession(t, "a"))

	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}
	if ids := r.IDs(); ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs should be sorted: %v", ids)
	}
	if _, err := r.Get("a"); err != nil {
		t.Error(err)
	}
	if _, err := r.Get("zzz"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	s, err := r.End("a")
	if err != nil || s.ID() != "a" {
		t.Fatalf("End: %v", err)
	}
	if _, err := r.End("a"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("ending twice should fail")
	}
	if len(ender.ended) != 1 || ender.ended[0] != "a" {
		t.Errorf("expected end stamp for a, got %v", ender.ended)
	}
}

func TestRegistryEvictIdle(t *testing.T) {
	ender := &fakeEnder{}
	r := NewRegistry(time.Minute, ender, nil)
	r.Add(newTestSession(t, "idle"))

	if n := r.EvictIdle(time.Now()); n != 0 {
		t.Errorf("fresh session evicted (%d)", n)
	}
	if n := r.EvictIdle(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if len(ender.ended) != 1 {
		t.Errorf("evicted session should be ended, got %v", ender.ended)
	}
}

func TestRegistryEvictionDisabled(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	r.Add(newTestSession(t, "x"))
	if n := r.EvictIdle(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Errorf("eviction disabled, got %d", n)
	}
}
