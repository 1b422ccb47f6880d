package driftline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks live sessions by ID. Sessions idle longer than the timeout are
// evicted by EvictIdle and stamped as ended in the store, if one is attached.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idle     time.Duration
	ender    SessionEnder
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. idle <= 0 disables eviction.
func NewRegistry(idle time.Duration, ender SessionEnder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		idle:     idle,
		ender:    ender,
		logger:   logger,
	}
}

// Add registers a session, replacing any session with the same ID.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// End removes a session and records its end.
func (r *Registry) End(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	r.markEnded(id)
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns live session IDs in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// EvictIdle removes sessions whose last activity is older than the idle timeout
// relative to now, and returns how many were removed.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	r.mu.RLock()
	snapshot := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		snapshot[id] = s
	}
	r.mu.RUnlock()

	// LastActive waits on in-flight replies, so check outside the registry lock.
	var evicted []string
	for id, s := range snapshot {
		if now.Sub(s.LastActive()) <= r.idle {
			continue
		}
		r.mu.Lock()
		if r.sessions[id] == s {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
		r.mu.Unlock()
	}

	for _, id := range evicted {
		r.markEnded(id)
	}
	if len(evicted) > 0 {
		recordEviction(len(evicted))
	}
	return len(evicted)
}

func (r *Registry) markEnded(id string) {
	if r.ender == nil {
		return
	}
	if err := r.ender.EndSession(id); err != nil {
		r.logger.Warn("end session failed", zap.String("session", id), zap.Error(err))
	}
}
