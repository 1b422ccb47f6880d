package driftline

import (
	"sync"

	"go.uber.org/zap"
)

// ContextRecorder persists applied scenarios. Built-in: Store, AsyncRecorder.
type ContextRecorder interface {
	RecordContextShift(sessionID, persona, scenario string, state EmotionalState) error
}

// SessionEnder stamps the end of a session. Built-in: Store, AsyncRecorder.
type SessionEnder interface {
	EndSession(sessionID string) error
}

// AsyncRecorder writes turns to a Store from a background worker so that persistence
// never adds latency to a reply. When the queue is full, records are dropped and counted.
type AsyncRecorder struct {
	store  *Store
	logger *zap.Logger
	jobs   chan recordJob
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

type recordJob struct {
	turn       *TurnRecord
	shift      *shiftRecord
	endSession string
}

type shiftRecord struct {
	sessionID, persona, scenario string
	state                        EmotionalState
}

const defaultRecorderBuffer = 64

// NewAsyncRecorder starts the background worker. It runs until Close is called.
func NewAsyncRecorder(store *Store, buffer int, logger *zap.Logger) *AsyncRecorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AsyncRecorder{
		store:  store,
		logger: logger,
		jobs:   make(chan recordJob, buffer),
		done:   make(chan struct{}),
	}
	go r.worker()
	return r
}

// RecordTurn queues a turn. Non-blocking: returns nil even when the record is dropped.
func (r *AsyncRecorder) RecordTurn(rec TurnRecord) error {
	r.submit(recordJob{turn: &rec})
	return nil
}

// RecordContextShift queues a context-shift entry.
func (r *AsyncRecorder) RecordContextShift(sessionID, persona, scenario string, state EmotionalState) error {
	r.submit(recordJob{shift: &shiftRecord{sessionID, persona, scenario, state.Clone()}})
	return nil
}

// EndSession queues the session's end stamp.
func (r *AsyncRecorder) EndSession(sessionID string) error {
	r.submit(recordJob{endSession: sessionID})
	return nil
}

func (r *AsyncRecorder) submit(job recordJob) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- job:
	default:
		recordDroppedTurn()
		r.logger.Warn("recorder queue full, dropping record")
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (r *AsyncRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	<-r.done
}

func (r *AsyncRecorder) worker() {
	defer close(r.done)

	for job := range r.jobs {
		switch {
		case job.turn != nil:
			if err := r.store.RecordTurn(*job.turn); err != nil {
				r.logger.Error("record turn failed",
					zap.String("session", job.turn.SessionID), zap.Int("turn", job.turn.Index), zap.Error(err))
			}
		case job.shift != nil:
			sh := job.shift
			if err := r.store.RecordContextShift(sh.sessionID, sh.persona, sh.scenario, sh.state); err != nil {
				r.logger.Error("record context shift failed", zap.String("session", sh.sessionID), zap.Error(err))
			}
		case job.endSession != "":
			if err := r.store.EndSession(job.endSession); err != nil {
				r.logger.Warn("end session failed", zap.String("session", job.endSession), zap.Error(err))
			}
		}
	}
}
