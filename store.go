package driftline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

// Store wraps a SQLite connection for session transcripts.
// Implements TurnRecorder.
type Store struct {
	db *sql.DB
}

// TurnRecord is one persisted exchange with the state it left behind.
type TurnRecord struct {
	SessionID    string
	Persona      string
	Index        int
	Student      string
	Client       string
	Scenario     string
	Strategy     Strategy
	Backend      string
	Mode         Mode
	State        EmotionalState
	TeachingNote string
	At           time.Time
}

// SessionSummary is a row of the sessions table with its turn count.
type SessionSummary struct {
	ID        string
	Persona   string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open
	Turns     int
}

// NewStore opens (or creates) the SQLite database and runs migrations.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("driftline: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("driftline: open db: %w", err)
	}

	// Single connection avoids write contention for our scale
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("driftline: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				persona    TEXT NOT NULL,
				started_at TEXT NOT NULL DEFAULT (datetime('now')),
				ended_at   TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS turns (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id    TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				turn_index    INTEGER NOT NULL,
				student       TEXT    NOT NULL,
				client        TEXT    NOT NULL,
				scenario      TEXT    NOT NULL DEFAULT '',
				strategy      TEXT    NOT NULL DEFAULT 'templates',
				mode          TEXT    NOT NULL DEFAULT 'baseline',
				state         TEXT    NOT NULL DEFAULT '{}',
				teaching_note TEXT    NOT NULL DEFAULT '',
				created_at    TEXT    NOT NULL DEFAULT (datetime('now')),
				UNIQUE(session_id, turn_index)
			);
			CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
		`); err != nil {
			return err
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (1)`); err != nil {
			return err
		}
	}

	if version < 2 {
		// Backend attribution and the context-shift log.
		if _, err := s.db.Exec(`ALTER TABLE turns ADD COLUMN backend TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS context_shifts (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				scenario   TEXT NOT NULL,
				state      TEXT NOT NULL DEFAULT '{}',
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX IF NOT EXISTS idx_shifts_session ON context_shifts(session_id);
		`); err != nil {
			return err
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (2)`); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(`PRAGMA foreign_keys = ON`)
	return err
}

// --- Sessions ---

// CreateSession registers a session. Re-creating an existing ID is a no-op.
func (s *Store) CreateSession(id, persona string) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, persona, started_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, persona, time.Now().UTC().Format(timeLayout),
	)
	return err
}

// EndSession stamps a session's end time.
func (s *Store) EndSession(id string) error {
	res, err := s.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.persona, s.started_at, s.ended_at, COUNT(t.id)
		FROM sessions s
		LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		var started, ended string
		if err := rows.Scan(&ss.ID, &ss.Persona, &started, &ended, &ss.Turns); err != nil {
			return nil, err
		}
		ss.StartedAt, _ = time.Parse(timeLayout, started)
		if ended != "" {
			ss.EndedAt, _ = time.Parse(timeLayout, ended)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// --- Turns ---

// RecordTurn stores one exchange, creating the session row if needed.
func (s *Store) RecordTurn(rec TurnRecord) error {
	if err := s.CreateSession(rec.SessionID, rec.Persona); err != nil {
		return err
	}
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO turns (session_id, turn_index, student, client, scenario, strategy, backend, mode, state, teaching_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Index, rec.Student, rec.Client, rec.Scenario,
		string(rec.Strategy), rec.Backend, string(rec.Mode), string(state), rec.TeachingNote,
		at.UTC().Format(timeLayout),
	)
	return err
}

// LoadTurns returns a session's turns in order.
func (s *Store) LoadTurns(sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.Query(`
		SELECT t.session_id, s.persona, t.turn_index, t.student, t.client, t.scenario,
		       t.strategy, t.backend, t.mode, t.state, t.teaching_note, t.created_at
		FROM turns t
		JOIN sessions s ON s.id = t.session_id
		WHERE t.session_id = ?
		ORDER BY t.turn_index ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var strategy, mode, state, created string
		if err := rows.Scan(
			&rec.SessionID, &rec.Persona, &rec.Index, &rec.Student, &rec.Client, &rec.Scenario,
			&strategy, &rec.Backend, &mode, &state, &rec.TeachingNote, &created,
		); err != nil {
			return nil, err
		}
		rec.Strategy = Strategy(strategy)
		rec.Mode = Mode(mode)
		if err := json.Unmarshal([]byte(state), &rec.State); err != nil {
			return nil, fmt.Errorf("decode state for turn %d: %w", rec.Index, err)
		}
		rec.At, _ = time.Parse(timeLayout, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Context shifts ---

// RecordContextShift logs a scenario applied to a session and the resulting state.
func (s *Store) RecordContextShift(sessionID, persona, scenario string, state EmotionalState) error {
	if err := s.CreateSession(sessionID, persona); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO context_shifts (session_id, scenario, state, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, scenario, string(data), time.Now().UTC().Format(timeLayout),
	)
	return err
}

// ContextShifts returns the scenario names applied to a session, oldest first.
func (s *Store) ContextShifts(sessionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT scenario FROM context_shifts WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
