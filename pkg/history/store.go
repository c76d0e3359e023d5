// Package history records sessions and their lifecycle events in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"KeyBridge/pkg/engine"
	"KeyBridge/pkg/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    target TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER DEFAULT 0,
    end_reason TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_target ON sessions(target);

CREATE TABLE IF NOT EXISTS session_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    ts INTEGER NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, ts);
`

// Event kinds written by the store itself.
const (
	KindStarted = "started"
	KindEnded   = "ended"
	KindLog     = "log"
)

// Store is the SQLite-backed session history.
type Store struct {
	db     *sql.DB
	dbPath string
	log    zerolog.Logger
}

// Open creates or opens history.db under dataDir.
func Open(dataDir string, log zerolog.Logger) (*Store, error) {
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return &Store{db: db, dbPath: dbPath, log: log.With().Str("module", "history").Logger()}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) Close() error {
	return s.db.Close()
}

// SessionStarted inserts a session row.
func (s *Store) SessionStarted(id, target string, at time.Time) {
	if _, err := s.db.Exec(
		`INSERT INTO sessions (id, target, started_at) VALUES (?, ?, ?)`,
		id, target, at.UnixMilli(),
	); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("Failed to record session start")
		return
	}
	if err := s.AddEvent(id, KindStarted, "connected to "+target); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("Failed to record start event")
	}
}

// SessionEnded stamps the end time and reason on a session row.
func (s *Store) SessionEnded(id string, reason engine.EndReason, at time.Time) {
	if _, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?`,
		at.UnixMilli(), string(reason), id,
	); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("Failed to record session end")
		return
	}
	if err := s.AddEvent(id, KindEnded, string(reason)); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("Failed to record end event")
	}
}

// AddEvent appends an event to a session.
func (s *Store) AddEvent(sessionID, kind, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_events (id, session_id, ts, kind, message) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), sessionID, time.Now().UnixMilli(), kind, message,
	)
	return err
}

// Recent lists sessions newest first. A non-positive limit returns all.
func (s *Store) Recent(limit int) ([]types.SessionRecord, error) {
	query := `SELECT id, target, started_at, ended_at, end_reason FROM sessions ORDER BY started_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.SessionRecord
	for rows.Next() {
		var r types.SessionRecord
		if err := rows.Scan(&r.ID, &r.Target, &r.StartTime, &r.EndTime, &r.EndReason); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Events lists a session's events oldest first.
func (s *Store) Events(sessionID string) ([]types.SessionEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, ts, kind, message FROM session_events WHERE session_id = ? ORDER BY ts, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.SessionEvent
	for rows.Next() {
		var e types.SessionEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.Kind, &e.Message); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes sessions started before cutoff, with their events.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ engine.SessionListener = (*Store)(nil)
