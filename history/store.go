// Package history persists transcription sessions in SQLite. Metadata
// and transcript text live in separate tables so the sensitive half can
// be wiped without losing the usage record.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SentinelEngine marks session rows written while telemetry is off.
// They carry no timing or engine details and are hidden from listings.
const SentinelEngine = "telemetry_disabled"

var ErrNotFound = errors.New("history: no such entry")

// Record is one transcription attempt. Text is only populated on reads
// that join the transcriptions table.
type Record struct {
	ID             int64
	CreatedAt      time.Time
	DurationSec    float64
	TranscribeSec  float64
	RealtimeFactor float64
	TokensTotal    int64
	CostTotal      float64
	Engine         string
	Model          string
	Language       string
	Error          string
	Text           string
	SyncedAt       *time.Time
}

// Stats aggregates the metadata table.
type Stats struct {
	Sessions     int64
	Transcripts  int64
	TotalAudioS  float64
	TotalProcS   float64
	FailedCount  int64
	SentinelRows int64
}

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	duration_sec REAL NOT NULL DEFAULT 0,
	transcribe_sec REAL NOT NULL DEFAULT 0,
	realtime_factor REAL NOT NULL DEFAULT 0,
	tokens_total INTEGER NOT NULL DEFAULT 0,
	cost_total REAL NOT NULL DEFAULT 0,
	engine TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	synced_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS transcriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
	text TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
`

// Open opens (creating if needed) the database at path and applies the
// schema. Foreign keys are enforced per connection via the DSN.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes one attempt. With telemetry on, the full metadata row is
// written; for every non-failed attempt the transcript row (text may be
// empty) joins it in the same transaction. With telemetry off,
// successful attempts get a sentinel session row (so the text still has
// a parent) and failures write nothing at all.
func (s *Store) Save(rec *Record, telemetry bool) (int64, error) {
	if !telemetry && rec.Error != "" {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var res sql.Result
	if telemetry {
		res, err = tx.Exec(
			`INSERT INTO sessions (created_at, duration_sec, transcribe_sec, realtime_factor,
			                       tokens_total, cost_total, engine, model, language, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			createdAt, rec.DurationSec, rec.TranscribeSec, rec.RealtimeFactor,
			rec.TokensTotal, rec.CostTotal, rec.Engine, rec.Model, rec.Language, rec.Error,
		)
	} else {
		res, err = tx.Exec(
			`INSERT INTO sessions (created_at, engine) VALUES (?, ?)`,
			createdAt, SentinelEngine,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("saving session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if rec.Error == "" {
		if _, err := tx.Exec(
			`INSERT INTO transcriptions (session_id, text) VALUES (?, ?)`,
			id, rec.Text,
		); err != nil {
			return 0, fmt.Errorf("saving transcript: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// History lists the most recent successful entries, newest first, with
// transcript text trimmed to preview length by the caller. Failed
// attempts and sentinel rows never appear.
func (s *Store) History(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.created_at, s.duration_sec, s.transcribe_sec, s.realtime_factor,
		        s.tokens_total, s.cost_total, s.engine, s.model, s.language, s.synced_at, t.text
		 FROM sessions s
		 JOIN transcriptions t ON t.session_id = s.id
		 WHERE s.error = '' AND s.engine != ?
		 ORDER BY s.created_at DESC, s.id DESC
		 LIMIT ?`,
		SentinelEngine, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var synced sql.NullTime
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.DurationSec, &r.TranscribeSec, &r.RealtimeFactor,
			&r.TokensTotal, &r.CostTotal, &r.Engine, &r.Model, &r.Language, &synced, &r.Text); err != nil {
			return nil, err
		}
		if synced.Valid {
			t := synced.Time
			r.SyncedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Text returns the full transcript for one session.
func (s *Store) Text(id int64) (string, error) {
	var text string
	err := s.db.QueryRow(
		`SELECT text FROM transcriptions WHERE session_id = ?`, id,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Delete removes one session; the transcript row goes with it via the
// cascade.
func (s *Store) Delete(id int64) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearSensitive deletes all transcript text while keeping every
// session row intact.
func (s *Store) ClearSensitive() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM transcriptions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Unsynced returns metadata rows not yet exported, oldest first.
// Transcript text is never included.
func (s *Store) Unsynced(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, duration_sec, transcribe_sec, realtime_factor,
		        tokens_total, cost_total, engine, model, language, error
		 FROM sessions
		 WHERE synced_at IS NULL AND engine != ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		SentinelEngine, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.DurationSec, &r.TranscribeSec, &r.RealtimeFactor,
			&r.TokensTotal, &r.CostTotal, &r.Engine, &r.Model, &r.Language, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkSynced stamps the given session rows with the export time.
func (s *Store) MarkSynced(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`UPDATE sessions SET synced_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now()
	for _, id := range ids {
		if _, err := stmt.Exec(now, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Stats summarizes the metadata table.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(duration_sec), 0),
		        COALESCE(SUM(transcribe_sec), 0),
		        COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN engine = ? THEN 1 ELSE 0 END), 0)
		 FROM sessions`,
		SentinelEngine,
	).Scan(&st.Sessions, &st.TotalAudioS, &st.TotalProcS, &st.FailedCount, &st.SentinelRows)
	if err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transcriptions`).Scan(&st.Transcripts); err != nil {
		return nil, err
	}
	return &st, nil
}
