// Package transcript records the raw protocol traffic of the current run to
// a sqlite file for debugging. It captures the wire view of a session so a
// misbehaving exchange can be replayed against the event handling offline.
package transcript

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Direction tags which side of the connection produced a record.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Recorder appends protocol frames to a sqlite transcript. Safe for
// concurrent use. A nil Recorder is valid and records nothing, so callers
// can wire it unconditionally.
type Recorder struct {
	mu  sync.Mutex
	db  *sql.DB
	run int64
	seq int64
}

// Open creates or opens the transcript database at path and starts a new
// run. An empty path defaults to a per-user data location.
func Open(path string) (*Recorder, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			homeDir, herr := os.UserHomeDir()
			if herr != nil {
				return nil, err
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		dir := filepath.Join(configDir, "tether")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "transcript.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at INTEGER NOT NULL,
			server_url TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			direction TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_run_seq ON frames(run_id, seq);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	res, err := db.Exec("INSERT INTO runs(started_at) VALUES(?)", time.Now().Unix())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Recorder{db: db, run: runID}, nil
}

// SetServerURL stamps the current run with the server address.
func (r *Recorder) SetServerURL(url string) error {
	if r == nil {
		return nil
	}
	_, err := r.db.Exec("UPDATE runs SET server_url = ? WHERE id = ?", url, r.run)
	return err
}

// Record appends one frame. eventType is the protocol type field when known,
// empty otherwise; payload is stored verbatim.
func (r *Recorder) Record(dir Direction, eventType string, payload []byte) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return fmt.Errorf("transcript: recorder closed")
	}
	r.seq++
	_, err := r.db.Exec(
		"INSERT INTO frames(run_id, seq, direction, event_type, payload, created_at) VALUES(?, ?, ?, ?, ?, ?)",
		r.run, r.seq, string(dir), eventType, string(payload), time.Now().Unix(),
	)
	return err
}

// Frames returns all frames of the current run in sequence order.
func (r *Recorder) Frames() ([]Frame, error) {
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	db := r.db
	r.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("transcript: recorder closed")
	}

	rows, err := db.Query(
		"SELECT seq, direction, event_type, payload FROM frames WHERE run_id = ? ORDER BY seq ASC",
		r.run,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		var dir string
		if err := rows.Scan(&f.Seq, &dir, &f.EventType, &f.Payload); err != nil {
			return nil, err
		}
		f.Direction = Direction(dir)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Frame is one recorded protocol frame.
type Frame struct {
	Seq       int64
	Direction Direction
	EventType string
	Payload   string
}

// Close releases the database. Idempotent.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
