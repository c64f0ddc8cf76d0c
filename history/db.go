// Package history keeps a SQLite record of every analysis.
package history

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const FileName = "history.db"

type DB struct {
	conn *sql.DB
}

// Open opens (or creates) history.db in dir.
func Open(dir string) (*DB, error) {
	return OpenFile(filepath.Join(dir, FileName))
}

func OpenFile(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_ms INTEGER NOT NULL,

		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		question TEXT NOT NULL,

		image_bytes INTEGER NOT NULL,
		capture_ms INTEGER NOT NULL,
		analyze_ms INTEGER NOT NULL,

		response TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_ms);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type Entry struct {
	ID         int64
	At         time.Time
	Provider   string
	Model      string
	Question   string
	ImageBytes int
	Capture    time.Duration
	Analyze    time.Duration
	Response   string
	Success    bool
	Error      string
}

func (db *DB) Save(e *Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	result, err := db.conn.Exec(`
		INSERT INTO analyses (
			created_ms, provider, model, question, image_bytes,
			capture_ms, analyze_ms, response, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.Provider, e.Model, e.Question, e.ImageBytes,
		e.Capture.Milliseconds(), e.Analyze.Milliseconds(), e.Response, e.Success, e.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	e.ID = id
	return nil
}

// Recent returns up to limit entries, newest first.
func (db *DB) Recent(limit int) ([]Entry, error) {
	rows, err := db.conn.Query(`
		SELECT id, created_ms, provider, model, question, image_bytes,
			capture_ms, analyze_ms, response, success, error_message
		FROM analyses
		ORDER BY created_ms DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdMs, captureMs, analyzeMs int64
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &createdMs, &e.Provider, &e.Model, &e.Question, &e.ImageBytes,
			&captureMs, &analyzeMs, &e.Response, &e.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		e.At = time.UnixMilli(createdMs)
		e.Capture = time.Duration(captureMs) * time.Millisecond
		e.Analyze = time.Duration(analyzeMs) * time.Millisecond
		e.Error = errMsg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type Summary struct {
	Total      int
	Succeeded  int
	AvgAnalyze time.Duration
}

func (db *DB) Summary() (Summary, error) {
	var s Summary
	var avg sql.NullFloat64
	err := db.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(success), 0), AVG(CASE WHEN success THEN analyze_ms END)
		FROM analyses`).Scan(&s.Total, &s.Succeeded, &avg)
	if err != nil {
		return s, fmt.Errorf("failed to summarize analyses: %w", err)
	}
	if avg.Valid {
		s.AvgAnalyze = time.Duration(avg.Float64 * float64(time.Millisecond))
	}
	return s, nil
}
