// Package history keeps a ledger of past runs in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/graceinfra/shipyard/internal/models"
	_ "modernc.org/sqlite"
)

// DefaultPath is the ledger location relative to the workflow directory.
var DefaultPath = filepath.Join(".shipyard", "history.db")

// Run is one row of the runs table.
type Run struct {
	RunID         string
	StartedAt     time.Time
	Command       string
	Ref           string
	Sha           string
	Event         string
	Status        string
	DurationMs    int64
	JobsSucceeded int
	JobsFailed    int
	JobsSkipped   int
	ReleaseState  string
}

// Event is an entry of a run's event log.
type Event struct {
	ID        int64
	RunID     string
	Type      string
	Subject   string
	Timestamp time.Time
	Payload   []byte
}

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the ledger at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection so an in-memory database is shared by every query.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		command TEXT NOT NULL,
		ref TEXT,
		sha TEXT,
		event TEXT,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		jobs_succeeded INTEGER NOT NULL,
		jobs_failed INTEGER NOT NULL,
		jobs_skipped INTEGER NOT NULL,
		release_state TEXT
	);
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		subject TEXT,
		timestamp INTEGER NOT NULL,
		payload BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores a finished run and one event per job plus one for the release.
func (s *Store) RecordRun(ctx context.Context, summary models.ExecutionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	started, err := time.Parse(time.RFC3339, summary.RunStartTime)
	if err != nil {
		started = time.Now()
	}
	releaseState := ""
	if summary.Release != nil {
		releaseState = summary.Release.State
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, started_at, command, ref, sha, event, status, duration_ms,
			jobs_succeeded, jobs_failed, jobs_skipped, release_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunId.String(), started.Unix(), summary.ShipyardCmd, summary.Ref, summary.Sha, summary.Event,
		summary.OverallStatus, summary.TotalDurationMs, summary.JobsSucceeded, summary.JobsFailed,
		summary.JobsSkipped, releaseState,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	now := time.Now().Unix()
	for _, job := range summary.Jobs {
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job summary: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events (run_id, event_type, subject, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
			summary.RunId.String(), "job."+job.Status, job.JobName, now, payload,
		); err != nil {
			return fmt.Errorf("insert job event: %w", err)
		}
	}
	if summary.Release != nil {
		payload, err := json.Marshal(summary.Release)
		if err != nil {
			return fmt.Errorf("marshal release summary: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events (run_id, event_type, subject, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
			summary.RunId.String(), "release."+summary.Release.State, summary.Release.Tag, now, payload,
		); err != nil {
			return fmt.Errorf("insert release event: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, command, ref, sha, event, status, duration_ms,
			jobs_succeeded, jobs_failed, jobs_skipped, release_state
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var ref, sha, event, release sql.NullString
		if err := rows.Scan(&r.RunID, &started, &r.Command, &ref, &sha, &event, &r.Status, &r.DurationMs,
			&r.JobsSucceeded, &r.JobsFailed, &r.JobsSkipped, &release); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.Ref, r.Sha, r.Event, r.ReleaseState = ref.String, sha.String, event.String, release.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Events returns a run's events in insertion order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, event_type, subject, timestamp, payload FROM events WHERE run_id = ? ORDER BY id",
		runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts int64
		var subject sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &subject, &ts, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Subject = subject.String
		e.Timestamp = time.Unix(ts, 0)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
