// Package history persists generation reports in a local SQLite database so
// runs can be listed and compared later.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dshills/testgap/internal/schema"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("history: run not found")

// DefaultPath is the database location relative to the analyzed repository.
const DefaultPath = ".testgap/history.db"

// Store is a run-history database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Run is one row of the run listing.
type Run struct {
	ID              string
	CreatedAt       time.Time
	Root            string
	Verdict         schema.Verdict
	Score           int
	OverallCoverage float64
	Generated       int
	Accepted        int
	Degraded        int
}

// TargetRun is the outcome for one target in one run.
type TargetRun struct {
	RunID      string
	CreatedAt  time.Time
	State      schema.ValidationState
	Accepted   bool
	Degraded   bool
	Unresolved int
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	runs := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		root TEXT NOT NULL,
		verdict TEXT NOT NULL,
		score INTEGER NOT NULL,
		overall_coverage REAL NOT NULL,
		generated INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		degraded INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	tests := `
	CREATE TABLE IF NOT EXISTS run_tests (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		target TEXT NOT NULL,
		state TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		degraded INTEGER NOT NULL,
		unresolved INTEGER NOT NULL,
		PRIMARY KEY (run_id, target)
	);
	CREATE INDEX IF NOT EXISTS idx_run_tests_target ON run_tests(target);
	`
	for _, stmt := range []string{runs, tests} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("history: create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records report. A report without a RunID is assigned a new one, and
// a zero CreatedAt is set to now; both are written back to report.
func (s *Store) Save(ctx context.Context, report *schema.Report) error {
	if report == nil {
		return fmt.Errorf("history: nil report")
	}
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("history: encode report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	sum := report.Summary
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, root, verdict, score, overall_coverage, generated, accepted, degraded, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.CreatedAt.UTC().Format(time.RFC3339Nano), report.Input.Root,
		string(sum.Verdict), sum.Score, report.Analysis.OverallCoverage,
		sum.Generated, sum.Accepted, sum.Degraded, string(blob))
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	for _, t := range report.Tests {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO run_tests (run_id, target, state, accepted, degraded, unresolved)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			report.RunID, t.Target, string(t.Validation.State), t.Validation.Accepted, t.Degraded, t.Unresolved)
		if err != nil {
			return fmt.Errorf("history: insert test %s: %w", t.Target, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, created_at, root, verdict, score, overall_coverage, generated, accepted, degraded
	      FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created, verdict string
		if err := rows.Scan(&r.ID, &created, &r.Root, &verdict, &r.Score, &r.OverallCoverage,
			&r.Generated, &r.Accepted, &r.Degraded); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		r.Verdict = schema.Verdict(verdict)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the full report stored for runID.
func (s *Store) Get(ctx context.Context, runID string) (*schema.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", runID, err)
	}
	var r schema.Report
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", runID, err)
	}
	return &r, nil
}

// Target returns the recorded outcomes for one qualified name, newest first.
func (s *Store) Target(ctx context.Context, target string) ([]TargetRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.run_id, r.created_at, t.state, t.accepted, t.degraded, t.unresolved
		 FROM run_tests t JOIN runs r ON r.id = t.run_id
		 WHERE t.target = ?
		 ORDER BY r.created_at DESC`, target)
	if err != nil {
		return nil, fmt.Errorf("history: target %s: %w", target, err)
	}
	defer rows.Close()

	var out []TargetRun
	for rows.Next() {
		var tr TargetRun
		var created, state string
		if err := rows.Scan(&tr.RunID, &created, &state, &tr.Accepted, &tr.Degraded, &tr.Unresolved); err != nil {
			return nil, fmt.Errorf("history: scan target: %w", err)
		}
		tr.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		tr.State = schema.ValidationState(state)
		out = append(out, tr)
	}
	return out, rows.Err()
}
