// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists batch reports to a local SQLite database so
// past runs can be listed and compared after the process exits.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/docbatch/pkg/types"
)

const dbFile = "docbatch.db"

// Store manages the run-history SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at dir/docbatch.db,
// creating the schema if it does not exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			outcome TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			started TEXT NOT NULL,
			finished TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			job_id TEXT NOT NULL,
			source_path TEXT NOT NULL,
			output_path TEXT,
			status TEXT NOT NULL,
			error_kind TEXT,
			message TEXT,
			duration_ms INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// SaveReport writes the report and all its results in one transaction and
// returns the new run's row ID.
func (s *Store) SaveReport(ctx context.Context, report types.BatchReport) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (outcome, total, succeeded, failed, skipped, started, finished)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(report.Outcome), report.Total, report.Succeeded, report.Failed, report.Skipped,
		report.Started.UTC().Format(time.RFC3339Nano),
		report.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, job_id, source_path, output_path, status, error_kind, message, duration_ms, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range report.Results {
		_, err := stmt.ExecContext(ctx,
			runID, r.JobID.String(), r.SourcePath, r.OutputPath,
			string(r.Status), string(r.ErrorKind), r.Message,
			r.Duration.Milliseconds(), r.Attempts,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting result for %s: %w", r.SourcePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// RunSummary is one row of the run history listing.
type RunSummary struct {
	ID        int64
	Outcome   types.RunOutcome
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Started   time.Time
	Finished  time.Time
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, outcome, total, succeeded, failed, skipped, started, finished
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			sum               RunSummary
			outcome           string
			started, finished string
		)
		if err := rows.Scan(&sum.ID, &outcome, &sum.Total, &sum.Succeeded,
			&sum.Failed, &sum.Skipped, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.Outcome = types.RunOutcome(outcome)
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			sum.Started = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			sum.Finished = t
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Results returns the stored JobResults for a run.
func (s *Store) Results(ctx context.Context, runID int64) ([]types.JobResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path, output_path, status, error_kind, message, duration_ms, attempts
		 FROM results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []types.JobResult
	for rows.Next() {
		var (
			r          types.JobResult
			status     string
			errorKind  string
			durationMS int64
		)
		if err := rows.Scan(&r.SourcePath, &r.OutputPath, &status,
			&errorKind, &r.Message, &durationMS, &r.Attempts); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Status = types.JobStatus(status)
		r.ErrorKind = types.ErrorKind(errorKind)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}
