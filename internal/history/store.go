// Package history records past submissions in a local SQLite database so
// users can review what went to the farm and from which bundle.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when the schema changes. Old databases are
// reported, not migrated; the history is advisory and safe to delete.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different
// release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Submission statuses.
const (
	StatusSubmitted = "submitted"
	StatusBundled   = "bundled"
	StatusFailed    = "failed"
)

// Submission is one recorded submission attempt.
type Submission struct {
	ID          int64
	JobID       string
	JobName     string
	FarmID      string
	QueueID     string
	HipFile     string
	BundleDir   string
	StepCount   int
	Status      string
	SubmittedAt time.Time
}

// Store manages submission history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database in dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Record inserts a submission and returns it with its assigned id.
func (s *Store) Record(ctx context.Context, sub Submission) (*Submission, error) {
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = StatusSubmitted
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO submissions (
            job_id, job_name, farm_id, queue_id, hip_file,
            bundle_dir, step_count, status, submitted_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.JobID,
		sub.JobName,
		sub.FarmID,
		sub.QueueID,
		sub.HipFile,
		sub.BundleDir,
		sub.StepCount,
		sub.Status,
		sub.SubmittedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read submission id: %w", err)
	}
	sub.ID = id
	return &sub, nil
}

// List returns the most recent submissions, newest first. A limit of zero
// or less returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Submission, error) {
	query := `SELECT id, job_id, job_name, farm_id, queue_id, hip_file,
        bundle_dir, step_count, status, submitted_at
        FROM submissions ORDER BY submitted_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		var submittedAt string
		if err := rows.Scan(
			&sub.ID, &sub.JobID, &sub.JobName, &sub.FarmID, &sub.QueueID,
			&sub.HipFile, &sub.BundleDir, &sub.StepCount, &sub.Status, &submittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, submittedAt); err == nil {
			sub.SubmittedAt = parsed
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Prune removes submissions older than the cutoff and returns how many were
// deleted.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM submissions WHERE submitted_at < ?",
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune submissions: %w", err)
	}
	return res.RowsAffected()
}
