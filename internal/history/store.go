// Package history persists the outcome of each local invocation.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is the terminal state of a recorded invocation.
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusTimedOut        Status = "timed_out"
	StatusSpawnFailed     Status = "spawn_failed"
	StatusRuntimeMismatch Status = "runtime_mismatch"
	StatusCancelled       Status = "cancelled"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// ErrNotFound is returned by Get for unknown invocation ids.
var ErrNotFound = errors.New("invocation not found")

// Record is one row of the invocation log.
type Record struct {
	ID           string    `json:"id"`
	Namespace    string    `json:"namespace"`
	Function     string    `json:"function"`
	Runtime      string    `json:"runtime"`
	Status       Status    `json:"status"`
	ExitCode     int       `json:"exit_code"`
	LastError    string    `json:"last_error,omitempty"`
	Debug        bool      `json:"debug"`
	TemplatePath string    `json:"template_path"`
	TemplateHash string    `json:"template_hash"`
	PlanHash     string    `json:"plan_hash"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns how long the invocation ran.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a completed invocation.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("invocation id is empty")
	}
	if rec.Status == "" {
		return fmt.Errorf("invocation %s has no status", rec.ID)
	}

	var lastErr sql.NullString
	if rec.LastError != "" {
		lastErr = sql.NullString{String: rec.LastError, Valid: true}
	}
	debug := 0
	if rec.Debug {
		debug = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO invocation_log(
  id, namespace, function, runtime, status, exit_code, last_error, debug,
  template_path, template_hash, plan_hash, started_at, finished_at
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.ID, rec.Namespace, rec.Function, rec.Runtime, string(rec.Status), rec.ExitCode, lastErr, debug,
		rec.TemplatePath, rec.TemplateHash, rec.PlanHash,
		rec.StartedAt.UTC().Format(timeFormat), rec.FinishedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert invocation_log: %w", err)
	}
	return nil
}

// Get returns a single invocation by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM invocation_log WHERE id = ?;", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read invocation: %w", err)
	}
	return rec, nil
}

// List returns the most recent invocations, newest first. An empty function
// filter matches every function.
func (s *Store) List(ctx context.Context, function string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := selectColumns + " FROM invocation_log"
	args := []any{}
	if function != "" {
		query += " WHERE function = ?"
		args = append(args, function)
	}
	query += " ORDER BY started_at DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocation_log: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation_log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocation_log: %w", err)
	}
	return out, nil
}

// Prune deletes invocations that finished before now minus retention.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := time.Now().Add(-retention).UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, "DELETE FROM invocation_log WHERE finished_at < ?;", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune invocation_log: %w", err)
	}
	return res.RowsAffected()
}

const selectColumns = `SELECT id, namespace, function, runtime, status, exit_code, last_error, debug,
  template_path, template_hash, plan_hash, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec        Record
		status     string
		lastErr    sql.NullString
		debug      int
		startedAt  string
		finishedAt string
	)
	if err := sc.Scan(
		&rec.ID, &rec.Namespace, &rec.Function, &rec.Runtime, &status, &rec.ExitCode, &lastErr, &debug,
		&rec.TemplatePath, &rec.TemplateHash, &rec.PlanHash, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.LastError = lastErr.String
	rec.Debug = debug != 0

	var err error
	if rec.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(timeFormat, finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &rec, nil
}
