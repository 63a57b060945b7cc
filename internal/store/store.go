// Package store persists pipeline runs and per-task execution state in SQLite.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RunStatus is the lifecycle status of a run
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunAborted   RunStatus = "ABORTED"
)

// Terminal reports whether the status is final
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunAborted
}

// ParseRunStatus converts a string into a RunStatus, case-insensitively
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(strings.ToUpper(s))
	switch status {
	case RunPending, RunRunning, RunSucceeded, RunFailed, RunAborted:
		return status, nil
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

var (
	// ErrRunNotFound is returned when a run does not exist
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists is returned when creating a run whose ID is taken
	ErrRunExists = errors.New("run already exists")
)

// Run is one submitted execution of a pipeline
type Run struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     RunStatus  `json:"status"`
	Request    string     `json:"request,omitempty"`
	Error      string     `json:"error,omitempty"`
	TaskCount  int        `json:"task_count"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskRun is the execution state of one task within a run
type TaskRun struct {
	RunID      string     `json:"run_id"`
	Task       string     `json:"task"`
	Position   int        `json:"position"`
	State      string     `json:"state"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ListOptions filters and pages ListRuns
type ListOptions struct {
	Status RunStatus
	Limit  int
	Offset int
}

// Store is a SQLite-backed run store
type Store struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the store. The dsn can be a file path or ":memory:".
func Open(dsn string) (*Store, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	connStr := dsn
	if !strings.Contains(dsn, "?") {
		connStr += "?"
	} else {
		connStr += "&"
	}
	connStr += "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_synchronous=NORMAL"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dsn == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// NewRunID returns a random run identifier
func NewRunID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(b)
}

// CreateRun inserts a run together with a pending entry for each task, in order
func (s *Store) CreateRun(ctx context.Context, run *Run, tasks []string) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Request == "" {
		run.Request = "{}"
	}
	run.TaskCount = len(tasks)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, name, status, request_body, error, task_count, created_at, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, run.Name, string(run.Status), run.Request, nullString(run.Error), run.TaskCount,
			formatTime(run.CreatedAt), formatTimePtr(run.StartedAt), formatTimePtr(run.FinishedAt),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
			}
			return fmt.Errorf("failed to create run: %w", err)
		}

		for i, name := range tasks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO task_runs (run_id, task, position, state)
				VALUES (?, ?, ?, 'pending')
			`, run.ID, name, i); err != nil {
				return fmt.Errorf("failed to create task run %s: %w", name, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, request_body, error, task_count, created_at, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, with the total number matching the filter
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]*Run, int, error) {
	where := ""
	args := []interface{}{}
	if opts.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(opts.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, status, request_body, error, task_count, created_at, started_at, finished_at
		FROM runs` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// ListTaskRuns returns the task states of a run in declaration order
func (s *Store) ListTaskRuns(ctx context.Context, runID string) ([]*TaskRun, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task, position, state, attempts, error, started_at, finished_at
		FROM task_runs WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskRun
	for rows.Next() {
		var tr TaskRun
		var errMsg, startedAt, finishedAt sql.NullString
		if err := rows.Scan(&tr.RunID, &tr.Task, &tr.Position, &tr.State, &tr.Attempts, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		tr.Error = errMsg.String
		tr.StartedAt = parseTimePtr(startedAt)
		tr.FinishedAt = parseTimePtr(finishedAt)
		tasks = append(tasks, &tr)
	}
	return tasks, rows.Err()
}

// UpdateRunStatus moves a run to a new status. Entering RUNNING records the
// start time and entering a terminal status records the finish time.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg string) error {
	now := formatTime(time.Now().UTC())

	query := "UPDATE runs SET status = ?, error = ?"
	args := []interface{}{string(status), nullString(errMsg)}
	switch {
	case status == RunRunning:
		query += ", started_at = COALESCE(started_at, ?)"
		args = append(args, now)
	case status.Terminal():
		query += ", finished_at = ?"
		args = append(args, now)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// TaskUpdate describes a task state transition to persist
type TaskUpdate struct {
	State    string
	Attempts int
	Error    string
	At       time.Time
	Started  bool
	Finished bool
}

// UpdateTaskRun records a task state transition
func (s *Store) UpdateTaskRun(ctx context.Context, runID, taskName string, u TaskUpdate) error {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := formatTime(at.UTC())

	query := "UPDATE task_runs SET state = ?, attempts = MAX(attempts, ?), error = ?"
	args := []interface{}{u.State, u.Attempts, nullString(u.Error)}
	if u.Started {
		query += ", started_at = COALESCE(started_at, ?)"
		args = append(args, ts)
	}
	if u.Finished {
		query += ", finished_at = ?"
		args = append(args, ts)
	}
	query += " WHERE run_id = ? AND task = ?"
	args = append(args, runID, taskName)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found in run %s", taskName, runID)
	}
	return nil
}

// AbortUnfinished marks runs left PENDING or RUNNING by a previous process as ABORTED
func (s *Store) AbortUnfinished(ctx context.Context) (int, error) {
	now := formatTime(time.Now().UTC())
	var aborted int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE runs SET status = 'ABORTED', error = 'interrupted by server restart', finished_at = ?
			WHERE status IN ('PENDING', 'RUNNING')
		`, now)
		if err != nil {
			return err
		}
		aborted, _ = res.RowsAffected()

		_, err = tx.ExecContext(ctx, `
			UPDATE task_runs SET state = 'cancelled', finished_at = COALESCE(finished_at, ?)
			WHERE state IN ('pending', 'running')
			AND run_id IN (SELECT id FROM runs WHERE status = 'ABORTED')
		`, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to abort unfinished runs: %w", err)
	}
	return int(aborted), nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort chronologically as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var status, createdAt string
	var errMsg, startedAt, finishedAt sql.NullString

	if err := row.Scan(&run.ID, &run.Name, &status, &run.Request, &errMsg, &run.TaskCount,
		&createdAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Error = errMsg.String
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		run.CreatedAt = t
	}
	run.StartedAt = parseTimePtr(startedAt)
	run.FinishedAt = parseTimePtr(finishedAt)
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
