// CLAUDE:SUMMARY Job records: status, monotonic stage/percent progress, cancel flag, error object, result document.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobsSchema holds job status rows and finished result documents.
const JobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'queued',
	stage            TEXT NOT NULL DEFAULT 'queued',
	percent          INTEGER NOT NULL DEFAULT 0,
	request          TEXT NOT NULL,
	error            TEXT,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	finished_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs (created_at);

CREATE TABLE IF NOT EXISTS job_results (
	job_id     TEXT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
	document   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

// Status is the coarse job lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("store: job not found")
	// ErrFinished is returned when a finished job is asked to change.
	ErrFinished = errors.New("store: job already finished")
	// ErrNoResult is returned when a job has no result document yet.
	ErrNoResult = errors.New("store: job has no result")
)

// JobError is the error object reported for a failed job.
type JobError struct {
	Kind           string         `json:"kind"`
	Reason         string         `json:"reason,omitempty"`
	Stage          string         `json:"stage,omitempty"`
	Message        string         `json:"message"`
	Recommendation string         `json:"recommendation,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// JobRecord is one row of the jobs table.
type JobRecord struct {
	ID              string          `json:"id"`
	Status          Status          `json:"status"`
	Stage           string          `json:"stage"`
	Percent         int             `json:"percent"`
	Request         json.RawMessage `json:"request"`
	Error           *JobError       `json:"error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// Jobs reads and writes job rows.
type Jobs struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobs creates the tables if needed.
func NewJobs(ctx context.Context, db *sql.DB) (*Jobs, error) {
	if _, err := db.ExecContext(ctx, JobsSchema); err != nil {
		return nil, fmt.Errorf("store: jobs schema: %w", err)
	}
	return &Jobs{db: db, now: time.Now}, nil
}

// DB returns the underlying handle.
func (j *Jobs) DB() *sql.DB { return j.db }

// Create inserts a queued job.
func (j *Jobs) Create(ctx context.Context, id string, request []byte) error {
	now := j.now().UnixMilli()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO jobs (id, request, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(request), now, now)
	if err != nil {
		return fmt.Errorf("store: create job %s: %w", id, err)
	}
	return nil
}

// Get loads one job.
func (j *Jobs) Get(ctx context.Context, id string) (*JobRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, status, stage, percent, request, error, cancel_requested, created_at, updated_at, finished_at
		FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns the most recent jobs first.
func (j *Jobs) List(ctx context.Context, limit int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, status, stage, percent, request, error, cancel_requested, created_at, updated_at, finished_at
		FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*JobRecord, error) {
	var (
		rec        JobRecord
		request    string
		jerr       sql.NullString
		cancel     int
		created    int64
		updated    int64
		finishedAt sql.NullInt64
	)
	if err := s.Scan(&rec.ID, &rec.Status, &rec.Stage, &rec.Percent, &request, &jerr,
		&cancel, &created, &updated, &finishedAt); err != nil {
		return nil, err
	}
	rec.Request = json.RawMessage(request)
	rec.CancelRequested = cancel != 0
	rec.CreatedAt = time.UnixMilli(created)
	rec.UpdatedAt = time.UnixMilli(updated)
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		rec.FinishedAt = &t
	}
	if jerr.Valid && jerr.String != "" {
		rec.Error = &JobError{}
		if err := json.Unmarshal([]byte(jerr.String), rec.Error); err != nil {
			return nil, fmt.Errorf("store: job %s error object: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// Advance moves a running job to stage at percent. Progress never goes
// backwards: an update with a lower percent, or on a finished job, is
// ignored and reported as false.
func (j *Jobs) Advance(ctx context.Context, id, stage string, percent int) (bool, error) {
	percent = min(max(percent, 0), 100)
	res, err := j.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', stage = ?, percent = ?, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'running') AND percent <= ?`,
		stage, percent, j.now().UnixMilli(), id, percent)
	if err != nil {
		return false, fmt.Errorf("store: advance job %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Complete stores the result document and marks the job complete.
func (j *Jobs) Complete(ctx context.Context, id, stage string, document []byte) error {
	return RunTx(ctx, j.db, func(tx *sql.Tx) error {
		now := j.now().UnixMilli()
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'complete', stage = ?, percent = 100, updated_at = ?, finished_at = ?
			WHERE id = ? AND status IN ('queued', 'running')`,
			stage, now, now, id)
		if err != nil {
			return fmt.Errorf("store: complete job %s: %w", id, err)
		}
		if err := j.checkTransition(ctx, tx, res, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO job_results (job_id, document, created_at) VALUES (?, ?, ?)`,
			id, string(document), now)
		if err != nil {
			return fmt.Errorf("store: store result %s: %w", id, err)
		}
		return nil
	})
}

// Fail marks the job failed (or cancelled) with its error object. Stage and
// percent keep the last values reached.
func (j *Jobs) Fail(ctx context.Context, id string, status Status, jerr *JobError) error {
	if status != StatusFailed && status != StatusCancelled {
		return fmt.Errorf("store: fail job %s: invalid status %q", id, status)
	}
	data, err := json.Marshal(jerr)
	if err != nil {
		return fmt.Errorf("store: encode job error: %w", err)
	}
	return RunTx(ctx, j.db, func(tx *sql.Tx) error {
		now := j.now().UnixMilli()
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, error = ?, updated_at = ?, finished_at = ?
			WHERE id = ? AND status IN ('queued', 'running')`,
			string(status), string(data), now, now, id)
		if err != nil {
			return fmt.Errorf("store: fail job %s: %w", id, err)
		}
		return j.checkTransition(ctx, tx, res, id)
	})
}

func (j *Jobs) checkTransition(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrFinished
}

// RequestCancel sets the cancel flag. The pipeline honours it at the next
// stage boundary.
func (j *Jobs) RequestCancel(ctx context.Context, id string) error {
	return RunTx(ctx, j.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET cancel_requested = 1, updated_at = ?
			WHERE id = ? AND status IN ('queued', 'running')`,
			j.now().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("store: cancel job %s: %w", id, err)
		}
		return j.checkTransition(ctx, tx, res, id)
	})
}

// CancelRequested reports the cancel flag.
func (j *Jobs) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := j.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return flag != 0, nil
}

// Result returns the stored result document.
func (j *Jobs) Result(ctx context.Context, id string) ([]byte, error) {
	var doc string
	err := j.db.QueryRowContext(ctx, `SELECT document FROM job_results WHERE job_id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := j.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}
