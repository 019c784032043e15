// CLAUDE:SUMMARY Job event log: stage transitions, warnings and errors per job in SQLite job_events.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/idgen"
)

// Event kinds.
const (
	KindStage   = "stage"
	KindWarning = "warning"
	KindError   = "error"
	KindInfo    = "info"
)

// JobEvent is one entry in a job's history.
type JobEvent struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Stage     string         `json:"stage"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// JobEvents records job history. A nil *JobEvents is a no-op.
type JobEvents struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// JobEventsOption configures JobEvents.
type JobEventsOption func(*JobEvents)

// WithEventIDGenerator sets the event id generator.
func WithEventIDGenerator(gen idgen.Generator) JobEventsOption {
	return func(e *JobEvents) { e.newID = gen }
}

// WithEventClock injects a clock (tests).
func WithEventClock(fn func() time.Time) JobEventsOption {
	return func(e *JobEvents) { e.now = fn }
}

// NewJobEvents writes to db, which must carry Schema.
func NewJobEvents(db *sql.DB, opts ...JobEventsOption) *JobEvents {
	e := &JobEvents{db: db, newID: idgen.Event, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Record appends ev. Failures are logged, never returned.
func (e *JobEvents) Record(ctx context.Context, ev JobEvent) {
	if e == nil {
		return
	}
	var details sql.NullString
	if len(ev.Details) > 0 {
		if b, err := json.Marshal(ev.Details); err == nil {
			details = sql.NullString{String: string(b), Valid: true}
		}
	}
	_, err := e.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO job_events (event_id, job_id, stage, kind, message, details, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		e.newID(), ev.JobID, ev.Stage, ev.Kind, ev.Message, details, e.now().UnixMilli())
	if err != nil {
		slog.ErrorContext(ctx, "observability: job event write failed", "error", err, "job_id", ev.JobID, "kind", ev.Kind)
	}
}

// Stage records entry into stage.
func (e *JobEvents) Stage(ctx context.Context, jobID, stage string, percent int) {
	e.Record(ctx, JobEvent{JobID: jobID, Stage: stage, Kind: KindStage,
		Message: fmt.Sprintf("entered %s", stage), Details: map[string]any{"percent": percent}})
}

// Warning records a non-fatal problem.
func (e *JobEvents) Warning(ctx context.Context, jobID, stage, msg string) {
	e.Record(ctx, JobEvent{JobID: jobID, Stage: stage, Kind: KindWarning, Message: msg})
}

// Error records the error that ended a job.
func (e *JobEvents) Error(ctx context.Context, jobID, stage string, err error, details map[string]any) {
	e.Record(ctx, JobEvent{JobID: jobID, Stage: stage, Kind: KindError, Message: err.Error(), Details: details})
}

// List returns a job's events oldest first.
func (e *JobEvents) List(ctx context.Context, jobID string) ([]JobEvent, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT event_id, job_id, stage, kind, message, details, created_at
		FROM job_events WHERE job_id = ? ORDER BY created_at, rowid`, jobID)
	if err != nil {
		return nil, fmt.Errorf("observability: list events: %w", err)
	}
	defer rows.Close()

	var out []JobEvent
	for rows.Next() {
		var ev JobEvent
		var details sql.NullString
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Stage, &ev.Kind, &ev.Message, &details, &ts); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		ev.CreatedAt = time.UnixMilli(ts)
		if details.Valid {
			_ = json.Unmarshal([]byte(details.String), &ev.Details)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention.
func (e *JobEvents) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := e.now().Add(-retention).UnixMilli()
	res, err := e.db.ExecContext(ctx, `DELETE FROM job_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup events: %w", err)
	}
	return res.RowsAffected()
}
