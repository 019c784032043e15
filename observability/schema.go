package observability

import "database/sql"

// Schema is the DDL for the observability tables. It can share the job
// database or live in its own file.
const Schema = `
CREATE TABLE IF NOT EXISTS job_events (
    event_id   TEXT PRIMARY KEY,
    job_id     TEXT NOT NULL,
    stage      TEXT NOT NULL,
    kind       TEXT NOT NULL,
    message    TEXT NOT NULL,
    details    TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id, created_at);

CREATE TABLE IF NOT EXISTS stage_metrics (
    metric_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id      TEXT NOT NULL,
    stage       TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    duration_ms REAL NOT NULL,
    timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_metrics_stage ON stage_metrics(stage, timestamp DESC);

CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    worker_name      TEXT NOT NULL,
    hostname         TEXT NOT NULL,
    worker_pid       INTEGER NOT NULL,
    timestamp        INTEGER NOT NULL,
    jobs_in_flight   INTEGER NOT NULL DEFAULT 0,
    goroutines_count INTEGER,
    memory_alloc_mb  REAL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies Schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
