// CLAUDE:SUMMARY Buffered stage-duration metrics flushed to SQLite in batches, with per-stage summaries.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StageSample is one timed pipeline stage.
type StageSample struct {
	JobID    string
	Stage    string
	Outcome  string // "ok", "failed", "timeout", "cancelled"
	Duration time.Duration
	At       time.Time
}

// StageMetrics buffers samples and flushes them to stage_metrics. A nil
// *StageMetrics is a no-op.
type StageMetrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []StageSample
	stop   chan struct{}
	done   chan struct{}
}

// NewStageMetrics starts the flush loop. Zero arguments default to 100
// samples and 5s.
func NewStageMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration) *StageMetrics {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	m := &StageMetrics{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]StageSample, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Observe queues a sample.
func (m *StageMetrics) Observe(s StageSample) {
	if m == nil {
		return
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, s)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// StageSummary aggregates samples of one stage.
type StageSummary struct {
	Stage    string  `json:"stage"`
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// Summary aggregates flushed samples since the given time.
func (m *StageMetrics) Summary(ctx context.Context, since time.Time) ([]StageSummary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT stage, COUNT(*), SUM(CASE WHEN outcome = 'ok' THEN 0 ELSE 1 END),
		       AVG(duration_ms), MAX(duration_ms)
		FROM stage_metrics WHERE timestamp >= ?
		GROUP BY stage ORDER BY stage`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("observability: stage summary: %w", err)
	}
	defer rows.Close()
	var out []StageSummary
	for rows.Next() {
		var s StageSummary
		if err := rows.Scan(&s.Stage, &s.Count, &s.Failures, &s.MeanMS, &s.MaxMS); err != nil {
			return nil, fmt.Errorf("observability: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close flushes remaining samples and stops the flush loop.
func (m *StageMetrics) Close() error {
	if m == nil {
		return nil
	}
	close(m.stop)
	<-m.done
	return nil
}

func (m *StageMetrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
		}
	}
}

func (m *StageMetrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("observability: stage metrics begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stage_metrics (job_id, stage, outcome, duration_ms, timestamp) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("observability: stage metrics prepare", "error", err)
		return
	}
	defer stmt.Close()
	for _, s := range m.buffer {
		ms := float64(s.Duration) / float64(time.Millisecond)
		if _, err := stmt.ExecContext(ctx, s.JobID, s.Stage, s.Outcome, ms, s.At.UnixMilli()); err != nil {
			slog.Error("observability: stage metrics insert", "error", err, "stage", s.Stage)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("observability: stage metrics commit", "error", err)
	}
	m.buffer = m.buffer[:0]
}
