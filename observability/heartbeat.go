package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Heartbeat writes periodic liveness rows for a queue worker.
type Heartbeat struct {
	db         *sql.DB
	workerName string
	hostname   string
	pid        int
	interval   time.Duration
	inFlight   func() int
	done       chan struct{}
}

// NewHeartbeat creates a writer. inFlight reports jobs being processed and
// may be nil.
func NewHeartbeat(db *sql.DB, workerName string, interval time.Duration, inFlight func() int) *Heartbeat {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if inFlight == nil {
		inFlight = func() int { return 0 }
	}
	return &Heartbeat{
		db:         db,
		workerName: workerName,
		hostname:   hostname,
		pid:        os.Getpid(),
		interval:   interval,
		inFlight:   inFlight,
		done:       make(chan struct{}),
	}
}

// Run writes one heartbeat immediately, then every interval until ctx ends.
func (h *Heartbeat) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		if err := h.Beat(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "observability: heartbeat write failed", "error", err, "worker", h.workerName)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Run has returned.
func (h *Heartbeat) Wait() { <-h.done }

// Beat writes a single heartbeat row.
func (h *Heartbeat) Beat(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			jobs_in_flight, goroutines_count, memory_alloc_mb
		) VALUES (?,?,?,?,?,?,?)`,
		h.workerName, h.hostname, h.pid, time.Now().UnixMilli(),
		h.inFlight(), runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024)
	if err != nil {
		return fmt.Errorf("observability: insert heartbeat: %w", err)
	}
	return nil
}

// WorkerStatus is the latest heartbeat of a worker.
type WorkerStatus struct {
	WorkerName   string    `json:"worker_name"`
	Hostname     string    `json:"hostname"`
	PID          int       `json:"pid"`
	Timestamp    time.Time `json:"timestamp"`
	JobsInFlight int       `json:"jobs_in_flight"`
	Alive        bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat of workerName, alive when
// younger than staleAfter. It returns nil, nil when none exists.
func LatestHeartbeat(ctx context.Context, db *sql.DB, workerName string, staleAfter time.Duration) (*WorkerStatus, error) {
	var ws WorkerStatus
	var ts int64
	err := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp, jobs_in_flight
		FROM worker_heartbeats WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, workerName).
		Scan(&ws.WorkerName, &ws.Hostname, &ws.PID, &ts, &ws.JobsInFlight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("observability: latest heartbeat: %w", err)
	}
	ws.Timestamp = time.UnixMilli(ts)
	ws.Alive = time.Since(ws.Timestamp) <= staleAfter
	return &ws, nil
}
