// CLAUDE:SUMMARY Visibility-timeout work queue on SQLite: publish, claim, ack/nack, extend, bounded-concurrency consumer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// QueueSchema is the queue table. A claimed row is invisible until
// visible_at; a worker that crashes lets it reappear.
const QueueSchema = `
CREATE TABLE IF NOT EXISTS work_queue (
	id          TEXT PRIMARY KEY,
	queue       TEXT NOT NULL DEFAULT '',
	payload     BLOB,
	visible_at  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_work_queue_visible ON work_queue (queue, visible_at);`

// Delivery is one claimed queue row.
type Delivery struct {
	ID        string
	Queue     string
	Payload   []byte
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Queue is the logical queue name. Default: "blueprint".
	Queue string
	// Visibility is how long a claimed row stays hidden. Default: 15m, longer
	// than the whole-job timeout.
	Visibility time.Duration
	// PollInterval is the delay between claims in RunBatch. Default: 1s.
	PollInterval time.Duration
	// MaxAttempts discards a row redelivered more often. 0 means unlimited.
	MaxAttempts int
	// OnDiscard is called for a row dropped after MaxAttempts.
	OnDiscard func(ctx context.Context, d *Delivery)
	Logger    *slog.Logger
	Now       func() time.Time
}

func (o *QueueOptions) defaults() {
	if o.Queue == "" {
		o.Queue = "blueprint"
	}
	if o.Visibility <= 0 {
		o.Visibility = 15 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Queue is the queue handle.
type Queue struct {
	db   *sql.DB
	opts QueueOptions
}

// NewQueue creates the queue table if needed.
func NewQueue(ctx context.Context, db *sql.DB, opts QueueOptions) (*Queue, error) {
	opts.defaults()
	if _, err := db.ExecContext(ctx, QueueSchema); err != nil {
		return nil, err
	}
	return &Queue{db: db, opts: opts}, nil
}

// Publish inserts a row that is immediately visible.
func (q *Queue) Publish(ctx context.Context, id string, payload []byte) error {
	now := q.opts.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO work_queue (id, queue, payload, visible_at, created_at) VALUES (?,?,?,?,?)`,
		id, q.opts.Queue, payload, now, now,
	)
	return err
}

// Claim hides the oldest visible row for the visibility duration and returns
// it. It returns nil, nil on an empty queue.
func (q *Queue) Claim(ctx context.Context) (*Delivery, error) {
	ds, err := q.BatchClaim(ctx, 1)
	if err != nil || len(ds) == 0 {
		return nil, err
	}
	return ds[0], nil
}

// BatchClaim claims up to n visible rows. It returns an empty, non-nil slice
// when none are available.
func (q *Queue) BatchClaim(ctx context.Context, n int) ([]*Delivery, error) {
	now := q.opts.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE work_queue
		SET visible_at = ?, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM work_queue
			WHERE queue = ? AND visible_at <= ?
			ORDER BY visible_at ASC, created_at ASC
			LIMIT ?
		)
		RETURNING id, queue, payload, visible_at, created_at, attempts`,
		hideUntil, q.opts.Queue, now.UnixMilli(), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds := []*Delivery{}
	for rows.Next() {
		var d Delivery
		var visAt, creAt int64
		if err := rows.Scan(&d.ID, &d.Queue, &d.Payload, &visAt, &creAt, &d.Attempts); err != nil {
			return nil, err
		}
		d.VisibleAt = time.UnixMilli(visAt)
		d.CreatedAt = time.UnixMilli(creAt)
		ds = append(ds, &d)
	}
	return ds, rows.Err()
}

// Ack deletes a processed row.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM work_queue WHERE id = ? AND queue = ?`, id, q.opts.Queue)
	return err
}

// Nack makes a row visible again immediately.
func (q *Queue) Nack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE work_queue SET visible_at = 0 WHERE id = ? AND queue = ?`, id, q.opts.Queue)
	return err
}

// Extend pushes the row's visibility forward by extra from now.
func (q *Queue) Extend(ctx context.Context, id string, extra time.Duration) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE work_queue SET visible_at = ? WHERE id = ? AND queue = ?`,
		q.opts.Now().Add(extra).UnixMilli(), id, q.opts.Queue)
	return err
}

// Visibility is how long a claim hides a row.
func (q *Queue) Visibility() time.Duration { return q.opts.Visibility }

// Len counts visible and hidden rows.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_queue WHERE queue = ?`, q.opts.Queue).Scan(&n)
	return n, err
}

// Handler processes a delivery. nil acks it, an error nacks it.
type Handler func(ctx context.Context, d *Delivery) error

// RunBatch claims up to batchSize rows per poll and runs at most workers
// handlers at once. It blocks until ctx is cancelled, then waits for
// in-flight handlers.
func (q *Queue) RunBatch(ctx context.Context, batchSize, workers int, handler Handler) {
	if batchSize <= 0 {
		batchSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	log := q.opts.Logger
	log.Info("store: queue consumer started",
		"queue", q.opts.Queue,
		"batch_size", batchSize,
		"workers", workers,
		"visibility", q.opts.Visibility,
	)

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info("store: queue consumer stopped", "queue", q.opts.Queue)
			return
		case <-ticker.C:
		}

		ds, err := q.BatchClaim(ctx, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Warn("store: claim failed", "error", err, "queue", q.opts.Queue)
			continue
		}
		for _, d := range ds {
			if q.opts.MaxAttempts > 0 && d.Attempts > q.opts.MaxAttempts {
				log.Warn("store: delivery exceeded max attempts, discarding",
					"id", d.ID, "attempts", d.Attempts, "queue", q.opts.Queue)
				if q.opts.OnDiscard != nil {
					q.opts.OnDiscard(ctx, d)
				}
				_ = q.Ack(ctx, d.ID)
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				_ = q.Nack(context.WithoutCancel(ctx), d.ID)
				continue
			}
			wg.Add(1)
			go func(d *Delivery) {
				defer wg.Done()
				defer sem.Release(1)
				q.handle(ctx, d, handler)
			}(d)
		}
	}
}

func (q *Queue) handle(ctx context.Context, d *Delivery, handler Handler) {
	bg := context.WithoutCancel(ctx)
	if err := handler(ctx, d); err != nil {
		if !errors.Is(err, context.Canceled) {
			q.opts.Logger.Warn("store: handler failed, nacking", "id", d.ID, "error", err, "queue", q.opts.Queue)
		}
		_ = q.Nack(bg, d.ID)
		return
	}
	_ = q.Ack(bg, d.ID)
}
