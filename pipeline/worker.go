package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/observability"
	"github.com/adixon02/AutoHVAC-sub002/store"
)

// JobErrorOf builds the status error object for err.
func JobErrorOf(err error) *store.JobError {
	je := &store.JobError{Kind: blueprint.ErrorKind(err), Message: err.Error()}
	var se *StageError
	if errors.As(err, &se) {
		je.Stage = string(se.Stage)
		je.Message = se.Err.Error()
	}
	var ni *blueprint.NeedsInputError
	var es *blueprint.ExternalServiceError
	var fp *blueprint.FatalParsingError
	switch {
	case errors.As(err, &ni):
		je.Reason = string(ni.Reason)
		je.Message = ni.Message
		je.Recommendation = ni.Recommendation
		je.Details = ni.Details
	case errors.As(err, &fp):
		je.Recommendation = "re-submit a clearer PDF, or enable AI parsing"
		je.Details = map[string]any{"attempts": fp.Attempts}
	case errors.As(err, &es):
		je.Recommendation = "retry later"
		je.Details = map[string]any{"service": es.Service, "attempts": es.Attempts}
	case je.Kind == blueprint.KindTimeout:
		je.Recommendation = "retry with a page override or a simpler drawing set"
	case je.Kind == blueprint.KindCancelled:
		je.Message = "job cancelled"
	default:
		je.Recommendation = "retry; report the job id if the problem persists"
	}
	return je
}

// Process runs job and records its outcome in the job store. It returns an
// error only when the outcome could not be recorded or ctx ended first;
// the job is then left for redelivery.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	if p.cfg.Jobs == nil {
		return errors.New("pipeline: process needs a job store")
	}
	log := observability.JobLogger(p.cfg.Logger, job.ID)
	doc, err := p.Run(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, log, job.ID, err)
	}

	data, err := doc.Encode()
	if err != nil {
		return p.fail(ctx, log, job.ID, err)
	}
	switch err := p.cfg.Jobs.Complete(ctx, job.ID, string(StageComplete), data); {
	case errors.Is(err, store.ErrFinished):
		log.InfoContext(ctx, "pipeline: result discarded, job already finished")
		return nil
	case err != nil:
		return fmt.Errorf("pipeline: store result: %w", err)
	}
	p.cfg.Events.Stage(ctx, job.ID, string(StageComplete), StageComplete.Percent())
	return nil
}

func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, id string, err error) error {
	status := store.StatusFailed
	if errors.Is(err, blueprint.ErrCancelled) {
		status = store.StatusCancelled
	}
	je := JobErrorOf(err)
	log.ErrorContext(ctx, "pipeline: job failed",
		"stage", je.Stage, "kind", je.Kind, "reason", je.Reason, "error", err)
	p.cfg.Events.Error(ctx, id, je.Stage, err, map[string]any{"kind": je.Kind, "reason": je.Reason})

	switch ferr := p.cfg.Jobs.Fail(ctx, id, status, je); {
	case ferr == nil, errors.Is(ferr, store.ErrFinished):
		return nil
	default:
		return fmt.Errorf("pipeline: record failure: %w", ferr)
	}
}

// Discard is the queue's OnDiscard hook: a job redelivered too often is
// marked failed.
func (p *Pipeline) Discard(ctx context.Context, d *store.Delivery) {
	if p.cfg.Jobs == nil {
		return
	}
	err := fmt.Errorf("job abandoned after %d delivery attempts", d.Attempts)
	je := &store.JobError{
		Kind:           blueprint.KindInternal,
		Message:        err.Error(),
		Recommendation: "re-submit the job; report the job id if it fails again",
	}
	p.cfg.Events.Error(ctx, d.ID, string(StageFailed), err, nil)
	if ferr := p.cfg.Jobs.Fail(context.WithoutCancel(ctx), d.ID, store.StatusFailed, je); ferr != nil && !errors.Is(ferr, store.ErrFinished) {
		p.cfg.Logger.ErrorContext(ctx, "pipeline: discard failed", "job_id", d.ID, "error", ferr)
	}
}

// WorkerConfig sizes a Worker.
type WorkerConfig struct {
	Name              string
	Concurrency       int
	BatchSize         int
	HeartbeatInterval time.Duration
	// LeaseInterval is how often a running job's queue row is hidden again
	// for another visibility period. Default: half the queue visibility.
	LeaseInterval time.Duration
}

// Worker consumes the job queue.
type Worker struct {
	p        *Pipeline
	queue    *store.Queue
	cfg      WorkerConfig
	inFlight atomic.Int64
}

// NewWorker creates a Worker. The pipeline must have a job store.
func NewWorker(p *Pipeline, q *store.Queue, cfg WorkerConfig) *Worker {
	if cfg.Name == "" {
		cfg.Name = "worker"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency
	}
	return &Worker{p: p, queue: q, cfg: cfg}
}

// InFlight is the number of jobs being processed.
func (w *Worker) InFlight() int { return int(w.inFlight.Load()) }

// Run consumes until ctx ends, writing heartbeats meanwhile.
func (w *Worker) Run(ctx context.Context) {
	hb := observability.NewHeartbeat(w.p.cfg.Jobs.DB(), w.cfg.Name, w.cfg.HeartbeatInterval, w.InFlight)
	go hb.Run(ctx)
	w.queue.RunBatch(ctx, w.cfg.BatchSize, w.cfg.Concurrency, w.Handle)
	hb.Wait()
}

// Handle processes one delivery.
func (w *Worker) Handle(ctx context.Context, d *store.Delivery) error {
	var job Job
	if err := json.Unmarshal(d.Payload, &job); err != nil {
		// Undecodable payloads never succeed on redelivery.
		w.p.cfg.Logger.ErrorContext(ctx, "pipeline: bad queue payload", "id", d.ID, "error", err)
		w.p.Discard(ctx, d)
		return nil
	}
	rec, err := w.p.cfg.Jobs.Get(ctx, job.ID)
	if errors.Is(err, store.ErrNotFound) {
		w.p.cfg.Logger.WarnContext(ctx, "pipeline: queued job has no record, dropping", "job_id", job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	stop := w.keepLease(ctx, d.ID)
	defer stop()
	return w.p.Process(ctx, job)
}

// keepLease extends the delivery's visibility until stop is called, so a
// job that outlives one visibility period is not handed to another worker.
// A crashed worker stops extending and the row reappears as usual.
func (w *Worker) keepLease(ctx context.Context, id string) (stop func()) {
	vis := w.queue.Visibility()
	every := w.cfg.LeaseInterval
	if every <= 0 {
		every = vis / 2
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.queue.Extend(ctx, id, vis); err != nil && ctx.Err() == nil {
					w.p.cfg.Logger.WarnContext(ctx, "pipeline: extend lease", "id", id, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
