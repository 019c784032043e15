package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/idgen"
	"github.com/adixon02/AutoHVAC-sub002/kit"
	"github.com/adixon02/AutoHVAC-sub002/observability"
	"github.com/adixon02/AutoHVAC-sub002/store"
)

// Service is the submit/poll/result surface shared by the HTTP API, the
// MCP tools and the CLI.
type Service struct {
	jobs    *store.Jobs
	queue   *store.Queue
	events  *observability.JobEvents
	climate climate.Service
	newID   idgen.Generator
	logger  *slog.Logger
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Jobs    *store.Jobs
	Queue   *store.Queue
	Events  *observability.JobEvents
	Climate climate.Service
	NewID   idgen.Generator // default idgen.Job
	Logger  *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Climate == nil {
		cfg.Climate = climate.DefaultTable()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Job
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		jobs:    cfg.Jobs,
		queue:   cfg.Queue,
		events:  cfg.Events,
		climate: cfg.Climate,
		newID:   cfg.NewID,
		logger:  cfg.Logger,
	}
}

// Submit validates job, records it as queued and publishes it. Any ID in
// job is replaced.
func (s *Service) Submit(ctx context.Context, job Job) (Status, error) {
	if err := job.Validate(); err != nil {
		return Status{}, err
	}
	job.ID = s.newID()
	payload, err := json.Marshal(job)
	if err != nil {
		return Status{}, fmt.Errorf("pipeline: encode job: %w", err)
	}
	if err := s.jobs.Create(ctx, job.ID, payload); err != nil {
		return Status{}, err
	}
	if err := s.queue.Publish(ctx, job.ID, payload); err != nil {
		_ = s.jobs.Fail(context.WithoutCancel(ctx), job.ID, store.StatusFailed, &store.JobError{
			Kind: blueprint.KindInternal, Message: "job could not be queued", Recommendation: "re-submit the job",
		})
		return Status{}, fmt.Errorf("pipeline: enqueue %s: %w", job.ID, err)
	}
	s.events.Stage(ctx, job.ID, string(StageQueued), StageQueued.Percent())
	attrs := []any{"job_id", job.ID, "zip", job.ZIP, "ai", job.aiChoice(), "transport", kit.GetTransport(ctx)}
	if rid := kit.GetRequestID(ctx); rid != "" {
		attrs = append(attrs, "request_id", rid, "remote_addr", kit.GetRemoteAddr(ctx))
	}
	s.logger.InfoContext(ctx, "pipeline: job submitted", attrs...)
	return s.Status(ctx, job.ID)
}

// Status returns the job's current status.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	rec, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return StatusOf(rec), nil
}

// List returns the most recent jobs first.
func (s *Service) List(ctx context.Context, limit int) ([]Status, error) {
	recs, err := s.jobs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(recs))
	for i, rec := range recs {
		out[i] = StatusOf(rec)
	}
	return out, nil
}

// Result returns the stored result document of a completed job.
func (s *Service) Result(ctx context.Context, id string) (json.RawMessage, error) {
	doc, err := s.jobs.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(doc), nil
}

// Cancel stops a job. A job still waiting in the queue is cancelled at
// once; a running job stops at its next stage boundary.
func (s *Service) Cancel(ctx context.Context, id string) (Status, error) {
	rec, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if rec.Status.Terminal() {
		return StatusOf(rec), store.ErrFinished
	}
	if rec.Status == store.StatusQueued {
		err = s.jobs.Fail(ctx, id, store.StatusCancelled, &store.JobError{
			Kind: blueprint.KindCancelled, Stage: string(StageQueued), Message: "job cancelled",
		})
	} else {
		err = s.jobs.RequestCancel(ctx, id)
	}
	if err != nil && !errors.Is(err, store.ErrFinished) {
		return Status{}, err
	}
	s.events.Record(ctx, observability.JobEvent{
		JobID: id, Stage: rec.Stage, Kind: observability.KindInfo, Message: "cancel requested",
	})
	return s.Status(ctx, id)
}

// Events returns the job's event history.
func (s *Service) Events(ctx context.Context, id string) ([]observability.JobEvent, error) {
	if _, err := s.jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.events == nil {
		return nil, nil
	}
	return s.events.List(ctx, id)
}

// Climate looks up the design conditions for zip.
func (s *Service) Climate(ctx context.Context, zip string) (climate.Record, error) {
	return s.climate.Lookup(ctx, zip)
}
