package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/config"
	"github.com/adixon02/AutoHVAC-sub002/observability"
	"github.com/adixon02/AutoHVAC-sub002/ocr"
	"github.com/adixon02/AutoHVAC-sub002/pipeline"
	"github.com/adixon02/AutoHVAC-sub002/render"
	"github.com/adixon02/AutoHVAC-sub002/resilience"
	"github.com/adixon02/AutoHVAC-sub002/rooms"
	"github.com/adixon02/AutoHVAC-sub002/store"
)

// app holds what the commands share. The store fields are nil for the
// one-shot run command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *sql.DB
	jobs    *store.Jobs
	queue   *store.Queue
	events  *observability.JobEvents
	metrics *observability.StageMetrics

	climate  climate.Service
	pipeline *pipeline.Pipeline
	service  *pipeline.Service

	closers []func() error
}

// newApp wires the pipeline. withStore opens the SQLite database for the
// job store, queue, events, metrics and climate cache.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withStore bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if withStore {
		if err := a.openStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	svc, err := a.climateService()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.climate = svc
	a.pipeline = pipeline.New(a.pipelineConfig())
	if withStore {
		a.service = pipeline.NewService(pipeline.ServiceConfig{
			Jobs:    a.jobs,
			Queue:   a.queue,
			Events:  a.events,
			Climate: a.climate,
			Logger:  logger,
		})
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	db, err := store.Open(a.cfg.Storage.DBPath,
		store.WithMkdirAll(),
		store.WithBusyTimeout(int(a.cfg.Storage.BusyTimeout/time.Millisecond)))
	if err != nil {
		return err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if a.jobs, err = store.NewJobs(ctx, db); err != nil {
		return err
	}
	if err := observability.Init(db); err != nil {
		return err
	}
	a.events = observability.NewJobEvents(db)
	a.metrics = observability.NewStageMetrics(db, 0, 0)
	// Metrics flush before the database closes; closers run in reverse.
	a.closers = append(a.closers, a.metrics.Close)

	a.queue, err = store.NewQueue(ctx, db, store.QueueOptions{
		Visibility:   a.cfg.Worker.Visibility,
		PollInterval: a.cfg.Worker.PollInterval,
		MaxAttempts:  a.cfg.Worker.MaxAttempts,
		Logger:       a.logger,
		OnDiscard: func(ctx context.Context, d *store.Delivery) {
			a.pipeline.Discard(ctx, d)
		},
	})
	return err
}

// climateService prefers the remote service when one is configured, cached
// in SQLite when a store is open, and falls back to the embedded table.
func (a *app) climateService() (climate.Service, error) {
	table := climate.DefaultTable()
	remote := a.cfg.Climate.Remote
	if remote.BaseURL == "" {
		return table, nil
	}
	remote.Logger = a.logger
	httpSvc, err := climate.NewHTTPService(remote)
	if err != nil {
		return nil, err
	}
	var primary climate.Service = httpSvc
	if a.db != nil {
		cache, err := climate.NewCache(a.db, httpSvc,
			climate.WithTTL(a.cfg.Climate.CacheTTL), climate.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		primary = cache
	}
	return &climate.Chain{Remote: primary, Local: table, Logger: a.logger}, nil
}

func (a *app) pipelineConfig() pipeline.Config {
	c := a.cfg
	poppler := &render.Poppler{Binary: c.Render.Binary, Timeout: c.Render.Timeout}
	if !poppler.Available() {
		a.logger.Warn("render: pdftoppm not found; OCR is off and AI page images fall back to linework", "binary", c.Render.Binary)
	}

	text := c.Text
	text.Renderer = poppler
	text.Logger = a.logger
	switch {
	case !c.OCR.Enabled:
	case !ocr.Available:
		a.logger.Info("ocr: not compiled in, scanned pages need the AI path")
	default:
		client, err := ocr.New(c.OCR.Language)
		if err != nil {
			a.logger.Warn("ocr: unavailable", "error", err)
			break
		}
		text.OCR = client
		a.closers = append(a.closers, client.Close)
	}

	vision := rooms.VisionConfig{
		Renderer:       poppler,
		Model:          c.AI.Model,
		DPI:            c.AI.DPI,
		MaxImagePixels: c.AI.MaxImagePixels,
		AttemptTimeout: c.Pipeline.AITimeout,
		MaxRetries:     c.Pipeline.AIMaxRetries,
		Backoff:        c.Pipeline.AIBackoff,
		Logger:         a.logger,
	}
	if vision.MaxRetries == 0 {
		vision.MaxRetries = -1
	}
	if c.AI.Enabled {
		if key := c.AI.APIKey(); key != "" {
			vision.Client = rooms.NewOpenAIClient(key, c.AI.BaseURL, c.AI.Model)
			vision.Breaker = resilience.NewBreaker(
				resilience.WithBreakerThreshold(c.AI.BreakerThreshold),
				resilience.WithBreakerResetTimeout(c.AI.BreakerReset))
		} else {
			a.logger.Warn("ai: enabled but no API key set, jobs use the geometric strategy", "env", c.AI.APIKeyEnv)
		}
	}

	return pipeline.Config{
		Geometry:    c.Geometry,
		Text:        text,
		Scale:       c.Scale,
		Gates:       c.Gates,
		Filter:      c.Filter,
		ManualJ:     c.ManualJ,
		Vision:      vision,
		AIByDefault: c.AI.Enabled,
		Climate:     a.climate,
		MaxPages:    c.Pipeline.MaxPages,
		MaxPDFBytes: c.MaxPDFBytes(),
		JobTimeout:  c.Pipeline.JobTimeout,
		TextTimeout: c.Pipeline.TextTimeout,
		Jobs:        a.jobs,
		Events:      a.events,
		Metrics:     a.metrics,
		Logger:      a.logger,
	}
}

func (a *app) newWorker() *pipeline.Worker {
	return pipeline.NewWorker(a.pipeline, a.queue, pipeline.WorkerConfig{
		Name:              a.cfg.Worker.Name,
		Concurrency:       a.cfg.Worker.Concurrency,
		BatchSize:         a.cfg.Worker.BatchSize,
		HeartbeatInterval: a.cfg.Worker.HeartbeatInterval,
	})
}

// cleanupEvents prunes old job events once a day until ctx ends.
func (a *app) cleanupEvents(ctx context.Context) {
	if a.events == nil || a.cfg.Storage.EventRetention <= 0 {
		return
	}
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		n, err := a.events.Cleanup(ctx, a.cfg.Storage.EventRetention)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("events: cleanup failed", "error", err)
		} else if n > 0 {
			a.logger.Info("events: pruned", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("autohvac: close: %w", err)
	}
	return nil
}
