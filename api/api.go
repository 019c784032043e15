// CLAUDE:SUMMARY chi HTTP API: multipart blueprint upload, job status/result/events/cancel, climate lookup, health and stage metrics.
// Package api serves the job service over HTTP.
//
//	POST   /v1/jobs              multipart upload (field "file") plus job fields
//	GET    /v1/jobs              recent jobs
//	GET    /v1/jobs/{id}         status
//	GET    /v1/jobs/{id}/result  result document
//	GET    /v1/jobs/{id}/events  event history
//	DELETE /v1/jobs/{id}         cancel
//	GET    /v1/climate/{zip}     design conditions
//	GET    /v1/metrics/stages    stage timing summary
//	GET    /healthz              liveness, queue depth, worker heartbeat
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/observability"
	"github.com/adixon02/AutoHVAC-sub002/pipeline"
	"github.com/adixon02/AutoHVAC-sub002/safeio"
	"github.com/adixon02/AutoHVAC-sub002/shield"
	"github.com/adixon02/AutoHVAC-sub002/store"
)

// Config wires the API.
type Config struct {
	Service        *pipeline.Service
	Queue          *store.Queue
	Metrics        *observability.StageMetrics
	DB             *sql.DB // heartbeat lookups; nil skips them
	WorkerName     string
	UploadDir      string
	MaxUploadBytes int64   // default 50 MiB
	RatePerSec     float64 // submissions per client, default 1
	RateBurst      int     // default 5
	Drain          *shield.Drain
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.WorkerName == "" {
		c.WorkerName = "worker"
	}
	if c.Drain == nil {
		c.Drain = &shield.Drain{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the HTTP surface of the job service.
type Server struct {
	cfg     Config
	svc     *pipeline.Service
	limiter *shield.RateLimiter
}

// New creates a Server.
func New(cfg Config) *Server {
	cfg.defaults()
	return &Server{
		cfg:     cfg,
		svc:     cfg.Service,
		limiter: shield.NewRateLimiter(cfg.RatePerSec, cfg.RateBurst),
	}
}

// Limiter exposes the submission limiter so the caller can run its sweeper.
func (s *Server) Limiter() *shield.RateLimiter { return s.limiter }

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.cfg.Logger, shield.DefaultHeaders()) {
		r.Use(mw)
	}
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the routes on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.With(s.cfg.Drain.Middleware, s.limiter.Middleware, shield.MaxBody(s.cfg.MaxUploadBytes)).
			Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{id}", s.handleStatus)
		r.Get("/jobs/{id}/result", s.handleResult)
		r.Get("/jobs/{id}/events", s.handleEvents)
		r.Delete("/jobs/{id}", s.handleCancel)
		r.Get("/climate/{zip}", s.handleClimate)
		r.Get("/metrics/stages", s.handleStageMetrics)
	})
}

// errorBody is the JSON error envelope. Job failures reuse the status
// error object.
type errorBody struct {
	Error *store.JobError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: &store.JobError{Kind: kind, Message: msg}})
}

// writeServiceErr maps a service error to its HTTP status.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, store.ErrNoResult):
		writeErr(w, http.StatusConflict, "no_result", "job has no result yet")
	case errors.Is(err, store.ErrFinished):
		writeErr(w, http.StatusConflict, "finished", "job already finished")
	case errors.Is(err, safeio.ErrNotPDF):
		writeErr(w, http.StatusUnsupportedMediaType, blueprint.KindNeedsInput, "upload must be a PDF")
	case errors.As(err, &mbe):
		writeErr(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
	case climate.IsUnknownZIP(err):
		writeErr(w, http.StatusNotFound, "unknown_zip", err.Error())
	default:
		je := pipeline.JobErrorOf(err)
		status := http.StatusInternalServerError
		switch je.Kind {
		case blueprint.KindNeedsInput:
			status = http.StatusUnprocessableEntity
		case blueprint.KindExternalService:
			status = http.StatusBadGateway
		case blueprint.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		if status == http.StatusInternalServerError {
			shield.GetLogger(r.Context()).ErrorContext(r.Context(), "api: request failed", "error", err)
			je = &store.JobError{Kind: blueprint.KindInternal, Message: "internal error"}
		}
		writeJSON(w, status, errorBody{Error: je})
	}
}

type health struct {
	Status     string                      `json:"status"`
	Draining   bool                        `json:"draining"`
	QueueDepth int                         `json:"queue_depth"`
	Worker     *observability.WorkerStatus `json:"worker,omitempty"`
	Time       time.Time                   `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok", Draining: s.cfg.Drain.Draining(), Time: time.Now().UTC()}
	if s.cfg.Queue != nil {
		n, err := s.cfg.Queue.Len(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, health{Status: "degraded", Time: h.Time})
			return
		}
		h.QueueDepth = n
	}
	if s.cfg.DB != nil {
		ws, err := observability.LatestHeartbeat(r.Context(), s.cfg.DB, s.cfg.WorkerName, 2*time.Minute)
		if err == nil {
			h.Worker = ws
		}
	}
	if h.Draining {
		h.Status = "draining"
	}
	writeJSON(w, http.StatusOK, h)
}
