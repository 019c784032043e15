// CLAUDE:SUMMARY Job orchestration: page selection, concurrent geometry/text extraction, scale, rooms, gates, filter, climate and Manual J with stage timeouts and boundary cancellation.
// Package pipeline runs one blueprint job through every stage and persists
// its progress, events and result.
//
// Stages run in a fixed order. Geometry and text extraction run
// concurrently; everything after them is sequential. Cancellation is
// honoured only between stages and never once the load calculation has
// begun.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/idgen"
	"github.com/adixon02/AutoHVAC-sub002/kit"
	"github.com/adixon02/AutoHVAC-sub002/manualj"
	"github.com/adixon02/AutoHVAC-sub002/observability"
	"github.com/adixon02/AutoHVAC-sub002/pdfdoc"
	"github.com/adixon02/AutoHVAC-sub002/roomfilter"
	"github.com/adixon02/AutoHVAC-sub002/rooms"
	"github.com/adixon02/AutoHVAC-sub002/scale"
	"github.com/adixon02/AutoHVAC-sub002/store"
	"github.com/adixon02/AutoHVAC-sub002/textract"
	"github.com/adixon02/AutoHVAC-sub002/validate"
)

// Config wires the stages. Zero values take the stage defaults.
type Config struct {
	Geometry  geometry.Options
	Text      textract.Config
	Scale     scale.Options
	Gates     validate.Policy
	Filter    roomfilter.Policy
	ManualJ   manualj.Params
	Geometric rooms.GeometricConfig
	// Vision configures the AI strategy; nil Client disables it.
	Vision rooms.VisionConfig
	// AIByDefault applies to jobs that leave AIEnabled unset.
	AIByDefault bool
	// Climate resolves design conditions. Default: the embedded table.
	Climate climate.Service

	MaxPages    int           // default 10
	MaxPDFBytes int64         // default 50 MiB
	JobTimeout  time.Duration // default 10m
	TextTimeout time.Duration // default 2m

	// Jobs persists progress and honours the cancel flag. Nil runs the job
	// without persistence (CLI).
	Jobs    *store.Jobs
	Events  *observability.JobEvents
	Metrics *observability.StageMetrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.Climate == nil {
		c.Climate = climate.DefaultTable()
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.MaxPDFBytes <= 0 {
		c.MaxPDFBytes = 50 << 20
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.TextTimeout <= 0 {
		c.TextTimeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Pipeline runs jobs. It is safe for concurrent use; jobs share nothing
// but the climate service.
type Pipeline struct {
	cfg   Config
	geo   *geometry.Extractor
	text  *textract.Extractor
	scale *scale.Detector
	gates *validate.Gates
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:   cfg,
		geo:   geometry.New(cfg.Geometry),
		text:  textract.New(cfg.Text),
		scale: scale.NewDetector(cfg.Scale),
		gates: validate.NewGates(cfg.Gates),
	}
}

// AIConfigured reports whether the vision strategy is available.
func (p *Pipeline) AIConfigured() bool { return p.cfg.Vision.Client != nil }

// StageError records the stage a job stopped in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Run executes job and returns its result document. Errors are wrapped in
// *StageError. The job's whole run is bounded by the job timeout; running
// out of it is a *blueprint.StageTimeoutError for the stage in progress.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Document, error) {
	if job.ID == "" {
		job.ID = idgen.Job()
	}
	ctx = kit.WithJobID(ctx, job.ID)
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	r := &run{p: p, job: job, log: observability.JobLogger(p.cfg.Logger, job.ID), stage: StageQueued}
	doc, err := r.execute(jobCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
			err = &blueprint.StageTimeoutError{Stage: string(r.current()), Limit: p.cfg.JobTimeout}
		}
		return nil, &StageError{Stage: r.current(), Err: err}
	}
	return doc, nil
}

// run is the state of one job execution.
type run struct {
	p   *Pipeline
	job Job
	log *slog.Logger

	mu        sync.Mutex
	stage     Stage
	cancelled bool

	zip     string
	raw     []byte
	doc     *pdfdoc.Document
	pc      *blueprint.PageContext
	size    pdfdoc.Size
	geo     *geometry.Result
	text    *textract.Result
	degr    []blueprint.Degradation
	scale   scale.Decision
	schema  *blueprint.Schema
	started time.Time
}

func (r *run) current() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// enter records a stage transition. A job the store no longer accepts
// progress for has been finished elsewhere (cancelled while queued).
func (r *run) enter(ctx context.Context, st Stage) {
	r.mu.Lock()
	if st == r.stage || st.Percent() < r.stage.Percent() {
		r.mu.Unlock()
		return
	}
	r.stage = st
	r.mu.Unlock()

	r.log.InfoContext(ctx, "pipeline: stage", "stage", st, "percent", st.Percent())
	r.p.cfg.Events.Stage(ctx, r.job.ID, string(st), st.Percent())
	if r.p.cfg.Jobs == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	ok, err := r.p.cfg.Jobs.Advance(bg, r.job.ID, string(st), st.Percent())
	if err != nil {
		r.log.WarnContext(ctx, "pipeline: progress update failed", "stage", st, "error", err)
		return
	}
	if ok {
		return
	}
	rec, err := r.p.cfg.Jobs.Get(bg, r.job.ID)
	if err == nil && rec.Status.Terminal() {
		r.mu.Lock()
		r.cancelled = true
		r.mu.Unlock()
	}
}

// boundary is the cancellation check between stages.
func (r *run) boundary(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	cancelled := r.cancelled
	r.mu.Unlock()
	if !cancelled && r.p.cfg.Jobs != nil {
		flag, err := r.p.cfg.Jobs.CancelRequested(ctx, r.job.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			r.log.WarnContext(ctx, "pipeline: job record missing, running unpersisted")
		case err != nil:
			r.log.WarnContext(ctx, "pipeline: cancel flag unreadable", "error", err)
		default:
			cancelled = flag
		}
	}
	if cancelled {
		r.log.InfoContext(ctx, "pipeline: cancelled", "stage", r.current())
		return blueprint.ErrCancelled
	}
	return nil
}

func (r *run) observe(st Stage, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, blueprint.ErrCancelled):
		outcome = "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "failed"
	}
	r.p.cfg.Metrics.Observe(observability.StageSample{
		JobID: r.job.ID, Stage: string(st), Outcome: outcome, Duration: time.Since(start),
	})
}

// step runs fn as stage st after the cancellation boundary.
func (r *run) step(ctx context.Context, st Stage, fn func(context.Context) error) error {
	if err := r.boundary(ctx); err != nil {
		return err
	}
	r.enter(ctx, st)
	start := time.Now()
	err := fn(ctx)
	r.observe(st, start, err)
	if err != nil && !errors.Is(err, blueprint.ErrCancelled) {
		observability.StageLogger(r.log, string(st)).WarnContext(ctx, "pipeline: stage failed",
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
	}
	return err
}

func (r *run) degrade(ctx context.Context, d blueprint.Degradation) {
	r.degr = append(r.degr, d)
	r.log.WarnContext(ctx, "pipeline: degraded", "stage", d.Stage, "reason", d.Reason)
	r.p.cfg.Events.Warning(ctx, r.job.ID, d.Stage, d.Reason)
}

func (r *run) execute(ctx context.Context) (*Document, error) {
	r.started = r.p.cfg.Now()
	defer func() {
		if r.doc != nil {
			r.doc.Close()
		}
	}()

	if err := r.step(ctx, StageValidating, r.validateInput); err != nil {
		return nil, err
	}
	if err := r.extract(ctx); err != nil {
		return nil, err
	}
	if err := r.step(ctx, StageDetectingScale, r.detectScale); err != nil {
		return nil, err
	}
	if err := r.step(ctx, StageAIProcessing, r.structureRooms); err != nil {
		return nil, err
	}
	if err := r.step(ctx, StageValidatingRooms, r.runGates); err != nil {
		return nil, err
	}
	if err := r.step(ctx, StageFilteringRooms, r.filterRooms); err != nil {
		return nil, err
	}
	var load *manualj.Result
	err := r.step(ctx, StageCalculatingLoads, func(ctx context.Context) error {
		var err error
		load, err = r.calculate(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.schema.Metadata.FinishedAt = r.p.cfg.Now()
	r.log.InfoContext(ctx, "pipeline: job complete",
		"rooms", len(r.schema.Rooms),
		"area_sqft", r.schema.TotalAreaSqFt,
		"heating_btuh", load.Heating,
		"cooling_btuh", load.Cooling,
		"strategy", r.schema.Metadata.Strategy)
	return &Document{Blueprint: r.schema, Load: load}, nil
}

func (r *run) validateInput(ctx context.Context) error {
	if err := r.job.Validate(); err != nil {
		return err
	}
	r.zip, _ = climate.NormalizeZIP(r.job.ZIP)

	doc, err := pdfdoc.Open(r.job.PDFPath, pdfdoc.WithMaxBytes(r.p.cfg.MaxPDFBytes))
	if err != nil {
		return blueprint.NeedsInput(blueprint.ReasonInvalidInput,
			"upload a valid, unencrypted PDF blueprint", "%v", err)
	}
	r.doc = doc
	r.raw, err = os.ReadFile(r.job.PDFPath)
	if err != nil {
		return fmt.Errorf("pipeline: read pdf: %w", err)
	}

	r.pc = blueprint.NewPageContext()
	page := r.job.PageOverride
	if page > 0 {
		if page > doc.PageCount() {
			return blueprint.NeedsInput(blueprint.ReasonInvalidInput,
				"choose a page within the document",
				"page override %d exceeds the document's %d pages", page, doc.PageCount()).
				With("pages", doc.PageCount())
		}
	} else {
		var scores []PageScore
		page, scores = SelectPage(doc, r.p.cfg.MaxPages)
		r.log.DebugContext(ctx, "pipeline: page selected", "page", page, "candidates", len(scores))
		if doc.PageCount() > r.p.cfg.MaxPages {
			r.degrade(ctx, blueprint.Degradation{Stage: "page_selection",
				Reason: fmt.Sprintf("only the first %d of %d pages were considered", r.p.cfg.MaxPages, doc.PageCount())})
		}
	}
	if err := r.pc.SetPage(page, r.job.PageOverride > 0); err != nil {
		return err
	}
	r.size, err = doc.PageSize(page)
	if err != nil {
		return fmt.Errorf("pipeline: page size: %w", err)
	}
	return nil
}

// extract runs geometry and text extraction concurrently. The geometry
// extractor bounds itself and returns a degraded partial result; a text
// timeout degrades to no text.
func (r *run) extract(ctx context.Context) error {
	if err := r.boundary(ctx); err != nil {
		return err
	}
	r.enter(ctx, StageExtractingGeometry)
	page := r.pc.Page()

	content, err := r.doc.Content(page)
	if err != nil {
		return blueprint.NeedsInput(blueprint.ReasonInvalidInput,
			"re-export the blueprint as a standard PDF", "page %d content unreadable: %v", page, err)
	}
	forms := r.doc.Forms(page)
	native, hasText := r.doc.TextPage(page)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		res, err := r.p.geo.Extract(gctx, geometry.Page{
			Content: content, Forms: forms, Width: r.size.Width, Height: r.size.Height,
		})
		r.observe(StageExtractingGeometry, start, err)
		if err != nil {
			return err
		}
		r.geo = res
		r.enter(gctx, StageExtractingText)
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		tctx, cancel := context.WithTimeout(gctx, r.p.cfg.TextTimeout)
		defer cancel()
		tp := textract.Page{Path: r.job.PDFPath, Number: page, Width: r.size.Width, Height: r.size.Height}
		if hasText {
			tp.Native = &native
		}
		res, err := r.p.text.Extract(tctx, tp)
		r.observe(StageExtractingText, start, err)
		if err != nil {
			if gctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
				r.text = &textract.Result{Degraded: []blueprint.Degradation{{
					Stage: "text", Reason: fmt.Sprintf("text extraction exceeded %s", r.p.cfg.TextTimeout),
				}}}
				return nil
			}
			return err
		}
		r.text = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, reason := range r.geo.Reasons {
		r.degrade(ctx, blueprint.Degradation{Stage: "geometry", Reason: reason})
	}
	for _, d := range r.text.Degraded {
		r.degrade(ctx, d)
	}
	r.log.InfoContext(ctx, "pipeline: extracted",
		"page", page,
		"elements", len(r.geo.Elements),
		"polygons", len(r.geo.Polygons),
		"spans", len(r.text.Spans),
		"ocr", r.text.UsedOCR)
	return nil
}

func (r *run) detectScale(ctx context.Context) error {
	dec, err := r.p.scale.Detect(ctx, scale.Input{
		Override:   r.job.ScaleOverride,
		Spans:      r.text.Spans,
		Elements:   r.geo.Elements,
		PageWidth:  r.size.Width,
		PageHeight: r.size.Height,
	})
	if err != nil {
		return err
	}
	if err := r.pc.SetScale(dec.PointsPerFoot, dec.Method, r.job.ScaleOverride != ""); err != nil {
		return err
	}
	r.scale = dec
	r.log.InfoContext(ctx, "pipeline: scale accepted",
		"ppf", dec.PointsPerFoot, "method", dec.Method, "label", dec.Label, "confidence", dec.Confidence)
	return nil
}

func (r *run) strategies() []rooms.Strategy {
	var out []rooms.Strategy
	if r.job.WantsAI(r.p.cfg.AIByDefault) && r.p.AIConfigured() {
		vc := r.p.cfg.Vision
		vc.Logger = r.log
		out = append(out, rooms.NewVision(vc))
	}
	gc := r.p.cfg.Geometric
	gc.Logger = r.log
	return append(out, rooms.NewGeometric(gc))
}

func (r *run) structureRooms(ctx context.Context) error {
	page, ppf := r.pc.Page(), r.pc.PointsPerFoot()
	if err := r.pc.Verify(page, ppf); err != nil {
		return err
	}
	out, err := rooms.NewStructurer(r.log, r.strategies()...).Structure(ctx, rooms.Input{
		PDFPath:       r.job.PDFPath,
		Page:          page,
		PageWidth:     r.size.Width,
		PageHeight:    r.size.Height,
		PointsPerFoot: ppf,
		Geometry:      r.geo,
		Spans:         r.text.Spans,
	})
	if err != nil {
		return err
	}

	method := "vector"
	if r.text.UsedOCR {
		method = "vector+ocr"
	}
	s := &blueprint.Schema{
		ProjectID:    idgen.ProjectID(r.raw),
		ProjectLabel: r.job.ProjectLabel,
		ZIP:          r.zip,
		Rooms:        out.Rooms,
		Metadata: blueprint.Metadata{
			Method:        method,
			Strategy:      out.Strategy,
			Page:          page,
			PointsPerFoot: ppf,
			ScaleLabel:    r.scale.Label,
			ScaleMethod:   r.pc.ScaleMethod(),
			StartedAt:     r.started,
			Degradations:  r.degr,
		},
	}
	s.Recompute()
	if r.job.AIEnabled != nil && *r.job.AIEnabled && !r.p.AIConfigured() {
		s.Warn("AI parsing requested but no vision model is configured; geometric parsing used")
	}
	for _, w := range out.Warnings {
		s.Warn(w)
		r.p.cfg.Events.Warning(ctx, r.job.ID, string(StageAIProcessing), w)
	}
	for _, d := range r.degr {
		s.Warn(d.String())
	}
	r.schema = s
	return nil
}

func (r *run) runGates(ctx context.Context) error {
	score, notes := validate.QualityScore(r.schema, validate.Signals{
		ScaleConfidence: r.scale.Confidence,
		Degradations:    len(r.degr),
		UsedOCR:         r.text.UsedOCR,
	})
	r.schema.Metadata.QualityScore = score
	r.schema.Metadata.Confidence = float64(score) / 100
	for _, n := range notes {
		r.schema.Warn("quality: " + n)
	}
	r.log.InfoContext(ctx, "pipeline: quality", "score", score, "rooms", len(r.schema.Rooms))
	return r.p.gates.Run(r.pc, r.schema)
}

func (r *run) filterRooms(ctx context.Context) error {
	filtered, rep, err := roomfilter.Apply(r.schema, r.p.cfg.Filter)
	if err != nil {
		return err
	}
	for _, rm := range rep.Removed {
		filtered.Warn(fmt.Sprintf("room %q removed: %s", rm.Room, rm.Reason))
	}
	r.log.InfoContext(ctx, "pipeline: filtered", "kept", rep.Kept, "removed", len(rep.Removed),
		"area_before", rep.TotalBefore, "area_after", rep.TotalAfter)
	r.schema = filtered
	return nil
}

// calculate resolves the climate and runs Manual J. Once it starts the
// job is no longer cancellable.
func (r *run) calculate(ctx context.Context) (*manualj.Result, error) {
	if err := r.pc.Verify(r.schema.Metadata.Page, r.schema.Metadata.PointsPerFoot); err != nil {
		return nil, err
	}
	rec, err := r.p.cfg.Climate.Lookup(ctx, r.zip)
	if err != nil {
		if climate.IsUnknownZIP(err) {
			return nil, blueprint.NeedsInput(blueprint.ReasonClimateUnresolved,
				"check the ZIP code; design temperatures are required for the load calculation",
				"no climate data for ZIP %s", r.zip).With("zip", r.zip)
		}
		return nil, err
	}
	for _, w := range rec.Warnings {
		r.schema.Warn("climate: " + w)
		r.p.cfg.Events.Warning(ctx, r.job.ID, string(StageCalculatingLoads), w)
	}
	return manualj.Calculate(r.schema, rec, r.job.Params(r.p.cfg.ManualJ))
}
