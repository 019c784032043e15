// CLAUDE:SUMMARY Job request, stage enum with progress percents, status view and the result document.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/manualj"
	"github.com/adixon02/AutoHVAC-sub002/store"
)

// Job is one blueprint-to-load request.
type Job struct {
	ID           string               `json:"id"`
	PDFPath      string               `json:"pdf_path"`
	ZIP          string               `json:"zip"`
	ProjectLabel string               `json:"project_label,omitempty"`
	Duct         manualj.DuctConfig   `json:"duct_config,omitempty"`
	Fuel         manualj.Fuel         `json:"heating_fuel,omitempty"`
	Vintage      manualj.Vintage      `json:"vintage,omitempty"`
	Construction manualj.Construction `json:"construction,omitempty"`
	Foundation   manualj.Foundation   `json:"foundation,omitempty"`
	// ScaleOverride is scale notation (1/4"=1'-0") or points per foot.
	ScaleOverride string `json:"scale_override,omitempty"`
	// PageOverride is the 1-based page to parse, 0 to select automatically.
	PageOverride int `json:"page_override,omitempty"`
	// AIEnabled asks for (or refuses) the vision strategy. Nil takes the
	// deployment default.
	AIEnabled *bool     `json:"ai_enabled,omitempty"`
	Envelope  *Envelope `json:"envelope,omitempty"`
}

// WantsAI resolves AIEnabled against the deployment default.
func (j Job) WantsAI(def bool) bool {
	if j.AIEnabled != nil {
		return *j.AIEnabled
	}
	return def
}

// aiChoice renders AIEnabled for logs.
func (j Job) aiChoice() string {
	if j.AIEnabled == nil {
		return "default"
	}
	return strconv.FormatBool(*j.AIEnabled)
}

// Envelope overrides the vintage defaults of the load calculation.
type Envelope struct {
	WallR           float64 `json:"wall_r,omitempty"`
	CeilingR        float64 `json:"ceiling_r,omitempty"`
	FloorR          float64 `json:"floor_r,omitempty"`
	WindowU         float64 `json:"window_u,omitempty"`
	SHGC            float64 `json:"shgc,omitempty"`
	ACH50           float64 `json:"ach50,omitempty"`
	CeilingHeightFt float64 `json:"ceiling_height_ft,omitempty"`
}

// Validate checks the request before any work is queued.
func (j Job) Validate() error {
	var problems []string
	if strings.TrimSpace(j.PDFPath) == "" {
		problems = append(problems, "pdf_path is required")
	}
	if _, err := climate.NormalizeZIP(j.ZIP); err != nil {
		problems = append(problems, err.Error())
	}
	if j.PageOverride < 0 {
		problems = append(problems, "page_override must be >= 1")
	}
	if err := j.Params(manualj.Params{}).Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return blueprint.NeedsInput(blueprint.ReasonInvalidInput,
			"correct the request fields and resubmit",
			"%s", strings.Join(problems, "; ")).With("fields", problems)
	}
	return nil
}

// Params overlays the job's system and envelope choices on base.
func (j Job) Params(base manualj.Params) manualj.Params {
	p := base
	if j.Duct != "" {
		p.Duct = j.Duct
	}
	if j.Fuel != "" {
		p.Fuel = j.Fuel
	}
	if j.Vintage != "" && j.Vintage != base.Vintage {
		// A different vintage brings its own envelope defaults.
		p.Vintage = j.Vintage
		p.WallR, p.CeilingR, p.FloorR, p.WindowU, p.SHGC, p.ACH50 = 0, 0, 0, 0, 0, 0
	}
	if j.Construction != "" {
		p.Construction = j.Construction
	}
	if j.Foundation != "" {
		p.Foundation = j.Foundation
	}
	if e := j.Envelope; e != nil {
		set := func(dst *float64, v float64) {
			if v != 0 {
				*dst = v
			}
		}
		set(&p.WallR, e.WallR)
		set(&p.CeilingR, e.CeilingR)
		set(&p.FloorR, e.FloorR)
		set(&p.WindowU, e.WindowU)
		set(&p.SHGC, e.SHGC)
		set(&p.ACH50, e.ACH50)
		set(&p.CeilingHeightFt, e.CeilingHeightFt)
	}
	return p
}

// Stage is a pipeline step. Stages only move forward.
type Stage string

const (
	StageQueued             Stage = "queued"
	StageValidating         Stage = "validating"
	StageExtractingGeometry Stage = "extracting_geometry"
	StageExtractingText     Stage = "extracting_text"
	StageDetectingScale     Stage = "detecting_scale"
	StageAIProcessing       Stage = "ai_processing"
	StageValidatingRooms    Stage = "validating_rooms"
	StageFilteringRooms     Stage = "filtering_rooms"
	StageCalculatingLoads   Stage = "calculating_loads"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
	StageCancelled          Stage = "cancelled"
)

var stagePercent = map[Stage]int{
	StageQueued:             0,
	StageValidating:         5,
	StageExtractingGeometry: 15,
	StageExtractingText:     25,
	StageDetectingScale:     40,
	StageAIProcessing:       55,
	StageValidatingRooms:    70,
	StageFilteringRooms:     80,
	StageCalculatingLoads:   90,
	StageComplete:           100,
}

// Percent is the progress reported on entering s. Failed and cancelled
// keep the percent reached before.
func (s Stage) Percent() int { return stagePercent[s] }

func (s Stage) String() string { return string(s) }

// Status is the externally visible state of a job.
type Status struct {
	ID         string          `json:"id"`
	Stage      Stage           `json:"stage"`
	Percent    int             `json:"percent"`
	State      store.Status    `json:"state"`
	Error      *store.JobError `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// StatusOf converts a stored record. A failed or cancelled job reports the
// terminal stage; the error object names the stage it stopped in.
func StatusOf(rec *store.JobRecord) Status {
	st := Status{
		ID:         rec.ID,
		Stage:      Stage(rec.Stage),
		Percent:    rec.Percent,
		State:      rec.Status,
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		FinishedAt: rec.FinishedAt,
	}
	switch rec.Status {
	case store.StatusFailed:
		st.Stage = StageFailed
	case store.StatusCancelled:
		st.Stage = StageCancelled
	}
	return st
}

// Document is the result of a completed job.
type Document struct {
	Blueprint *blueprint.Schema `json:"blueprint"`
	Load      *manualj.Result   `json:"load"`
}

// Encode returns the stored JSON form.
func (d *Document) Encode() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode result: %w", err)
	}
	return b, nil
}
