package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/idgen"
	"github.com/adixon02/AutoHVAC-sub002/kit"
	"github.com/adixon02/AutoHVAC-sub002/manualj"
	"github.com/adixon02/AutoHVAC-sub002/pipeline"
	"github.com/adixon02/AutoHVAC-sub002/safeio"
	"github.com/adixon02/AutoHVAC-sub002/shield"
)

// multipartMemory is the part of an upload held in memory; the rest
// spools to temporary files.
const multipartMemory = 8 << 20

var uploadName = idgen.UUIDv7()

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeServiceErr(w, r, err)
			return
		}
		writeErr(w, http.StatusBadRequest, blueprint.KindNeedsInput, "expected a multipart/form-data upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	job, err := jobFromForm(r.MultipartForm.Value)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, blueprint.KindNeedsInput, `missing "file" part`)
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	job.PDFPath = path

	st, err := s.svc.Submit(r.Context(), job)
	if err != nil {
		os.Remove(path)
		s.writeServiceErr(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).InfoContext(r.Context(), "api: job accepted", "job_id", st.ID)
	w.Header().Set("Location", "/v1/jobs/"+st.ID)
	writeJSON(w, http.StatusAccepted, st)
}

// saveUpload stores a sniffed PDF under the upload directory with a
// generated name.
func (s *Server) saveUpload(src io.Reader) (string, error) {
	head := make([]byte, 1024)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("api: read upload: %w", err)
	}
	head = head[:n]
	if err := safeio.SniffPDF(head); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("api: upload dir: %w", err)
	}
	path, err := safeio.SafePath(s.cfg.UploadDir, uploadName()+".pdf")
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("api: create upload: %w", err)
	}
	_, err = f.Write(head)
	if err == nil {
		_, err = io.Copy(f, src)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("api: write upload: %w", err)
	}
	return path, nil
}

// jobFromForm reads the job fields of a submission.
func jobFromForm(v map[string][]string) (pipeline.Job, error) {
	get := func(k string) string {
		if vals := v[k]; len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
		return ""
	}
	var problems []string
	num := func(k string) float64 {
		s := get(k)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: not a number", k))
		}
		return f
	}

	job := pipeline.Job{
		ZIP:           get("zip"),
		ProjectLabel:  get("project_label"),
		Duct:          manualj.DuctConfig(get("duct_config")),
		Fuel:          manualj.Fuel(get("heating_fuel")),
		Vintage:       manualj.Vintage(get("vintage")),
		Construction:  manualj.Construction(get("construction")),
		Foundation:    manualj.Foundation(get("foundation")),
		ScaleOverride: get("scale_override"),
	}
	if p := get("page_override"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			problems = append(problems, "page_override: must be a page number >= 1")
		}
		job.PageOverride = n
	}
	if a := get("ai_enabled"); a != "" {
		b, err := strconv.ParseBool(a)
		if err != nil {
			problems = append(problems, "ai_enabled: must be true or false")
		}
		job.AIEnabled = &b
	}
	env := pipeline.Envelope{
		WallR:           num("wall_r"),
		CeilingR:        num("ceiling_r"),
		FloorR:          num("floor_r"),
		WindowU:         num("window_u"),
		SHGC:            num("shgc"),
		ACH50:           num("ach50"),
		CeilingHeightFt: num("ceiling_height_ft"),
	}
	if env != (pipeline.Envelope{}) {
		job.Envelope = &env
	}
	if len(problems) > 0 {
		return job, blueprint.NeedsInput(blueprint.ReasonInvalidInput,
			"correct the request fields and resubmit", "%s", strings.Join(problems, "; ")).
			With("fields", problems)
	}
	return job, nil
}

// jobID validates the {id} path parameter and tags the context with it.
func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (string, *http.Request, bool) {
	id, err := idgen.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, blueprint.KindNeedsInput, "invalid job id")
		return "", r, false
	}
	return id, r.WithContext(kit.WithJobID(r.Context(), id)), true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 500 {
			writeErr(w, http.StatusBadRequest, blueprint.KindNeedsInput, "limit must be 1..500")
			return
		}
		limit = n
	}
	jobs, err := s.svc.List(r.Context(), limit)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, r, ok := s.jobID(w, r)
	if !ok {
		return
	}
	st, err := s.svc.Status(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, r, ok := s.jobID(w, r)
	if !ok {
		return
	}
	doc, err := s.svc.Result(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, r, ok := s.jobID(w, r)
	if !ok {
		return
	}
	events, err := s.svc.Events(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "events": events})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, r, ok := s.jobID(w, r)
	if !ok {
		return
	}
	st, err := s.svc.Cancel(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	zip, err := climate.NormalizeZIP(chi.URLParam(r, "zip"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, blueprint.KindNeedsInput, err.Error())
		return
	}
	rec, err := s.svc.Climate(r.Context(), zip)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStageMetrics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if q := r.URL.Query().Get("window"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d <= 0 {
			writeErr(w, http.StatusBadRequest, blueprint.KindNeedsInput, "window must be a positive duration")
			return
		}
		window = d
	}
	if s.cfg.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]any{"stages": []any{}})
		return
	}
	sum, err := s.cfg.Metrics.Summary(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"window": window.String(), "stages": sum})
}
