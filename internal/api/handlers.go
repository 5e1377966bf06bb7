package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/standards"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/units"
	"github.com/sells-group/metalsense/internal/worker"
)

// maxListLimit caps the page size of list endpoints.
const maxListLimit = 1000

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStandards(w http.ResponseWriter, _ *http.Request) {
	reg := s.engine.Registry()
	writeJSON(w, http.StatusOK, struct {
		Metals []standards.Metal `json:"metals"`
		standards.Tables
	}{
		Metals: reg.Metals(),
		Tables: reg.Tables(),
	})
}

// AssessRequest is the body of POST /v1/assess. Measurements carry symbols
// and units; Concentrations are keyed by metal name in mg/L.
type AssessRequest struct {
	Measurements   []units.Measurement         `json:"measurements,omitempty"`
	Concentrations standards.ConcentrationSet `json:"concentrations,omitempty"`
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Measurements) == 0 && len(req.Concentrations) == 0 {
		writeError(w, r, &badRequest{msg: "measurements or concentrations are required"})
		return
	}
	if len(req.Measurements) > 0 && len(req.Concentrations) > 0 {
		writeError(w, r, &badRequest{msg: "send either measurements or concentrations, not both"})
		return
	}

	if len(req.Measurements) > 0 {
		res, err := s.engine.AssessMeasurements(req.Measurements)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	for m, c := range req.Concentrations {
		if err := units.CheckConcentration(c); err != nil {
			writeError(w, r, &badRequest{msg: "concentration of " + string(m) + ": " + err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, s.engine.Assess(req.Concentrations))
}

type acceptedBody struct {
	Status   string `json:"status"`
	SampleID string `json:"sample_id"`
	Message  string `json:"message"`
}

func (s *Server) handleCreateSample(w http.ResponseWriter, r *http.Request) {
	var in model.SampleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	smp, err := in.NewSample(s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.CreateSample(r.Context(), smp); err != nil {
		writeError(w, r, eris.Wrap(err, "api: create sample"))
		return
	}

	s.dispatch(w, r, smp.ID, "sample accepted for assessment")
}

func (s *Server) handleReassess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSample(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.UpdateSampleStatus(r.Context(), id, model.SampleStatusPending, ""); err != nil {
		writeError(w, r, err)
		return
	}
	s.dispatch(w, r, id, "sample queued for reassessment")
}

// dispatch hands a stored sample to the dispatcher and writes 202, or 503
// with the sample ID when the dispatcher cannot take it. The sample stays
// pending in that case.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, id, msg string) {
	if err := s.dispatcher.Dispatch(r.Context(), id); err != nil {
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
			zap.L().Warn("api: dispatch rejected", zap.String("sample_id", id), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), SampleID: id})
			return
		}
		writeError(w, r, eris.Wrapf(err, "api: dispatch %s", id))
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedBody{Status: "accepted", SampleID: id, Message: msg})
}

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SampleFilter{
		Status:     model.SampleStatus(q.Get("status")),
		SourceType: model.SourceType(q.Get("source_type")),
	}
	if filter.SourceType != "" && !filter.SourceType.Valid() {
		writeError(w, r, &badRequest{msg: "unknown source_type " + strconv.Quote(q.Get("source_type"))})
		return
	}
	if v := q.Get("bbox"); v != "" {
		bb, err := geo.ParseBBox(v)
		if err != nil {
			writeError(w, r, &badRequest{msg: err.Error()})
			return
		}
		filter.BBox = &bb
	}

	var err error
	if filter.Limit, filter.Offset, err = page(q.Get("limit"), q.Get("offset")); err != nil {
		writeError(w, r, err)
		return
	}

	samples, err := s.store.ListSamples(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples, "count": len(samples)})
}

func (s *Server) handleGetSample(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	smp, err := s.store.GetSample(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := model.AssessedSample{Sample: *smp}
	a, err := s.store.GetAssessment(r.Context(), id)
	switch {
	case err == nil:
		out.Assessment = a
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAssessment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Alert is a citizen-facing summary of an unsafe assessment.
type Alert struct {
	SampleID         string            `json:"sample_id"`
	HPI              float64           `json:"hpi"`
	Category         classify.Category `json:"category"`
	HazardIndexAdult float64           `json:"hazard_index_adult"`
	HazardIndexChild float64           `json:"hazard_index_child"`
	CancerRiskAdult  float64           `json:"cancer_risk_adult"`
	CancerRiskChild  float64           `json:"cancer_risk_child"`
	AssessedAt       time.Time         `json:"assessed_at"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AssessmentFilter{UnsafeOnly: true}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, &badRequest{msg: "since must be RFC3339"})
			return
		}
		filter.Since = since
	}

	var err error
	if filter.Limit, filter.Offset, err = page(q.Get("limit"), q.Get("offset")); err != nil {
		writeError(w, r, err)
		return
	}

	as, err := s.store.ListAssessments(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	alerts := make([]Alert, 0, len(as))
	for _, a := range as {
		alerts = append(alerts, Alert{
			SampleID:         a.SampleID,
			HPI:              a.HPI,
			Category:         a.Category,
			HazardIndexAdult: a.HazardIndexAdult,
			HazardIndexChild: a.HazardIndexChild,
			CancerRiskAdult:  a.CancerRiskAdult,
			CancerRiskChild:  a.CancerRiskChild,
			AssessedAt:       a.AssessedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func page(limitParam, offsetParam string) (limit, offset int, err error) {
	if limitParam != "" {
		if limit, err = strconv.Atoi(limitParam); err != nil || limit < 0 {
			return 0, 0, &badRequest{msg: "limit must be a non-negative integer"}
		}
		limit = min(limit, maxListLimit)
	}
	if offsetParam != "" {
		if offset, err = strconv.Atoi(offsetParam); err != nil || offset < 0 {
			return 0, 0, &badRequest{msg: "offset must be a non-negative integer"}
		}
	}
	return limit, offset, nil
}
