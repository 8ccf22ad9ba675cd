package www

import (
	"net/http"
	"time"

	"fieldcore/optimize"
)

type optimizeRequest struct {
	Date        string               `json:"date"`
	Mode        string               `json:"mode"`
	Constraints optimize.Constraints `json:"constraints"`
}

func parsePlanDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

// apiOptimize submits an optimizer run to the job pool and returns the
// job id. Callers poll /api/optimize/jobs for the result.
func (h *Handlers) apiOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := parsePlanDate(req.Date)
	if err != nil {
		h.jsonError(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	jobID := h.engine.SubmitOptimize(date, req.Mode, req.Constraints)
	h.jsonOK(w, map[string]any{"job_id": jobID})
}

func (h *Handlers) apiOptimizeScenarios(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := parsePlanDate(req.Date)
	if err != nil {
		h.jsonError(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	scenarios, err := h.engine.Optimizer().GenerateScenarios(r.Context(), date, req.Count)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, scenarios)
}

func (h *Handlers) apiOptimizeApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID  string                `json:"scenario_id"`
		Assignments []optimize.Assignment `json:"assignments"`
		Confirmed   bool                  `json:"confirmed"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.engine.Optimizer().Apply(req.ScenarioID, req.Assignments, req.Confirmed)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, result)
}

// apiOptimizeDay re-sequences one technician's assigned tasks.
func (h *Handlers) apiOptimizeDay(w http.ResponseWriter, r *http.Request) {
	techID, ok := queryInt64(r, "technician_id")
	if !ok {
		h.jsonError(w, "invalid technician_id", http.StatusBadRequest)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		h.jsonError(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	result, err := h.engine.Optimizer().OptimizeDay(r.Context(), techID, date)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, result)
}

func (h *Handlers) apiJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	job, ok := h.engine.Jobs().Get(id)
	if !ok {
		h.jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	h.jsonOK(w, job)
}

func (h *Handlers) apiJobCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.engine.Jobs().Cancel(req.ID) {
		h.jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	h.jsonOK(w, map[string]any{"cancelled": true})
}
