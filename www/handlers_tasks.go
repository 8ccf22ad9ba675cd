package www

import (
	"net/http"
)

func (h *Handlers) apiAssignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID       int64 `json:"task_id"`
		TechnicianID int64 `json:"technician_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, err := h.engine.Lifecycle().Assign(req.TaskID, req.TechnicianID)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, task)
}

func (h *Handlers) apiUnassignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID int64 `json:"task_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, err := h.engine.Lifecycle().Unassign(req.TaskID)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, task)
}

// apiStartTask opens the intervention for a task. Supervisors may
// start on behalf of the assigned technician.
func (h *Handlers) apiStartTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID       int64 `json:"task_id"`
		TechnicianID int64 `json:"technician_id"`
		Supervisor   bool  `json:"supervisor"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	intervention, err := h.engine.Lifecycle().Start(req.TaskID, req.TechnicianID, req.Supervisor)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, intervention)
}

func (h *Handlers) apiCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID  int64  `json:"task_id"`
		Result  string `json:"result"`
		Summary string `json:"summary"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, err := h.engine.Lifecycle().Complete(req.TaskID, req.Result, req.Summary)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, task)
}

func (h *Handlers) apiCancelTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID int64  `json:"task_id"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, err := h.engine.Lifecycle().Cancel(req.TaskID, req.Reason)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, task)
}
