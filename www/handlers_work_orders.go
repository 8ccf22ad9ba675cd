package www

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"fieldcore/fault"
	"fieldcore/lifecycle"
	"fieldcore/store"
)

func (h *Handlers) apiCreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var p lifecycle.CreateWorkOrderParams
	if err := decodeBody(r, &p); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	wo, err := h.engine.Lifecycle().CreateWorkOrder(p)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, wo)
}

func (h *Handlers) apiListWorkOrders(w http.ResponseWriter, r *http.Request) {
	f := store.WorkOrderFilter{
		Status:   r.URL.Query().Get("status"),
		Priority: r.URL.Query().Get("priority"),
		AutoOnly: queryBool(r, "auto_only"),
		Limit:    queryInt(r, "limit", 100),
	}
	if id, ok := queryInt64(r, "customer_id"); ok {
		f.CustomerID = id
	}
	if id, ok := queryInt64(r, "vehicle_id"); ok {
		f.VehicleID = id
	}
	orders, err := h.engine.DB().ListWorkOrders(f)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, orders)
}

// apiWorkOrderDetail returns the work order with its tasks,
// interventions, parts, notes, history and computed durations.
func (h *Handlers) apiWorkOrderDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt64(r, "id")
	if !ok {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	db := h.engine.DB()
	wo, err := db.GetWorkOrder(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		h.jsonFault(w, fault.Internal(err))
		return
	}
	tasks, err := db.ListTasksByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	interventions, err := db.ListInterventionsByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	parts, err := db.ListPartsByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	notes, err := db.ListNotesByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	history, err := db.ListWorkOrderHistory(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	total, perTask, err := h.engine.Lifecycle().Durations(id)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, map[string]any{
		"work_order":             wo,
		"tasks":                  tasks,
		"interventions":          interventions,
		"parts":                  parts,
		"notes":                  notes,
		"history":                history,
		"total_duration_minutes": total,
		"task_duration_minutes":  perTask,
	})
}

func (h *Handlers) apiCloseWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkOrderID int64 `json:"work_order_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.engine.Lifecycle().Close(req.WorkOrderID)
	if err != nil {
		// Guard failures carry the full check set back to the caller.
		if result != nil && fault.KindOf(err) == fault.KindGuardFailed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(result)
			return
		}
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, result)
}

func (h *Handlers) apiCancelWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkOrderID int64  `json:"work_order_id"`
		Reason      string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.Lifecycle().CancelWorkOrder(req.WorkOrderID, req.Reason); err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"cancelled": true})
}

// apiEvaluateGuards dry-runs the closure predicates without closing.
func (h *Handlers) apiEvaluateGuards(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt64(r, "id")
	if !ok {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	checks, err := h.engine.Guards().EvaluateClosure(id)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, checks)
}

func (h *Handlers) apiAddTask(w http.ResponseWriter, r *http.Request) {
	var t store.Task
	if err := decodeBody(r, &t); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, err := h.engine.Lifecycle().AddTask(&t)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, task)
}

func (h *Handlers) apiListParts(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt64(r, "work_order_id")
	if !ok {
		h.jsonError(w, "invalid work_order_id", http.StatusBadRequest)
		return
	}
	parts, err := h.engine.DB().ListPartsByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, parts)
}

func (h *Handlers) apiAddPart(w http.ResponseWriter, r *http.Request) {
	var p store.WorkOrderPart
	if err := decodeBody(r, &p); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.WorkOrderID == 0 || p.Name == "" {
		h.jsonError(w, "work_order_id and name are required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().AddWorkOrderPart(&p); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, p)
}

func (h *Handlers) apiDeletePart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().DeleteWorkOrderPart(req.ID); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, map[string]any{"deleted": true})
}

func (h *Handlers) apiListNotes(w http.ResponseWriter, r *http.Request) {
	if id, ok := queryInt64(r, "intervention_id"); ok {
		notes, err := h.engine.DB().ListNotesByIntervention(id)
		if err != nil {
			h.jsonFault(w, fault.Internal(err))
			return
		}
		h.jsonOK(w, notes)
		return
	}
	id, ok := queryInt64(r, "work_order_id")
	if !ok {
		h.jsonError(w, "invalid work_order_id", http.StatusBadRequest)
		return
	}
	notes, err := h.engine.DB().ListNotesByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, notes)
}

func (h *Handlers) apiAddNote(w http.ResponseWriter, r *http.Request) {
	var n store.InterventionNote
	if err := decodeBody(r, &n); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if n.InterventionID == 0 || n.Body == "" {
		h.jsonError(w, "intervention_id and body are required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().AddInterventionNote(&n); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, n)
}

func (h *Handlers) apiListMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt64(r, "work_order_id")
	if !ok {
		h.jsonError(w, "invalid work_order_id", http.StatusBadRequest)
		return
	}
	media, err := h.engine.DB().ListMediaByWorkOrder(id)
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, media)
}

func (h *Handlers) apiAddMedia(w http.ResponseWriter, r *http.Request) {
	var m store.InterventionMedia
	if err := decodeBody(r, &m); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if m.InterventionID == 0 || m.Filename == "" {
		h.jsonError(w, "intervention_id and filename are required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().AddInterventionMedia(&m); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, m)
}
