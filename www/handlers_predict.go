package www

import (
	"net/http"
	"time"

	"fieldcore/store"
)

// apiPredict runs an on-demand prediction for one vehicle.
func (h *Handlers) apiPredict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID int64 `json:"vehicle_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	pred, err := h.engine.Predictor().Predict(req.VehicleID)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, pred)
}

func (h *Handlers) apiPredictFleet(w http.ResponseWriter, r *http.Request) {
	preds, err := h.engine.Predictor().PredictFleet(
		queryInt(r, "limit", 0), r.URL.Query().Get("priority"))
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, preds)
}

// apiRetrain submits a retrain job. force=true rebuilds even when a
// model is already loaded.
func (h *Handlers) apiRetrain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobID := h.engine.SubmitRetrain(req.Force)
	h.jsonOK(w, map[string]any{"job_id": jobID})
}

func (h *Handlers) apiIngestTelemetry(w http.ResponseWriter, r *http.Request) {
	var snap store.TelemetrySnapshot
	if err := decodeBody(r, &snap); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	stored, err := h.engine.Telemetry().Ingest(&snap)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, stored)
}

func (h *Handlers) apiTelemetryWindow(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := queryInt64(r, "vehicle_id")
	if !ok {
		h.jsonError(w, "invalid vehicle_id", http.StatusBadRequest)
		return
	}
	to := time.Now()
	from := to.AddDate(0, 0, -7)
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.jsonError(w, "invalid from, want RFC3339", http.StatusBadRequest)
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.jsonError(w, "invalid to, want RFC3339", http.StatusBadRequest)
			return
		}
		to = t
	}
	snaps, err := h.engine.Telemetry().Window(vehicleID, from, to)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, snaps)
}

func (h *Handlers) apiTelemetryFleet(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -queryInt(r, "days", 30))
	summaries, err := h.engine.Telemetry().AggregateFleet(since)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, summaries)
}
