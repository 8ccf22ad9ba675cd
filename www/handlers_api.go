package www

import (
	"net/http"
	"time"

	"fieldcore/fault"
	"fieldcore/store"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	dbOK := h.engine.DB().Ping() == nil
	h.jsonOK(w, map[string]any{
		"status":       "ok",
		"database":     dbOK,
		"model_loaded": h.engine.Predictor().ModelLoaded(),
		"sse_clients":  h.eventHub.ClientCount(),
		"time":         time.Now().Format(time.RFC3339),
	})
}

func (h *Handlers) apiListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.engine.DB().ListCustomers(queryInt(r, "limit", 200))
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, customers)
}

func (h *Handlers) apiCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c store.Customer
	if err := decodeBody(r, &c); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.DisplayName == "" {
		h.jsonError(w, "display_name is required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().CreateCustomer(&c); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, c)
}

func (h *Handlers) apiListVehicles(w http.ResponseWriter, r *http.Request) {
	if customerID, ok := queryInt64(r, "customer_id"); ok {
		vehicles, err := h.engine.DB().ListVehiclesByCustomer(customerID)
		if err != nil {
			h.jsonFault(w, fault.Internal(err))
			return
		}
		h.jsonOK(w, vehicles)
		return
	}
	vehicles, err := h.engine.DB().ListVehicles(queryInt(r, "limit", 200))
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, vehicles)
}

func (h *Handlers) apiCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var v store.Vehicle
	if err := decodeBody(r, &v); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if v.CustomerID == 0 {
		h.jsonError(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().CreateVehicle(&v); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, v)
}

// apiVehicleState serves the live telemetry state, one vehicle or the
// whole fleet.
func (h *Handlers) apiVehicleState(w http.ResponseWriter, r *http.Request) {
	mgr := h.engine.Vehicles()
	if mgr == nil {
		h.jsonOK(w, []any{})
		return
	}
	if vehicleID, ok := queryInt64(r, "vehicle_id"); ok {
		state, err := mgr.Latest(vehicleID)
		if err != nil {
			h.jsonFault(w, fault.Internal(err))
			return
		}
		if state == nil {
			h.jsonError(w, "no telemetry for vehicle", http.StatusNotFound)
			return
		}
		h.jsonOK(w, state)
		return
	}
	states, err := mgr.All()
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, states)
}

func (h *Handlers) apiListTechnicians(w http.ResponseWriter, r *http.Request) {
	var (
		techs []*store.Technician
		err   error
	)
	if queryBool(r, "active") {
		techs, err = h.engine.DB().ListActiveTechnicians()
	} else {
		techs, err = h.engine.DB().ListTechnicians()
	}
	if err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, techs)
}

func (h *Handlers) apiCreateTechnician(w http.ResponseWriter, r *http.Request) {
	var t store.Technician
	if err := decodeBody(r, &t); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if t.DisplayName == "" {
		h.jsonError(w, "display_name is required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().CreateTechnician(&t); err != nil {
		h.jsonFault(w, fault.Internal(err))
		return
	}
	h.jsonOK(w, t)
}
