// Package www exposes the JSON API and the SSE event stream.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fieldcore/engine"
)

type Handlers struct {
	engine   *engine.Engine
	eventHub *EventHub
}

// NewRouter builds the HTTP surface. The returned func stops the SSE
// hub on shutdown.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		eventHub: hub,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE
	r.Get("/events", hub.SSEHandler)

	// Public client tracking. Token-gated, no session.
	r.Get("/track", h.handleTrack)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)

		// Master data
		r.Get("/customers", h.apiListCustomers)
		r.Post("/customers", h.apiCreateCustomer)
		r.Get("/vehicles", h.apiListVehicles)
		r.Post("/vehicles", h.apiCreateVehicle)
		r.Get("/vehicles/state", h.apiVehicleState)
		r.Get("/technicians", h.apiListTechnicians)
		r.Post("/technicians", h.apiCreateTechnician)

		// Work orders
		r.Post("/work-orders", h.apiCreateWorkOrder)
		r.Get("/work-orders", h.apiListWorkOrders)
		r.Get("/work-orders/detail", h.apiWorkOrderDetail)
		r.Post("/work-orders/close", h.apiCloseWorkOrder)
		r.Post("/work-orders/cancel", h.apiCancelWorkOrder)
		r.Get("/work-orders/guards", h.apiEvaluateGuards)
		r.Post("/work-orders/tasks", h.apiAddTask)
		r.Get("/work-orders/parts", h.apiListParts)
		r.Post("/work-orders/parts", h.apiAddPart)
		r.Post("/work-orders/parts/delete", h.apiDeletePart)
		r.Get("/work-orders/notes", h.apiListNotes)
		r.Post("/work-orders/notes", h.apiAddNote)
		r.Get("/work-orders/media", h.apiListMedia)
		r.Post("/work-orders/media", h.apiAddMedia)

		// Task lifecycle
		r.Post("/tasks/assign", h.apiAssignTask)
		r.Post("/tasks/unassign", h.apiUnassignTask)
		r.Post("/tasks/start", h.apiStartTask)
		r.Post("/tasks/complete", h.apiCompleteTask)
		r.Post("/tasks/cancel", h.apiCancelTask)

		// Optimizer
		r.Post("/optimize", h.apiOptimize)
		r.Post("/optimize/scenarios", h.apiOptimizeScenarios)
		r.Post("/optimize/apply", h.apiOptimizeApply)
		r.Get("/optimize/day", h.apiOptimizeDay)
		r.Get("/optimize/jobs", h.apiJobStatus)
		r.Post("/optimize/jobs/cancel", h.apiJobCancel)

		// Predictor and telemetry
		r.Post("/predict", h.apiPredict)
		r.Get("/predict/fleet", h.apiPredictFleet)
		r.Post("/predict/retrain", h.apiRetrain)
		r.Post("/telemetry", h.apiIngestTelemetry)
		r.Get("/telemetry/window", h.apiTelemetryWindow)
		r.Get("/telemetry/fleet", h.apiTelemetryFleet)

		// Tracking tokens
		r.Post("/tracking/mint", h.apiMintToken)
		r.Post("/tracking/revoke", h.apiRevokeToken)
	})

	cleanup := func() {
		hub.Stop()
	}
	return r, cleanup
}
