package engine

// busEmitter adapts the service emitter interfaces onto the event bus.
// One instance backs every service.
type busEmitter struct {
	bus *EventBus
}

func (e *busEmitter) TelemetryIngested(vehicleID, snapshotID int64) {
	e.bus.Emit(EventTelemetryIngested, TelemetryEvent{VehicleID: vehicleID, SnapshotID: snapshotID})
}

func (e *busEmitter) TelemetryCritical(vehicleID, snapshotID int64, reasons []string) {
	e.bus.Emit(EventTelemetryCritical, TelemetryEvent{VehicleID: vehicleID, SnapshotID: snapshotID, Reasons: reasons})
}

func (e *busEmitter) PredictionMade(vehicleID, predictionID int64, riskLevel string) {
	e.bus.Emit(EventPredictionMade, PredictionEvent{VehicleID: vehicleID, PredictionID: predictionID, RiskLevel: riskLevel})
}

func (e *busEmitter) PreventiveGenerated(vehicleID, workOrderID, predictionID int64, taskCount int) {
	e.bus.Emit(EventPreventiveGenerated, PreventiveEvent{
		VehicleID: vehicleID, WorkOrderID: workOrderID, PredictionID: predictionID, TaskCount: taskCount,
	})
}

func (e *busEmitter) WorkOrderCreated(workOrderID int64) {
	e.bus.Emit(EventWorkOrderCreated, WorkOrderEvent{WorkOrderID: workOrderID})
}

func (e *busEmitter) WorkOrderStatusChanged(workOrderID int64, status, detail string) {
	e.bus.Emit(EventWorkOrderStatusChanged, WorkOrderEvent{WorkOrderID: workOrderID, Status: status, Detail: detail})
}

func (e *busEmitter) WorkOrderClosed(workOrderID int64) {
	e.bus.Emit(EventWorkOrderClosed, WorkOrderEvent{WorkOrderID: workOrderID, Status: "completed"})
}

func (e *busEmitter) TaskAssigned(taskID, workOrderID, technicianID int64) {
	e.bus.Emit(EventTaskAssigned, TaskEvent{TaskID: taskID, WorkOrderID: workOrderID, TechnicianID: technicianID, Status: "assigned"})
}

func (e *busEmitter) TaskUnassigned(taskID, workOrderID int64) {
	e.bus.Emit(EventTaskUnassigned, TaskEvent{TaskID: taskID, WorkOrderID: workOrderID, Status: "pending"})
}

func (e *busEmitter) TaskStarted(taskID, workOrderID, technicianID int64) {
	e.bus.Emit(EventTaskStarted, TaskEvent{TaskID: taskID, WorkOrderID: workOrderID, TechnicianID: technicianID, Status: "in_progress"})
}

func (e *busEmitter) TaskCompleted(taskID, workOrderID int64) {
	e.bus.Emit(EventTaskCompleted, TaskEvent{TaskID: taskID, WorkOrderID: workOrderID, Status: "done"})
}

func (e *busEmitter) TaskCancelled(taskID, workOrderID int64) {
	e.bus.Emit(EventTaskCancelled, TaskEvent{TaskID: taskID, WorkOrderID: workOrderID, Status: "cancelled"})
}
