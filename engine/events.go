package engine

const (
	EventWorkOrderCreated EventType = iota + 1
	EventWorkOrderStatusChanged
	EventWorkOrderClosed
	EventTaskAssigned
	EventTaskUnassigned
	EventTaskStarted
	EventTaskCompleted
	EventTaskCancelled
	EventTelemetryIngested
	EventTelemetryCritical
	EventPredictionMade
	EventPreventiveGenerated
	EventScheduleApplied
	EventJobFinished
)

func (t EventType) String() string {
	switch t {
	case EventWorkOrderCreated:
		return "work_order_created"
	case EventWorkOrderStatusChanged:
		return "work_order_status_changed"
	case EventWorkOrderClosed:
		return "work_order_closed"
	case EventTaskAssigned:
		return "task_assigned"
	case EventTaskUnassigned:
		return "task_unassigned"
	case EventTaskStarted:
		return "task_started"
	case EventTaskCompleted:
		return "task_completed"
	case EventTaskCancelled:
		return "task_cancelled"
	case EventTelemetryIngested:
		return "telemetry_ingested"
	case EventTelemetryCritical:
		return "telemetry_critical"
	case EventPredictionMade:
		return "prediction_made"
	case EventPreventiveGenerated:
		return "preventive_generated"
	case EventScheduleApplied:
		return "schedule_applied"
	case EventJobFinished:
		return "job_finished"
	default:
		return "unknown"
	}
}

type WorkOrderEvent struct {
	WorkOrderID int64  `json:"work_order_id"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
}

type TaskEvent struct {
	TaskID       int64  `json:"task_id"`
	WorkOrderID  int64  `json:"work_order_id"`
	TechnicianID int64  `json:"technician_id,omitempty"`
	Status       string `json:"status"`
}

type TelemetryEvent struct {
	VehicleID  int64    `json:"vehicle_id"`
	SnapshotID int64    `json:"snapshot_id"`
	Reasons    []string `json:"reasons,omitempty"`
}

type PredictionEvent struct {
	VehicleID    int64  `json:"vehicle_id"`
	PredictionID int64  `json:"prediction_id"`
	RiskLevel    string `json:"risk_level"`
}

type PreventiveEvent struct {
	VehicleID    int64 `json:"vehicle_id"`
	WorkOrderID  int64 `json:"work_order_id"`
	PredictionID int64 `json:"prediction_id"`
	TaskCount    int   `json:"task_count"`
}

type JobEvent struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}
