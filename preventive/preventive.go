// Package preventive turns maintenance predictions into draft work
// orders with seeded task lists.
package preventive

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldcore/config"
	"fieldcore/fault"
	"fieldcore/predict"
	"fieldcore/store"
)

const maxEstimateMinutes = 480

type Emitter interface {
	PreventiveGenerated(vehicleID, workOrderID, predictionID int64, taskCount int)
}

// Result identifies the generated work order and its tasks.
type Result struct {
	WorkOrderID int64   `json:"work_order_id"`
	TaskIDs     []int64 `json:"task_ids"`
}

type taskSpec struct {
	title    string
	desc     string
	minutes  int
	skills   []string
	priority string
}

var baselineTasks = []taskSpec{
	{title: "General inspection", desc: "Visual and diagnostic inspection of the vehicle", minutes: 60, skills: []string{"general"}, priority: store.PriorityMedium},
	{title: "Fluid levels", desc: "Check and top up all fluid levels", minutes: 30, skills: []string{"general"}, priority: store.PriorityMedium},
	{title: "Functional test", desc: "Road test and systems verification", minutes: 45, skills: []string{"general"}, priority: store.PriorityMedium},
}

// actionTasks maps recommendation action codes to seeded tasks.
var actionTasks = map[string]taskSpec{
	"check_brakes":        {title: "Brake inspection", desc: "Inspect brake pads, discs and lines", minutes: 45, skills: []string{"brakes"}, priority: store.PriorityHigh},
	"replace_tires":       {title: "Tire replacement", desc: "Replace worn tires and balance wheels", minutes: 60, skills: []string{"tires"}, priority: store.PriorityHigh},
	"check_oil":           {title: "Oil system check", desc: "Verify oil level, pressure and filter", minutes: 30, skills: []string{"engine"}, priority: store.PriorityMedium},
	"schedule_inspection": {title: "Extended diagnostic", desc: "Full diagnostic scan following anomalous telemetry", minutes: 40, skills: []string{"diagnostics"}, priority: store.PriorityMedium},
}

type Service struct {
	db      *store.DB
	cfg     *config.Config
	emitter Emitter
}

func NewService(db *store.DB, cfg *config.Config, emitter Emitter) *Service {
	return &Service{db: db, cfg: cfg, emitter: emitter}
}

// Generate creates the preventive work order for a prediction. A second
// call for the same prediction returns the original result and creates
// nothing.
func (s *Service) Generate(vehicleID int64, p *predict.Prediction) (*Result, error) {
	if p == nil || p.Record == nil {
		return nil, fault.InvalidInput("prediction is required")
	}
	vehicle, err := s.db.GetVehicle(vehicleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("vehicle %d not found", vehicleID)
		}
		return nil, fault.Internal(err)
	}
	customer, err := s.db.GetCustomer(vehicle.CustomerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("customer %d not found", vehicle.CustomerID)
		}
		return nil, fault.Internal(err)
	}

	if existing, err := s.db.GetWorkOrderByPrediction(p.Record.ID); err == nil {
		tasks, err := s.db.ListTasksByWorkOrder(existing.ID)
		if err != nil {
			return nil, fault.Internal(err)
		}
		res := &Result{WorkOrderID: existing.ID}
		for _, t := range tasks {
			res.TaskIDs = append(res.TaskIDs, t.ID)
		}
		log.Printf("preventive: prediction %d already generated work order %d", p.Record.ID, existing.ID)
		return res, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Internal(err)
	}

	specs := make([]taskSpec, 0, len(baselineTasks)+len(p.Recommendations))
	specs = append(specs, baselineTasks...)
	for _, rec := range p.Recommendations {
		if ts, ok := actionTasks[rec.ActionCode]; ok {
			specs = append(specs, ts)
		}
	}
	total := 0
	for _, ts := range specs {
		total += ts.minutes
	}
	if total > maxEstimateMinutes {
		total = maxEstimateMinutes
	}

	start := s.clipToBusinessHours(p.Record.GeneratedAt.AddDate(0, 0, p.Record.DaysToMaintenance))
	predictionID := p.Record.ID
	wo := &store.WorkOrder{
		ClaimNumber:           claimNumber(),
		CustomerID:            customer.ID,
		VehicleID:             &vehicle.ID,
		Description:           describe(p),
		Priority:              p.Priority,
		Status:                store.WOStatusPending,
		CreatedBy:             "predictor",
		EstimatedDurationMins: total,
		ScheduledStart:        &start,
		LocationLat:           customer.Latitude,
		LocationLng:           customer.Longitude,
		AutoGenerated:         true,
		PredictionID:          &predictionID,
	}
	if err := s.db.CreateWorkOrder(wo); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.db.UpdateWorkOrderStatus(wo.ID, store.WOStatusPending,
		fmt.Sprintf("auto-generated from prediction %d", predictionID)); err != nil {
		return nil, fault.Internal(err)
	}

	res := &Result{WorkOrderID: wo.ID}
	for _, ts := range specs {
		task := &store.Task{
			WorkOrderID:      wo.ID,
			Title:            ts.title,
			Description:      ts.desc,
			TaskSource:       store.TaskSourcePreventive,
			CreatedByActor:   "ai",
			Status:           store.TaskStatusPending,
			Priority:         ts.priority,
			EstimatedMinutes: ts.minutes,
			RequiredSkills:   ts.skills,
		}
		if err := s.db.CreateTask(task); err != nil {
			return nil, fault.Internal(err)
		}
		res.TaskIDs = append(res.TaskIDs, task.ID)
	}

	if s.emitter != nil {
		s.emitter.PreventiveGenerated(vehicleID, wo.ID, predictionID, len(res.TaskIDs))
	}
	log.Printf("preventive: work order %d (%s) generated for vehicle %d, %d tasks",
		wo.ID, wo.ClaimNumber, vehicleID, len(res.TaskIDs))
	return res, nil
}

// clipToBusinessHours moves an instant inside the configured window,
// rolling past-close times to the next morning.
func (s *Service) clipToBusinessHours(t time.Time) time.Time {
	startH, startM, endH, endM := s.cfg.BusinessHours()
	open := time.Date(t.Year(), t.Month(), t.Day(), startH, startM, 0, 0, t.Location())
	close := time.Date(t.Year(), t.Month(), t.Day(), endH, endM, 0, 0, t.Location())
	switch {
	case t.Before(open):
		return open
	case !t.Before(close):
		return open.AddDate(0, 0, 1)
	default:
		return t
	}
}

func describe(p *predict.Prediction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Preventive maintenance: due in %d days (confidence %.0f%%", p.Record.DaysToMaintenance, p.Record.Confidence)
	if p.Record.AnomalyDetected {
		b.WriteString(", anomaly detected")
	}
	b.WriteString(")")
	for _, rec := range p.Recommendations {
		fmt.Fprintf(&b, "\n- %s: %s", rec.Title, rec.Description)
	}
	return b.String()
}

func claimNumber() string {
	return "WO-" + strings.ToUpper(uuid.NewString()[:8])
}
