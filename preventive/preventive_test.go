package preventive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldcore/config"
	"fieldcore/fault"
	"fieldcore/predict"
	"fieldcore/store"
)

type mockEmitter struct {
	generated int
}

func (m *mockEmitter) PreventiveGenerated(vehicleID, workOrderID, predictionID int64, taskCount int) {
	m.generated++
}

func testService(t *testing.T) (*store.DB, *Service, *mockEmitter) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	em := &mockEmitter{}
	return db, NewService(db, config.Defaults(), em), em
}

func seedVehicle(t *testing.T, db *store.DB) *store.Vehicle {
	t.Helper()
	lat, lng := 43.2965, 5.3698
	c := &store.Customer{DisplayName: "Marseille Fret", Latitude: &lat, Longitude: &lng}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	v := &store.Vehicle{CustomerID: c.ID, Make: "MAN", Model: "TGE", Year: 2022}
	if err := db.CreateVehicle(v); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return v
}

func seedPrediction(t *testing.T, db *store.DB, vehicleID int64, recs []predict.Recommendation) *predict.Prediction {
	t.Helper()
	codes := make([]string, len(recs))
	for i, r := range recs {
		codes[i] = r.ActionCode
	}
	rec := &store.PredictionRecord{
		VehicleID:         vehicleID,
		GeneratedAt:       time.Date(2026, 8, 3, 10, 0, 0, 0, time.Local),
		DaysToMaintenance: 10,
		Confidence:        60,
		AnomalyDetected:   true,
		ModelKind:         store.ModelKindRuleEngine,
		RiskLevel:         store.RiskHigh,
		Recommendations:   codes,
	}
	if err := db.InsertPrediction(rec); err != nil {
		t.Fatalf("insert prediction: %v", err)
	}
	return &predict.Prediction{Record: rec, Recommendations: recs, Priority: store.PriorityHigh}
}

func TestGenerateSeedsBaselineAndActionTasks(t *testing.T) {
	db, svc, em := testService(t)
	v := seedVehicle(t, db)
	pred := seedPrediction(t, db, v.ID, []predict.Recommendation{
		{ActionCode: "check_brakes", Title: "Inspect brakes", Description: "wear over 75%"},
		{ActionCode: "schedule_inspection", Title: "Schedule inspection", Description: "anomalous telemetry"},
	})

	res, err := svc.Generate(v.ID, pred)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.TaskIDs) != 5 {
		t.Fatalf("tasks = %d, want 3 baseline + 2 action", len(res.TaskIDs))
	}

	wo, err := db.GetWorkOrder(res.WorkOrderID)
	if err != nil {
		t.Fatalf("get wo: %v", err)
	}
	if !wo.AutoGenerated || wo.CreatedBy != "predictor" {
		t.Errorf("wo = %+v, want auto-generated by predictor", wo)
	}
	if wo.Priority != store.PriorityHigh {
		t.Errorf("priority = %q, want high from the prediction", wo.Priority)
	}
	if wo.PredictionID == nil || *wo.PredictionID != pred.Record.ID {
		t.Errorf("PredictionID = %v, want %d", wo.PredictionID, pred.Record.ID)
	}
	// Estimate is the sum of the seeded task minutes: 60+30+45+45+40.
	if wo.EstimatedDurationMins != 220 {
		t.Errorf("estimate = %d, want 220", wo.EstimatedDurationMins)
	}
	// Location falls back to the customer coordinates.
	if wo.LocationLat == nil || *wo.LocationLat != 43.2965 {
		t.Errorf("LocationLat = %v, want customer latitude", wo.LocationLat)
	}
	// Scheduled inside business hours, days-to-maintenance ahead.
	if wo.ScheduledStart == nil {
		t.Fatal("ScheduledStart should be set")
	}
	if wo.ScheduledStart.Hour() < 8 || wo.ScheduledStart.Hour() >= 17 {
		t.Errorf("ScheduledStart = %v, want inside business hours", wo.ScheduledStart)
	}

	tasks, _ := db.ListTasksByWorkOrder(res.WorkOrderID)
	var brakeTask *store.Task
	for _, task := range tasks {
		if task.TaskSource != store.TaskSourcePreventive {
			t.Errorf("task %q source = %q, want preventive", task.Title, task.TaskSource)
		}
		if task.CreatedByActor != "ai" {
			t.Errorf("task %q actor = %q, want ai", task.Title, task.CreatedByActor)
		}
		if task.Title == "Brake inspection" {
			brakeTask = task
		}
	}
	if brakeTask == nil {
		t.Fatal("missing brake inspection task")
	}
	if brakeTask.Priority != store.PriorityHigh || brakeTask.EstimatedMinutes != 45 {
		t.Errorf("brake task = %+v", brakeTask)
	}

	if em.generated != 1 {
		t.Errorf("emitted %d events, want 1", em.generated)
	}
}

func TestGenerateIdempotentPerPrediction(t *testing.T) {
	db, svc, em := testService(t)
	v := seedVehicle(t, db)
	pred := seedPrediction(t, db, v.ID, nil)

	first, err := svc.Generate(v.ID, pred)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := svc.Generate(v.ID, pred)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if second.WorkOrderID != first.WorkOrderID {
		t.Errorf("second call created work order %d, want %d", second.WorkOrderID, first.WorkOrderID)
	}
	if len(second.TaskIDs) != len(first.TaskIDs) {
		t.Errorf("task sets differ: %v vs %v", second.TaskIDs, first.TaskIDs)
	}

	orders, _ := db.ListWorkOrders(store.WorkOrderFilter{AutoOnly: true})
	if len(orders) != 1 {
		t.Errorf("auto work orders = %d, want 1", len(orders))
	}
	if em.generated != 1 {
		t.Errorf("emitted %d events, want 1", em.generated)
	}
}

func TestGenerateValidation(t *testing.T) {
	db, svc, _ := testService(t)
	v := seedVehicle(t, db)

	if _, err := svc.Generate(v.ID, nil); fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("nil prediction kind = %v, want invalid_input", fault.KindOf(err))
	}
	pred := seedPrediction(t, db, v.ID, nil)
	if _, err := svc.Generate(9999, pred); fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("unknown vehicle kind = %v, want not_found", fault.KindOf(err))
	}
}

func TestClipToBusinessHours(t *testing.T) {
	_, svc, _ := testService(t)

	early := time.Date(2026, 8, 3, 6, 30, 0, 0, time.Local)
	if got := svc.clipToBusinessHours(early); got.Hour() != 8 || got.Day() != 3 {
		t.Errorf("early clip = %v, want 08:00 same day", got)
	}

	late := time.Date(2026, 8, 3, 18, 0, 0, 0, time.Local)
	if got := svc.clipToBusinessHours(late); got.Hour() != 8 || got.Day() != 4 {
		t.Errorf("late clip = %v, want 08:00 next day", got)
	}

	inside := time.Date(2026, 8, 3, 11, 15, 0, 0, time.Local)
	if got := svc.clipToBusinessHours(inside); !got.Equal(inside) {
		t.Errorf("inside clip = %v, want unchanged", got)
	}
}
