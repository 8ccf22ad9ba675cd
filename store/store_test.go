package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldcore/config"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
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
	return db
}

func seedCustomer(t *testing.T, db *DB) *Customer {
	t.Helper()
	lat, lng := 48.8566, 2.3522
	c := &Customer{DisplayName: "Garage Martin", PrimaryEmail: "contact@martin.fr", Latitude: &lat, Longitude: &lng}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return c
}

func seedVehicle(t *testing.T, db *DB, customerID int64) *Vehicle {
	t.Helper()
	v := &Vehicle{CustomerID: customerID, Make: "Renault", Model: "Master", Year: 2021, VIN: "VF1MA000066666666", Odometer: 42000}
	if err := db.CreateVehicle(v); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return v
}

// --- Work order tests ---

func TestWorkOrderCRUD(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	v := seedVehicle(t, db, c.ID)

	wo := &WorkOrder{
		ClaimNumber: "WO-TEST0001",
		CustomerID:  c.ID,
		VehicleID:   &v.ID,
		Description: "Annual service",
		Priority:    PriorityHigh,
		Status:      WOStatusPending,
		CreatedBy:   "dispatcher",
	}
	if err := db.CreateWorkOrder(wo); err != nil {
		t.Fatalf("create: %v", err)
	}
	if wo.ID == 0 {
		t.Fatal("ID should be assigned")
	}

	got, err := db.GetWorkOrder(wo.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClaimNumber != "WO-TEST0001" {
		t.Errorf("ClaimNumber = %q, want %q", got.ClaimNumber, "WO-TEST0001")
	}
	if got.VehicleID == nil || *got.VehicleID != v.ID {
		t.Errorf("VehicleID = %v, want %d", got.VehicleID, v.ID)
	}
	if got.ClosedAt != nil {
		t.Error("ClosedAt should be nil on a fresh work order")
	}

	if err := db.UpdateWorkOrderStatus(wo.ID, WOStatusAssigned, "optimizer assignment"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got2, _ := db.GetWorkOrder(wo.ID)
	if got2.Status != WOStatusAssigned {
		t.Errorf("Status = %q, want %q", got2.Status, WOStatusAssigned)
	}

	history, err := db.ListWorkOrderHistory(wo.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].Status != WOStatusAssigned {
		t.Errorf("history status = %q, want %q", history[0].Status, WOStatusAssigned)
	}

	if err := db.CloseWorkOrder(wo.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	got3, _ := db.GetWorkOrder(wo.ID)
	if got3.Status != WOStatusCompleted {
		t.Errorf("Status after close = %q, want %q", got3.Status, WOStatusCompleted)
	}
	if got3.ClosedAt == nil {
		t.Error("ClosedAt should be set after close")
	}
}

func TestWorkOrderFilter(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)

	for _, p := range []string{PriorityLow, PriorityUrgent, PriorityUrgent} {
		wo := &WorkOrder{ClaimNumber: "WO-" + p + time.Now().Format("150405.000000000"), CustomerID: c.ID, Priority: p, Status: WOStatusPending}
		if err := db.CreateWorkOrder(wo); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	urgent, err := db.ListWorkOrders(WorkOrderFilter{Priority: PriorityUrgent})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(urgent) != 2 {
		t.Errorf("urgent count = %d, want 2", len(urgent))
	}

	all, _ := db.ListWorkOrders(WorkOrderFilter{CustomerID: c.ID})
	if len(all) != 3 {
		t.Errorf("customer count = %d, want 3", len(all))
	}

	none, _ := db.ListWorkOrders(WorkOrderFilter{Status: WOStatusCompleted})
	if len(none) != 0 {
		t.Errorf("completed count = %d, want 0", len(none))
	}
}

// --- Task tests ---

func TestTaskDefaultsAndTransitRows(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	wo := &WorkOrder{ClaimNumber: "WO-T1", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	if err := db.CreateWorkOrder(wo); err != nil {
		t.Fatalf("create wo: %v", err)
	}

	task := &Task{WorkOrderID: wo.ID, Title: "Replace filter", RequiredSkills: []string{"engine"}}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != TaskStatusPending {
		t.Errorf("default status = %q, want %q", got.Status, TaskStatusPending)
	}
	if got.TaskSource != TaskSourceRequested {
		t.Errorf("default source = %q, want %q", got.TaskSource, TaskSourceRequested)
	}
	if len(got.RequiredSkills) != 1 || got.RequiredSkills[0] != "engine" {
		t.Errorf("RequiredSkills = %v, want [engine]", got.RequiredSkills)
	}

	tech := &Technician{DisplayName: "Ana", Skills: []string{"engine"}, Active: true}
	if err := db.CreateTechnician(tech); err != nil {
		t.Fatalf("create tech: %v", err)
	}
	if err := db.UpdateTaskAssignment(task.ID, &tech.ID, TaskStatusAssigned); err != nil {
		t.Fatalf("assign: %v", err)
	}
	started := time.Now()
	if err := db.MarkTaskStarted(task.ID, started); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := db.MarkTaskCompleted(task.ID, started.Add(45*time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got2, _ := db.GetTask(task.ID)
	if got2.Status != TaskStatusDone {
		t.Errorf("status = %q, want done", got2.Status)
	}
	if got2.StartedAt == nil || got2.CompletedAt == nil {
		t.Error("StartedAt and CompletedAt should both be set")
	}
	if !got2.Terminal() {
		t.Error("done task should be terminal")
	}
}

func TestListSchedulableTasks(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	wo := &WorkOrder{ClaimNumber: "WO-S1", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	if err := db.CreateWorkOrder(wo); err != nil {
		t.Fatalf("create wo: %v", err)
	}
	pending := &Task{WorkOrderID: wo.ID, Title: "pending one"}
	db.CreateTask(pending)
	done := &Task{WorkOrderID: wo.ID, Title: "done one"}
	db.CreateTask(done)
	db.UpdateTaskStatus(done.ID, TaskStatusDone)

	tasks, err := db.ListSchedulableTasks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != pending.ID {
		t.Errorf("schedulable = %v, want only task %d", tasks, pending.ID)
	}
}

// --- Intervention tests ---

func TestInterventionOpenClose(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	wo := &WorkOrder{ClaimNumber: "WO-I1", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	db.CreateWorkOrder(wo)
	task := &Task{WorkOrderID: wo.ID, Title: "Brake pads"}
	db.CreateTask(task)
	tech := &Technician{DisplayName: "Marc", Active: true}
	db.CreateTechnician(tech)

	iv := &Intervention{TaskID: task.ID, WorkOrderID: wo.ID, TechnicianID: tech.ID, StartedAt: time.Now().Add(-30 * time.Minute)}
	if err := db.CreateIntervention(iv); err != nil {
		t.Fatalf("create: %v", err)
	}

	open, err := db.GetInterventionByTask(task.ID)
	if err != nil {
		t.Fatalf("get by task: %v", err)
	}
	if open.EndedAt != nil {
		t.Error("fresh intervention should be open")
	}

	if err := db.CloseIntervention(iv.ID, time.Now(), ResultOK, "pads replaced"); err != nil {
		t.Fatalf("close: %v", err)
	}
	closed, _ := db.GetIntervention(iv.ID)
	if closed.EndedAt == nil || closed.ResultStatus != ResultOK {
		t.Errorf("closed = %+v, want ended with result ok", closed)
	}
	if d := closed.DurationMinutes(); d < 29 || d > 31 {
		t.Errorf("DurationMinutes = %d, want ~30", d)
	}
}

// --- Token tests ---

func TestClientTokenUpsert(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	wo := &WorkOrder{ClaimNumber: "WO-K1", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	db.CreateWorkOrder(wo)

	first := &ClientToken{WorkOrderID: wo.ID, Token: "token-one", IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 7)}
	if err := db.UpsertClientToken(first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := db.IncrementTokenAccess(wo.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	// A second mint replaces the token and resets the counter.
	second := &ClientToken{WorkOrderID: wo.ID, Token: "token-two", IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 7)}
	if err := db.UpsertClientToken(second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := db.GetClientToken(wo.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Token != "token-two" {
		t.Errorf("Token = %q, want token-two", got.Token)
	}
	if got.AccessCount != 0 {
		t.Errorf("AccessCount = %d, want 0 after re-mint", got.AccessCount)
	}

	if err := db.RevokeClientToken(wo.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got2, _ := db.GetClientToken(wo.ID)
	if !got2.Revoked {
		t.Error("Revoked should be true")
	}
}

func TestDeleteExpiredTokens(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	woOld := &WorkOrder{ClaimNumber: "WO-E1", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	db.CreateWorkOrder(woOld)
	woNew := &WorkOrder{ClaimNumber: "WO-E2", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	db.CreateWorkOrder(woNew)

	now := time.Now()
	db.UpsertClientToken(&ClientToken{WorkOrderID: woOld.ID, Token: "stale", IssuedAt: now.AddDate(0, 0, -10), ExpiresAt: now.AddDate(0, 0, -3)})
	db.UpsertClientToken(&ClientToken{WorkOrderID: woNew.ID, Token: "fresh", IssuedAt: now, ExpiresAt: now.AddDate(0, 0, 7)})

	n, err := db.DeleteExpiredTokens(now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := db.GetClientToken(woNew.ID); err != nil {
		t.Errorf("fresh token should survive: %v", err)
	}
}

// --- Prediction tests ---

func TestPredictionRoundTrip(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	v := seedVehicle(t, db, c.ID)

	p := &PredictionRecord{
		VehicleID:         v.ID,
		GeneratedAt:       time.Now(),
		DaysToMaintenance: 12,
		Confidence:        75,
		AnomalyDetected:   true,
		AnomalyScore:      2.4,
		ModelKind:         ModelKindRuleEngine,
		RiskLevel:         RiskHigh,
		Recommendations:   []string{"check_brakes", "schedule_inspection"},
		Features:          map[string]float64{"brake_wear_pct": 82, "odometer": 42000},
	}
	if err := db.InsertPrediction(p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.LatestPrediction(v.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.RiskLevel != RiskHigh || !got.AnomalyDetected {
		t.Errorf("got %+v, want high-risk anomaly", got)
	}
	if len(got.Recommendations) != 2 || got.Recommendations[0] != "check_brakes" {
		t.Errorf("Recommendations = %v", got.Recommendations)
	}
	if got.Features["brake_wear_pct"] != 82 {
		t.Errorf("Features = %v", got.Features)
	}
}

// --- Telemetry tests ---

func TestSnapshotQueries(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	v := seedVehicle(t, db, c.ID)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s := &TelemetrySnapshot{
			VehicleID:       v.ID,
			RecordedAt:      base.AddDate(0, 0, i),
			OdometerReading: 42000 + int64(i)*100,
			EngineHours:     1200 + float64(i),
			Source:          "iot_live",
		}
		if err := db.InsertSnapshot(s); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	latest, err := db.LatestSnapshot(v.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.OdometerReading != 42200 {
		t.Errorf("latest odometer = %d, want 42200", latest.OdometerReading)
	}

	before, err := db.SnapshotBefore(v.ID, base.AddDate(0, 0, 1).Add(time.Hour))
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if before.OdometerReading != 42100 {
		t.Errorf("before odometer = %d, want 42100", before.OdometerReading)
	}

	window, err := db.SnapshotWindow(v.ID, base, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 2 {
		t.Errorf("window rows = %d, want 2", len(window))
	}
}

// --- Outbox tests ---

func TestOutboxQueue(t *testing.T) {
	db := testDB(t)

	if err := db.EnqueueOutbox("fieldcore.notifications", []byte(`{"x":1}`), "work_order_created", "work_order:1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.EnqueueOutbox("fieldcore.notifications", []byte(`{"x":2}`), "task_assigned", "task:2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := db.MarkOutboxSent(pending[0].ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := db.IncrementOutboxRetries(pending[1].ID); err != nil {
		t.Fatalf("retry: %v", err)
	}

	left, _ := db.ListPendingOutbox(10)
	if len(left) != 1 {
		t.Fatalf("pending after send = %d, want 1", len(left))
	}
	if left[0].Retries != 1 {
		t.Errorf("Retries = %d, want 1", left[0].Retries)
	}
}

// --- Parts ---

func TestPartQuantityDefault(t *testing.T) {
	db := testDB(t)
	c := seedCustomer(t, db)
	wo := &WorkOrder{ClaimNumber: "WO-P1", CustomerID: c.ID, Priority: PriorityMedium, Status: WOStatusPending}
	db.CreateWorkOrder(wo)

	p := &WorkOrderPart{WorkOrderID: wo.ID, Name: "Oil filter"}
	if err := db.AddWorkOrderPart(p); err != nil {
		t.Fatalf("add: %v", err)
	}
	parts, err := db.ListPartsByWorkOrder(wo.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(parts) != 1 || parts[0].Quantity != 1 {
		t.Errorf("parts = %+v, want one row with quantity 1", parts)
	}
}
