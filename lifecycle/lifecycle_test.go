package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldcore/config"
	"fieldcore/fault"
	"fieldcore/guards"
	"fieldcore/store"
)

// recordingEmitter captures emitted event names in order.
type recordingEmitter struct {
	events []string
}

func (r *recordingEmitter) WorkOrderCreated(int64) { r.events = append(r.events, "wo_created") }
func (r *recordingEmitter) WorkOrderStatusChanged(int64, string, string) {
	r.events = append(r.events, "wo_status")
}
func (r *recordingEmitter) WorkOrderClosed(int64) { r.events = append(r.events, "wo_closed") }
func (r *recordingEmitter) TaskAssigned(int64, int64, int64) {
	r.events = append(r.events, "assigned")
}
func (r *recordingEmitter) TaskUnassigned(int64, int64) { r.events = append(r.events, "unassigned") }
func (r *recordingEmitter) TaskStarted(int64, int64, int64) {
	r.events = append(r.events, "started")
}
func (r *recordingEmitter) TaskCompleted(int64, int64) { r.events = append(r.events, "completed") }
func (r *recordingEmitter) TaskCancelled(int64, int64) { r.events = append(r.events, "cancelled") }

func (r *recordingEmitter) has(name string) bool {
	for _, e := range r.events {
		if e == name {
			return true
		}
	}
	return false
}

type fixture struct {
	db      *store.DB
	svc     *Service
	emitter *recordingEmitter
	wo      *store.WorkOrder
	task    *store.Task
	tech    *store.Technician
}

func newFixture(t *testing.T) *fixture {
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

	em := &recordingEmitter{}
	svc := NewService(db, guards.NewService(db), em)

	c := &store.Customer{DisplayName: "Fleet SA"}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	tech := &store.Technician{DisplayName: "Nadia", Skills: []string{"brakes"}, Active: true}
	if err := db.CreateTechnician(tech); err != nil {
		t.Fatalf("seed tech: %v", err)
	}

	wo, err := svc.CreateWorkOrder(CreateWorkOrderParams{
		CustomerID:  c.ID,
		Description: "Front brake judder",
		Priority:    store.PriorityHigh,
		Status:      store.WOStatusPending,
		CreatedBy:   "dispatcher",
	})
	if err != nil {
		t.Fatalf("create wo: %v", err)
	}
	task, err := svc.AddTask(&store.Task{WorkOrderID: wo.ID, Title: "Replace front pads", RequiredSkills: []string{"brakes"}})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	return &fixture{db: db, svc: svc, emitter: em, wo: wo, task: task, tech: tech}
}

func TestCreateWorkOrderValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateWorkOrder(CreateWorkOrderParams{CustomerID: 9999})
	if fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("unknown customer kind = %v, want not_found", fault.KindOf(err))
	}

	_, err = f.svc.CreateWorkOrder(CreateWorkOrderParams{CustomerID: f.wo.CustomerID, Priority: "asap"})
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("bad priority kind = %v, want invalid_input", fault.KindOf(err))
	}

	_, err = f.svc.CreateWorkOrder(CreateWorkOrderParams{CustomerID: f.wo.CustomerID, Status: store.WOStatusInProgress})
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("bad initial status kind = %v, want invalid_input", fault.KindOf(err))
	}

	wo, err := f.svc.CreateWorkOrder(CreateWorkOrderParams{CustomerID: f.wo.CustomerID})
	if err != nil {
		t.Fatalf("minimal create: %v", err)
	}
	if wo.Priority != store.PriorityMedium || wo.Status != store.WOStatusDraft {
		t.Errorf("defaults = %s/%s, want medium/draft", wo.Priority, wo.Status)
	}
	if wo.ClaimNumber == "" {
		t.Error("claim number should be generated")
	}
}

func TestTaskHappyPath(t *testing.T) {
	f := newFixture(t)

	task, err := f.svc.Assign(f.task.ID, f.tech.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if task.Status != store.TaskStatusAssigned {
		t.Errorf("status = %q, want assigned", task.Status)
	}
	wo, _ := f.db.GetWorkOrder(f.wo.ID)
	if wo.Status != store.WOStatusAssigned {
		t.Errorf("aggregate status = %q, want assigned", wo.Status)
	}

	iv, err := f.svc.Start(f.task.ID, f.tech.ID, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if iv.EndedAt != nil {
		t.Error("fresh intervention should be open")
	}
	wo, _ = f.db.GetWorkOrder(f.wo.ID)
	if wo.Status != store.WOStatusInProgress {
		t.Errorf("aggregate status = %q, want in_progress", wo.Status)
	}

	// Double start is a conflict, not a second intervention.
	_, err = f.svc.Start(f.task.ID, f.tech.ID, false)
	if fault.KindOf(err) != fault.KindConflict {
		t.Errorf("double start kind = %v, want conflict", fault.KindOf(err))
	}

	task, err = f.svc.Complete(f.task.ID, "", "pads replaced, disc fine")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.Status != store.TaskStatusDone {
		t.Errorf("status = %q, want done", task.Status)
	}
	closed, _ := f.db.GetIntervention(iv.ID)
	if closed.EndedAt == nil || closed.ResultStatus != store.ResultOK {
		t.Errorf("intervention = %+v, want closed with result ok", closed)
	}

	for _, want := range []string{"assigned", "started", "completed"} {
		if !f.emitter.has(want) {
			t.Errorf("missing %s event, got %v", want, f.emitter.events)
		}
	}
}

func TestAssignRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Assign(f.task.ID, 9999)
	if fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("unknown tech kind = %v, want not_found", fault.KindOf(err))
	}

	inactive := &store.Technician{DisplayName: "Old Joe", Active: false}
	f.db.CreateTechnician(inactive)
	_, err = f.svc.Assign(f.task.ID, inactive.ID)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("inactive tech kind = %v, want invalid_input", fault.KindOf(err))
	}

	if _, err := f.svc.Assign(f.task.ID, f.tech.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err = f.svc.Assign(f.task.ID, f.tech.ID)
	if fault.KindOf(err) != fault.KindInvalidTransition {
		t.Errorf("re-assign kind = %v, want invalid_transition", fault.KindOf(err))
	}

	task, err := f.svc.Unassign(f.task.ID)
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if task.Status != store.TaskStatusPending || task.AssignedTechnicianID != nil {
		t.Errorf("after unassign = %+v, want pending and unassigned", task)
	}
	wo, _ := f.db.GetWorkOrder(f.wo.ID)
	if wo.Status != store.WOStatusPending {
		t.Errorf("aggregate status = %q, want pending", wo.Status)
	}
}

func TestStartRequiresAssignee(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Assign(f.task.ID, f.tech.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	other := &store.Technician{DisplayName: "Rival", Active: true}
	f.db.CreateTechnician(other)

	_, err := f.svc.Start(f.task.ID, other.ID, false)
	if fault.KindOf(err) != fault.KindGuardFailed {
		t.Errorf("wrong tech kind = %v, want guard_failed", fault.KindOf(err))
	}
	if _, err := f.svc.Start(f.task.ID, other.ID, true); err != nil {
		t.Errorf("supervisor start should pass: %v", err)
	}
}

func TestCancelClosesOpenIntervention(t *testing.T) {
	f := newFixture(t)
	f.svc.Assign(f.task.ID, f.tech.ID)
	iv, err := f.svc.Start(f.task.ID, f.tech.ID, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	task, err := f.svc.Cancel(f.task.ID, "customer no-show")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if task.Status != store.TaskStatusCancelled {
		t.Errorf("status = %q, want cancelled", task.Status)
	}
	closed, _ := f.db.GetIntervention(iv.ID)
	if closed.EndedAt == nil || closed.ResultStatus != store.ResultCancelled {
		t.Errorf("intervention = %+v, want closed as cancelled", closed)
	}

	_, err = f.svc.Cancel(f.task.ID, "again")
	if fault.KindOf(err) != fault.KindInvalidTransition {
		t.Errorf("double cancel kind = %v, want invalid_transition", fault.KindOf(err))
	}
}

func TestCloseGuardedAndHappy(t *testing.T) {
	f := newFixture(t)

	// Closing with an open task is an invalid transition, before any
	// guard runs.
	_, err := f.svc.Close(f.wo.ID)
	if fault.KindOf(err) != fault.KindInvalidTransition {
		t.Errorf("open-task close kind = %v, want invalid_transition", fault.KindOf(err))
	}

	// Drive the task through with a controlled clock so the logged
	// duration clears the 15 minute floor.
	clock := time.Now().Add(-time.Hour)
	f.svc.now = func() time.Time { return clock }

	f.svc.Assign(f.task.ID, f.tech.ID)
	iv, err := f.svc.Start(f.task.ID, f.tech.ID, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	clock = clock.Add(30 * time.Minute)
	if _, err := f.svc.Complete(f.task.ID, store.ResultOK, "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// No parts and no note: the guard set blocks closure and reports
	// the failing predicate.
	res, err := f.svc.Close(f.wo.ID)
	if fault.KindOf(err) != fault.KindGuardFailed {
		t.Fatalf("close kind = %v, want guard_failed", fault.KindOf(err))
	}
	if res == nil || len(res.Failures) == 0 {
		t.Fatal("guard failure should return the failing checks")
	}
	fe, _ := fault.As(err)
	if fe.PredicateID == "" {
		t.Error("guard fault should name the predicate")
	}

	// Documenting the parts situation unblocks it.
	f.db.AddInterventionNote(&store.InterventionNote{
		InterventionID: iv.ID, Author: "Nadia", Body: "Aucune pièce utilisée, réglage uniquement",
	})
	res, err = f.svc.Close(f.wo.ID)
	if err != nil {
		t.Fatalf("close after note: %v", err)
	}
	if !res.OK {
		t.Errorf("result = %+v, want ok", res)
	}
	wo, _ := f.db.GetWorkOrder(f.wo.ID)
	if wo.Status != store.WOStatusCompleted || wo.ClosedAt == nil {
		t.Errorf("wo = %+v, want completed with closed_at", wo)
	}
	if !f.emitter.has("wo_closed") {
		t.Errorf("missing wo_closed event, got %v", f.emitter.events)
	}

	_, err = f.svc.Close(f.wo.ID)
	if fault.KindOf(err) != fault.KindInvalidTransition {
		t.Errorf("double close kind = %v, want invalid_transition", fault.KindOf(err))
	}
}

func TestCancelWorkOrderSweepsTasks(t *testing.T) {
	f := newFixture(t)
	second, err := f.svc.AddTask(&store.Task{WorkOrderID: f.wo.ID, Title: "Check discs"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	f.svc.Assign(f.task.ID, f.tech.ID)
	f.svc.Start(f.task.ID, f.tech.ID, false)

	if err := f.svc.CancelWorkOrder(f.wo.ID, "vehicle sold"); err != nil {
		t.Fatalf("cancel wo: %v", err)
	}
	wo, _ := f.db.GetWorkOrder(f.wo.ID)
	if wo.Status != store.WOStatusCancelled {
		t.Errorf("wo status = %q, want cancelled", wo.Status)
	}
	for _, id := range []int64{f.task.ID, second.ID} {
		task, _ := f.db.GetTask(id)
		if task.Status != store.TaskStatusCancelled {
			t.Errorf("task %d status = %q, want cancelled", id, task.Status)
		}
	}

	// Adding a task to a cancelled order is rejected.
	_, err = f.svc.AddTask(&store.Task{WorkOrderID: f.wo.ID, Title: "too late"})
	if fault.KindOf(err) != fault.KindInvalidTransition {
		t.Errorf("add-after-cancel kind = %v, want invalid_transition", fault.KindOf(err))
	}
}

func TestDurations(t *testing.T) {
	f := newFixture(t)
	clock := time.Now().Add(-2 * time.Hour)
	f.svc.now = func() time.Time { return clock }

	f.svc.Assign(f.task.ID, f.tech.ID)
	if _, err := f.svc.Start(f.task.ID, f.tech.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock = clock.Add(45 * time.Minute)
	if _, err := f.svc.Complete(f.task.ID, store.ResultOK, "ok"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	total, perTask, err := f.svc.Durations(f.wo.ID)
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if total != 45 {
		t.Errorf("total = %d, want 45", total)
	}
	if perTask[f.task.ID] != 45 {
		t.Errorf("perTask = %v, want 45 for task %d", perTask, f.task.ID)
	}
}
