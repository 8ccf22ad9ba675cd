package tracking

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"fieldcore/config"
	"fieldcore/fault"
	"fieldcore/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testDB(t *testing.T) *store.DB {
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
	return db
}

func seedWorkOrder(t *testing.T, db *store.DB) *store.WorkOrder {
	t.Helper()
	c := &store.Customer{DisplayName: "Garage Petit"}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	wo := &store.WorkOrder{ClaimNumber: "WO-" + strings.ToUpper(uuid.NewString()[:8]), CustomerID: c.ID, Priority: store.PriorityMedium, Status: store.WOStatusPending}
	if err := db.CreateWorkOrder(wo); err != nil {
		t.Fatalf("seed work order: %v", err)
	}
	return wo
}

func TestMintAndVerify(t *testing.T) {
	db := testDB(t)
	wo := seedWorkOrder(t, db)
	svc := NewService(db, testSecret, 7)

	mint, err := svc.Mint(wo.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !strings.Contains(mint.URL, "/track?wo=") || !strings.Contains(mint.URL, "token=") {
		t.Errorf("URL = %q, want tracking link", mint.URL)
	}
	if !svc.Verify(wo.ID, mint.Token, "10.0.0.1", "test-agent") {
		t.Fatal("fresh token should verify")
	}

	// Access accounting happens on successful verification.
	row, err := db.GetClientToken(wo.ID)
	if err != nil {
		t.Fatalf("token row: %v", err)
	}
	if row.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", row.AccessCount)
	}
	accesses, err := db.ListClientAccess(wo.ID, 10)
	if err != nil {
		t.Fatalf("access log: %v", err)
	}
	if len(accesses) != 1 || accesses[0].IPAddress != "10.0.0.1" {
		t.Errorf("access log = %+v, want one row from 10.0.0.1", accesses)
	}
}

func TestVerifyRejections(t *testing.T) {
	db := testDB(t)
	wo := seedWorkOrder(t, db)
	other := seedWorkOrder(t, db)
	svc := NewService(db, testSecret, 7)

	mint, err := svc.Mint(wo.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if svc.Verify(wo.ID, "not-base64!!!", "", "") {
		t.Error("garbage token should not verify")
	}
	if svc.Verify(other.ID, mint.Token, "", "") {
		t.Error("token bound to another work order should not verify")
	}
	if svc.Verify(wo.ID, mint.Token+"x", "", "") {
		t.Error("tampered token should not verify")
	}

	// A re-mint invalidates the previous token.
	mint2, err := svc.Mint(wo.ID)
	if err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if svc.Verify(wo.ID, mint.Token, "", "") {
		t.Error("superseded token should not verify")
	}
	if !svc.Verify(wo.ID, mint2.Token, "", "") {
		t.Error("current token should verify")
	}
}

func TestVerifyExpiry(t *testing.T) {
	db := testDB(t)
	wo := seedWorkOrder(t, db)
	svc := NewService(db, testSecret, 7)

	clock := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	mint, err := svc.Mint(wo.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if want := clock.AddDate(0, 0, 7); !mint.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", mint.ExpiresAt, want)
	}

	clock = clock.AddDate(0, 0, 6)
	if !svc.Verify(wo.ID, mint.Token, "", "") {
		t.Error("token should verify one day before expiry")
	}

	clock = clock.AddDate(0, 0, 2)
	if svc.Verify(wo.ID, mint.Token, "", "") {
		t.Error("token should not verify past expiry")
	}

	// The sweep removes the now-expired row.
	n, err := svc.SweepExpired()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
}

func TestVerifyRevoked(t *testing.T) {
	db := testDB(t)
	wo := seedWorkOrder(t, db)
	svc := NewService(db, testSecret, 7)

	mint, err := svc.Mint(wo.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := svc.Revoke(wo.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if svc.Verify(wo.ID, mint.Token, "", "") {
		t.Error("revoked token should not verify")
	}
}

func TestProgressPercent(t *testing.T) {
	cases := map[string]int{
		store.WOStatusDraft:      5,
		store.WOStatusPending:    10,
		store.WOStatusAssigned:   20,
		store.WOStatusInProgress: 60,
		store.WOStatusCompleted:  100,
		store.WOStatusCancelled:  0,
	}
	for status, want := range cases {
		if got := progressPercent(status); got != want {
			t.Errorf("progressPercent(%q) = %d, want %d", status, got, want)
		}
	}
}

func TestVerifyAndProgress(t *testing.T) {
	db := testDB(t)
	wo := seedWorkOrder(t, db)
	svc := NewService(db, testSecret, 7)

	task := &store.Task{WorkOrderID: wo.ID, Title: "Inspect brakes"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	tech := &store.Technician{DisplayName: "Claire", Active: true}
	if err := db.CreateTechnician(tech); err != nil {
		t.Fatalf("create tech: %v", err)
	}
	iv := &store.Intervention{TaskID: task.ID, WorkOrderID: wo.ID, TechnicianID: tech.ID, StartedAt: time.Now()}
	if err := db.CreateIntervention(iv); err != nil {
		t.Fatalf("create intervention: %v", err)
	}
	db.AddInterventionNote(&store.InterventionNote{InterventionID: iv.ID, Author: "Claire", Body: "Parts ordered, back tomorrow", Visibility: "customer"})
	db.AddInterventionNote(&store.InterventionNote{InterventionID: iv.ID, Author: "Claire", Body: "customer was difficult"})

	mint, err := svc.Mint(wo.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	view, err := svc.VerifyAndProgress(wo.ID, mint.Token, "10.0.0.2", "test-agent")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if view.ProgressPercent != 10 {
		t.Errorf("ProgressPercent = %d, want 10 for pending", view.ProgressPercent)
	}
	if len(view.Tasks) != 1 || view.Tasks[0].Title != "Inspect brakes" {
		t.Errorf("Tasks = %+v", view.Tasks)
	}
	// Internal notes never reach the customer view.
	if len(view.CustomerVisibleNotes) != 1 || view.CustomerVisibleNotes[0] != "Parts ordered, back tomorrow" {
		t.Errorf("CustomerVisibleNotes = %v", view.CustomerVisibleNotes)
	}

	_, err = svc.VerifyAndProgress(wo.ID, "bogus", "", "")
	if fault.KindOf(err) != fault.KindUnauthorized {
		t.Errorf("bad token kind = %v, want unauthorized", fault.KindOf(err))
	}
}
