package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldcore/config"
	"fieldcore/fault"
	"fieldcore/store"
)

type mockEmitter struct {
	ingested chan int64
	critical chan []string
}

func newMockEmitter() *mockEmitter {
	return &mockEmitter{ingested: make(chan int64, 8), critical: make(chan []string, 8)}
}

func (m *mockEmitter) TelemetryIngested(vehicleID, snapshotID int64) { m.ingested <- snapshotID }
func (m *mockEmitter) TelemetryCritical(vehicleID, snapshotID int64, reasons []string) {
	m.critical <- reasons
}

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

func seedVehicle(t *testing.T, db *store.DB) *store.Vehicle {
	t.Helper()
	c := &store.Customer{DisplayName: "Depot Est"}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	v := &store.Vehicle{CustomerID: c.ID, Make: "Iveco", Model: "Daily", Year: 2020, Odometer: 80000}
	if err := db.CreateVehicle(v); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return v
}

func snapshotFor(v *store.Vehicle, at time.Time) *store.TelemetrySnapshot {
	return &store.TelemetrySnapshot{
		VehicleID:        v.ID,
		RecordedAt:       at,
		OdometerReading:  80100,
		EngineHours:      3100,
		OilPressure:      40,
		BrakeWearPct:     30,
		TireWearPct:      20,
		DataQualityScore: 0.95,
		Source:           "iot_live",
	}
}

func TestIngestValidation(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	svc := NewService(db, nil)

	_, err := svc.Ingest(&store.TelemetrySnapshot{})
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("missing vehicle kind = %v, want invalid_input", fault.KindOf(err))
	}

	_, err = svc.Ingest(&store.TelemetrySnapshot{VehicleID: 9999})
	if fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("unknown vehicle kind = %v, want not_found", fault.KindOf(err))
	}

	bad := snapshotFor(v, time.Now())
	bad.DataQualityScore = 1.5
	_, err = svc.Ingest(bad)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("bad quality kind = %v, want invalid_input", fault.KindOf(err))
	}

	future := snapshotFor(v, time.Now().Add(time.Hour))
	_, err = svc.Ingest(future)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("future snapshot kind = %v, want invalid_input", fault.KindOf(err))
	}
}

func TestIngestStoresAndAdvancesVehicle(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	em := newMockEmitter()
	svc := NewService(db, em)

	snap := snapshotFor(v, time.Now().Add(-time.Minute))
	stored, err := svc.Ingest(snap)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored.ID == 0 {
		t.Fatal("snapshot ID should be assigned")
	}

	select {
	case id := <-em.ingested:
		if id != stored.ID {
			t.Errorf("ingested event snapshot = %d, want %d", id, stored.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no ingested event")
	}

	// The vehicle row tracks the newest snapshot and odometer.
	got, _ := db.GetVehicle(v.ID)
	if got.LastSnapshotID == nil || *got.LastSnapshotID != stored.ID {
		t.Errorf("LastSnapshotID = %v, want %d", got.LastSnapshotID, stored.ID)
	}
	if got.Odometer != snap.OdometerReading {
		t.Errorf("Odometer = %d, want %d", got.Odometer, snap.OdometerReading)
	}

	select {
	case reasons := <-em.critical:
		t.Errorf("healthy snapshot should not be critical, got %v", reasons)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIngestReplayIdempotent(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	svc := NewService(db, nil)

	at := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	first, err := svc.Ingest(snapshotFor(v, at))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	replay, err := svc.Ingest(snapshotFor(v, at))
	if err != nil {
		t.Fatalf("replay ingest: %v", err)
	}
	if replay.ID != first.ID {
		t.Errorf("replay stored a new row %d, want %d", replay.ID, first.ID)
	}

	// Same instant, different payload: a distinct reading.
	changed := snapshotFor(v, at)
	changed.BrakeWearPct = 55
	second, err := svc.Ingest(changed)
	if err != nil {
		t.Fatalf("changed ingest: %v", err)
	}
	if second.ID == first.ID {
		t.Error("differing payload should insert a new snapshot")
	}
}

func TestIngestCriticalEmits(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	em := newMockEmitter()
	svc := NewService(db, em)

	snap := snapshotFor(v, time.Now())
	snap.BrakeWearPct = 90
	snap.OilPressure = 20
	if _, err := svc.Ingest(snap); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	select {
	case reasons := <-em.critical:
		if len(reasons) != 2 {
			t.Errorf("reasons = %v, want brake wear and oil pressure", reasons)
		}
	case <-time.After(time.Second):
		t.Fatal("no critical event")
	}
}

func TestCriticalReasonsThresholds(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*store.TelemetrySnapshot)
		want int
	}{
		{"healthy", func(s *store.TelemetrySnapshot) {}, 0},
		{"brake at threshold", func(s *store.TelemetrySnapshot) { s.BrakeWearPct = 80 }, 0},
		{"brake above", func(s *store.TelemetrySnapshot) { s.BrakeWearPct = 80.1 }, 1},
		{"tire above", func(s *store.TelemetrySnapshot) { s.TireWearPct = 86 }, 1},
		{"oil below", func(s *store.TelemetrySnapshot) { s.OilPressure = 24 }, 1},
		{"all three", func(s *store.TelemetrySnapshot) {
			s.BrakeWearPct = 95
			s.TireWearPct = 90
			s.OilPressure = 10
		}, 3},
	}
	for _, tc := range cases {
		s := &store.TelemetrySnapshot{OilPressure: 40}
		tc.mut(s)
		if got := CriticalReasons(s); len(got) != tc.want {
			t.Errorf("%s: reasons = %v, want %d", tc.name, got, tc.want)
		}
	}
}

func TestWindowValidation(t *testing.T) {
	db := testDB(t)
	seedVehicle(t, db)
	svc := NewService(db, nil)

	now := time.Now()
	_, err := svc.Window(1, now, now.Add(-time.Hour))
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Errorf("inverted window kind = %v, want invalid_input", fault.KindOf(err))
	}
}
