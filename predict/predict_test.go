package predict

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldcore/config"
	"fieldcore/store"
)

type mockEmitter struct {
	made []string
}

func (m *mockEmitter) PredictionMade(vehicleID, predictionID int64, riskLevel string) {
	m.made = append(m.made, riskLevel)
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
	c := &store.Customer{DisplayName: "Livraisons Sud"}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	v := &store.Vehicle{CustomerID: c.ID, Make: "Peugeot", Model: "Boxer", Year: 2019, Odometer: 60000}
	if err := db.CreateVehicle(v); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return v
}

// --- Rule engine ---

func TestRuleDaysFormula(t *testing.T) {
	var fv FeatureVector
	// A fresh vehicle gets the full default interval.
	if got := ruleDays(fv); got != 90 {
		t.Errorf("zero vector days = %d, want 90", got)
	}

	// 100k km, intensity 5, 180 days since maintenance:
	// mfac=2, ufac=0.5, afac=0.493; adj=1-(0.6+0.1+0.0493)=0.2507 -> 23.
	fv[fOdometer] = 100_000
	fv[fUsageIntensity] = 5
	fv[fDaysSinceMaintenance] = 180
	if got := ruleDays(fv); got != 23 {
		t.Errorf("worn vehicle days = %d, want 23", got)
	}

	// The adjustment never drops below the 10% floor.
	fv[fOdometer] = 1_000_000
	fv[fUsageIntensity] = 10
	fv[fDaysSinceMaintenance] = 1000
	if got := ruleDays(fv); got != 9 {
		t.Errorf("floored days = %d, want 9", got)
	}
}

func TestRuleAnomaly(t *testing.T) {
	healthy := FeatureVector{}
	healthy[fOilPressure] = 40
	if ruleAnomaly(healthy) {
		t.Error("healthy vector should not be anomalous")
	}
	cases := []func(*FeatureVector){
		func(fv *FeatureVector) { fv[fBrakeWearPct] = 81 },
		func(fv *FeatureVector) { fv[fTireWearPct] = 86 },
		func(fv *FeatureVector) { fv[fOilPressure] = 24 },
		func(fv *FeatureVector) { fv[fDaysSinceMaintenance] = 400 },
	}
	for i, mut := range cases {
		fv := healthy
		mut(&fv)
		if !ruleAnomaly(fv) {
			t.Errorf("case %d should be anomalous", i)
		}
	}
}

func TestRiskLevelMonotone(t *testing.T) {
	want := map[int]string{1: "critical", 7: "critical", 8: "high", 14: "high", 15: "medium", 30: "medium", 31: "low", 120: "low"}
	for days, level := range want {
		if got := riskLevel(days); got != level {
			t.Errorf("riskLevel(%d) = %q, want %q", days, got, level)
		}
	}
	// Monotone: more days never increases risk rank.
	rank := map[string]int{"critical": 3, "high": 2, "medium": 1, "low": 0}
	prev := rank[riskLevel(1)]
	for d := 2; d <= 60; d++ {
		cur := rank[riskLevel(d)]
		if cur > prev {
			t.Fatalf("risk increased from %d to %d days", d-1, d)
		}
		prev = cur
	}
}

func TestRuleRiskAnomalyEscalation(t *testing.T) {
	cases := []struct {
		days    int
		anomaly bool
		want    string
	}{
		{22, false, "medium"},
		{22, true, "high"},
		{40, true, "high"},
		{5, true, "critical"},
		{10, true, "high"},
		{40, false, "low"},
	}
	for _, tc := range cases {
		if got := ruleRisk(tc.days, tc.anomaly); got != tc.want {
			t.Errorf("ruleRisk(%d, %v) = %q, want %q", tc.days, tc.anomaly, got, tc.want)
		}
	}

	// A lightly used vehicle with worn brakes: the interval formula
	// alone lands well past 14 days, but the anomaly keeps the risk up.
	var fv FeatureVector
	fv[fOdometer] = 150_000
	fv[fUsageIntensity] = 8
	fv[fBrakeWearPct] = 90
	days := ruleDays(fv)
	if days <= 14 {
		t.Fatalf("ruleDays = %d, expected the formula to exceed the high band", days)
	}
	if got := ruleRisk(days, ruleAnomaly(fv)); got != "high" {
		t.Errorf("worn-brake vehicle risk = %q, want high", got)
	}
}

func TestRecommendations(t *testing.T) {
	var fv FeatureVector
	fv[fOilPressure] = 40
	if recs := recommendations(fv, false); len(recs) != 0 {
		t.Errorf("healthy vector recs = %v, want none", recs)
	}

	fv[fBrakeWearPct] = 76
	fv[fTireWearPct] = 81
	fv[fOilPressure] = 29
	recs := recommendations(fv, true)
	if len(recs) != 4 {
		t.Fatalf("recs = %d, want 4", len(recs))
	}
	codes := map[string]bool{}
	for _, r := range recs {
		codes[r.ActionCode] = true
	}
	for _, want := range []string{"check_brakes", "replace_tires", "check_oil", "schedule_inspection"} {
		if !codes[want] {
			t.Errorf("missing action code %s in %v", want, codes)
		}
	}
}

// --- Model ---

func syntheticRows(n int) ([]FeatureVector, []float64) {
	rows := make([]FeatureVector, n)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		var fv FeatureVector
		fv[fOdometer] = float64(20000 + i*1500)
		fv[fEngineHours] = float64(800 + i*40)
		fv[fUsageIntensity] = float64(i%10) + 1
		fv[fDaysSinceMaintenance] = float64(30 + i*3)
		fv[fAvgDailyUsage] = fv[fOdometer] / (fv[fDaysSinceMaintenance] + 1)
		fv[fAvgTemperature] = 20 + float64(i%5)
		fv[fVibrationLevel] = float64(i%7) / 2
		fv[fOilPressure] = 45 - float64(i%20)
		fv[fBrakeWearPct] = float64(i % 90)
		fv[fTireWearPct] = float64((i * 2) % 90)
		rows[i] = fv
		// Linear ground truth the regressor can recover.
		labels[i] = 90 - 0.4*fv[fDaysSinceMaintenance] - 0.2*fv[fBrakeWearPct] + 0.1*fv[fUsageIntensity]
		if labels[i] < 1 {
			labels[i] = 1
		}
	}
	return rows, labels
}

func TestFitModelRecoversLinearSignal(t *testing.T) {
	rows, labels := syntheticRows(120)
	m, err := fitModel(rows, labels, 0.1)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	mae, r2 := evaluate(m, rows, labels)
	if mae > 3 {
		t.Errorf("mae = %.2f, want under 3 on linear data", mae)
	}
	if r2 < 0.9 {
		t.Errorf("r2 = %.3f, want over 0.9 on linear data", r2)
	}
	if m.AnomalyThreshold <= 0 {
		t.Errorf("anomaly threshold = %v, want positive", m.AnomalyThreshold)
	}
}

func TestFitModelRejectsTinySets(t *testing.T) {
	rows, labels := syntheticRows(5)
	if _, err := fitModel(rows, labels, 0.1); err == nil {
		t.Error("fit should fail below the row floor")
	}
}

func TestConfidenceBands(t *testing.T) {
	m := &Model{AnomalyThreshold: 2}

	// Nominal band: 85-95, higher score means lower confidence.
	if got := m.Confidence(0); got != 95 {
		t.Errorf("Confidence(0) = %v, want 95", got)
	}
	if got := m.Confidence(2); got != 85 {
		t.Errorf("Confidence(threshold) = %v, want 85", got)
	}
	// Outlier band: 50-65.
	if got := m.Confidence(3); got != 57.5 {
		t.Errorf("Confidence(1.5x) = %v, want 57.5", got)
	}
	if got := m.Confidence(100); got != 50 {
		t.Errorf("Confidence(far) = %v, want 50", got)
	}
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	rows, labels := syntheticRows(60)
	m, err := fitModel(rows, labels, 0.1)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := saveModel(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := loadModel(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TrainedRows != m.TrainedRows || math.Abs(loaded.Intercept-m.Intercept) > 1e-9 {
		t.Errorf("loaded model differs: %+v vs %+v", loaded, m)
	}
}

// --- Service ---

func TestPredictRuleFallbackCriticalVehicle(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	em := &mockEmitter{}
	svc := NewService(db, em, 0.1, "")

	// Heavy wear: brake 90%, long since maintenance.
	snap := &store.TelemetrySnapshot{
		VehicleID:       v.ID,
		RecordedAt:      time.Now().Add(-time.Hour),
		OdometerReading: 150000,
		EngineHours:     5000,
		UsageIntensity:  8,
		OilPressure:     40,
		BrakeWearPct:    90,
		Source:          "iot_live",
	}
	if err := db.InsertSnapshot(snap); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}

	pred, err := svc.Predict(v.ID)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	rec := pred.Record
	if rec.ModelKind != store.ModelKindRuleEngine {
		t.Errorf("ModelKind = %q, want rule_engine without a model", rec.ModelKind)
	}
	if !rec.AnomalyDetected {
		t.Error("brake wear 90%% should flag an anomaly")
	}
	if rec.Confidence != 60 {
		t.Errorf("Confidence = %v, want 60 for rule anomaly", rec.Confidence)
	}
	if rec.RiskLevel != store.RiskCritical && rec.RiskLevel != store.RiskHigh {
		t.Errorf("RiskLevel = %q, want critical or high", rec.RiskLevel)
	}
	var hasBrakes bool
	for _, r := range pred.Recommendations {
		if r.ActionCode == "check_brakes" {
			hasBrakes = true
		}
	}
	if !hasBrakes {
		t.Errorf("recommendations %v missing check_brakes", pred.Recommendations)
	}

	// Persisted and emitted.
	stored, err := db.LatestPrediction(v.ID)
	if err != nil {
		t.Fatalf("latest prediction: %v", err)
	}
	if stored.ID != rec.ID {
		t.Errorf("stored prediction %d, want %d", stored.ID, rec.ID)
	}
	if len(em.made) != 1 {
		t.Errorf("emitted %d prediction events, want 1", len(em.made))
	}

	// No work order appears as a side effect of predicting.
	orders, _ := db.ListWorkOrders(store.WorkOrderFilter{})
	if len(orders) != 0 {
		t.Errorf("predict created %d work orders, want 0", len(orders))
	}
}

func TestPredictNoTelemetryUsesDefaults(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	svc := NewService(db, nil, 0.1, "")

	pred, err := svc.Predict(v.ID)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.Record.DaysToMaintenance != 90 {
		t.Errorf("days = %d, want the 90 day default with no features", pred.Record.DaysToMaintenance)
	}
	if pred.Record.RiskLevel != store.RiskLow {
		t.Errorf("risk = %q, want low", pred.Record.RiskLevel)
	}
}

func TestPredictFleetPriorityFilter(t *testing.T) {
	db := testDB(t)
	v := seedVehicle(t, db)
	svc := NewService(db, nil, 0.1, "")

	snap := &store.TelemetrySnapshot{
		VehicleID:       v.ID,
		RecordedAt:      time.Now().Add(-time.Hour),
		OdometerReading: 200000,
		UsageIntensity:  9,
		OilPressure:     20,
		BrakeWearPct:    90,
		Source:          "iot_live",
	}
	db.InsertSnapshot(snap)

	all, err := svc.PredictFleet(0, "")
	if err != nil {
		t.Fatalf("fleet: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("fleet = %d predictions, want 1", len(all))
	}

	none, err := svc.PredictFleet(0, "low")
	if err != nil {
		t.Fatalf("fleet filtered: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("low-priority fleet = %d, want 0 for a critical vehicle", len(none))
	}
}
