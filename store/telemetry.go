package store

import (
	"database/sql"
	"fmt"
	"time"
)

type TelemetrySnapshot struct {
	ID                int64     `json:"id"`
	VehicleID         int64     `json:"vehicle_id"`
	RecordedAt        time.Time `json:"recorded_at"`
	OdometerReading   int64     `json:"odometer_reading"`
	EngineHours       float64   `json:"engine_hours"`
	UsageIntensity    float64   `json:"usage_intensity"`
	AvgTemperature    float64   `json:"avg_temperature"`
	VibrationLevel    float64   `json:"vibration_level"`
	OilPressure       float64   `json:"oil_pressure"`
	BrakeWearPct      float64   `json:"brake_wear_pct"`
	TireWearPct       float64   `json:"tire_wear_pct"`
	HarshBraking      int       `json:"harsh_braking"`
	HarshAcceleration int       `json:"harsh_acceleration"`
	OverspeedMinutes  int       `json:"overspeed_minutes"`
	GPSLat            *float64  `json:"gps_lat,omitempty"`
	GPSLng            *float64  `json:"gps_lng,omitempty"`
	Source            string    `json:"source"`
	DataQualityScore  float64   `json:"data_quality_score"`
	CreatedAt         time.Time `json:"created_at"`
}

// SamePayload reports whether two snapshots carry identical sensor data,
// ignoring ids and ingest bookkeeping. Used for replay detection.
func (s *TelemetrySnapshot) SamePayload(o *TelemetrySnapshot) bool {
	if s.OdometerReading != o.OdometerReading || s.EngineHours != o.EngineHours ||
		s.UsageIntensity != o.UsageIntensity || s.AvgTemperature != o.AvgTemperature ||
		s.VibrationLevel != o.VibrationLevel || s.OilPressure != o.OilPressure ||
		s.BrakeWearPct != o.BrakeWearPct || s.TireWearPct != o.TireWearPct ||
		s.HarshBraking != o.HarshBraking || s.HarshAcceleration != o.HarshAcceleration ||
		s.OverspeedMinutes != o.OverspeedMinutes || s.Source != o.Source {
		return false
	}
	return true
}

type FleetSummary struct {
	VehicleID       int64   `json:"vehicle_id"`
	LatestOdometer  int64   `json:"latest_odometer"`
	AvgIntensity    float64 `json:"avg_intensity"`
	AvgTemperature  float64 `json:"avg_temperature"`
	AvgVibration    float64 `json:"avg_vibration"`
	AvgOilPressure  float64 `json:"avg_oil_pressure"`
	MaxBrakeWearPct float64 `json:"max_brake_wear_pct"`
	MaxTireWearPct  float64 `json:"max_tire_wear_pct"`
	HarshEvents     int     `json:"harsh_events"`
	SnapshotCount   int     `json:"snapshot_count"`
}

const telemetrySelectCols = `id, vehicle_id, recorded_at, odometer_reading, engine_hours, usage_intensity, avg_temperature, vibration_level, oil_pressure, brake_wear_pct, tire_wear_pct, harsh_braking, harsh_acceleration, overspeed_minutes, gps_lat, gps_lng, source, data_quality_score, created_at`

func scanSnapshot(row interface{ Scan(...any) error }) (*TelemetrySnapshot, error) {
	var s TelemetrySnapshot
	var gpsLat, gpsLng sql.NullFloat64
	var recordedAt, createdAt any

	err := row.Scan(&s.ID, &s.VehicleID, &recordedAt, &s.OdometerReading, &s.EngineHours,
		&s.UsageIntensity, &s.AvgTemperature, &s.VibrationLevel, &s.OilPressure,
		&s.BrakeWearPct, &s.TireWearPct, &s.HarshBraking, &s.HarshAcceleration,
		&s.OverspeedMinutes, &gpsLat, &gpsLng, &s.Source, &s.DataQualityScore, &createdAt)
	if err != nil {
		return nil, err
	}
	if gpsLat.Valid {
		s.GPSLat = &gpsLat.Float64
	}
	if gpsLng.Valid {
		s.GPSLng = &gpsLng.Float64
	}
	s.RecordedAt = parseTime(recordedAt)
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func scanSnapshots(rows *sql.Rows) ([]*TelemetrySnapshot, error) {
	var snaps []*TelemetrySnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (db *DB) InsertSnapshot(s *TelemetrySnapshot) error {
	var gpsLat, gpsLng any
	if s.GPSLat != nil {
		gpsLat = *s.GPSLat
	}
	if s.GPSLng != nil {
		gpsLng = *s.GPSLng
	}
	result, err := db.Exec(db.Q(`INSERT INTO telemetry_snapshots (vehicle_id, recorded_at, odometer_reading, engine_hours, usage_intensity, avg_temperature, vibration_level, oil_pressure, brake_wear_pct, tire_wear_pct, harsh_braking, harsh_acceleration, overspeed_minutes, gps_lat, gps_lng, source, data_quality_score) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.VehicleID, fmtTime(s.RecordedAt), s.OdometerReading, s.EngineHours,
		s.UsageIntensity, s.AvgTemperature, s.VibrationLevel, s.OilPressure,
		s.BrakeWearPct, s.TireWearPct, s.HarshBraking, s.HarshAcceleration,
		s.OverspeedMinutes, gpsLat, gpsLng, s.Source, s.DataQualityScore)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert snapshot last id: %w", err)
	}
	s.ID = id
	return nil
}

func (db *DB) GetSnapshotAt(vehicleID int64, recordedAt time.Time) (*TelemetrySnapshot, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM telemetry_snapshots WHERE vehicle_id=? AND recorded_at=? LIMIT 1`, telemetrySelectCols)),
		vehicleID, fmtTime(recordedAt))
	return scanSnapshot(row)
}

func (db *DB) LatestSnapshot(vehicleID int64) (*TelemetrySnapshot, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM telemetry_snapshots WHERE vehicle_id=? ORDER BY recorded_at DESC LIMIT 1`, telemetrySelectCols)), vehicleID)
	return scanSnapshot(row)
}

// SnapshotBefore returns the newest snapshot recorded at or before the
// given instant.
func (db *DB) SnapshotBefore(vehicleID int64, before time.Time) (*TelemetrySnapshot, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM telemetry_snapshots WHERE vehicle_id=? AND recorded_at<=? ORDER BY recorded_at DESC LIMIT 1`, telemetrySelectCols)),
		vehicleID, fmtTime(before))
	return scanSnapshot(row)
}

func (db *DB) SnapshotWindow(vehicleID int64, from, to time.Time) ([]*TelemetrySnapshot, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM telemetry_snapshots WHERE vehicle_id=? AND recorded_at>=? AND recorded_at<=? ORDER BY recorded_at`, telemetrySelectCols)),
		vehicleID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// FleetSummaries aggregates telemetry per vehicle since the given instant.
func (db *DB) FleetSummaries(since time.Time) ([]*FleetSummary, error) {
	rows, err := db.Query(db.Q(`SELECT vehicle_id, MAX(odometer_reading), AVG(usage_intensity), AVG(avg_temperature), AVG(vibration_level), AVG(oil_pressure), MAX(brake_wear_pct), MAX(tire_wear_pct), SUM(harsh_braking + harsh_acceleration), COUNT(*) FROM telemetry_snapshots WHERE recorded_at>=? GROUP BY vehicle_id ORDER BY vehicle_id`),
		fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sums []*FleetSummary
	for rows.Next() {
		var fs FleetSummary
		if err := rows.Scan(&fs.VehicleID, &fs.LatestOdometer, &fs.AvgIntensity,
			&fs.AvgTemperature, &fs.AvgVibration, &fs.AvgOilPressure,
			&fs.MaxBrakeWearPct, &fs.MaxTireWearPct, &fs.HarshEvents, &fs.SnapshotCount); err != nil {
			return nil, err
		}
		sums = append(sums, &fs)
	}
	return sums, rows.Err()
}
