// Package telemetry ingests vehicle sensor snapshots and serves
// windows and fleet aggregates over them.
package telemetry

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldcore/fault"
	"fieldcore/store"
)

// Thresholds above/below which a snapshot is considered critical.
const (
	criticalBrakeWearPct = 80.0
	criticalTireWearPct  = 85.0
	criticalOilPressure  = 25.0
)

const maxFutureSkew = 5 * time.Minute

// Emitter receives telemetry notifications. Implementations must not
// block; the service calls them from short-lived goroutines.
type Emitter interface {
	TelemetryIngested(vehicleID, snapshotID int64)
	TelemetryCritical(vehicleID, snapshotID int64, reasons []string)
}

type Service struct {
	db      *store.DB
	emitter Emitter
	now     func() time.Time
}

func NewService(db *store.DB, emitter Emitter) *Service {
	return &Service{db: db, emitter: emitter, now: time.Now}
}

// CriticalReasons reports which sensor readings cross the critical
// thresholds, empty when none do.
func CriticalReasons(s *store.TelemetrySnapshot) []string {
	var reasons []string
	if s.BrakeWearPct > criticalBrakeWearPct {
		reasons = append(reasons, fmt.Sprintf("brake wear %.1f%%", s.BrakeWearPct))
	}
	if s.TireWearPct > criticalTireWearPct {
		reasons = append(reasons, fmt.Sprintf("tire wear %.1f%%", s.TireWearPct))
	}
	if s.OilPressure < criticalOilPressure {
		reasons = append(reasons, fmt.Sprintf("oil pressure %.1f psi", s.OilPressure))
	}
	return reasons
}

// Ingest validates and stores one snapshot. A replay of an already
// stored (vehicle, recorded_at) payload returns the stored row without
// inserting; the same instant with a differing payload is a distinct
// reading and is stored.
func (s *Service) Ingest(snap *store.TelemetrySnapshot) (*store.TelemetrySnapshot, error) {
	if snap.VehicleID == 0 {
		return nil, fault.InvalidInput("vehicle_id is required")
	}
	if _, err := s.db.GetVehicle(snap.VehicleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("vehicle %d not found", snap.VehicleID)
		}
		return nil, fault.Internal(err)
	}
	if snap.DataQualityScore < 0 || snap.DataQualityScore > 1 {
		return nil, fault.InvalidInput("data_quality_score must be between 0 and 1")
	}
	now := s.now()
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = now
	}
	if snap.RecordedAt.After(now.Add(maxFutureSkew)) {
		return nil, fault.InvalidInput("recorded_at is in the future")
	}
	if snap.Source == "" {
		snap.Source = "iot_live"
	}

	existing, err := s.db.GetSnapshotAt(snap.VehicleID, snap.RecordedAt)
	if err == nil && existing.SamePayload(snap) {
		log.Printf("telemetry: replay for vehicle %d at %s, returning stored snapshot %d",
			snap.VehicleID, snap.RecordedAt.Format(time.RFC3339), existing.ID)
		return existing, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Internal(err)
	}

	if err := s.db.InsertSnapshot(snap); err != nil {
		return nil, fault.Internal(err)
	}
	if err := s.db.UpdateVehicleSnapshot(snap.VehicleID, snap.ID, snap.OdometerReading); err != nil {
		log.Printf("telemetry: update vehicle %d snapshot pointer: %v", snap.VehicleID, err)
	}

	if s.emitter != nil {
		reasons := CriticalReasons(snap)
		go func() {
			s.emitter.TelemetryIngested(snap.VehicleID, snap.ID)
			if len(reasons) > 0 {
				s.emitter.TelemetryCritical(snap.VehicleID, snap.ID, reasons)
			}
		}()
	}
	return snap, nil
}

// LatestFor returns the most recent snapshot for a vehicle.
func (s *Service) LatestFor(vehicleID int64) (*store.TelemetrySnapshot, error) {
	snap, err := s.db.LatestSnapshot(vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("no telemetry for vehicle %d", vehicleID)
	}
	if err != nil {
		return nil, fault.Internal(err)
	}
	return snap, nil
}

// Window returns snapshots in [from, to] ascending by recorded_at.
func (s *Service) Window(vehicleID int64, from, to time.Time) ([]*store.TelemetrySnapshot, error) {
	if to.Before(from) {
		return nil, fault.InvalidInput("window end precedes start")
	}
	snaps, err := s.db.SnapshotWindow(vehicleID, from, to)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return snaps, nil
}

// AggregateFleet summarizes per-vehicle telemetry over the trailing
// period.
func (s *Service) AggregateFleet(since time.Time) ([]*store.FleetSummary, error) {
	sums, err := s.db.FleetSummaries(since)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return sums, nil
}
