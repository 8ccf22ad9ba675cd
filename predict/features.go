package predict

import (
	"database/sql"
	"errors"
	"time"

	"fieldcore/store"
)

// Feature indices. Order is fixed; the scaler and model weights are
// positional.
const (
	fOdometer = iota
	fEngineHours
	fUsageIntensity
	fDaysSinceMaintenance
	fAvgDailyUsage
	fAvgTemperature
	fVibrationLevel
	fOilPressure
	fBrakeWearPct
	fTireWearPct
	numFeatures
)

var featureNames = [numFeatures]string{
	"odometer", "engine_hours", "usage_intensity", "days_since_last_maintenance",
	"avg_daily_usage", "avg_temperature", "vibration_level", "oil_pressure",
	"brake_wear_pct", "tire_wear_pct",
}

type FeatureVector [numFeatures]float64

func (fv FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, numFeatures)
	for i, name := range featureNames {
		m[name] = fv[i]
	}
	return m
}

// buildFeatures composes the vector from the latest snapshot plus
// maintenance history. Missing readings impute to zero.
func buildFeatures(db *store.DB, vehicleID int64, now time.Time) (FeatureVector, *store.TelemetrySnapshot, error) {
	var fv FeatureVector

	snap, err := db.LatestSnapshot(vehicleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			snap = nil
		} else {
			return fv, nil, err
		}
	}
	if snap != nil {
		fv[fOdometer] = float64(snap.OdometerReading)
		fv[fEngineHours] = snap.EngineHours
		fv[fUsageIntensity] = snap.UsageIntensity
		fv[fAvgTemperature] = snap.AvgTemperature
		fv[fVibrationLevel] = snap.VibrationLevel
		fv[fOilPressure] = snap.OilPressure
		fv[fBrakeWearPct] = snap.BrakeWearPct
		fv[fTireWearPct] = snap.TireWearPct
	}

	last, err := lastMaintenanceAt(db, vehicleID)
	if err != nil {
		return fv, nil, err
	}
	if !last.IsZero() {
		days := now.Sub(last).Hours() / 24
		if days < 0 {
			days = 0
		}
		fv[fDaysSinceMaintenance] = days
		if days >= 1 && snap != nil {
			fv[fAvgDailyUsage] = float64(snap.OdometerReading) / days
		}
	}
	return fv, snap, nil
}

// lastMaintenanceAt returns the close time of the most recent completed
// work order for the vehicle, zero when none exists.
func lastMaintenanceAt(db *store.DB, vehicleID int64) (time.Time, error) {
	orders, err := db.ListWorkOrders(store.WorkOrderFilter{
		Status:    store.WOStatusCompleted,
		VehicleID: vehicleID,
		Limit:     1,
	})
	if err != nil {
		return time.Time{}, err
	}
	if len(orders) == 0 || orders[0].ClosedAt == nil {
		return time.Time{}, nil
	}
	return *orders[0].ClosedAt, nil
}
