package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Vehicle struct {
	ID             int64     `json:"id"`
	CustomerID     int64     `json:"customer_id"`
	Make           string    `json:"make"`
	Model          string    `json:"model"`
	Year           int       `json:"year"`
	VIN            string    `json:"vin"`
	LicensePlate   string    `json:"license_plate"`
	Odometer       int64     `json:"odometer"`
	FuelType       string    `json:"fuel_type"`
	LastSnapshotID *int64    `json:"last_snapshot_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const vehicleSelectCols = `id, customer_id, make, model, year, vin, license_plate, odometer, fuel_type, last_snapshot_id, created_at, updated_at`

func scanVehicle(row interface{ Scan(...any) error }) (*Vehicle, error) {
	var v Vehicle
	var lastSnap sql.NullInt64
	var createdAt, updatedAt any

	err := row.Scan(&v.ID, &v.CustomerID, &v.Make, &v.Model, &v.Year, &v.VIN,
		&v.LicensePlate, &v.Odometer, &v.FuelType, &lastSnap, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if lastSnap.Valid {
		v.LastSnapshotID = &lastSnap.Int64
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func scanVehicles(rows *sql.Rows) ([]*Vehicle, error) {
	var vehicles []*Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (db *DB) CreateVehicle(v *Vehicle) error {
	result, err := db.Exec(db.Q(`INSERT INTO vehicles (customer_id, make, model, year, vin, license_plate, odometer, fuel_type) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		v.CustomerID, v.Make, v.Model, v.Year, v.VIN, v.LicensePlate, v.Odometer, v.FuelType)
	if err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create vehicle last id: %w", err)
	}
	v.ID = id
	return nil
}

func (db *DB) GetVehicle(id int64) (*Vehicle, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM vehicles WHERE id=?`, vehicleSelectCols)), id)
	return scanVehicle(row)
}

func (db *DB) UpdateVehicle(v *Vehicle) error {
	_, err := db.Exec(db.Q(`UPDATE vehicles SET make=?, model=?, year=?, vin=?, license_plate=?, odometer=?, fuel_type=?, updated_at=datetime('now','localtime') WHERE id=?`),
		v.Make, v.Model, v.Year, v.VIN, v.LicensePlate, v.Odometer, v.FuelType, v.ID)
	return err
}

// UpdateVehicleSnapshot advances the odometer and latest-snapshot pointer
// after telemetry ingestion. The odometer never moves backwards.
func (db *DB) UpdateVehicleSnapshot(vehicleID, snapshotID, odometer int64) error {
	_, err := db.Exec(db.Q(`UPDATE vehicles SET last_snapshot_id=?, odometer=CASE WHEN ? > odometer THEN ? ELSE odometer END, updated_at=datetime('now','localtime') WHERE id=?`),
		snapshotID, odometer, odometer, vehicleID)
	return err
}

func (db *DB) ListVehicles(limit int) ([]*Vehicle, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM vehicles ORDER BY id LIMIT ?`, vehicleSelectCols)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVehicles(rows)
}

func (db *DB) ListVehiclesByCustomer(customerID int64) ([]*Vehicle, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM vehicles WHERE customer_id=? ORDER BY id`, vehicleSelectCols)), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVehicles(rows)
}
