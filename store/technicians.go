package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Technician struct {
	ID               int64     `json:"id"`
	DisplayName      string    `json:"display_name"`
	Role             string    `json:"role"`
	Skills           []string  `json:"skills"`
	HomeLat          *float64  `json:"home_lat,omitempty"`
	HomeLng          *float64  `json:"home_lng,omitempty"`
	AvailStart       string    `json:"avail_start"`
	AvailEnd         string    `json:"avail_end"`
	HourlyRate       float64   `json:"hourly_rate"`
	EfficiencyFactor float64   `json:"efficiency_factor"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasSkills reports whether the technician can execute a task with the
// given required skills. The "general" skill satisfies any requirement.
func (t *Technician) HasSkills(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(t.Skills))
	for _, s := range t.Skills {
		if s == "general" {
			return true
		}
		have[s] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

const technicianSelectCols = `id, display_name, role, skills, home_lat, home_lng, avail_start, avail_end, hourly_rate, efficiency_factor, active, created_at, updated_at`

func scanTechnician(row interface{ Scan(...any) error }) (*Technician, error) {
	var t Technician
	var skills string
	var homeLat, homeLng sql.NullFloat64
	var createdAt, updatedAt any

	err := row.Scan(&t.ID, &t.DisplayName, &t.Role, &skills, &homeLat, &homeLng,
		&t.AvailStart, &t.AvailEnd, &t.HourlyRate, &t.EfficiencyFactor, &t.Active,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Skills = decodeStrings(skills)
	if homeLat.Valid {
		t.HomeLat = &homeLat.Float64
	}
	if homeLng.Valid {
		t.HomeLng = &homeLng.Float64
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanTechnicians(rows *sql.Rows) ([]*Technician, error) {
	var techs []*Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		techs = append(techs, t)
	}
	return techs, rows.Err()
}

func (db *DB) CreateTechnician(t *Technician) error {
	var homeLat, homeLng any
	if t.HomeLat != nil {
		homeLat = *t.HomeLat
	}
	if t.HomeLng != nil {
		homeLng = *t.HomeLng
	}
	if t.AvailStart == "" {
		t.AvailStart = "08:00"
	}
	if t.AvailEnd == "" {
		t.AvailEnd = "17:00"
	}
	if t.EfficiencyFactor == 0 {
		t.EfficiencyFactor = 1.0
	}
	result, err := db.Exec(db.Q(`INSERT INTO technicians (display_name, role, skills, home_lat, home_lng, avail_start, avail_end, hourly_rate, efficiency_factor, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.DisplayName, t.Role, encodeStrings(t.Skills), homeLat, homeLng,
		t.AvailStart, t.AvailEnd, t.HourlyRate, t.EfficiencyFactor, t.Active)
	if err != nil {
		return fmt.Errorf("create technician: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create technician last id: %w", err)
	}
	t.ID = id
	return nil
}

func (db *DB) GetTechnician(id int64) (*Technician, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM technicians WHERE id=?`, technicianSelectCols)), id)
	return scanTechnician(row)
}

func (db *DB) UpdateTechnician(t *Technician) error {
	var homeLat, homeLng any
	if t.HomeLat != nil {
		homeLat = *t.HomeLat
	}
	if t.HomeLng != nil {
		homeLng = *t.HomeLng
	}
	_, err := db.Exec(db.Q(`UPDATE technicians SET display_name=?, role=?, skills=?, home_lat=?, home_lng=?, avail_start=?, avail_end=?, hourly_rate=?, efficiency_factor=?, active=?, updated_at=datetime('now','localtime') WHERE id=?`),
		t.DisplayName, t.Role, encodeStrings(t.Skills), homeLat, homeLng,
		t.AvailStart, t.AvailEnd, t.HourlyRate, t.EfficiencyFactor, t.Active, t.ID)
	return err
}

func (db *DB) ListActiveTechnicians() ([]*Technician, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM technicians WHERE active ORDER BY display_name`, technicianSelectCols)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

func (db *DB) ListTechnicians() ([]*Technician, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM technicians ORDER BY display_name`, technicianSelectCols)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnicians(rows)
}
