package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

const (
	ModelKindML         = "ml"
	ModelKindRuleEngine = "rule_engine"
)

type PredictionRecord struct {
	ID                int64              `json:"id"`
	VehicleID         int64              `json:"vehicle_id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	DaysToMaintenance int                `json:"days_to_maintenance"`
	Confidence        float64            `json:"confidence"`
	AnomalyDetected   bool               `json:"anomaly_detected"`
	AnomalyScore      float64            `json:"anomaly_score"`
	ModelKind         string             `json:"model_kind"`
	RiskLevel         string             `json:"risk_level"`
	Recommendations   []string           `json:"recommendations"`
	Features          map[string]float64 `json:"features"`
}

const predictionSelectCols = `id, vehicle_id, generated_at, days_to_maintenance, confidence, anomaly_detected, anomaly_score, model_kind, risk_level, recommendations, features`

func scanPrediction(row interface{ Scan(...any) error }) (*PredictionRecord, error) {
	var p PredictionRecord
	var generatedAt any
	var recs, features string

	err := row.Scan(&p.ID, &p.VehicleID, &generatedAt, &p.DaysToMaintenance, &p.Confidence,
		&p.AnomalyDetected, &p.AnomalyScore, &p.ModelKind, &p.RiskLevel, &recs, &features)
	if err != nil {
		return nil, err
	}
	p.GeneratedAt = parseTime(generatedAt)
	p.Recommendations = decodeStrings(recs)
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		p.Features = nil
	}
	return &p, nil
}

func (db *DB) InsertPrediction(p *PredictionRecord) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("insert prediction features: %w", err)
	}
	result, err := db.Exec(db.Q(`INSERT INTO predictions (vehicle_id, generated_at, days_to_maintenance, confidence, anomaly_detected, anomaly_score, model_kind, risk_level, recommendations, features) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.VehicleID, fmtTime(p.GeneratedAt), p.DaysToMaintenance, p.Confidence,
		p.AnomalyDetected, p.AnomalyScore, p.ModelKind, p.RiskLevel,
		encodeStrings(p.Recommendations), string(features))
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert prediction last id: %w", err)
	}
	p.ID = id
	return nil
}

func (db *DB) GetPrediction(id int64) (*PredictionRecord, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM predictions WHERE id=?`, predictionSelectCols)), id)
	return scanPrediction(row)
}

func (db *DB) LatestPrediction(vehicleID int64) (*PredictionRecord, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM predictions WHERE vehicle_id=? ORDER BY generated_at DESC, id DESC LIMIT 1`, predictionSelectCols)), vehicleID)
	return scanPrediction(row)
}

func (db *DB) ListPredictions(vehicleID int64, limit int) ([]*PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM predictions WHERE vehicle_id=? ORDER BY generated_at DESC, id DESC LIMIT ?`, predictionSelectCols)), vehicleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPredictions(rows)
}

func scanPredictions(rows *sql.Rows) ([]*PredictionRecord, error) {
	var preds []*PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}
