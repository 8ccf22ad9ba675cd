// Package predict estimates days-to-maintenance per vehicle, flags
// anomalous telemetry and derives actionable recommendations. A trained
// linear model is used when available; otherwise a deterministic rule
// engine produces the estimate.
package predict

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"fieldcore/fault"
	"fieldcore/store"
)

type Emitter interface {
	PredictionMade(vehicleID, predictionID int64, riskLevel string)
}

// Prediction is the full bundle returned to callers. The persisted
// record keeps only the action codes of the recommendations.
type Prediction struct {
	Record          *store.PredictionRecord `json:"record"`
	Recommendations []Recommendation        `json:"recommendations"`
	Priority        string                  `json:"priority"`
}

type TrainReport struct {
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	Rows int     `json:"rows"`
}

type Service struct {
	db            *store.DB
	emitter       Emitter
	contamination float64
	modelPath     string
	model         atomic.Pointer[Model]
	now           func() time.Time
}

func NewService(db *store.DB, emitter Emitter, contamination float64, modelPath string) *Service {
	s := &Service{
		db:            db,
		emitter:       emitter,
		contamination: contamination,
		modelPath:     modelPath,
		now:           time.Now,
	}
	if modelPath != "" {
		if m, err := loadModel(modelPath); err == nil {
			s.model.Store(m)
			log.Printf("predict: loaded model from %s (%d training rows)", modelPath, m.TrainedRows)
		} else {
			log.Printf("predict: no model at %s, using rule engine: %v", modelPath, err)
		}
	}
	return s
}

// ModelLoaded reports whether a trained model is active.
func (s *Service) ModelLoaded() bool {
	return s.model.Load() != nil
}

// UnloadModel drops the trained model, forcing the rule engine.
func (s *Service) UnloadModel() {
	s.model.Store(nil)
}

// Predict evaluates the current model for one vehicle and persists the
// record. It never creates work orders.
func (s *Service) Predict(vehicleID int64) (*Prediction, error) {
	if _, err := s.db.GetVehicle(vehicleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("vehicle %d not found", vehicleID)
		}
		return nil, fault.Internal(err)
	}
	now := s.now()
	fv, _, err := buildFeatures(s.db, vehicleID, now)
	if err != nil {
		return nil, fault.Internal(err)
	}

	var (
		days       int
		confidence float64
		anomaly    bool
		score      float64
		kind       string
	)
	if m := s.model.Load(); m != nil {
		scaled := m.Scaler.Apply(fv)
		days = m.PredictDays(scaled)
		score = m.AnomalyScore(scaled)
		anomaly = m.IsAnomaly(score)
		confidence = m.Confidence(score)
		kind = store.ModelKindML
	} else {
		days = ruleDays(fv)
		anomaly = ruleAnomaly(fv)
		confidence = 75
		if anomaly {
			confidence = 60
		}
		kind = store.ModelKindRuleEngine
	}

	level := riskLevel(days)
	if kind == store.ModelKindRuleEngine {
		level = ruleRisk(days, anomaly)
	}
	recs := recommendations(fv, anomaly)
	codes := make([]string, len(recs))
	for i, r := range recs {
		codes[i] = r.ActionCode
	}

	rec := &store.PredictionRecord{
		VehicleID:         vehicleID,
		GeneratedAt:       now,
		DaysToMaintenance: days,
		Confidence:        confidence,
		AnomalyDetected:   anomaly,
		AnomalyScore:      score,
		ModelKind:         kind,
		RiskLevel:         level,
		Recommendations:   codes,
		Features:          fv.Map(),
	}
	if err := s.db.InsertPrediction(rec); err != nil {
		return nil, fault.Internal(err)
	}
	if s.emitter != nil {
		s.emitter.PredictionMade(vehicleID, rec.ID, level)
	}
	return &Prediction{Record: rec, Recommendations: recs, Priority: riskPriority(level)}, nil
}

// PredictFleet runs Predict over the vehicle roster. The optional
// priority filter keeps only predictions whose derived work order
// priority matches.
func (s *Service) PredictFleet(limit int, priority string) ([]*Prediction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	vehicles, err := s.db.ListVehicles(limit)
	if err != nil {
		return nil, fault.Internal(err)
	}
	var out []*Prediction
	for _, v := range vehicles {
		p, err := s.Predict(v.ID)
		if err != nil {
			if fault.KindOf(err) == fault.KindNotFound {
				continue
			}
			log.Printf("predict: fleet vehicle %d: %v", v.ID, err)
			continue
		}
		if priority != "" && p.Priority != priority {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Retrain refits the model from telemetry joined with completed
// maintenance work orders. The active model is replaced only when
// training finishes; cancellation or failure leaves it untouched.
func (s *Service) Retrain(ctx context.Context, force bool) (*TrainReport, error) {
	if !force {
		if m := s.model.Load(); m != nil {
			return &TrainReport{MAE: m.MAE, R2: m.R2, Rows: m.TrainedRows}, nil
		}
	}

	rows, labels, err := s.trainingSet(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) < numFeatures+1 {
		return nil, fault.DependencyUnavailable("insufficient training data: %d rows", len(rows))
	}

	// Deterministic holdout, every fifth row.
	var trainX, testX []FeatureVector
	var trainY, testY []float64
	for i := range rows {
		if i%5 == 4 {
			testX = append(testX, rows[i])
			testY = append(testY, labels[i])
		} else {
			trainX = append(trainX, rows[i])
			trainY = append(trainY, labels[i])
		}
	}
	if len(trainX) < numFeatures+1 {
		trainX, trainY = rows, labels
		testX, testY = nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fault.Internal(err)
	}
	m, err := fitModel(trainX, trainY, s.contamination)
	if err != nil {
		return nil, fault.DependencyUnavailable("model fit failed: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.Internal(err)
	}

	evalX, evalY := testX, testY
	if len(evalX) == 0 {
		evalX, evalY = trainX, trainY
	}
	m.MAE, m.R2 = evaluate(m, evalX, evalY)

	if s.modelPath != "" {
		if err := saveModel(s.modelPath, m); err != nil {
			log.Printf("predict: save model to %s: %v", s.modelPath, err)
		}
	}
	s.model.Store(m)
	log.Printf("predict: retrained on %d rows, mae=%.2f r2=%.3f", len(trainX), m.MAE, m.R2)
	return &TrainReport{MAE: m.MAE, R2: m.R2, Rows: len(trainX)}, nil
}

// trainingSet labels each completed maintenance work order with the
// days between its last preceding snapshot and its close time.
func (s *Service) trainingSet(ctx context.Context) ([]FeatureVector, []float64, error) {
	orders, err := s.db.ListWorkOrders(store.WorkOrderFilter{Status: store.WOStatusCompleted, Limit: 5000})
	if err != nil {
		return nil, nil, fault.Internal(err)
	}
	var rows []FeatureVector
	var labels []float64
	for _, wo := range orders {
		if err := ctx.Err(); err != nil {
			return nil, nil, fault.Internal(err)
		}
		if wo.VehicleID == nil || wo.ClosedAt == nil {
			continue
		}
		snap, err := s.db.SnapshotBefore(*wo.VehicleID, *wo.ClosedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, nil, fault.Internal(err)
		}
		days := wo.ClosedAt.Sub(snap.RecordedAt).Hours() / 24
		if days < 0 {
			continue
		}
		fv, _, err := buildFeatures(s.db, *wo.VehicleID, snap.RecordedAt)
		if err != nil {
			return nil, nil, fault.Internal(err)
		}
		rows = append(rows, fv)
		labels = append(labels, days)
	}
	return rows, labels, nil
}

func evaluate(m *Model, xs []FeatureVector, ys []float64) (mae, r2 float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sumAbs, sumY float64
	preds := make([]float64, len(xs))
	for i, x := range xs {
		preds[i] = float64(m.PredictDays(m.Scaler.Apply(x)))
		sumAbs += abs(preds[i] - ys[i])
		sumY += ys[i]
	}
	mae = sumAbs / float64(len(xs))
	meanY := sumY / float64(len(ys))
	var ssRes, ssTot float64
	for i := range ys {
		ssRes += (ys[i] - preds[i]) * (ys[i] - preds[i])
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	if ssTot == 0 {
		return mae, 0
	}
	return mae, 1 - ssRes/ssTot
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
