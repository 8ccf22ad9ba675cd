package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// Scaler standardizes features to zero mean, unit variance. Constant
// features pass through unscaled.
type Scaler struct {
	Mean [numFeatures]float64 `json:"mean"`
	Std  [numFeatures]float64 `json:"std"`
}

func fitScaler(rows []FeatureVector) *Scaler {
	var sc Scaler
	n := float64(len(rows))
	if n == 0 {
		for i := range sc.Std {
			sc.Std[i] = 1
		}
		return &sc
	}
	for _, r := range rows {
		for i := 0; i < numFeatures; i++ {
			sc.Mean[i] += r[i]
		}
	}
	for i := range sc.Mean {
		sc.Mean[i] /= n
	}
	for _, r := range rows {
		for i := 0; i < numFeatures; i++ {
			d := r[i] - sc.Mean[i]
			sc.Std[i] += d * d
		}
	}
	for i := range sc.Std {
		sc.Std[i] = math.Sqrt(sc.Std[i] / n)
		if sc.Std[i] == 0 {
			sc.Std[i] = 1
		}
	}
	return &sc
}

func (sc *Scaler) Apply(fv FeatureVector) FeatureVector {
	var out FeatureVector
	for i := 0; i < numFeatures; i++ {
		out[i] = (fv[i] - sc.Mean[i]) / sc.Std[i]
	}
	return out
}

// Model bundles the regressor, the anomaly detector and the scaler it
// was trained with. Instances are read-only after training; the service
// swaps the whole pointer on retrain.
type Model struct {
	Scaler           *Scaler              `json:"scaler"`
	Weights          [numFeatures]float64 `json:"weights"`
	Intercept        float64              `json:"intercept"`
	AnomalyThreshold float64              `json:"anomaly_threshold"`
	TrainedRows      int                  `json:"trained_rows"`
	MAE              float64              `json:"mae"`
	R2               float64              `json:"r2"`
}

// PredictDays evaluates the regressor on a scaled vector, clamped to a
// non-negative integer.
func (m *Model) PredictDays(scaled FeatureVector) int {
	y := m.Intercept
	for i := 0; i < numFeatures; i++ {
		y += m.Weights[i] * scaled[i]
	}
	days := int(math.Round(y))
	if days < 1 {
		days = 1
	}
	return days
}

// AnomalyScore is the mean absolute z-distance of the scaled vector.
func (m *Model) AnomalyScore(scaled FeatureVector) float64 {
	var sum float64
	for i := 0; i < numFeatures; i++ {
		sum += math.Abs(scaled[i])
	}
	return sum / numFeatures
}

func (m *Model) IsAnomaly(score float64) bool {
	return score > m.AnomalyThreshold
}

// Confidence maps the anomaly score onto the nominal 85-95 band or the
// 50-65 outlier band.
func (m *Model) Confidence(score float64) float64 {
	if m.AnomalyThreshold <= 0 {
		return 85
	}
	ratio := score / m.AnomalyThreshold
	if ratio <= 1 {
		return 95 - 10*ratio
	}
	excess := ratio - 1
	if excess > 1 {
		excess = 1
	}
	return 65 - 15*excess
}

// fitModel runs ordinary least squares on the scaled training rows and
// sets the anomaly threshold at the (1 - contamination) quantile of the
// training anomaly scores.
func fitModel(rows []FeatureVector, labels []float64, contamination float64) (*Model, error) {
	if len(rows) < numFeatures+1 {
		return nil, fmt.Errorf("fit: need at least %d rows, have %d", numFeatures+1, len(rows))
	}
	sc := fitScaler(rows)
	scaled := make([]FeatureVector, len(rows))
	for i, r := range rows {
		scaled[i] = sc.Apply(r)
	}

	// Normal equations over the augmented (intercept) design matrix.
	dim := numFeatures + 1
	xtx := make([][]float64, dim)
	xty := make([]float64, dim)
	for i := range xtx {
		xtx[i] = make([]float64, dim)
	}
	for k, r := range scaled {
		row := make([]float64, dim)
		row[0] = 1
		copy(row[1:], r[:])
		for i := 0; i < dim; i++ {
			xty[i] += row[i] * labels[k]
			for j := 0; j < dim; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}
	// Ridge epsilon keeps the solve stable on collinear features.
	for i := 0; i < dim; i++ {
		xtx[i][i] += 1e-6
	}
	coef, err := solveLinear(xtx, xty)
	if err != nil {
		return nil, err
	}

	m := &Model{Scaler: sc, Intercept: coef[0], TrainedRows: len(rows)}
	copy(m.Weights[:], coef[1:])

	scores := make([]float64, len(scaled))
	for i, r := range scaled {
		scores[i] = m.AnomalyScore(r)
	}
	sort.Float64s(scores)
	if contamination <= 0 || contamination >= 1 {
		contamination = 0.1
	}
	idx := int(math.Ceil(float64(len(scores))*(1-contamination))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	m.AnomalyThreshold = scores[idx]
	return m, nil
}

// solveLinear solves Ax=b by Gaussian elimination with partial
// pivoting. A is modified in place.
func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("fit: singular design matrix at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		x[r] = b[r]
		for c := r + 1; c < n; c++ {
			x[r] -= a[r][c] * x[c]
		}
		x[r] /= a[r][r]
	}
	return x, nil
}

func loadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Scaler == nil {
		return nil, fmt.Errorf("model file %s missing scaler", path)
	}
	return &m, nil
}

func saveModel(path string, m *Model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
