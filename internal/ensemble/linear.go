package ensemble

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/sajari/regression"
)

// linearModel is an ordinary-least-squares member fitted with
// github.com/sajari/regression. Batch only: OLS has no incremental form
// worth keeping, so PartialFit declines.
type linearModel struct {
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"weights"`
}

func newLinearModel() *linearModel {
	return &linearModel{}
}

func (m *linearModel) Name() string { return ModelLinear }

func (m *linearModel) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("linear: need matching observations, got %d features and %d targets", len(x), len(y))
	}

	var r regression.Regression
	r.SetObserved("target")
	for i := range x[0] {
		r.SetVar(i, fmt.Sprintf("f%d", i))
	}
	for i, row := range x {
		r.Train(regression.DataPoint(y[i], row))
	}

	if err := r.Run(); err != nil {
		return fmt.Errorf("linear: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(x[0])+1 {
		return fmt.Errorf("linear: expected %d coefficients, got %d", len(x[0])+1, len(coeffs))
	}
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			// Collinear or degenerate design: the normal equations are
			// singular and the solve produced garbage.
			return fmt.Errorf("linear: non-finite coefficients, design matrix is rank-deficient")
		}
	}

	m.Bias = coeffs[0]
	m.Weights = coeffs[1:]
	return nil
}

func (m *linearModel) Predict(x []float64) (float64, error) {
	return dotWithBias(m.Weights, m.Bias, x, m.Name())
}

func (m *linearModel) SupportsPartialFit() bool { return false }

func (m *linearModel) PartialFit(_ [][]float64, _ []float64) error {
	return fmt.Errorf("linear: incremental fitting not supported")
}

func (m *linearModel) FeatureImportance() []float64 {
	return normalizeImportance(m.Weights)
}

func (m *linearModel) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m)
}

func (m *linearModel) UnmarshalState(data json.RawMessage) error {
	return json.Unmarshal(data, m)
}

// dotWithBias evaluates a fitted linear form, guarding the cross-call
// dimension invariant every linear-family member shares.
func dotWithBias(weights []float64, bias float64, x []float64, name string) (float64, error) {
	if len(weights) == 0 {
		return 0, fmt.Errorf("%s: model not fitted", name)
	}
	if len(x) != len(weights) {
		return 0, fmt.Errorf("%s: dimension mismatch: fitted %d, got %d", name, len(weights), len(x))
	}

	sum := bias
	for i, w := range weights {
		sum += w * x[i]
	}
	return sum, nil
}
