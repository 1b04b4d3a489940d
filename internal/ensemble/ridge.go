package ensemble

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ridgeModel solves the L2-regularized least-squares problem in closed
// form: w = (XᵀX + λI)⁻¹ Xᵀy over the intercept-augmented design matrix.
// The intercept column is not penalized. Batch only.
type ridgeModel struct {
	Lambda  float64   `json:"lambda"`
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"weights"`
}

func newRidgeModel(lambda float64) *ridgeModel {
	return &ridgeModel{Lambda: lambda}
}

func (m *ridgeModel) Name() string { return ModelRidge }

func (m *ridgeModel) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("ridge: need matching observations, got %d features and %d targets", len(x), len(y))
	}

	rows := len(x)
	cols := len(x[0]) + 1 // leading intercept column

	design := mat.NewDense(rows, cols, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	target := mat.NewVecDense(rows, y)

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 1; j < cols; j++ {
		gram.Set(j, j, gram.At(j, j)+m.Lambda)
	}

	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var solved mat.VecDense
	if err := solved.SolveVec(&gram, &moment); err != nil {
		return fmt.Errorf("ridge: singular system: %w", err)
	}

	m.Bias = solved.AtVec(0)
	m.Weights = make([]float64, cols-1)
	for j := 1; j < cols; j++ {
		m.Weights[j-1] = solved.AtVec(j)
	}
	return nil
}

func (m *ridgeModel) Predict(x []float64) (float64, error) {
	return dotWithBias(m.Weights, m.Bias, x, m.Name())
}

func (m *ridgeModel) SupportsPartialFit() bool { return false }

func (m *ridgeModel) PartialFit(_ [][]float64, _ []float64) error {
	return fmt.Errorf("ridge: incremental fitting not supported")
}

func (m *ridgeModel) FeatureImportance() []float64 {
	return normalizeImportance(m.Weights)
}

func (m *ridgeModel) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m)
}

func (m *ridgeModel) UnmarshalState(data json.RawMessage) error {
	return json.Unmarshal(data, m)
}
