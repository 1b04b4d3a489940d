package ensemble

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// sgdModel is a linear model trained by deterministic full-batch gradient
// descent on the squared loss. It exists for the incremental path: new
// observations are folded in with a shorter descent run instead of a full
// retrain.
type sgdModel struct {
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
	Bias         float64   `json:"bias"`
	Weights      []float64 `json:"weights"`
	fitted       bool
}

// partialFitEpochs bounds the descent run used to absorb an update batch
// so a small batch cannot drag the model far from its trained state.
const partialFitEpochs = 20

func newSGDModel(learningRate float64, epochs int) *sgdModel {
	return &sgdModel{LearningRate: learningRate, Epochs: epochs}
}

func (m *sgdModel) Name() string { return ModelSGD }

func (m *sgdModel) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("sgd: need matching observations, got %d features and %d targets", len(x), len(y))
	}

	// Start the intercept at the target mean so the descent spends its
	// epochs on the weights instead of walking the bias up from zero.
	m.Bias = stat.Mean(y, nil)
	m.Weights = make([]float64, len(x[0]))
	m.descend(x, y, m.Epochs)
	m.fitted = true
	return nil
}

func (m *sgdModel) Predict(x []float64) (float64, error) {
	return dotWithBias(m.Weights, m.Bias, x, m.Name())
}

func (m *sgdModel) SupportsPartialFit() bool { return true }

func (m *sgdModel) PartialFit(x [][]float64, y []float64) error {
	if !m.fitted {
		return m.Fit(x, y)
	}
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("sgd: need matching observations, got %d features and %d targets", len(x), len(y))
	}
	if len(x[0]) != len(m.Weights) {
		return fmt.Errorf("sgd: dimension mismatch: fitted %d, got %d", len(m.Weights), len(x[0]))
	}

	m.descend(x, y, partialFitEpochs)
	return nil
}

// descend runs full-batch gradient steps on the mean squared error.
func (m *sgdModel) descend(x [][]float64, y []float64, epochs int) {
	n := float64(len(x))
	gradient := make([]float64, len(m.Weights))

	for epoch := 0; epoch < epochs; epoch++ {
		for j := range gradient {
			gradient[j] = 0
		}
		biasGradient := 0.0

		for i, row := range x {
			pred := m.Bias
			for j, w := range m.Weights {
				pred += w * row[j]
			}
			residual := pred - y[i]

			biasGradient += residual
			for j, v := range row {
				gradient[j] += residual * v
			}
		}

		m.Bias -= m.LearningRate * biasGradient / n
		for j := range m.Weights {
			m.Weights[j] -= m.LearningRate * gradient[j] / n
		}
	}
}

func (m *sgdModel) FeatureImportance() []float64 {
	return normalizeImportance(m.Weights)
}

func (m *sgdModel) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m)
}

func (m *sgdModel) UnmarshalState(data json.RawMessage) error {
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	m.fitted = len(m.Weights) > 0
	return nil
}
