package ensemble

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// knnModel is a k-nearest-neighbour regressor: prediction is the mean
// target of the k closest training samples by euclidean distance. It
// supports the incremental path trivially, by absorbing new samples.
type knnModel struct {
	K       int         `json:"k"`
	Samples [][]float64 `json:"samples"`
	Targets []float64   `json:"targets"`
}

func newKNNModel(k int) *knnModel {
	return &knnModel{K: k}
}

func (m *knnModel) Name() string { return ModelKNN }

func (m *knnModel) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("knn: need matching observations, got %d features and %d targets", len(x), len(y))
	}

	m.Samples = cloneMatrix(x)
	m.Targets = append([]float64(nil), y...)
	return nil
}

func (m *knnModel) Predict(x []float64) (float64, error) {
	if len(m.Samples) == 0 {
		return 0, fmt.Errorf("knn: model not fitted")
	}
	if len(x) != len(m.Samples[0]) {
		return 0, fmt.Errorf("knn: dimension mismatch: fitted %d, got %d", len(m.Samples[0]), len(x))
	}

	distances := make([]int, len(m.Samples))
	for i := range distances {
		distances[i] = i
	}
	sort.Slice(distances, func(a, b int) bool {
		return floats.Distance(m.Samples[distances[a]], x, 2) < floats.Distance(m.Samples[distances[b]], x, 2)
	})

	k := m.K
	if k > len(distances) {
		k = len(distances)
	}

	sum := 0.0
	for _, idx := range distances[:k] {
		sum += m.Targets[idx]
	}
	return sum / float64(k), nil
}

func (m *knnModel) SupportsPartialFit() bool { return true }

func (m *knnModel) PartialFit(x [][]float64, y []float64) error {
	if len(m.Samples) == 0 {
		return m.Fit(x, y)
	}
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("knn: need matching observations, got %d features and %d targets", len(x), len(y))
	}
	if len(x[0]) != len(m.Samples[0]) {
		return fmt.Errorf("knn: dimension mismatch: fitted %d, got %d", len(m.Samples[0]), len(x[0]))
	}

	m.Samples = append(m.Samples, cloneMatrix(x)...)
	m.Targets = append(m.Targets, y...)
	return nil
}

// FeatureImportance is nil: neighbour lookups weigh every dimension alike.
func (m *knnModel) FeatureImportance() []float64 { return nil }

func (m *knnModel) MarshalState() (json.RawMessage, error) {
	return json.Marshal(m)
}

func (m *knnModel) UnmarshalState(data json.RawMessage) error {
	return json.Unmarshal(data, m)
}

func cloneMatrix(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
