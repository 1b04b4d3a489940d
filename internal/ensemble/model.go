// Package ensemble trains and serves a performance-weighted ensemble of
// regression models over the extended feature vector. It owns the one
// piece of long-lived state in the engine: the model registry.
package ensemble

import "encoding/json"

// Model is the capability contract every ensemble member satisfies. Members
// are trained on standardized feature matrices and predict on standardized
// vectors; standardization is the pipeline's job, not the member's.
type Model interface {
	Name() string

	// Fit trains the member from scratch on a feature matrix and targets.
	Fit(x [][]float64, y []float64) error

	// Predict scores one standardized feature vector.
	Predict(x []float64) (float64, error)

	// SupportsPartialFit reports whether the member can absorb additional
	// observations without a full retrain.
	SupportsPartialFit() bool

	// PartialFit folds new observations into an already-fitted member.
	// Members that do not support incremental fitting return an error.
	PartialFit(x [][]float64, y []float64) error

	// FeatureImportance returns one non-negative value per feature, or nil
	// when the member has no meaningful notion of importance.
	FeatureImportance() []float64

	// MarshalState and UnmarshalState serialize the learned parameters so
	// the registry can persist every member as one atomic document.
	MarshalState() (json.RawMessage, error)
	UnmarshalState(data json.RawMessage) error
}

// Member names. The registry keys models and weights by these.
const (
	ModelLinear = "linear"
	ModelRidge  = "ridge"
	ModelSGD    = "sgd"
	ModelKNN    = "knn"
)

// newMembers builds the fixed, ordered set of ensemble members with their
// standing hyperparameters.
func newMembers() []Model {
	return []Model{
		newLinearModel(),
		newRidgeModel(1.0),
		newSGDModel(0.01, 200),
		newKNNModel(5),
	}
}

// newMemberByName builds an untrained member for registry restoration.
func newMemberByName(name string) (Model, bool) {
	switch name {
	case ModelLinear:
		return newLinearModel(), true
	case ModelRidge:
		return newRidgeModel(1.0), true
	case ModelSGD:
		return newSGDModel(0.01, 200), true
	case ModelKNN:
		return newKNNModel(5), true
	default:
		return nil, false
	}
}

// normalizeImportance scales absolute weights so they sum to 1, dropping
// the result entirely when every weight is zero.
func normalizeImportance(weights []float64) []float64 {
	total := 0.0
	abs := make([]float64, len(weights))
	for i, w := range weights {
		if w < 0 {
			w = -w
		}
		abs[i] = w
		total += w
	}
	if total == 0 {
		return nil
	}
	for i := range abs {
		abs[i] /= total
	}
	return abs
}
