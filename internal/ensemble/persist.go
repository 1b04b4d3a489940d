package ensemble

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/trustiq/trust-engine/internal/errors"
)

// registryDocument is the on-disk form of a trained registry. Every field
// travels together: a document missing any part of the bundle is rejected
// on restore rather than partially adopted.
type registryDocument struct {
	SchemaVersion string                     `json:"schema_version"`
	FeatureDim    int                        `json:"feature_dim"`
	TargetField   string                     `json:"target_field"`
	TrainedAt     time.Time                  `json:"trained_at"`
	Scaler        *scaler                    `json:"scaler"`
	Medians       []float64                  `json:"medians"`
	Weights       map[string]float64         `json:"weights"`
	Performance   map[string]Performance     `json:"performance"`
	Models        map[string]json.RawMessage `json:"models"`
}

// Persist writes the registry to path as one JSON document. The document
// lands via a temporary file and rename so a crash mid-write can never
// leave a half-written registry at the target path.
func (p *Pipeline) Persist(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.reg == nil {
		return apperrors.NewPersistenceError("no trained registry to persist", nil)
	}

	doc := registryDocument{
		SchemaVersion: p.reg.schemaVersion,
		FeatureDim:    p.reg.featureDim,
		TargetField:   p.reg.targetField,
		TrainedAt:     p.reg.trainedAt,
		Scaler:        p.reg.scaler,
		Medians:       p.reg.medians,
		Weights:       p.reg.weights,
		Performance:   p.reg.performance,
		Models:        make(map[string]json.RawMessage, len(p.reg.models)),
	}
	for name, member := range p.reg.models {
		state, err := member.MarshalState()
		if err != nil {
			return apperrors.NewPersistenceError(
				fmt.Sprintf("serializing model %q", name), err)
		}
		doc.Models[name] = state
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceError("encoding registry document", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewPersistenceError("creating registry directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return apperrors.NewPersistenceError("creating temporary registry file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewPersistenceError("writing registry document", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewPersistenceError("closing temporary registry file", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.NewPersistenceError("replacing registry file", err)
	}

	p.logger.Info("registry persisted", "path", path, "models", len(doc.Models))
	return nil
}

// Restore loads a registry document and swaps it in whole. An incomplete
// or corrupt document is rejected and the current registry, trained or
// not, stays in place.
func (p *Pipeline) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.NewPersistenceError("reading registry file", err)
	}

	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperrors.NewPersistenceError("decoding registry document", err)
	}
	if err := validateDocument(&doc); err != nil {
		return apperrors.NewPersistenceError("registry document incomplete", err)
	}

	models := make(map[string]Model, len(doc.Models))
	for name, state := range doc.Models {
		member, ok := newMemberByName(name)
		if !ok {
			return apperrors.NewPersistenceError(
				fmt.Sprintf("registry references unknown model %q", name), nil)
		}
		if err := member.UnmarshalState(state); err != nil {
			return apperrors.NewPersistenceError(
				fmt.Sprintf("restoring model %q", name), err)
		}
		models[name] = member
	}

	reg := &registry{
		models:        models,
		scaler:        doc.Scaler,
		medians:       doc.Medians,
		weights:       doc.Weights,
		performance:   doc.Performance,
		schemaVersion: doc.SchemaVersion,
		featureDim:    doc.FeatureDim,
		targetField:   doc.TargetField,
		trainedAt:     doc.TrainedAt,
	}

	p.mu.Lock()
	p.reg = reg
	p.mu.Unlock()

	p.logger.Info("registry restored", "path", path, "models", len(models))
	return nil
}

// validateDocument checks that every part of the atomic bundle is present
// and mutually consistent.
func validateDocument(doc *registryDocument) error {
	switch {
	case doc.SchemaVersion == "":
		return fmt.Errorf("missing schema version")
	case doc.FeatureDim <= 0:
		return fmt.Errorf("missing feature dimension")
	case doc.TargetField == "":
		return fmt.Errorf("missing target field")
	case doc.Scaler == nil:
		return fmt.Errorf("missing scaler")
	case len(doc.Scaler.Means) != doc.FeatureDim || len(doc.Scaler.Stds) != doc.FeatureDim:
		return fmt.Errorf("scaler dimension %d does not match feature dimension %d",
			len(doc.Scaler.Means), doc.FeatureDim)
	case len(doc.Medians) != doc.FeatureDim:
		return fmt.Errorf("median table dimension %d does not match feature dimension %d",
			len(doc.Medians), doc.FeatureDim)
	case len(doc.Models) == 0:
		return fmt.Errorf("no models")
	}

	for name := range doc.Models {
		if _, ok := doc.Weights[name]; !ok {
			return fmt.Errorf("model %q has no ensemble weight", name)
		}
		if _, ok := doc.Performance[name]; !ok {
			return fmt.Errorf("model %q has no performance record", name)
		}
	}
	return nil
}
