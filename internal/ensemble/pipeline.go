package ensemble

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/trustiq/trust-engine/internal/errors"
	"github.com/trustiq/trust-engine/internal/features"
	"github.com/trustiq/trust-engine/internal/types"
)

const (
	// splitSeed fixes the train/held-out shuffle so repeated training runs
	// over the same records reproduce the same partitions and weights.
	splitSeed = 42

	// heldOutFraction of usable records is reserved for scoring members.
	heldOutFraction = 0.2

	// fallbackScore is the neutral prediction returned when no trained
	// registry or usable feature vector is available.
	fallbackScore = 50.0
)

// Performance records how one member scored on the held-out partition.
type Performance struct {
	R2                float64            `json:"r2"`
	MSE               float64            `json:"mse"`
	MAE               float64            `json:"mae"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// TrainingSummary reports the outcome of a training run.
type TrainingSummary struct {
	BestModel    string                 `json:"best_model"`
	EnsembleR2   float64                `json:"ensemble_r2"`
	Performance  map[string]Performance `json:"performance"`
	RecordCount  int                    `json:"record_count"`
	FeatureCount int                    `json:"feature_count"`
}

// Prediction is the ensemble's answer for one subject.
type Prediction struct {
	Score        float64            `json:"score"`
	Confidence   float64            `json:"confidence"`
	Model        string             `json:"model"`
	MemberScores map[string]float64 `json:"member_scores,omitempty"`
}

// RegistryInfo is the introspection view of the registry.
type RegistryInfo struct {
	Trained       bool                   `json:"trained"`
	Members       []string               `json:"members,omitempty"`
	Weights       map[string]float64     `json:"weights,omitempty"`
	Performance   map[string]Performance `json:"performance,omitempty"`
	SchemaVersion string                 `json:"schema_version,omitempty"`
	FeatureCount  int                    `json:"feature_count,omitempty"`
	TargetField   string                 `json:"target_field,omitempty"`
	TrainedAt     time.Time              `json:"trained_at,omitzero"`
}

// registry is the atomic bundle of trained state. Train and Restore build
// a complete replacement and swap it in; no caller ever observes a
// half-populated registry.
type registry struct {
	models        map[string]Model
	scaler        *scaler
	medians       []float64
	weights       map[string]float64
	performance   map[string]Performance
	schemaVersion string
	featureDim    int
	targetField   string
	trainedAt     time.Time
}

// Pipeline owns the model registry and serializes access to it. Scoring
// paths elsewhere in the engine are stateless; this is the one component
// whose operations must exclude each other.
type Pipeline struct {
	mu     sync.RWMutex
	reg    *registry
	logger *slog.Logger
}

// NewPipeline creates an untrained pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger}
}

// Trained reports whether a registry is available.
func (p *Pipeline) Trained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reg != nil
}

// Train fits every member and the ensemble weighting from labeled records.
// On any failure the existing registry is left untouched.
func (p *Pipeline) Train(records []types.TrainingRecord, targetField string) (TrainingSummary, error) {
	vectors, targets := vectorize(records, targetField)
	if len(vectors) == 0 {
		return TrainingSummary{}, apperrors.NewTrainingError(
			fmt.Sprintf("no usable records with target %q", targetField), nil)
	}

	medians := columnMedians(vectors)
	imputeInPlace(vectors, medians)

	trainX, trainY, testX, testY := split(vectors, targets)

	sc := fitScaler(trainX)
	scaledTrain := sc.transformAll(trainX)
	scaledTest := sc.transformAll(testX)

	members := newMembers()
	fitted := make([]Model, 0, len(members))

	var mu sync.Mutex
	var group errgroup.Group
	for _, member := range members {
		group.Go(func() error {
			if err := member.Fit(scaledTrain, trainY); err != nil {
				p.logger.Warn("ensemble member failed to fit, dropping it",
					"model", member.Name(), "error", err)
				return nil
			}
			mu.Lock()
			fitted = append(fitted, member)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	if len(fitted) == 0 {
		return TrainingSummary{}, apperrors.NewTrainingError("every ensemble member failed to fit", nil)
	}

	performance := make(map[string]Performance, len(fitted))
	r2ByModel := make(map[string]float64, len(fitted))
	models := make(map[string]Model, len(fitted))
	for _, member := range fitted {
		perf := evaluate(member, scaledTest, testY)
		performance[member.Name()] = perf
		r2ByModel[member.Name()] = perf.R2
		models[member.Name()] = member
	}

	weights := computeWeights(r2ByModel)

	reg := &registry{
		models:        models,
		scaler:        sc,
		medians:       medians,
		weights:       weights,
		performance:   performance,
		schemaVersion: features.SchemaVersion,
		featureDim:    features.Dim(),
		targetField:   targetField,
		trainedAt:     time.Now().UTC(),
	}

	summary := TrainingSummary{
		BestModel:    bestModel(performance),
		EnsembleR2:   ensembleR2(reg, scaledTest, testY),
		Performance:  performance,
		RecordCount:  len(vectors),
		FeatureCount: features.Dim(),
	}

	p.mu.Lock()
	p.reg = reg
	p.mu.Unlock()

	p.logger.Info("ensemble trained",
		"records", summary.RecordCount,
		"members", len(models),
		"best_model", summary.BestModel,
		"ensemble_r2", summary.EnsembleR2)

	return summary, nil
}

// Predict scores one analysis result with the trained registry. An
// untrained pipeline or an unusable vector yields the neutral fallback; a
// feature-schema disagreement is surfaced as a SchemaMismatch error rather
// than silently mis-scored.
func (p *Pipeline) Predict(analysis types.AnalysisResult) (Prediction, error) {
	vector := features.ExtractExtended(analysis)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.reg == nil || len(vector) == 0 {
		return Prediction{Score: fallbackScore, Confidence: 0, Model: "default"}, nil
	}

	if p.reg.schemaVersion != features.SchemaVersion || p.reg.featureDim != len(vector) {
		return Prediction{}, apperrors.NewSchemaMismatchError(
			"feature schema does not match trained registry",
			map[string]any{
				"registry_version": p.reg.schemaVersion,
				"request_version":  features.SchemaVersion,
				"registry_dim":     p.reg.featureDim,
				"request_dim":      len(vector),
			})
	}

	scaled := p.reg.scaler.transform(vector)

	memberScores := make(map[string]float64, len(p.reg.models))
	values := make([]float64, 0, len(p.reg.models))
	for name, member := range p.reg.models {
		v, err := member.Predict(scaled)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			p.logger.Warn("ensemble member failed to predict", "model", name, "error", err)
			continue
		}
		memberScores[name] = v
		values = append(values, v)
	}
	if len(values) == 0 {
		return Prediction{Score: fallbackScore, Confidence: 0, Model: "default"}, nil
	}

	// Renormalize over the members that actually answered, so a skipped
	// member cannot deflate the weighted sum.
	score := 0.0
	weightSum := 0.0
	for name, v := range memberScores {
		w := p.reg.weights[name]
		score += v * w
		weightSum += w
	}
	if weightSum > 0 {
		score /= weightSum
	} else {
		score = stat.Mean(values, nil)
	}

	return Prediction{
		Score:        clamp(score, 0, 100),
		Confidence:   confidence(values),
		Model:        "ensemble",
		MemberScores: memberScores,
	}, nil
}

// Update folds new labeled records into the members that support
// incremental fitting; the rest are skipped with a warning. An untrained
// pipeline trains from scratch instead. Ensemble weights are deliberately
// not recomputed here: the held-out partition that produced them is gone,
// and reweighting against the update batch would overfit it.
func (p *Pipeline) Update(records []types.TrainingRecord, targetField string) error {
	p.mu.Lock()
	if p.reg == nil {
		p.mu.Unlock()
		_, err := p.Train(records, targetField)
		return err
	}
	defer p.mu.Unlock()

	if targetField != p.reg.targetField {
		return apperrors.NewTrainingError(
			fmt.Sprintf("registry trained on target %q, cannot update with %q", p.reg.targetField, targetField), nil)
	}

	vectors, targets := vectorize(records, targetField)
	if len(vectors) == 0 {
		return apperrors.NewTrainingError(
			fmt.Sprintf("no usable records with target %q", targetField), nil)
	}
	if len(vectors[0]) != p.reg.featureDim {
		return apperrors.NewSchemaMismatchError(
			"feature schema does not match trained registry",
			map[string]any{"registry_dim": p.reg.featureDim, "request_dim": len(vectors[0])})
	}

	imputeInPlace(vectors, p.reg.medians)
	scaled := p.reg.scaler.transformAll(vectors)

	updated := 0
	for name, member := range p.reg.models {
		if !member.SupportsPartialFit() {
			p.logger.Warn("ensemble member does not support incremental fitting, skipping",
				"model", name)
			continue
		}
		if err := member.PartialFit(scaled, targets); err != nil {
			p.logger.Warn("incremental fit failed, member unchanged", "model", name, "error", err)
			continue
		}
		updated++
	}

	p.reg.trainedAt = time.Now().UTC()
	p.logger.Info("ensemble updated incrementally", "records", len(vectors), "members_updated", updated)
	return nil
}

// Info reports the registry's introspection view.
func (p *Pipeline) Info() RegistryInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.reg == nil {
		return RegistryInfo{}
	}

	members := make([]string, 0, len(p.reg.models))
	for name := range p.reg.models {
		members = append(members, name)
	}
	sort.Strings(members)

	return RegistryInfo{
		Trained:       true,
		Members:       members,
		Weights:       copyWeights(p.reg.weights),
		Performance:   copyPerformance(p.reg.performance),
		SchemaVersion: p.reg.schemaVersion,
		FeatureCount:  p.reg.featureDim,
		TargetField:   p.reg.targetField,
		TrainedAt:     p.reg.trainedAt,
	}
}

// vectorize builds training vectors and targets, dropping records that
// lack the target field or a constructible vector. Absent metrics stay NaN
// for median imputation.
func vectorize(records []types.TrainingRecord, targetField string) ([][]float64, []float64) {
	vectors := make([][]float64, 0, len(records))
	targets := make([]float64, 0, len(records))

	for _, record := range records {
		target, ok := record.Target(targetField)
		if !ok || math.IsNaN(target) || math.IsInf(target, 0) {
			continue
		}
		vector := features.ExtractForTraining(record.Analysis)
		if len(vector) == 0 {
			continue
		}
		vectors = append(vectors, vector)
		targets = append(targets, target)
	}
	return vectors, targets
}

// split shuffles deterministically and carves off the held-out partition.
// With too few records for a meaningful held-out set, members are scored
// on the training partition itself.
func split(x [][]float64, y []float64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := len(x)
	perm := rand.New(rand.NewSource(splitSeed)).Perm(n)

	testCount := int(float64(n) * heldOutFraction)
	trainX = make([][]float64, 0, n-testCount)
	trainY = make([]float64, 0, n-testCount)
	testX = make([][]float64, 0, testCount)
	testY = make([]float64, 0, testCount)

	for i, idx := range perm {
		if i < testCount {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
			continue
		}
		trainX = append(trainX, x[idx])
		trainY = append(trainY, y[idx])
	}

	if len(testX) == 0 {
		testX, testY = trainX, trainY
	}
	return trainX, trainY, testX, testY
}

// evaluate scores one member on the held-out partition.
func evaluate(member Model, testX [][]float64, testY []float64) Performance {
	estimates := make([]float64, len(testX))
	for i, row := range testX {
		v, err := member.Predict(row)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		estimates[i] = v
	}

	var mse, mae float64
	for i, est := range estimates {
		diff := est - testY[i]
		mse += diff * diff
		mae += math.Abs(diff)
	}
	n := float64(len(testY))

	perf := Performance{
		R2:  stat.RSquaredFrom(estimates, testY, nil),
		MSE: mse / n,
		MAE: mae / n,
	}
	if math.IsNaN(perf.R2) || math.IsInf(perf.R2, 0) {
		perf.R2 = 0
	}

	if importance := member.FeatureImportance(); importance != nil {
		names := features.Names()
		perf.FeatureImportance = make(map[string]float64, len(importance))
		for i, v := range importance {
			if i < len(names) {
				perf.FeatureImportance[names[i]] = v
			}
		}
	}
	return perf
}

// computeWeights turns held-out R² into ensemble weights: negative scores
// contribute nothing, and when no member beats the mean predictor every
// member gets an equal say.
func computeWeights(r2ByModel map[string]float64) map[string]float64 {
	weights := make(map[string]float64, len(r2ByModel))

	total := 0.0
	for _, r2 := range r2ByModel {
		total += math.Max(0, r2)
	}

	if total == 0 {
		equal := 1.0 / float64(len(r2ByModel))
		for name := range r2ByModel {
			weights[name] = equal
		}
		return weights
	}

	for name, r2 := range r2ByModel {
		weights[name] = math.Max(0, r2) / total
	}
	return weights
}

// ensembleR2 scores the weighted ensemble itself on the held-out partition.
func ensembleR2(reg *registry, testX [][]float64, testY []float64) float64 {
	estimates := make([]float64, len(testX))
	for i, row := range testX {
		sum := 0.0
		for name, member := range reg.models {
			v, err := member.Predict(row)
			if err != nil {
				continue
			}
			sum += v * reg.weights[name]
		}
		estimates[i] = sum
	}

	r2 := stat.RSquaredFrom(estimates, testY, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}

func bestModel(performance map[string]Performance) string {
	best := ""
	bestR2 := math.Inf(-1)
	for name, perf := range performance {
		if perf.R2 > bestR2 || (perf.R2 == bestR2 && name < best) {
			best = name
			bestR2 = perf.R2
		}
	}
	return best
}

// confidence rewards both inter-member consensus and non-extremity: tight
// agreement far from either end of the scale reads as trustworthy.
func confidence(values []float64) float64 {
	mean, std := stat.PopMeanStdDev(values, nil)

	agreement := math.Max(0, 1-std/10)
	extremity := 1 - math.Abs(mean-50)/50

	return clamp((agreement+extremity)/2, 0, 1)
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyPerformance(in map[string]Performance) map[string]Performance {
	out := make(map[string]Performance, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
