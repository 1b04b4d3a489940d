// Package engine wires the scoring components into the one surface a
// transport or CLI talks to. Every scoring operation here is synchronous
// and safe for unrestricted concurrent use; the ensemble pipeline
// serializes its own registry access internally.
package engine

import (
	"log/slog"

	"github.com/trustiq/trust-engine/internal/anomaly"
	"github.com/trustiq/trust-engine/internal/ensemble"
	"github.com/trustiq/trust-engine/internal/features"
	"github.com/trustiq/trust-engine/internal/scoring"
	"github.com/trustiq/trust-engine/internal/social"
	"github.com/trustiq/trust-engine/internal/trend"
	"github.com/trustiq/trust-engine/internal/types"
)

// Engine is the trust-score computation core.
type Engine struct {
	detector  *anomaly.Detector
	scorer    *scoring.Scorer
	predictor *trend.Predictor
	analyzer  *social.Analyzer
	pipeline  *ensemble.Pipeline
	logger    *slog.Logger
}

// New assembles an engine with an untrained ensemble pipeline.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	detector := anomaly.NewDetector()
	return &Engine{
		detector:  detector,
		scorer:    scoring.NewScorer(detector),
		predictor: trend.NewPredictor(),
		analyzer:  social.NewAnalyzer(),
		pipeline:  ensemble.NewPipeline(logger),
		logger:    logger,
	}
}

// ComputeTrustScore runs the rule-based scoring path. It always returns a
// usable score.
func (e *Engine) ComputeTrustScore(analysis types.AnalysisResult) scoring.TrustScore {
	return e.scorer.Score(analysis)
}

// GenerateInsights explains a computed score as ordered human-readable
// statements.
func (e *Engine) GenerateInsights(analysis types.AnalysisResult, score scoring.TrustScore) []string {
	return e.scorer.Explain(analysis, score)
}

// DetectAnomalies runs the composite anomaly check over a feature vector
// and activity history.
func (e *Engine) DetectAnomalies(featureVector []float64, events []types.ActivityEvent) anomaly.Report {
	return e.detector.Detect(featureVector, events)
}

// DetectAnomaliesWithBaseline additionally compares the vector against the
// subject's recent feature snapshots.
func (e *Engine) DetectAnomaliesWithBaseline(featureVector []float64, events []types.ActivityEvent, baseline [][]float64) anomaly.Report {
	return e.detector.DetectWithBaseline(featureVector, events, baseline)
}

// ForecastTrend projects the next score from an oldest-first history.
func (e *Engine) ForecastTrend(history []float64) trend.Forecast {
	return e.predictor.Predict(history)
}

// AnalyzeSocialNetwork derives the social_network source metrics from a
// connection list.
func (e *Engine) AnalyzeSocialNetwork(connections []types.Connection) social.NetworkMetrics {
	return e.analyzer.Analyze(connections)
}

// ExtractFeatures builds the extended feature vector for an analysis
// result, the form stored as anomaly-baseline snapshots.
func (e *Engine) ExtractFeatures(analysis types.AnalysisResult) []float64 {
	return features.ExtractExtended(analysis)
}

// BehaviorFeatures summarizes an activity-event history into the
// behavioral feature vector the anomaly detector can score directly.
func (e *Engine) BehaviorFeatures(events []types.ActivityEvent) []float64 {
	return features.BehaviorVector(events)
}

// TrainEnsemble fits the ensemble pipeline from labeled records.
func (e *Engine) TrainEnsemble(records []types.TrainingRecord, targetField string) (ensemble.TrainingSummary, error) {
	return e.pipeline.Train(records, targetField)
}

// PredictWithEnsemble scores an analysis result with the trained ensemble.
func (e *Engine) PredictWithEnsemble(analysis types.AnalysisResult) (ensemble.Prediction, error) {
	return e.pipeline.Predict(analysis)
}

// UpdateEnsembleIncrementally folds new labeled records into the members
// that support incremental fitting.
func (e *Engine) UpdateEnsembleIncrementally(records []types.TrainingRecord, targetField string) error {
	return e.pipeline.Update(records, targetField)
}

// PersistEnsemble writes the model registry to path as one atomic unit.
func (e *Engine) PersistEnsemble(path string) error {
	return e.pipeline.Persist(path)
}

// RestoreEnsemble loads a previously persisted registry.
func (e *Engine) RestoreEnsemble(path string) error {
	return e.pipeline.Restore(path)
}

// EnsembleInfo reports the registry's trained state and performance.
func (e *Engine) EnsembleInfo() ensemble.RegistryInfo {
	return e.pipeline.Info()
}
