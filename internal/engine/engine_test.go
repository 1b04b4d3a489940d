package engine

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	apperrors "github.com/trustiq/trust-engine/internal/errors"
	"github.com/trustiq/trust-engine/internal/features"
	"github.com/trustiq/trust-engine/internal/trend"
	"github.com/trustiq/trust-engine/internal/types"
)

func sampleAnalysis() types.AnalysisResult {
	return types.AnalysisResult{
		types.SourceGitHub: types.Metrics{
			"commit_frequency": 15.0,
			"repo_count":       10.0,
			"follower_count":   200.0,
			"account_age_days": 365.0,
		},
		types.SourceLinkedIn: types.Metrics{
			"connection_count":  300.0,
			"endorsement_count": 40.0,
			"experience_years":  6.0,
		},
	}
}

func TestComputeTrustScoreBounds(t *testing.T) {
	e := New(nil)

	score := e.ComputeTrustScore(sampleAnalysis())
	assert.GreaterOrEqual(t, score.Score, 0.0)
	assert.LessOrEqual(t, score.Score, 100.0)

	b := score.Breakdown
	for name, v := range map[string]float64{
		"consistency":        b.Consistency,
		"skill_depth":        b.SkillDepth,
		"peer_validation":    b.PeerValidation,
		"engagement_quality": b.EngagementQuality,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 100.0, name)
	}
	assert.GreaterOrEqual(t, b.AnomalyFactor, 0.0)
	assert.LessOrEqual(t, b.AnomalyFactor, 1.0)
}

func TestComputeTrustScoreIdempotent(t *testing.T) {
	e := New(nil)
	analysis := sampleAnalysis()

	first := e.ComputeTrustScore(analysis)
	second := e.ComputeTrustScore(analysis)
	assert.Equal(t, first, second)
}

func TestComputeTrustScoreBoundsProperty(t *testing.T) {
	e := New(nil)

	rapid.Check(t, func(t *rapid.T) {
		analysis := types.AnalysisResult{}
		for _, source := range types.Sources {
			if !rapid.Bool().Draw(t, "include "+source) {
				continue
			}
			metrics := types.Metrics{}
			count := rapid.IntRange(0, 6).Draw(t, "metrics")
			for i := 0; i < count; i++ {
				key := rapid.SampledFrom([]string{
					"commit_frequency", "repo_count", "follower_count",
					"account_age_days", "connection_count", "endorsement_count",
					"experience_years", "transaction_count",
				}).Draw(t, "key")
				metrics[key] = rapid.Float64Range(-1e9, 1e9).Draw(t, "value")
			}
			analysis[source] = metrics
		}

		score := e.ComputeTrustScore(analysis)
		if score.Score < 0 || score.Score > 100 {
			t.Fatalf("score %v out of bounds", score.Score)
		}
	})
}

func TestGenerateInsightsOrdering(t *testing.T) {
	e := New(nil)

	// Empty analysis: neutral consistency 50, zero skill depth and peer
	// validation, zero anomaly, score below 40.
	score := e.ComputeTrustScore(types.AnalysisResult{})
	insights := e.GenerateInsights(types.AnalysisResult{}, score)

	require.Len(t, insights, 2)
	assert.Contains(t, insights[0], "Peer validation")
	assert.Contains(t, insights[1], "needs improvement")
}

func TestForecastTrendDelegation(t *testing.T) {
	e := New(nil)

	short := e.ForecastTrend([]float64{40, 45})
	assert.Equal(t, trend.TrendStable, short.Trend)
	assert.InDelta(t, 0.5, short.Confidence, 1e-9)

	rising := e.ForecastTrend([]float64{10, 20, 30, 40, 50})
	assert.Equal(t, trend.TrendImproving, rising.Trend)
	assert.InDelta(t, 60, rising.PredictedScore, 1e-9)
	assert.InDelta(t, 8, rising.Momentum, 1e-9)
}

func TestDetectAnomaliesDelegation(t *testing.T) {
	e := New(nil)

	report := e.DetectAnomalies(nil, nil)
	assert.Zero(t, report.AnomalyScore)
	assert.Equal(t, "low", report.RiskLevel)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []types.ActivityEvent{
		{Timestamp: base},
		{Timestamp: base.Add(time.Hour)},
		{Timestamp: base.Add(2 * time.Hour)},
	}
	report = e.DetectAnomalies([]float64{1, 1, 1, 40}, events)
	assert.GreaterOrEqual(t, report.AnomalyScore, 0.0)
	assert.LessOrEqual(t, report.AnomalyScore, 1.0)
	assert.InDelta(t, 1-report.AnomalyScore, report.BehaviorConsistency, 1e-9)
}

func TestAnalyzeSocialNetworkEmpty(t *testing.T) {
	e := New(nil)

	metrics := e.AnalyzeSocialNetwork(nil)
	assert.Zero(t, metrics.NetworkSize)
	assert.Zero(t, metrics.InfluenceScore)
	assert.Zero(t, metrics.ConnectionQuality)
	assert.Zero(t, metrics.NetworkDiversity)
	assert.Zero(t, metrics.SocialCapital)
}

func trainingRecords(n int) []types.TrainingRecord {
	records := make([]types.TrainingRecord, 0, n)
	for i := 0; i < n; i++ {
		cf := float64(i%20) + 1
		years := float64(i%12) + 1
		records = append(records, types.TrainingRecord{
			ID:      fmt.Sprintf("r%d", i),
			Subject: fmt.Sprintf("s%d", i),
			Analysis: types.AnalysisResult{
				types.SourceGitHub: types.Metrics{
					"commit_frequency": cf,
					"repo_count":       float64((i * 7) % 35),
					"follower_count":   float64((i * 13) % 400),
					"account_age_days": 200 + float64(i*11),
					"star_count":       float64((i * 3) % 90),
					"fork_count":       float64((i * 5) % 40),
				},
				types.SourceLinkedIn: types.Metrics{
					"connection_count":     float64((i * 17) % 600),
					"endorsement_count":    float64((i * 19) % 50),
					"experience_years":     years,
					"skill_count":          float64((i * 23) % 28),
					"recommendation_count": float64((i * 29) % 15),
				},
				types.SourceOnChain: types.Metrics{
					"transaction_count":        float64((i * 31) % 900),
					"nft_holdings":             float64((i * 37) % 45),
					"defi_activity":            float64((i * 41) % 9),
					"governance_participation": float64(i % 4),
					"wallet_age_days":          float64((i * 43) % 1400),
				},
			},
			Targets: map[string]float64{"trust_score": 25 + cf*2 + years*1.5},
		})
	}
	return records
}

func TestEnsembleLifecycle(t *testing.T) {
	e := New(nil)
	path := filepath.Join(t.TempDir(), "registry.json")

	assert.False(t, e.EnsembleInfo().Trained)

	summary, err := e.TrainEnsemble(trainingRecords(70), "trust_score")
	require.NoError(t, err)
	assert.Equal(t, 70, summary.RecordCount)
	assert.True(t, e.EnsembleInfo().Trained)

	pred, err := e.PredictWithEnsemble(sampleAnalysis())
	require.NoError(t, err)
	assert.Equal(t, "ensemble", pred.Model)

	require.NoError(t, e.UpdateEnsembleIncrementally(trainingRecords(8), "trust_score"))
	require.NoError(t, e.PersistEnsemble(path))

	fresh := New(nil)
	require.NoError(t, fresh.RestoreEnsemble(path))
	restored, err := fresh.PredictWithEnsemble(sampleAnalysis())
	require.NoError(t, err)

	live, err := e.PredictWithEnsemble(sampleAnalysis())
	require.NoError(t, err)
	assert.InDelta(t, live.Score, restored.Score, 1e-9)
}

func TestEnsembleTrainingFailureSurfaces(t *testing.T) {
	e := New(nil)

	_, err := e.TrainEnsemble(nil, "trust_score")
	require.Error(t, err)
	assert.True(t, apperrors.IsTrainingFailure(err))
}

func TestPredictWithEnsembleUntrained(t *testing.T) {
	e := New(nil)

	pred, err := e.PredictWithEnsemble(sampleAnalysis())
	require.NoError(t, err)
	assert.Equal(t, 50.0, pred.Score)
	assert.Zero(t, pred.Confidence)
	assert.Equal(t, "default", pred.Model)
}

func TestExtractFeaturesDimension(t *testing.T) {
	e := New(nil)

	vector := e.ExtractFeatures(sampleAnalysis())
	assert.Len(t, vector, features.Dim())
}
