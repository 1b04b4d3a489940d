package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/trustiq/trust-engine/internal/types"
)

func fullAnalysis() types.AnalysisResult {
	return types.AnalysisResult{
		types.SourceGitHub: {
			"commit_frequency": 15.0,
			"repo_count":       10.0,
			"follower_count":   200.0,
			"account_age_days": 365.0,
			"star_count":       50.0,
			"fork_count":       8.0,
		},
		types.SourceLinkedIn: {
			"connection_count":     300.0,
			"endorsement_count":    40.0,
			"experience_years":     6.0,
			"skill_count":          12.0,
			"recommendation_count": 3.0,
		},
		types.SourceOnChain: {
			"transaction_count":        120.0,
			"nft_holdings":             5.0,
			"defi_activity":            2.0,
			"governance_participation": 1.0,
			"wallet_age_days":          400.0,
		},
		types.SourceBehavior: {
			"anomaly_score":        0.2,
			"behavior_consistency": 0.8,
			"risk_level":           "medium",
		},
		types.SourceSocialNetwork: {
			"network_size":       150.0,
			"influence_score":    0.6,
			"connection_quality": 0.7,
			"network_diversity":  0.5,
			"social_capital":     0.6,
		},
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		analysis types.AnalysisResult
		expected []float64
	}{
		{
			name:     "full analysis",
			analysis: fullAnalysis(),
			expected: []float64{15, 10, 200, 365, 300, 40, 6},
		},
		{
			name:     "empty analysis degrades to zeros",
			analysis: types.AnalysisResult{},
			expected: []float64{0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:     "nil analysis degrades to zeros",
			analysis: nil,
			expected: []float64{0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "partial sources fill remaining entries with zeros",
			analysis: types.AnalysisResult{
				types.SourceGitHub: {"commit_frequency": 4.0, "repo_count": 2.0},
			},
			expected: []float64{4, 2, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.analysis)
			assert.Equal(t, NarrowDim, len(got))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtractExtended(t *testing.T) {
	vector := ExtractExtended(fullAnalysis())

	assert.Equal(t, Dim(), len(vector))

	// Direct entries at their fixed positions.
	assert.Equal(t, 15.0, vector[0], "github_commit_frequency")
	assert.Equal(t, 8.0, vector[5], "github_fork_count")
	assert.Equal(t, 300.0, vector[6], "linkedin_connection_count")
	assert.Equal(t, 120.0, vector[11], "on_chain_transaction_count")
	assert.Equal(t, 0.5, vector[18], "behavior_risk_level encodes medium")
	assert.Equal(t, 150.0, vector[19], "social_network_size")

	// Derived entries are appended last.
	assert.InDelta(t, 68.5, vector[24], 1e-9, "composite_activity_score")
	assert.InDelta(t, 1.0, vector[25], 1e-9, "platform_diversity")
	assert.InDelta(t, 0.5, vector[26], 1e-9, "engagement_velocity")
}

func TestExtractExtendedMissingSources(t *testing.T) {
	analysis := types.AnalysisResult{
		types.SourceGitHub: {"commit_frequency": 60.0},
	}

	vector := ExtractExtended(analysis)

	assert.Equal(t, Dim(), len(vector))
	assert.Equal(t, 60.0, vector[0])
	for i := 1; i < len(baseFields); i++ {
		assert.Zero(t, vector[i], "entry %d (%s) should default to zero", i, baseFields[i].name)
	}
	assert.InDelta(t, 18.0, vector[24], 1e-9, "composite from commit frequency alone")
	assert.InDelta(t, 0.2, vector[25], 1e-9, "one active source out of five")
	assert.InDelta(t, 1.0, vector[26], 1e-9, "velocity saturates at 1")
}

func TestExtractForTraining(t *testing.T) {
	analysis := types.AnalysisResult{
		types.SourceGitHub: {"commit_frequency": 9.0},
	}

	vector := ExtractForTraining(analysis)

	assert.Equal(t, Dim(), len(vector))
	assert.Equal(t, 9.0, vector[0])

	// Every other direct entry is an explicit missing marker.
	for i := 1; i < len(baseFields); i++ {
		assert.True(t, math.IsNaN(vector[i]), "entry %d (%s) should be NaN", i, baseFields[i].name)
	}

	// Derived entries stay finite so imputation only touches direct fields.
	for i := len(baseFields); i < Dim(); i++ {
		assert.False(t, math.IsNaN(vector[i]), "derived entry %d should be finite", i)
	}
}

func TestRiskValue(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected float64
	}{
		{name: "low", level: "low", expected: 0.0},
		{name: "medium", level: "medium", expected: 0.5},
		{name: "high", level: "high", expected: 1.0},
		{name: "case insensitive", level: "HIGH", expected: 1.0},
		{name: "unknown label", level: "critical", expected: 0.0},
		{name: "empty label", level: "", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, riskValue(tt.level))
		})
	}
}

func TestBehaviorVector(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		events   []types.ActivityEvent
		expected []float64
	}{
		{
			name:     "no events",
			events:   nil,
			expected: []float64{0, 0, 0, 0},
		},
		{
			name: "single event has no gaps",
			events: []types.ActivityEvent{
				{Timestamp: base, Platform: "github", Content: "pushed"},
			},
			expected: []float64{0, 0, 1, 6},
		},
		{
			name: "regular cadence across two platforms",
			events: []types.ActivityEvent{
				{Timestamp: base, Platform: "github", Content: "abc"},
				{Timestamp: base.Add(time.Minute), Platform: "twitter", Content: "hello"},
				{Timestamp: base.Add(2 * time.Minute), Platform: "github", Content: "hi"},
			},
			expected: []float64{60, 0, 2, 10.0 / 3.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BehaviorVector(tt.events)
			assert.Equal(t, len(tt.expected), len(got))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], got[i], 1e-9, "entry %d", i)
			}
		})
	}
}

func TestBehaviorVectorUnsortedInput(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Out-of-order events must produce the same gaps as sorted ones.
	events := []types.ActivityEvent{
		{Timestamp: base.Add(2 * time.Minute), Platform: "github"},
		{Timestamp: base, Platform: "github"},
		{Timestamp: base.Add(time.Minute), Platform: "github"},
	}

	got := BehaviorVector(events)
	assert.InDelta(t, 60.0, got[0], 1e-9)
	assert.InDelta(t, 0.0, got[1], 1e-9)
}

func TestNamesMatchDimension(t *testing.T) {
	names := Names()

	assert.Equal(t, Dim(), len(names))
	assert.Equal(t, "github_commit_frequency", names[0])
	assert.Equal(t, "engagement_velocity", names[len(names)-1])

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		assert.False(t, seen[name], "duplicate feature name %q", name)
		seen[name] = true
	}
}

func TestExtractionAlwaysFinite(t *testing.T) {
	metricKeys := []string{
		"commit_frequency", "repo_count", "follower_count", "account_age_days",
		"connection_count", "endorsement_count", "experience_years",
		"transaction_count", "network_size", "anomaly_score",
	}

	rapid.Check(t, func(t *rapid.T) {
		analysis := types.AnalysisResult{}
		for _, source := range types.Sources {
			if !rapid.Bool().Draw(t, "has_"+source) {
				continue
			}
			metrics := types.Metrics{}
			n := rapid.IntRange(0, len(metricKeys)).Draw(t, "metrics_"+source)
			for i := 0; i < n; i++ {
				// Float64 draws include NaN and the infinities.
				metrics[metricKeys[i]] = rapid.Float64().Draw(t, "value")
			}
			analysis[source] = metrics
		}

		for _, v := range Extract(analysis) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("narrow vector contains non-finite value %v", v)
			}
		}
		for _, v := range ExtractExtended(analysis) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("extended vector contains non-finite value %v", v)
			}
		}
	})
}
