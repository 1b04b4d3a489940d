package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/trustiq/trust-engine/internal/types"
)

// SchemaVersion identifies the extended feature layout. Any change to
// the field table below is a breaking schema change and must bump this
// version: trained registries record it and refuse mismatched vectors.
const SchemaVersion = "v1"

// Indices into the narrow legacy vector produced by Extract.
const (
	NarrowCommitFrequency = iota
	NarrowRepoCount
	NarrowFollowerCount
	NarrowAccountAgeDays
	NarrowConnectionCount
	NarrowEndorsementCount
	NarrowExperienceYears

	NarrowDim
)

type fieldSpec struct {
	name        string
	source      string
	key         string
	categorical bool // risk-level label encoded to a number
}

// baseFields fixes the order of the extended vector's direct entries.
// Derived entries are appended after these, see derivedNames.
var baseFields = []fieldSpec{
	{name: "github_commit_frequency", source: types.SourceGitHub, key: "commit_frequency"},
	{name: "github_repo_count", source: types.SourceGitHub, key: "repo_count"},
	{name: "github_follower_count", source: types.SourceGitHub, key: "follower_count"},
	{name: "github_account_age_days", source: types.SourceGitHub, key: "account_age_days"},
	{name: "github_star_count", source: types.SourceGitHub, key: "star_count"},
	{name: "github_fork_count", source: types.SourceGitHub, key: "fork_count"},
	{name: "linkedin_connection_count", source: types.SourceLinkedIn, key: "connection_count"},
	{name: "linkedin_endorsement_count", source: types.SourceLinkedIn, key: "endorsement_count"},
	{name: "linkedin_experience_years", source: types.SourceLinkedIn, key: "experience_years"},
	{name: "linkedin_skill_count", source: types.SourceLinkedIn, key: "skill_count"},
	{name: "linkedin_recommendation_count", source: types.SourceLinkedIn, key: "recommendation_count"},
	{name: "on_chain_transaction_count", source: types.SourceOnChain, key: "transaction_count"},
	{name: "on_chain_nft_holdings", source: types.SourceOnChain, key: "nft_holdings"},
	{name: "on_chain_defi_activity", source: types.SourceOnChain, key: "defi_activity"},
	{name: "on_chain_governance_participation", source: types.SourceOnChain, key: "governance_participation"},
	{name: "on_chain_wallet_age_days", source: types.SourceOnChain, key: "wallet_age_days"},
	{name: "behavior_anomaly_score", source: types.SourceBehavior, key: "anomaly_score"},
	{name: "behavior_consistency", source: types.SourceBehavior, key: "behavior_consistency"},
	{name: "behavior_risk_level", source: types.SourceBehavior, key: "risk_level", categorical: true},
	{name: "social_network_size", source: types.SourceSocialNetwork, key: "network_size"},
	{name: "social_influence_score", source: types.SourceSocialNetwork, key: "influence_score"},
	{name: "social_connection_quality", source: types.SourceSocialNetwork, key: "connection_quality"},
	{name: "social_network_diversity", source: types.SourceSocialNetwork, key: "network_diversity"},
	{name: "social_capital", source: types.SourceSocialNetwork, key: "social_capital"},
}

var derivedNames = []string{
	"composite_activity_score",
	"platform_diversity",
	"engagement_velocity",
}

// Names returns the ordered entry names of the extended vector.
func Names() []string {
	names := make([]string, 0, len(baseFields)+len(derivedNames))
	for _, f := range baseFields {
		names = append(names, f.name)
	}
	names = append(names, derivedNames...)
	return names
}

// Dim is the length of the extended vector.
func Dim() int {
	return len(baseFields) + len(derivedNames)
}

// Extract builds the narrow legacy vector the rule-based scorer consumes:
// code-hosting and professional-network metrics only, absent values as 0.
func Extract(analysis types.AnalysisResult) []float64 {
	github := analysis.Source(types.SourceGitHub)
	linkedin := analysis.Source(types.SourceLinkedIn)

	return []float64{
		sanitize(github.Number("commit_frequency")),
		sanitize(github.Number("repo_count")),
		sanitize(github.Number("follower_count")),
		sanitize(github.Number("account_age_days")),
		sanitize(linkedin.Number("connection_count")),
		sanitize(linkedin.Number("endorsement_count")),
		sanitize(linkedin.Number("experience_years")),
	}
}

// ExtractExtended builds the full fixed-order vector used by the ensemble
// at inference time. Absent metrics degrade to 0; the result never
// contains NaN or Inf.
func ExtractExtended(analysis types.AnalysisResult) []float64 {
	return extended(analysis, false)
}

// ExtractForTraining builds the same vector but marks absent metrics as
// NaN so the training path can impute them with per-column medians.
// Derived entries are computed from the zero-default view and are always
// finite.
func ExtractForTraining(analysis types.AnalysisResult) []float64 {
	return extended(analysis, true)
}

func extended(analysis types.AnalysisResult, markMissing bool) []float64 {
	vector := make([]float64, 0, Dim())

	for _, f := range baseFields {
		metrics := analysis.Source(f.source)

		if markMissing && !metrics.Has(f.key) {
			vector = append(vector, math.NaN())
			continue
		}

		if f.categorical {
			vector = append(vector, riskValue(metrics.Text(f.key)))
			continue
		}
		vector = append(vector, sanitize(metrics.Number(f.key)))
	}

	github := analysis.Source(types.SourceGitHub)
	linkedin := analysis.Source(types.SourceLinkedIn)
	onChain := analysis.Source(types.SourceOnChain)

	composite := sanitize(github.Number("commit_frequency"))*0.3 +
		sanitize(github.Number("repo_count"))*0.2 +
		sanitize(linkedin.Number("connection_count"))*0.1 +
		sanitize(linkedin.Number("endorsement_count"))*0.2 +
		sanitize(onChain.Number("transaction_count"))*0.2

	active := 0
	for _, source := range types.Sources {
		if analysis.Source(source).HasActivity() {
			active++
		}
	}
	diversity := float64(active) / float64(len(types.Sources))

	velocity := math.Min(1, sanitize(github.Number("commit_frequency"))/30)

	return append(vector, composite, diversity, velocity)
}

// BehaviorVector summarizes an activity-event history into the four
// behavioral dimensions the anomaly detector works on: mean gap between
// events in seconds, gap standard deviation, count of distinct platforms
// and mean content length.
func BehaviorVector(events []types.ActivityEvent) []float64 {
	if len(events) == 0 {
		return []float64{0, 0, 0, 0}
	}

	sorted := sortedTimestamps(events)

	var meanGap, stdGap float64
	if len(sorted) > 1 {
		gaps := make([]float64, len(sorted)-1)
		for i := 1; i < len(sorted); i++ {
			gaps[i-1] = sorted[i].Sub(sorted[i-1]).Seconds()
		}
		meanGap = stat.Mean(gaps, nil)
		stdGap = stat.PopStdDev(gaps, nil)
	}

	platforms := make(map[string]struct{}, len(events))
	contentLen := 0.0
	for _, event := range events {
		platforms[event.Platform] = struct{}{}
		contentLen += float64(len(event.Content))
	}

	return []float64{
		sanitize(meanGap),
		sanitize(stdGap),
		float64(len(platforms)),
		contentLen / float64(len(events)),
	}
}

func sortedTimestamps(events []types.ActivityEvent) []time.Time {
	ts := make([]time.Time, len(events))
	for i, event := range events {
		ts[i] = event.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts
}

func riskValue(level string) float64 {
	switch strings.ToLower(level) {
	case "low":
		return 0.0
	case "medium":
		return 0.5
	case "high":
		return 1.0
	default:
		return 0.0
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
