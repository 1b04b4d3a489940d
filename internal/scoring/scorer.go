// Package scoring implements the rule-based trust scoring path. It is the
// synchronous, always-available counterpart to the trained ensemble: every
// request can be scored from component rules alone.
package scoring

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/trustiq/trust-engine/internal/anomaly"
	"github.com/trustiq/trust-engine/internal/features"
	"github.com/trustiq/trust-engine/internal/types"
)

// Component weight keys.
const (
	WeightConsistency       = "consistency"
	WeightSkillDepth        = "skill_depth"
	WeightPeerValidation    = "peer_validation"
	WeightEngagementQuality = "engagement_quality"
)

// ScoreBreakdown itemizes the contribution of each scoring component.
// Component values stay within [0,100] and the anomaly factor within [0,1]
// for any input, so downstream consumers never see an unbounded field.
type ScoreBreakdown struct {
	Consistency       float64 `json:"consistency"`
	SkillDepth        float64 `json:"skill_depth"`
	PeerValidation    float64 `json:"peer_validation"`
	EngagementQuality float64 `json:"engagement_quality"`
	AnomalyFactor     float64 `json:"anomaly_factor"`
}

// TrustScore is the bounded 0-100 result of the rule-based path. Values are
// constructed fresh per request and never mutated afterwards.
type TrustScore struct {
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Scorer combines weighted component scores with an anomaly discount.
type Scorer struct {
	detector *anomaly.Detector
	weights  map[string]float64
}

// NewScorer returns a Scorer backed by the given anomaly detector. The
// component weights sum to 1.0 before the anomaly discount is applied.
func NewScorer(detector *anomaly.Detector) *Scorer {
	return &Scorer{
		detector: detector,
		weights: map[string]float64{
			WeightConsistency:       0.25,
			WeightSkillDepth:        0.30,
			WeightPeerValidation:    0.25,
			WeightEngagementQuality: 0.20,
		},
	}
}

// Score computes the trust score for one analysis result. It always returns
// a usable value; input the scorer cannot process degrades to NeutralScore.
func (s *Scorer) Score(analysis types.AnalysisResult) TrustScore {
	vector := features.Extract(analysis)
	if len(vector) != features.NarrowDim {
		slog.Warn("feature vector has unexpected size, returning neutral score",
			"got", len(vector), "want", features.NarrowDim)
		return NeutralScore()
	}

	breakdown := ScoreBreakdown{
		Consistency:       consistency(vector),
		SkillDepth:        skillDepth(vector),
		PeerValidation:    peerValidation(vector),
		EngagementQuality: engagementQuality(vector),
		AnomalyFactor:     s.detector.ScoreVector(vector),
	}

	base := breakdown.Consistency*s.weights[WeightConsistency] +
		breakdown.SkillDepth*s.weights[WeightSkillDepth] +
		breakdown.PeerValidation*s.weights[WeightPeerValidation] +
		breakdown.EngagementQuality*s.weights[WeightEngagementQuality]

	return TrustScore{
		Score:     clip(base*(1-breakdown.AnomalyFactor*0.3), 0, 100),
		Breakdown: breakdown,
	}
}

// NeutralScore is the fallback when scoring cannot proceed: a midpoint score
// with an all-zero breakdown.
func NeutralScore() TrustScore {
	return TrustScore{Score: 50}
}

// consistency rewards a commit cadence proportional to account age,
// measured in 30-day windows. Accounts with no age history score neutral.
func consistency(vector []float64) float64 {
	freq := vector[features.NarrowCommitFrequency]
	ageDays := vector[features.NarrowAccountAgeDays]

	if ageDays == 0 {
		return 50
	}
	return clip(freq/(ageDays/30)*100, 0, 100)
}

func skillDepth(vector []float64) float64 {
	repos := vector[features.NarrowRepoCount]
	years := vector[features.NarrowExperienceYears]

	return clip(repos*2+years*10, 0, 100)
}

func peerValidation(vector []float64) float64 {
	followers := vector[features.NarrowFollowerCount]
	connections := vector[features.NarrowConnectionCount]
	endorsements := vector[features.NarrowEndorsementCount]

	return clip((followers*0.5+connections*0.3+endorsements*0.2)*0.1, 0, 100)
}

// engagementQuality averages the activity-facing features (commit frequency,
// repositories, followers, account age).
func engagementQuality(vector []float64) float64 {
	return clip(stat.Mean(vector[:4], nil)*5, 0, 100)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
