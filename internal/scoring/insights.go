package scoring

import "github.com/trustiq/trust-engine/internal/types"

// Explain produces human-readable insights for a computed score. Rules are
// evaluated in a fixed order and every matching rule contributes, so the
// output order is stable across runs.
func (s *Scorer) Explain(analysis types.AnalysisResult, score TrustScore) []string {
	breakdown := score.Breakdown
	insights := make([]string, 0, 6)

	if breakdown.Consistency < 30 {
		insights = append(insights, "Your activity consistency is low. Consider maintaining regular contributions.")
	}
	if breakdown.SkillDepth > 80 {
		insights = append(insights, "Strong skill depth detected across multiple platforms.")
	}
	if breakdown.PeerValidation < 40 {
		insights = append(insights, "Peer validation could be improved through more community engagement.")
	}
	if breakdown.AnomalyFactor > 0.5 {
		insights = append(insights, "Unusual activity patterns detected. Please verify your account information.")
	}

	switch {
	case score.Score > 80:
		insights = append(insights, "Excellent trust score! Your digital reputation is strong.")
	case score.Score < 40:
		insights = append(insights, "Trust score needs improvement. Focus on verified contributions and engagement.")
	}

	return insights
}
