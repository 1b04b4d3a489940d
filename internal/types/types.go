package types

import "time"

// Source names recognized in an AnalysisResult. Any source may be absent.
const (
	SourceGitHub        = "github"
	SourceLinkedIn      = "linkedin"
	SourceOnChain       = "on_chain"
	SourceBehavior      = "behavior"
	SourceSocialNetwork = "social_network"
)

// Sources lists every known source in canonical order.
var Sources = []string{
	SourceGitHub,
	SourceLinkedIn,
	SourceOnChain,
	SourceBehavior,
	SourceSocialNetwork,
}

// Metrics is a bag of named metric values for one source. Values are
// numeric for most metrics and strings for categorical ones (risk_level).
type Metrics map[string]any

// Number returns the metric as a float64, or 0 when absent or non-numeric.
func (m Metrics) Number(key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Text returns the metric as a string, or "" when absent or non-string.
func (m Metrics) Text(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Has reports whether the metric is present at all.
func (m Metrics) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// HasActivity reports whether any metric carries a positive numeric value.
func (m Metrics) HasActivity() bool {
	for key := range m {
		if m.Number(key) > 0 {
			return true
		}
	}
	return false
}

// AnalysisResult maps a source name to its normalized metrics. Produced
// once per scoring request by upstream collaborators and consumed
// read-only by the engine.
type AnalysisResult map[string]Metrics

// Source returns the metrics for a source, nil-safe for absent sources.
func (a AnalysisResult) Source(name string) Metrics {
	if a == nil {
		return nil
	}
	return a[name]
}

// ActivityEvent is one entry of a subject's behavioral history.
type ActivityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Platform  string    `json:"platform"`
	Content   string    `json:"content"`
}

// Connection is one edge of a subject's social graph.
type Connection struct {
	Platform       string  `json:"platform"`
	Type           string  `json:"type"`
	Verified       bool    `json:"verified"`
	Active         bool    `json:"active"`
	Followers      float64 `json:"followers"`
	EngagementRate float64 `json:"engagement_rate"`
}

// TrainingRecord is a labeled observation used to train or update the
// ensemble: a full analysis result plus one or more target values.
type TrainingRecord struct {
	ID        string             `json:"id"`
	Subject   string             `json:"subject"`
	Analysis  AnalysisResult     `json:"analysis"`
	Targets   map[string]float64 `json:"targets"`
	CreatedAt time.Time          `json:"created_at"`
}

// Target returns the labeled value for a target field.
func (r TrainingRecord) Target(field string) (float64, bool) {
	v, ok := r.Targets[field]
	return v, ok
}
