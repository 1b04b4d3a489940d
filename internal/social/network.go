// Package social analyzes the structure of a subject's connection graph.
package social

import (
	"math"

	"github.com/trustiq/trust-engine/internal/types"
)

// NetworkMetrics summarizes the reach and makeup of a connection graph.
// InfluenceScore and ConnectionQuality are bounded to [0,1].
// NetworkDiversity can exceed 1 when a graph spans more platforms or
// connection types than the normalization expects.
type NetworkMetrics struct {
	NetworkSize       int     `json:"network_size"`
	InfluenceScore    float64 `json:"influence_score"`
	ConnectionQuality float64 `json:"connection_quality"`
	NetworkDiversity  float64 `json:"network_diversity"`
	SocialCapital     float64 `json:"social_capital"`
}

// Analyzer derives network metrics from a subject's connections.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze computes network metrics for the given connections. An empty
// graph yields all-zero metrics.
func (a *Analyzer) Analyze(connections []types.Connection) NetworkMetrics {
	if len(connections) == 0 {
		return NetworkMetrics{}
	}

	influence := influenceScore(connections)
	quality := connectionQuality(connections)
	diversity := networkDiversity(connections)

	return NetworkMetrics{
		NetworkSize:       len(connections),
		InfluenceScore:    influence,
		ConnectionQuality: quality,
		NetworkDiversity:  diversity,
		SocialCapital:     (influence + quality + diversity) / 3,
	}
}

// influenceScore averages follower reach and engagement across the graph.
func influenceScore(connections []types.Connection) float64 {
	var followers, engagement float64
	for _, conn := range connections {
		followers += conn.Followers
		engagement += conn.EngagementRate
	}

	influence := (followers*0.0001 + engagement*10) / float64(len(connections))
	return math.Min(1, influence)
}

// connectionQuality is the mean of the verified and active ratios.
func connectionQuality(connections []types.Connection) float64 {
	var verified, active int
	for _, conn := range connections {
		if conn.Verified {
			verified++
		}
		if conn.Active {
			active++
		}
	}

	n := float64(len(connections))
	return (float64(verified)/n + float64(active)/n) / 2
}

// networkDiversity scores distinct platforms against an expected maximum
// of five and distinct connection types against three.
func networkDiversity(connections []types.Connection) float64 {
	platforms := make(map[string]struct{})
	connTypes := make(map[string]struct{})
	for _, conn := range connections {
		platforms[conn.Platform] = struct{}{}
		connTypes[conn.Type] = struct{}{}
	}

	return (float64(len(platforms))/5 + float64(len(connTypes))/3) / 2
}
