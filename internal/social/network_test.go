package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/trustiq/trust-engine/internal/types"
)

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer()

	t.Run("empty graph yields zero metrics", func(t *testing.T) {
		assert.Equal(t, NetworkMetrics{}, a.Analyze(nil))
		assert.Equal(t, NetworkMetrics{}, a.Analyze([]types.Connection{}))
	})

	t.Run("single strong connection", func(t *testing.T) {
		metrics := a.Analyze([]types.Connection{
			{Platform: "github", Type: "peer", Verified: true, Active: true, Followers: 5000, EngagementRate: 0.05},
		})

		assert.Equal(t, 1, metrics.NetworkSize)
		assert.InDelta(t, 1.0, metrics.InfluenceScore, 1e-9)
		assert.InDelta(t, 1.0, metrics.ConnectionQuality, 1e-9)
		assert.InDelta(t, 0.266667, metrics.NetworkDiversity, 1e-6)
		assert.InDelta(t, 0.755556, metrics.SocialCapital, 1e-6)
	})

	t.Run("mixed graph", func(t *testing.T) {
		metrics := a.Analyze([]types.Connection{
			{Platform: "github", Type: "colleague", Verified: true, Active: true, Followers: 10000, EngagementRate: 0.02},
			{Platform: "github", Type: "peer", Active: true, Followers: 500, EngagementRate: 0.01},
			{Platform: "linkedin", Type: "colleague", Verified: true, Followers: 2000, EngagementRate: 0.03},
			{Platform: "twitter", Type: "follower", Followers: 100},
		})

		assert.Equal(t, 4, metrics.NetworkSize)
		assert.InDelta(t, 0.465, metrics.InfluenceScore, 1e-9)
		assert.InDelta(t, 0.5, metrics.ConnectionQuality, 1e-9)
		assert.InDelta(t, 0.8, metrics.NetworkDiversity, 1e-9)
		assert.InDelta(t, 0.588333, metrics.SocialCapital, 1e-6)
	})

	t.Run("influence saturates at one", func(t *testing.T) {
		metrics := a.Analyze([]types.Connection{
			{Platform: "twitter", Type: "follower", Followers: 1e6},
		})

		assert.Equal(t, 1.0, metrics.InfluenceScore)
	})

	t.Run("diversity exceeds one for unusually broad graphs", func(t *testing.T) {
		metrics := a.Analyze([]types.Connection{
			{Platform: "github", Type: "peer"},
			{Platform: "linkedin", Type: "colleague"},
			{Platform: "twitter", Type: "follower"},
			{Platform: "mastodon", Type: "peer"},
			{Platform: "bluesky", Type: "mentor"},
			{Platform: "farcaster", Type: "peer"},
			{Platform: "lens", Type: "peer"},
		})

		// 7 platforms over an expected 5, 4 types over an expected 3.
		assert.InDelta(t, (7.0/5+4.0/3)/2, metrics.NetworkDiversity, 1e-9)
		assert.Greater(t, metrics.NetworkDiversity, 1.0)
	})

	t.Run("missing platform and type still count as one bucket", func(t *testing.T) {
		metrics := a.Analyze([]types.Connection{
			{Followers: 10},
			{Followers: 20},
		})

		assert.InDelta(t, (1.0/5+1.0/3)/2, metrics.NetworkDiversity, 1e-9)
	})
}

func TestAnalyzeBoundsProperty(t *testing.T) {
	a := NewAnalyzer()

	platforms := []string{"github", "linkedin", "twitter", "mastodon", ""}
	connTypes := []string{"peer", "colleague", "follower", ""}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		connections := make([]types.Connection, n)
		for i := range connections {
			connections[i] = types.Connection{
				Platform:       rapid.SampledFrom(platforms).Draw(t, "platform"),
				Type:           rapid.SampledFrom(connTypes).Draw(t, "type"),
				Verified:       rapid.Bool().Draw(t, "verified"),
				Active:         rapid.Bool().Draw(t, "active"),
				Followers:      rapid.Float64Range(0, 1e7).Draw(t, "followers"),
				EngagementRate: rapid.Float64Range(0, 1).Draw(t, "engagement"),
			}
		}

		metrics := a.Analyze(connections)

		if metrics.NetworkSize != n {
			t.Fatalf("network size %d, want %d", metrics.NetworkSize, n)
		}
		if metrics.InfluenceScore < 0 || metrics.InfluenceScore > 1 {
			t.Fatalf("influence out of range: %v", metrics.InfluenceScore)
		}
		if metrics.ConnectionQuality < 0 || metrics.ConnectionQuality > 1 {
			t.Fatalf("quality out of range: %v", metrics.ConnectionQuality)
		}
		if metrics.NetworkDiversity < 0 {
			t.Fatalf("negative diversity: %v", metrics.NetworkDiversity)
		}
	})
}
