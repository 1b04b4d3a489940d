package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPredict(t *testing.T) {
	p := NewPredictor()

	tests := []struct {
		name      string
		history   []float64
		predicted float64
		trend     string
		conf      float64
		momentum  float64
		strength  float64
	}{
		{
			name:      "steady climb",
			history:   []float64{10, 20, 30, 40, 50},
			predicted: 60,
			trend:     TrendImproving,
			conf:      0.25,
			momentum:  8,
			strength:  10,
		},
		{
			name:      "steady decline",
			history:   []float64{90, 80, 70, 60, 50, 40},
			predicted: 30,
			trend:     TrendDeclining,
			conf:      0.3,
			momentum:  -8,
			strength:  10,
		},
		{
			name:      "flat history",
			history:   []float64{50, 50, 50, 50, 50, 50},
			predicted: 50,
			trend:     TrendStable,
			conf:      0.3,
			momentum:  0,
			strength:  0,
		},
		{
			name:      "projection clamped to the score ceiling",
			history:   []float64{70, 80, 90, 95, 100},
			predicted: 100,
			trend:     TrendImproving,
			conf:      0.25,
			momentum:  6,
			strength:  7.5,
		},
		{
			name:      "projection clamped to the score floor",
			history:   []float64{30, 20, 10, 5, 0},
			predicted: 0,
			trend:     TrendDeclining,
			conf:      0.25,
			momentum:  -6,
			strength:  7.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forecast := p.Predict(tt.history)

			assert.InDelta(t, tt.predicted, forecast.PredictedScore, 1e-9)
			assert.Equal(t, tt.trend, forecast.Trend)
			assert.InDelta(t, tt.conf, forecast.Confidence, 1e-9)
			assert.InDelta(t, tt.momentum, forecast.Momentum, 1e-9)
			assert.InDelta(t, tt.strength, forecast.TrendStrength, 1e-9)
		})
	}
}

func TestPredictShortHistory(t *testing.T) {
	p := NewPredictor()

	tests := []struct {
		name      string
		history   []float64
		predicted float64
	}{
		{name: "no history", history: nil, predicted: 50},
		{name: "single score", history: []float64{72}, predicted: 72},
		{name: "four scores anchor on the newest", history: []float64{10, 90, 30, 70}, predicted: 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forecast := p.Predict(tt.history)

			assert.Equal(t, tt.predicted, forecast.PredictedScore)
			assert.Equal(t, TrendStable, forecast.Trend)
			assert.Equal(t, 0.5, forecast.Confidence)
			assert.Zero(t, forecast.Momentum)
			assert.Zero(t, forecast.TrendStrength)
		})
	}
}

func TestPredictUnusableHistory(t *testing.T) {
	p := NewPredictor()

	t.Run("non-finite point mid-series", func(t *testing.T) {
		forecast := p.Predict([]float64{10, 20, math.NaN(), 40, 50})

		assert.Equal(t, 50.0, forecast.PredictedScore)
		assert.Equal(t, TrendStable, forecast.Trend)
		assert.Equal(t, 0.5, forecast.Confidence)
	})

	t.Run("non-finite newest point falls back to the default", func(t *testing.T) {
		forecast := p.Predict([]float64{10, 20, 30, 40, math.Inf(1)})

		assert.Equal(t, 50.0, forecast.PredictedScore)
		assert.Equal(t, TrendStable, forecast.Trend)
	})
}

func TestPredictConfidenceCap(t *testing.T) {
	p := NewPredictor()

	history := make([]float64, 30)
	for i := range history {
		history[i] = 30 + float64(i)*0.5
	}

	forecast := p.Predict(history)

	assert.Equal(t, 0.9, forecast.Confidence)
	assert.Equal(t, TrendImproving, forecast.Trend)
}

func TestForecastBoundsProperty(t *testing.T) {
	p := NewPredictor()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(5, 40).Draw(t, "n")
		history := make([]float64, n)
		for i := range history {
			history[i] = rapid.Float64Range(0, 100).Draw(t, "score")
		}

		forecast := p.Predict(history)

		if forecast.PredictedScore < 0 || forecast.PredictedScore > 100 {
			t.Fatalf("predicted score out of range: %v", forecast.PredictedScore)
		}

		switch forecast.Trend {
		case TrendImproving, TrendDeclining, TrendStable:
		default:
			t.Fatalf("unexpected trend label %q", forecast.Trend)
		}

		if want := math.Min(0.9, float64(n)/20); forecast.Confidence != want {
			t.Fatalf("confidence %v, want %v", forecast.Confidence, want)
		}

		if forecast.TrendStrength < 0 {
			t.Fatalf("negative trend strength %v", forecast.TrendStrength)
		}
	})
}
