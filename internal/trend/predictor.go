// Package trend projects trust score trajectories from score history.
package trend

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Trend direction labels.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// minHistory is the number of historical scores required before a
// least-squares fit is attempted.
const minHistory = 5

// Forecast describes the projected trajectory of a subject's trust score.
type Forecast struct {
	PredictedScore float64 `json:"predicted_score"`
	Trend          string  `json:"trend"`
	Confidence     float64 `json:"confidence"`
	Momentum       float64 `json:"momentum"`
	TrendStrength  float64 `json:"trend_strength"`
}

// Predictor fits a first-degree polynomial to a score series and projects
// it one step past the end of the series.
type Predictor struct{}

func NewPredictor() *Predictor {
	return &Predictor{}
}

// Predict forecasts the next score from history ordered oldest to newest.
// Fewer than five points, or any non-finite point, yields a neutral stable
// forecast anchored on the most recent score.
func (p *Predictor) Predict(history []float64) Forecast {
	if len(history) < minHistory || !finite(history) {
		return neutralForecast(history)
	}

	x := make([]float64, len(history))
	for i := range x {
		x[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(x, history, nil, false)
	predicted := clip(intercept+slope*float64(len(history)), 0, 100)

	recent := history[len(history)-minHistory:]
	momentum := (recent[len(recent)-1] - recent[0]) / float64(len(recent))

	var direction string
	switch {
	case math.Abs(slope) < 0.1:
		direction = TrendStable
	case slope > 0:
		direction = TrendImproving
	default:
		direction = TrendDeclining
	}

	return Forecast{
		PredictedScore: predicted,
		Trend:          direction,
		Confidence:     math.Min(0.9, float64(len(history))/20),
		Momentum:       momentum,
		TrendStrength:  math.Abs(slope),
	}
}

// neutralForecast is the fallback when history is too short or unusable.
func neutralForecast(history []float64) Forecast {
	predicted := 50.0
	if len(history) > 0 {
		if last := history[len(history)-1]; !math.IsNaN(last) && !math.IsInf(last, 0) {
			predicted = last
		}
	}

	return Forecast{
		PredictedScore: predicted,
		Trend:          TrendStable,
		Confidence:     0.5,
	}
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
