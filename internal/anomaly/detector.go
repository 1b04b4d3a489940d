package anomaly

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/trustiq/trust-engine/internal/types"
)

// Risk levels derived from the composite anomaly score.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Report is the composite anomaly assessment for one subject.
type Report struct {
	AnomalyScore        float64 `json:"anomaly_score"`
	Statistical         float64 `json:"statistical_anomalies"`
	Temporal            float64 `json:"temporal_anomalies"`
	Cluster             float64 `json:"cluster_anomalies"`
	BehaviorConsistency float64 `json:"behavior_consistency"`
	RiskLevel           string  `json:"risk_level"`
}

// Detector combines three independent anomaly signals: per-vector
// statistical outliers, temporal gap irregularity and a density-based
// outlier flag against a baseline population. It holds no state between
// calls and never blocks scoring: degenerate input fails closed to the
// no-anomaly report.
type Detector struct {
	eps        float64
	minSamples int
}

// NewDetector creates a detector with the standard density parameters
// (eps 0.5, min samples 2 over range-normalized points).
func NewDetector() *Detector {
	return &Detector{
		eps:        0.5,
		minSamples: 2,
	}
}

// Detect scores a feature vector and an activity history. Without a
// baseline population the cluster signal is degenerate and contributes 0,
// see DetectWithBaseline.
func (d *Detector) Detect(features []float64, events []types.ActivityEvent) Report {
	return d.DetectWithBaseline(features, events, nil)
}

// DetectWithBaseline scores a feature vector against the subject's prior
// feature vectors. The composite weighs the three signals 0.4/0.3/0.3 and
// clamps to [0,1].
func (d *Detector) DetectWithBaseline(features []float64, events []types.ActivityEvent, baseline [][]float64) Report {
	statistical := d.statisticalScore(features)
	temporal := d.temporalScore(events)
	cluster := d.clusterScore(features, baseline)

	score := clip(0.4*statistical+0.3*temporal+0.3*cluster, 0, 1)

	return Report{
		AnomalyScore:        score,
		Statistical:         statistical,
		Temporal:            temporal,
		Cluster:             cluster,
		BehaviorConsistency: 1 - score,
		RiskLevel:           riskLevel(score),
	}
}

// ScoreVector runs the statistical pass alone. The rule-based scorer uses
// this as its anomaly factor without the temporal and cluster signals.
func (d *Detector) ScoreVector(features []float64) float64 {
	return d.statisticalScore(features)
}

// statisticalScore standardizes the vector across its own dimensions and
// reports how far the most extreme entry sits from the rest, scaled so a
// 3-sigma entry saturates at 1.
func (d *Detector) statisticalScore(features []float64) float64 {
	if len(features) == 0 || allZero(features) {
		return 0
	}

	mean, std := stat.PopMeanStdDev(features, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}

	maxZ := 0.0
	for _, v := range features {
		z := math.Abs(stat.StdScore(v, mean, std))
		if z > maxZ {
			maxZ = z
		}
	}

	return clip(maxZ/3, 0, 1)
}

// temporalScore flags irregular activity cadence: gaps between
// consecutive events deviating more than two standard deviations from the
// mean gap count as outliers.
func (d *Detector) temporalScore(events []types.ActivityEvent) float64 {
	if len(events) < 3 {
		return 0
	}

	timestamps := make([]time.Time, len(events))
	for i, event := range events {
		timestamps[i] = event.Timestamp
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	gaps := make([]float64, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		gaps[i-1] = timestamps[i].Sub(timestamps[i-1]).Seconds()
	}

	meanGap, stdGap := stat.PopMeanStdDev(gaps, nil)
	if stdGap == 0 || math.IsNaN(stdGap) {
		return 0
	}

	outliers := 0
	for _, gap := range gaps {
		if math.Abs(gap-meanGap) > 2*stdGap {
			outliers++
		}
	}

	ratio := float64(outliers) / float64(len(gaps))
	return math.Min(1, 2*ratio)
}

// clusterScore runs a density pass over the subject's baseline vectors
// plus the current one and reports 1 when the current vector is
// density-unreachable noise. Fewer than minSamples points cannot form a
// cluster, so the check fails closed to 0.
func (d *Detector) clusterScore(features []float64, baseline [][]float64) float64 {
	if len(features) == 0 || allZero(features) {
		return 0
	}

	points := make([][]float64, 0, len(baseline)+1)
	for _, prior := range baseline {
		if len(prior) == len(features) {
			points = append(points, prior)
		}
	}
	points = append(points, features)

	if len(points) < d.minSamples {
		return 0
	}

	labels := dbscan(normalizePoints(points), d.eps, d.minSamples)
	if labels[len(points)-1] == Noise {
		return 1
	}
	return 0
}

// normalizePoints rescales each column to [0,1] over its observed range
// and divides coordinates by sqrt(dim), so euclidean distance reads as
// the root-mean-square per-dimension difference: 0 for identical rows, 1
// for rows differing by the full observed range in every dimension. That
// keeps the eps radius scale-free across feature schemas. Zero-range
// columns collapse to 0.
func normalizePoints(points [][]float64) [][]float64 {
	if len(points) == 0 {
		return points
	}

	dim := len(points[0])
	norm := math.Sqrt(float64(dim))

	scaled := make([][]float64, len(points))
	for i := range scaled {
		scaled[i] = make([]float64, dim)
	}

	for j := 0; j < dim; j++ {
		lo, hi := points[0][j], points[0][j]
		for _, p := range points {
			lo = math.Min(lo, p[j])
			hi = math.Max(hi, p[j])
		}

		span := hi - lo
		for i, p := range points {
			if span == 0 {
				scaled[i][j] = 0
				continue
			}
			scaled[i][j] = (p[j] - lo) / span / norm
		}
	}

	return scaled
}

func riskLevel(score float64) string {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.7:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func allZero(xs []float64) bool {
	for _, v := range xs {
		if v != 0 {
			return false
		}
	}
	return true
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
