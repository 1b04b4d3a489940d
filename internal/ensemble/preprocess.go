package ensemble

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// scaler standardizes feature columns to zero mean and unit variance. It
// is fitted once on the training partition and reused verbatim at predict
// and update time; refitting at inference would leak the serving
// distribution into a transform the models were trained against.
type scaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// fitScaler learns per-column mean and population standard deviation.
// Zero-variance columns keep std 1 so transform passes them through
// centered instead of dividing by zero.
func fitScaler(x [][]float64) *scaler {
	dim := len(x[0])
	s := &scaler{
		Means: make([]float64, dim),
		Stds:  make([]float64, dim),
	}

	column := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i, row := range x {
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Means[j] = mean
		s.Stds[j] = std
	}
	return s
}

func (s *scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Means[j]) / s.Stds[j]
	}
	return out
}

func (s *scaler) transformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.transform(row)
	}
	return out
}

// columnMedians computes the per-column median over finite cells of rows
// that still carry NaN markers for absent metrics. A column with no finite
// cell gets median 0.
func columnMedians(x [][]float64) []float64 {
	dim := len(x[0])
	medians := make([]float64, dim)

	for j := 0; j < dim; j++ {
		finite := make([]float64, 0, len(x))
		for _, row := range x {
			if !math.IsNaN(row[j]) {
				finite = append(finite, row[j])
			}
		}
		if len(finite) == 0 {
			continue
		}
		sort.Float64s(finite)
		medians[j] = stat.Quantile(0.5, stat.Empirical, finite, nil)
	}
	return medians
}

// imputeInPlace replaces NaN markers with the supplied per-column values.
func imputeInPlace(x [][]float64, medians []float64) {
	for _, row := range x {
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = medians[j]
			}
		}
	}
}
