package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64
// values. Fewer than two observations yields 0.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// TailMean returns the mean of the worst ceil(fraction * n) observations
// (expected shortfall / CVaR estimator): sort ascending, average the left
// tail. Returns 0 for empty input.
func TailMean(data []float64, fraction float64) float64 {
	if len(data) == 0 || fraction <= 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	tailSize := int(math.Ceil(fraction * float64(len(sorted))))
	if tailSize < 1 {
		tailSize = 1
	}
	if tailSize > len(sorted) {
		tailSize = len(sorted)
	}

	return stat.Mean(sorted[:tailSize], nil)
}
