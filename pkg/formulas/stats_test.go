package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-9)
	assert.Equal(t, 0.0, Mean(nil))
}

func TestStdDev(t *testing.T) {
	// sample variance 32/7
	assert.InDelta(t, 2.1381, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-4)
	assert.Equal(t, 0.0, StdDev([]float64{42}), "a single observation has no spread")
	assert.Equal(t, 0.0, StdDev(nil))
}

func TestTailMean(t *testing.T) {
	// 20 observations, 5% tail -> worst single observation
	data := make([]float64, 20)
	for i := range data {
		data[i] = float64(i) * 10
	}
	data[7] = -500

	assert.InDelta(t, -500, TailMean(data, 0.05), 1e-9)

	// 3 observations, 5% tail -> ceil(0.15) = 1 observation
	assert.InDelta(t, -30, TailMean([]float64{-30, 10, 40}, 0.05), 1e-9)

	// fraction covering half the sample
	assert.InDelta(t, -10, TailMean([]float64{-30, 10, 40, 100}, 0.5), 1e-9)

	assert.Equal(t, 0.0, TailMean(nil, 0.05))
	assert.Equal(t, 0.0, TailMean([]float64{1, 2}, 0))
}
