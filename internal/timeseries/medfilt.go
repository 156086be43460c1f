package timeseries

import (
	"math"
	"sort"
)

// Despike applies a sliding median filter to a measurement column, skipping
// missing (NaN) values rather than letting them poison the window. Edge
// windows are truncated instead of zero-padded so the filter does not drag
// the series toward zero at the boundaries.
// kernelSize must be a positive odd integer.
func Despike(data []float64, kernelSize int) []float64 {
	if kernelSize < 1 || kernelSize%2 == 0 {
		panic("kernelSize must be positive odd integer")
	}
	n := len(data)
	if n == 0 {
		return nil
	}

	half := kernelSize / 2
	result := make([]float64, n)

	for i := 0; i < n; i++ {
		if math.IsNaN(data[i]) {
			result[i] = math.NaN() // missing stays missing
			continue
		}

		window := make([]float64, 0, kernelSize)
		for j := -half; j <= half; j++ {
			idx := i + j
			if idx < 0 || idx >= n {
				continue
			}
			if math.IsNaN(data[idx]) {
				continue
			}
			window = append(window, data[idx])
		}

		sort.Float64s(window)
		result[i] = window[len(window)/2]
	}
	return result
}
