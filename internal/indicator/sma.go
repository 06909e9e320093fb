package indicator

import "math"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
// Values are summed in index order so results are reproducible bit for bit.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SampleStdDev returns the (n-1) standard deviation of xs around mean.
// Returns 0 when fewer than two values are supplied.
func SampleStdDev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
