// Package stats holds the small descriptive statistics the scorers share.
package stats

import "math"

// Sum adds xs.
func Sum(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return Sum(xs) / float64(len(xs))
}

// StdDev returns the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// CV returns the coefficient of variation. ok is false when the mean is not
// positive and the ratio is meaningless.
func CV(xs []float64) (float64, bool) {
	m := Mean(xs)
	if m <= 0 {
		return 0, false
	}
	return StdDev(xs) / m, true
}

// MinMax returns the smallest and largest values.
func MinMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// Ratio divides a by b, returning fallback when b is zero.
func Ratio(a, b, fallback float64) float64 {
	if b == 0 {
		return fallback
	}
	return a / b
}

// Halves splits xs into a first and second half. With an odd length the
// middle element belongs to neither.
func Halves(xs []float64) ([]float64, []float64) {
	n := len(xs)
	return xs[:n/2], xs[n-n/2:]
}

// Change is the relative move from the first half's mean to the second's.
// A zero base yields +1, -1 or 0 by the sign of the second half.
func Change(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	first, second := Halves(xs)
	a, b := Mean(first), Mean(second)
	if a == 0 {
		switch {
		case b > 0:
			return 1
		case b < 0:
			return -1
		default:
			return 0
		}
	}
	return (b - a) / math.Abs(a)
}

// Round rounds half away from zero to the nearest integer.
func Round(x float64) int {
	return int(math.Round(x))
}

// Clamp bounds a score to [0, 100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RatioOrInf divides a by b for "lower is better" ratios. A zero numerator
// is a zero ratio; a positive numerator over a non-positive base is +Inf.
func RatioOrInf(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	if b <= 0 {
		return math.Inf(1)
	}
	return a / b
}
