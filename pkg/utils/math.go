// Package utils provides shared logging and vector math helpers.
package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm and returns the original norm.
// A zero vector is left unchanged.
func NormalizeL2(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return 0
	}
	n := math.Sqrt(sum)
	inv := float32(1 / n)
	for i := range x {
		x[i] *= inv
	}
	return n
}

// AllFinite reports whether x contains no NaN or infinite values.
func AllFinite(x []float32) bool {
	for _, v := range x {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
