package vector

import "math"

// ScoreFromSimilarity maps a cosine similarity in [-1, 1] to a score in [0, 1].
func ScoreFromSimilarity(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(1, (s+1)/2))
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when either has zero length
// or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return cosineWithNorms(a, b, na, nb)
}

// cosineWithNorms is CosineSimilarity with precomputed norms, used by stores that cache them.
func cosineWithNorms(a, b []float32, na, nb float64) float64 {
	if len(a) != len(b) || len(a) == 0 || na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

func norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
