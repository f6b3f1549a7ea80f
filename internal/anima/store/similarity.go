package store

import "math"

// float32Epsilon matches the machine epsilon of float32; squared norms at or
// below it are treated as zero vectors.
const float32Epsilon = 1.1920929e-07

// CosineSimilarity returns the cosine of the angle between a and b over
// their common prefix, so vectors of different dimension still compare. It
// returns 0 when the prefix is empty or either vector has (near) zero norm.
func CosineSimilarity(a, b []float32) float32 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA <= float32Epsilon || normB <= float32Epsilon {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
