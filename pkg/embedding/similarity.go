package embedding

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. It returns 0 on a dimension mismatch or when either vector has
// zero magnitude; a mismatch indicates a model/version inconsistency that
// should degrade the search path, not crash it.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
