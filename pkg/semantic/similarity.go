// Package semantic implements the persisted embedding index behind the
// `find` tool: a pluggable Embedder, a deterministic lexical fallback,
// a SQLite-backed store keyed by catalog fingerprint, a bounded warm-up
// worker pool, and the ranked query path (§4.6).
package semantic

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. A zero vector on either side yields 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
