package semantic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite vectors", []float32{1, 2, 3}, []float32{-1, -2, -3}, -1.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0.0},
		{"known angle", []float32{1, 0}, []float32{1, 1}, 0.7071067811865476},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.want, CosineSimilarity(tc.a, tc.b), 1e-7)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 0.0},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 1.0},
		{"opposite vectors", []float32{1, 2, 3}, []float32{-1, -2, -3}, 2.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.want, CosineDistance(tc.a, tc.b), 1e-7)
		})
	}
}
