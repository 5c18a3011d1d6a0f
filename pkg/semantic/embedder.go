package semantic

import (
	"context"
	"math"
	"strings"
)

// Embedder turns text into a fixed-dimension vector. A higher-quality
// embedder (calling out to a model) may be injected; §4.6 requires the
// system work with none configured, via LexicalEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// LexicalDim is the vocabulary size (and therefore vector dimension)
// used by LexicalEmbedder's character-trigram hashing.
const LexicalDim = 256

// LexicalEmbedder is the deterministic, model-free default embedder: a
// bounded-vocabulary, L2-normalized character-trigram frequency vector.
// Same text always yields the same vector, and it never makes a network
// call (§4.6, "Non-goals": embeddings never call out over the network
// unless an embedder is explicitly injected).
type LexicalEmbedder struct{}

// NewLexicalEmbedder constructs the default embedder.
func NewLexicalEmbedder() *LexicalEmbedder { return &LexicalEmbedder{} }

// Dimension returns the fixed vector dimension.
func (*LexicalEmbedder) Dimension() int { return LexicalDim }

// Embed hashes every character trigram of the lower-cased, whitespace-
// collapsed input into a bucket in [0, LexicalDim) and L2-normalizes
// the resulting frequency vector.
func (e *LexicalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	norm := normalize(text)
	vec := make([]float32, LexicalDim)
	runes := []rune(norm)
	if len(runes) == 0 {
		return vec, nil
	}

	const n = 3
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		vec[hashBucket(gram)]++
	}
	// A short string (< n runes) still contributes its whole content as
	// one bucket so it isn't embedded as the zero vector.
	if len(runes) < n {
		vec[hashBucket(norm)]++
	}

	l2Normalize(vec)
	return vec, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hashBucket(s string) int {
	var h uint32 = 2166136261 // FNV-1a offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int(h % LexicalDim)
}

func l2Normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
