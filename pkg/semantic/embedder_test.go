package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalEmbedder_Determinism(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "echo a string back to the caller")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "echo a string back to the caller")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestLexicalEmbedder_DifferentInputsDiffer(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "create a github issue")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "post a slack message")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestLexicalEmbedder_Dimension(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	assert.Equal(t, LexicalDim, e.Dimension())

	vec, err := e.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, vec, LexicalDim)
}

func TestLexicalEmbedder_UnitNormalized(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	vec, err := e.Embed(context.Background(), "a reasonably long description of a tool")
	require.NoError(t, err)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-4)
}

func TestLexicalEmbedder_EmptyStringIsZeroVector(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLexicalEmbedder_CaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "Echo   A String")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "echo a string")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestCosineSimilarity_RelatedTextsScoreHigherThanUnrelated(t *testing.T) {
	t.Parallel()
	e := NewLexicalEmbedder()
	ctx := context.Background()

	query, _ := e.Embed(ctx, "create an issue on github")
	related, _ := e.Embed(ctx, "create a github issue with a title and body")
	unrelated, _ := e.Embed(ctx, "send a slack notification to a channel")

	assert.Greater(t, CosineSimilarity(query, related), CosineSimilarity(query, unrelated))
}
