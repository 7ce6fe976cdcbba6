package vector_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmind/backend/internal/vector"
)

func TestCosine_SelfSimilarity(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5}
	assert.InDelta(t, 1.0, vector.Cosine(v, v), 1e-9)
}

func TestCosine_Symmetric(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 7}
	assert.InDelta(t, vector.Cosine(a, b), vector.Cosine(b, a), 1e-12)
}

func TestCosine_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, vector.Cosine(a, b), 1e-12)
}

func TestCosine_ZeroNormIsNaN(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{1, 1}
	assert.True(t, math.IsNaN(vector.Cosine(a, b)))
}

func chunkWithVec(index int, vec []float32) vector.Chunk {
	return vector.Chunk{Filename: "doc.pdf", ChunkIndex: index, Embedding: vec}
}

func TestRank_SortsDescending(t *testing.T) {
	chunks := []vector.Chunk{
		chunkWithVec(0, []float32{0, 1}),
		chunkWithVec(1, []float32{1, 0}),
		chunkWithVec(2, []float32{1, 1}),
	}
	query := []float32{1, 0}

	matches := vector.Rank(chunks, query, 10)
	require.Len(t, matches, 3)

	assert.Equal(t, 1, matches[0].Chunk.ChunkIndex)
	assert.Equal(t, 2, matches[1].Chunk.ChunkIndex)
	assert.Equal(t, 0, matches[2].Chunk.ChunkIndex)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestRank_TiesKeepStorageOrder(t *testing.T) {
	// Identical vectors score identically; the stable sort must preserve
	// insertion order so repeated queries are deterministic.
	same := []float32{1, 2, 3}
	chunks := []vector.Chunk{
		chunkWithVec(0, same),
		chunkWithVec(1, same),
		chunkWithVec(2, same),
	}

	matches := vector.Rank(chunks, []float32{1, 2, 3}, 3)
	require.Len(t, matches, 3)
	for i, m := range matches {
		assert.Equal(t, i, m.Chunk.ChunkIndex)
	}
}

func TestRank_NaNRanksLast(t *testing.T) {
	chunks := []vector.Chunk{
		chunkWithVec(0, []float32{0, 0}), // zero norm -> NaN score
		chunkWithVec(1, []float32{-1, 0}),
		chunkWithVec(2, []float32{1, 0}),
	}

	matches := vector.Rank(chunks, []float32{1, 0}, 3)
	require.Len(t, matches, 3)
	assert.Equal(t, 2, matches[0].Chunk.ChunkIndex)
	assert.Equal(t, 1, matches[1].Chunk.ChunkIndex)
	assert.Equal(t, 0, matches[2].Chunk.ChunkIndex)
	assert.True(t, math.IsNaN(matches[2].Score))
}

func TestRank_TruncatesToK(t *testing.T) {
	var chunks []vector.Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunkWithVec(i, []float32{1, float32(i)}))
	}

	matches := vector.Rank(chunks, []float32{1, 0}, 5)
	assert.Len(t, matches, 5)
}

func TestRank_EmptyCorpus(t *testing.T) {
	assert.Empty(t, vector.Rank(nil, []float32{1, 0}, 5))
}
