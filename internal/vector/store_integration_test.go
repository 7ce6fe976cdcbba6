package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmind/backend/internal/testutils"
	"opsmind/backend/internal/vector"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	store := vector.NewPostgresStore(s.DB)
	ctx := context.Background()

	first := []vector.Chunk{
		{Owner: "user-1", Filename: "a.pdf", ChunkIndex: 0, PageNumber: 1, Text: "alpha", Embedding: []float32{1, 0, 0}},
		{Owner: "user-1", Filename: "a.pdf", ChunkIndex: 1, PageNumber: 2, Text: "beta", Embedding: []float32{0, 1, 0}},
	}
	require.NoError(t, store.Replace(ctx, "user-1", first))

	// A second owner's corpus must not interfere.
	other := []vector.Chunk{
		{Owner: "user-2", Filename: "b.pdf", ChunkIndex: 0, PageNumber: 1, Text: "gamma", Embedding: []float32{0, 0, 1}},
	}
	require.NoError(t, store.Replace(ctx, "user-2", other))

	count, err := store.CountByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Round-trip preserves vectors and storage order.
	got, err := store.All(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Text)
	assert.Equal(t, []float32{1, 0, 0}, got[0].Embedding)
	assert.Equal(t, 2, got[1].PageNumber)

	// TopK ranks within the owner scope only.
	matches, err := store.TopK(ctx, "user-1", []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "beta", matches[0].Chunk.Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	// Replace swaps the whole corpus atomically.
	second := []vector.Chunk{
		{Owner: "user-1", Filename: "c.pdf", ChunkIndex: 0, PageNumber: 1, Text: "delta", Embedding: []float32{1, 1, 0}},
	}
	require.NoError(t, store.Replace(ctx, "user-1", second))

	got, err = store.All(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "delta", got[0].Text)

	// The other owner is untouched.
	count, err = store.CountByOwner(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
