package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndQuery(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "proj", "default", "a", []float32{1, 0, 0}))
	require.NoError(t, idx.Add(ctx, "proj", "default", "b", []float32{0, 1, 0}))
	require.NoError(t, idx.Add(ctx, "proj", "default", "c", []float32{0.9, 0.1, 0}))

	candidates, err := idx.Query(ctx, "proj", "default", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "a", candidates[0].ID)
	assert.Equal(t, "c", candidates[1].ID)
	assert.Equal(t, "b", candidates[2].ID)
	assert.InDelta(t, 1.0, float64(candidates[0].Similarity), 1e-5)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Similarity, candidates[i].Similarity)
	}
}

func TestQueryClampsK(t *testing.T) {
	idx := New()
	ctx := context.Background()

	t.Run("empty collection", func(t *testing.T) {
		candidates, err := idx.Query(ctx, "proj", "default", []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("k larger than collection", func(t *testing.T) {
		require.NoError(t, idx.Add(ctx, "proj", "default", "only", []float32{1, 0}))
		candidates, err := idx.Query(ctx, "proj", "default", []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, candidates, 1)
	})
}

func TestNamespaceIsolation(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "proj", "default", "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "proj", "experiments", "b", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "other", "default", "c", []float32{1, 0}))

	candidates, err := idx.Query(ctx, "proj", "default", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "a", candidates[0].ID)
}

func TestReAddReplaces(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "proj", "default", "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "proj", "default", "a", []float32{0, 1}))

	candidates, err := idx.Query(ctx, "proj", "default", []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.InDelta(t, 1.0, float64(candidates[0].Similarity), 1e-5)
}

func TestRemove(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "proj", "default", "a", []float32{1, 0}))
	require.NoError(t, idx.Remove(ctx, "proj", "default", "a"))

	candidates, err := idx.Query(ctx, "proj", "default", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	t.Run("unknown id is a no-op", func(t *testing.T) {
		assert.NoError(t, idx.Remove(ctx, "proj", "default", "ghost"))
	})
}
