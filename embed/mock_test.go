package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestMockEmbedder(t *testing.T) {
	m := NewMockEmbedder(64)
	ctx := context.Background()

	t.Run("dimensions", func(t *testing.T) {
		assert.Equal(t, 64, m.Dimensions())
		vec, err := m.Embed(ctx, "hello world")
		require.NoError(t, err)
		assert.Len(t, vec, 64)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := m.Embed(ctx, "redis sorted sets")
		require.NoError(t, err)
		b, err := m.Embed(ctx, "redis sorted sets")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("unit norm", func(t *testing.T) {
		vec, err := m.Embed(ctx, "some text with several tokens")
		require.NoError(t, err)
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	})

	t.Run("shared words raise similarity", func(t *testing.T) {
		query, err := m.Embed(ctx, "redis sorted sets order members by score")
		require.NoError(t, err)
		near, err := m.Embed(ctx, "redis sorted sets store members")
		require.NoError(t, err)
		far, err := m.Embed(ctx, "goroutines are lightweight threads")
		require.NoError(t, err)

		assert.Greater(t, cosine(query, near), cosine(query, far))
	})

	t.Run("empty text yields zero vector", func(t *testing.T) {
		vec, err := m.Embed(ctx, "")
		require.NoError(t, err)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	})

	t.Run("default dimensionality", func(t *testing.T) {
		assert.Equal(t, 64, NewMockEmbedder(0).Dimensions())
	})
}
