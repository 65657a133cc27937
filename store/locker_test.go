package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("exclusive while held", func(t *testing.T) {
		l := NewLocalLocker()

		ok, err := l.AcquireLock(ctx, "chain", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.AcquireLock(ctx, "chain", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release frees the name", func(t *testing.T) {
		l := NewLocalLocker()

		ok, err := l.AcquireLock(ctx, "chain", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, l.ReleaseLock(ctx, "chain"))

		ok, err = l.AcquireLock(ctx, "chain", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("independent names", func(t *testing.T) {
		l := NewLocalLocker()

		ok, err := l.AcquireLock(ctx, "chain:a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.AcquireLock(ctx, "chain:b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		l := NewLocalLocker()

		ok, err := l.AcquireLock(ctx, "chain", time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(5 * time.Millisecond)

		ok, err = l.AcquireLock(ctx, "chain", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "an expired hold must not block acquisition")
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := NewLocalLocker()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := l.AcquireLock(cancelled, "chain", time.Minute)
		assert.Error(t, err)
	})

	t.Run("release unheld is a no-op", func(t *testing.T) {
		l := NewLocalLocker()
		assert.NoError(t, l.ReleaseLock(ctx, "never-held"))
	})
}
