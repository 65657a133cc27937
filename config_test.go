package aegis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aegis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
redis:
  url: redis://cache.internal:6380
  connect_timeout: 2s
  read_timeout: 10s
ranking:
  similarity_weight: 0.8
  vote_weight: 0.2
  recency_half_life: 24h
  overscan: 6
deprecation:
  min_harmful: 5
cache:
  ttl: 30s
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "redis://cache.internal:6380", cfg.Redis.GetURL())
		assert.Equal(t, 2*time.Second, cfg.Redis.GetConnectTimeout())
		assert.Equal(t, 10*time.Second, cfg.Redis.GetReadTimeout())
		assert.Equal(t, 5*time.Second, cfg.Redis.GetWriteTimeout(), "unset falls back")

		ranking := cfg.Ranking.ToRanking()
		assert.Equal(t, 0.8, ranking.SimilarityWeight)
		assert.Equal(t, 0.2, ranking.VoteWeight)
		assert.Equal(t, 24*time.Hour, ranking.RecencyHalfLife)
		assert.Equal(t, 6, ranking.Overscan)

		assert.Equal(t, int64(5), cfg.Deprecation.ToPolicy().MinHarmful)
		assert.Equal(t, 30*time.Second, cfg.Cache.GetTTL())
	})

	t.Run("empty config uses defaults", func(t *testing.T) {
		path := writeConfig(t, "{}\n")
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "redis://localhost:6379", cfg.Redis.GetURL())
		assert.Equal(t, 5*time.Second, cfg.Redis.GetConnectTimeout())
		assert.Zero(t, cfg.Cache.GetTTL())

		ranking := cfg.Ranking.ToRanking()
		assert.Equal(t, 168*time.Hour, ranking.RecencyHalfLife)
		assert.Equal(t, 4, ranking.Overscan)
		assert.Equal(t, int64(3), cfg.Deprecation.ToPolicy().MinHarmful)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "redis: [not: a: mapping\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid durations fall back", func(t *testing.T) {
		path := writeConfig(t, `
redis:
  connect_timeout: soon
cache:
  ttl: whenever
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Redis.GetConnectTimeout())
		assert.Zero(t, cfg.Cache.GetTTL())
	})
}
