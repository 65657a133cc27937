package aegis

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegis-ai/aegis/curation"
	"github.com/aegis-ai/aegis/retrieval"
)

// Config represents an aegis.yaml configuration file. Durations are Go
// duration strings (e.g., "30s", "168h"); invalid or missing values fall
// back to the documented defaults through the Get accessors.
type Config struct {
	// Redis configures the backing store connection.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// Ranking tunes the retrieval rerank.
	Ranking *RankingConfig `yaml:"ranking,omitempty"`

	// Deprecation tunes the vote-driven deprecation rule.
	Deprecation *DeprecationConfig `yaml:"deprecation,omitempty"`

	// Cache configures the read-through record cache.
	Cache *CacheConfig `yaml:"cache,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// URL is the Redis connection string.
	// Default: "redis://localhost:6379"
	URL string `yaml:"url,omitempty"`

	// ConnectTimeout bounds connection establishment. Default: 5s
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`

	// ReadTimeout bounds read operations. Default: 30s
	ReadTimeout string `yaml:"read_timeout,omitempty"`

	// WriteTimeout bounds write operations. Default: 5s
	WriteTimeout string `yaml:"write_timeout,omitempty"`
}

// GetURL returns the configured URL or the default value.
func (r *RedisConfig) GetURL() string {
	if r == nil || r.URL == "" {
		return "redis://localhost:6379"
	}
	return r.URL
}

// GetConnectTimeout parses the connect timeout and returns a duration.
// Returns the default value if not set or invalid.
func (r *RedisConfig) GetConnectTimeout() time.Duration {
	if r == nil {
		return 5 * time.Second
	}
	return parseDuration(r.ConnectTimeout, 5*time.Second)
}

// GetReadTimeout parses the read timeout and returns a duration.
func (r *RedisConfig) GetReadTimeout() time.Duration {
	if r == nil {
		return 30 * time.Second
	}
	return parseDuration(r.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout parses the write timeout and returns a duration.
func (r *RedisConfig) GetWriteTimeout() time.Duration {
	if r == nil {
		return 5 * time.Second
	}
	return parseDuration(r.WriteTimeout, 5*time.Second)
}

// RankingConfig mirrors retrieval.RankingConfig with a string half-life so
// it can be written in YAML as a duration string.
type RankingConfig struct {
	SimilarityWeight float64 `yaml:"similarity_weight,omitempty"`
	VoteWeight       float64 `yaml:"vote_weight,omitempty"`
	RecencyWeight    float64 `yaml:"recency_weight,omitempty"`

	// RecencyHalfLife controls the recency decay. Default: 168h
	RecencyHalfLife string `yaml:"recency_half_life,omitempty"`

	// Overscan multiplies k during candidate generation. Default: 4
	Overscan int `yaml:"overscan,omitempty"`
}

// ToRanking converts to the retrieval package's configuration. Unset fields
// fall back to retrieval defaults.
func (r *RankingConfig) ToRanking() retrieval.RankingConfig {
	if r == nil {
		return retrieval.DefaultRanking()
	}
	return retrieval.RankingConfig{
		SimilarityWeight: r.SimilarityWeight,
		VoteWeight:       r.VoteWeight,
		RecencyWeight:    r.RecencyWeight,
		RecencyHalfLife:  parseDuration(r.RecencyHalfLife, 0),
		Overscan:         r.Overscan,
	}
}

// DeprecationConfig holds the vote-driven deprecation settings.
type DeprecationConfig struct {
	// MinHarmful is the floor of harmful votes required before the
	// harmful-majority rule triggers. Default: 3
	MinHarmful int64 `yaml:"min_harmful,omitempty"`
}

// ToPolicy converts to the curation package's policy.
func (d *DeprecationConfig) ToPolicy() curation.DeprecationPolicy {
	if d == nil {
		return curation.DefaultDeprecationPolicy()
	}
	return curation.DeprecationPolicy{MinHarmful: d.MinHarmful}
}

// CacheConfig configures the read-through record cache.
type CacheConfig struct {
	// TTL bounds how stale a cached record read may be. Empty or "0"
	// disables the cache.
	TTL string `yaml:"ttl,omitempty"`
}

// GetTTL parses the cache TTL. Returns zero (cache disabled) when unset.
func (c *CacheConfig) GetTTL() time.Duration {
	if c == nil {
		return 0
	}
	return parseDuration(c.TTL, 0)
}

// Load reads and parses an aegis.yaml file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
