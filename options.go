package aegis

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegis-ai/aegis/curation"
	"github.com/aegis-ai/aegis/retrieval"
)

// Option configures the Engine.
type Option func(*engineConfig)

// engineConfig holds configuration for the Engine instance.
type engineConfig struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	ranking     retrieval.RankingConfig
	deprecation curation.DeprecationPolicy
	cacheTTL    time.Duration
}

// WithLogger sets a custom logger for the engine.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for distributed tracing.
// This enables observability across engine operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for operation counters.
func WithMeter(meter metric.Meter) Option {
	return func(c *engineConfig) {
		c.meter = meter
	}
}

// WithRanking sets the retrieval ranking configuration.
// Zero-valued fields fall back to the retrieval defaults.
func WithRanking(cfg retrieval.RankingConfig) Option {
	return func(c *engineConfig) {
		c.ranking = cfg
	}
}

// WithDeprecationPolicy sets the vote-driven deprecation policy.
func WithDeprecationPolicy(policy curation.DeprecationPolicy) Option {
	return func(c *engineConfig) {
		c.deprecation = policy
	}
}

// WithCacheTTL enables the read-through record cache with the given TTL.
// A zero TTL disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *engineConfig) {
		c.cacheTTL = ttl
	}
}
