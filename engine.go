package aegis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegis-ai/aegis/curation"
	"github.com/aegis-ai/aegis/embed"
	"github.com/aegis-ai/aegis/feature"
	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/retrieval"
	"github.com/aegis-ai/aegis/session"
	"github.com/aegis-ai/aegis/store"
)

const instrumentationName = "github.com/aegis-ai/aegis"

// Dependencies carries the persistence and embedding collaborators the
// Engine composes over. A single backend value may satisfy several fields;
// the store/redis Store implements Memories, Sessions, Features, and Locks
// at once. Memories, Index, and Embedder are required; Sessions and
// Features are optional, and a nil Locks falls back to an in-process
// locker, which is only safe while a single process writes supersession
// chains.
type Dependencies struct {
	Memories memory.Store
	Sessions session.Store
	Features feature.Store
	Locks    store.Locker
	Index    store.VectorIndex
	Embedder embed.Embedder
}

// StoreRequest carries the inputs to Engine.Store.
type StoreRequest struct {
	ProjectID string
	Namespace string
	Content   string

	AgentID string
	UserID  string

	Scope            memory.Scope
	SharedWithAgents []string

	Metadata map[string]any

	// TTL sets a soft expiry; zero means the memory never expires.
	TTL time.Duration
}

// RetrieveRequest carries the inputs to Engine.Retrieve. The query text is
// embedded through the engine's Embedder before the similarity search runs.
type RetrieveRequest struct {
	ProjectID string
	Namespace string
	Query     string
	AgentID   string
	UserID    string

	K                 int
	IncludeDeprecated bool
}

// Engine is the composition root: one value wiring the memory repository,
// retriever, curator, session tracker, and feature tracker over shared
// persistence.
type Engine struct {
	repo      *memory.Repository
	retriever *retrieval.Retriever
	curator   *curation.Curator
	sessions  *session.Tracker
	features  *feature.Service
	embedder  embed.Embedder

	logger *slog.Logger
	tracer trace.Tracer

	storeCount    metric.Int64Counter
	retrieveCount metric.Int64Counter
	voteCount     metric.Int64Counter

	closers []io.Closer
}

// New creates an Engine over the given dependencies.
func New(deps Dependencies, opts ...Option) (*Engine, error) {
	if deps.Memories == nil || deps.Index == nil || deps.Embedder == nil {
		return nil, NewValidationError("aegis.New",
			fmt.Errorf("memories, index, and embedder dependencies are required"))
	}

	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(instrumentationName)
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter(instrumentationName)
	}

	var repoOpts []memory.RepositoryOption
	if cfg.cacheTTL > 0 {
		repoOpts = append(repoOpts, memory.WithCache(cfg.cacheTTL))
	}
	repo, err := memory.NewRepository(deps.Memories, deps.Index, repoOpts...)
	if err != nil {
		return nil, NewInternalError("aegis.New", err)
	}

	locks := deps.Locks
	if locks == nil {
		locks = store.NewLocalLocker()
	}

	e := &Engine{
		repo:      repo,
		retriever: retrieval.NewRetriever(repo, deps.Index, cfg.ranking),
		curator:   curation.NewCurator(repo, deps.Embedder, locks, cfg.deprecation, cfg.logger),
		embedder:  deps.Embedder,
		logger:    cfg.logger,
		tracer:    cfg.tracer,
	}
	if deps.Sessions != nil {
		e.sessions = session.NewTracker(deps.Sessions)
	}
	if deps.Features != nil {
		e.features = feature.NewService(deps.Features)
	}

	if e.storeCount, err = cfg.meter.Int64Counter("aegis.memory.store",
		metric.WithDescription("Memories stored, including dedup hits")); err != nil {
		return nil, NewInternalError("aegis.New", err)
	}
	if e.retrieveCount, err = cfg.meter.Int64Counter("aegis.memory.retrieve",
		metric.WithDescription("Similarity searches served")); err != nil {
		return nil, NewInternalError("aegis.New", err)
	}
	if e.voteCount, err = cfg.meter.Int64Counter("aegis.memory.vote",
		metric.WithDescription("Vote events recorded")); err != nil {
		return nil, NewInternalError("aegis.New", err)
	}

	for _, dep := range []any{deps.Memories, deps.Index} {
		if c, ok := dep.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}
	}

	return e, nil
}

// Store embeds content and persists it as a memory, deduplicating against
// live memories in the same (project, namespace, agent) grouping. Returns
// the stored memory's id, which on a dedup hit is the existing memory's id.
func (e *Engine) Store(ctx context.Context, req StoreRequest) (string, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Store",
		trace.WithAttributes(attribute.String("project_id", req.ProjectID)))
	defer span.End()

	embedding, err := e.embedder.Embed(ctx, req.Content)
	if err != nil {
		return "", NewUnavailableError("Engine.Store",
			fmt.Errorf("%w: %v", embed.ErrUnavailable, err))
	}

	id, err := e.repo.Put(ctx, memory.PutRequest{
		ProjectID:        req.ProjectID,
		Namespace:        req.Namespace,
		Content:          req.Content,
		Embedding:        embedding,
		AgentID:          req.AgentID,
		UserID:           req.UserID,
		Scope:            req.Scope,
		SharedWithAgents: req.SharedWithAgents,
		Metadata:         req.Metadata,
		TTL:              req.TTL,
	})
	if err != nil {
		return "", e.classify("Engine.Store", err)
	}
	e.storeCount.Add(ctx, 1)
	return id, nil
}

// Retrieve embeds the query text and returns up to req.K readable memories
// ranked by similarity blended with vote and recency signals.
func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) ([]retrieval.Result, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Retrieve",
		trace.WithAttributes(attribute.String("project_id", req.ProjectID)))
	defer span.End()

	embedding, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, NewUnavailableError("Engine.Retrieve",
			fmt.Errorf("%w: %v", embed.ErrUnavailable, err))
	}

	results, err := e.retriever.Search(ctx, retrieval.Request{
		ProjectID:         req.ProjectID,
		Namespace:         req.Namespace,
		Query:             embedding,
		Requester:         memory.Accessor{AgentID: req.AgentID, UserID: req.UserID},
		K:                 req.K,
		IncludeDeprecated: req.IncludeDeprecated,
	})
	if err != nil {
		return nil, e.classify("Engine.Retrieve", err)
	}
	e.retrieveCount.Add(ctx, 1)
	return results, nil
}

// Get fetches a single memory with vote counters hydrated.
func (e *Engine) Get(ctx context.Context, projectID, id string) (*memory.Memory, error) {
	m, err := e.repo.Get(ctx, projectID, id)
	if err != nil {
		return nil, e.classify("Engine.Get", err)
	}
	return m, nil
}

// GetFor fetches a memory on behalf of a requesting agent or user,
// enforcing scope visibility. Requesters without read access get a
// KindScope error.
func (e *Engine) GetFor(ctx context.Context, projectID, id, agentID, userID string) (*memory.Memory, error) {
	m, err := e.repo.GetFor(ctx, projectID, id, memory.Accessor{AgentID: agentID, UserID: userID})
	if err != nil {
		return nil, e.classify("Engine.GetFor", err)
	}
	return m, nil
}

// Delete removes a memory and its votes. Blocked while another memory still
// references the target through its supersession pointer.
func (e *Engine) Delete(ctx context.Context, projectID, id string) error {
	if err := e.repo.Delete(ctx, projectID, id); err != nil {
		return e.classify("Engine.Delete", err)
	}
	return nil
}

// Vote records agent feedback on a memory and re-evaluates its deprecation
// state. Replaying an idempotency key is a no-op returning the original
// vote id.
func (e *Engine) Vote(ctx context.Context, req curation.VoteRequest) (string, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Vote",
		trace.WithAttributes(
			attribute.String("project_id", req.ProjectID),
			attribute.String("memory_id", req.MemoryID)))
	defer span.End()

	voteID, err := e.curator.RecordVote(ctx, req)
	if err != nil {
		return "", e.classify("Engine.Vote", err)
	}
	e.voteCount.Add(ctx, 1)
	return voteID, nil
}

// Reflect stores a curated lesson produced by trajectory analysis.
func (e *Engine) Reflect(ctx context.Context, req curation.ReflectionRequest) (string, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Reflect",
		trace.WithAttributes(attribute.String("project_id", req.ProjectID)))
	defer span.End()

	id, err := e.curator.AddReflection(ctx, req)
	if err != nil {
		return "", e.classify("Engine.Reflect", err)
	}
	return id, nil
}

// Supersede points an outdated memory at its replacement and deprecates it.
func (e *Engine) Supersede(ctx context.Context, projectID, oldID, newID, reason string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.Supersede",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	if err := e.curator.Supersede(ctx, projectID, oldID, newID, reason); err != nil {
		return e.classify("Engine.Supersede", err)
	}
	return nil
}

// Handoff transfers task context between agents as a shared coordination
// memory.
func (e *Engine) Handoff(ctx context.Context, req curation.HandoffRequest) (*memory.Memory, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Handoff",
		trace.WithAttributes(
			attribute.String("from_agent", req.FromAgent),
			attribute.String("to_agent", req.ToAgent)))
	defer span.End()

	m, err := e.curator.Handoff(ctx, req)
	if err != nil {
		return nil, e.classify("Engine.Handoff", err)
	}
	return m, nil
}

// SweepExpired drops expired memories from retrieval and dedup, returning
// how many were swept. Intended to run periodically.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SweepExpired")
	defer span.End()

	swept, err := e.repo.SweepExpired(ctx)
	if err != nil {
		return swept, e.classify("Engine.SweepExpired", err)
	}
	if swept > 0 {
		e.logger.Info("expired memories swept", "count", swept)
	}
	return swept, nil
}

// Memories exposes the underlying repository for advanced callers.
func (e *Engine) Memories() *memory.Repository {
	return e.repo
}

// Curator exposes the curation lifecycle manager.
func (e *Engine) Curator() *curation.Curator {
	return e.curator
}

// Sessions exposes the session-progress tracker. Nil when the engine was
// built without a session store.
func (e *Engine) Sessions() *session.Tracker {
	return e.sessions
}

// Features exposes the feature tracker. Nil when the engine was built
// without a feature store.
func (e *Engine) Features() *feature.Service {
	return e.features
}

// Close releases the engine's closable dependencies.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// classify maps component errors onto engine error kinds so callers can
// branch on Kind without importing every component package.
func (e *Engine) classify(op string, err error) error {
	switch {
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, feature.ErrNotFound):
		return NewNotFoundError(op, err)
	case errors.Is(err, memory.ErrScopeViolation):
		return NewScopeError(op, err)
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, memory.ErrAlreadySuperseded),
		errors.Is(err, memory.ErrStillReferenced),
		errors.Is(err, curation.ErrCycle):
		return NewConflictError(op, err)
	case errors.Is(err, store.ErrTimeout):
		return NewTimeoutError(op, err)
	case errors.Is(err, embed.ErrUnavailable):
		return NewUnavailableError(op, err)
	case errors.Is(err, memory.ErrInvalidScope),
		errors.Is(err, memory.ErrInvalidType),
		errors.Is(err, memory.ErrInvalidVote),
		errors.Is(err, memory.ErrEmptyContent),
		errors.Is(err, memory.ErrMissingOwner),
		errors.Is(err, curation.ErrSelfSupersession):
		return NewValidationError(op, err)
	default:
		return NewInternalError(op, err)
	}
}
