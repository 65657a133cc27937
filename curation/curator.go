package curation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-ai/aegis/embed"
	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/store"
)

// Common errors returned by curation operations.
var (
	// ErrCycle is returned when a supersession edge would let a memory
	// transitively supersede itself.
	ErrCycle = errors.New("curation: supersession would create a cycle")

	// ErrSelfSupersession is returned when a memory is superseded by itself.
	ErrSelfSupersession = errors.New("curation: memory cannot supersede itself")
)

// DeprecationPolicy decides when vote totals deprecate a memory.
// A memory is deprecated once harmful votes both outnumber helpful votes
// and reach MinHarmful.
type DeprecationPolicy struct {
	// MinHarmful is the floor of harmful votes required before the
	// harmful-majority rule triggers. Default 3.
	MinHarmful int64 `yaml:"min_harmful"`
}

// DefaultDeprecationPolicy returns the default policy.
func DefaultDeprecationPolicy() DeprecationPolicy {
	return DeprecationPolicy{MinHarmful: 3}
}

func (p DeprecationPolicy) withDefaults() DeprecationPolicy {
	if p.MinHarmful <= 0 {
		p.MinHarmful = 3
	}
	return p
}

// triggered reports whether the counters cross the deprecation rule.
func (p DeprecationPolicy) triggered(helpful, harmful int64) bool {
	return harmful > helpful && harmful >= p.MinHarmful
}

// supersedeLockTTL bounds how long a crashed holder can stall chain writes.
const supersedeLockTTL = 5 * time.Second

// maxChainHops caps the cycle-check walk; a legitimate chain is bounded by
// the project's memory count, a longer walk means the chain is corrupt.
const maxChainHops = 10_000

// ReflectionRequest carries the inputs to AddReflection.
type ReflectionRequest struct {
	ProjectID string
	Namespace string
	AgentID   string
	UserID    string

	Content            string
	ErrorPattern       string
	CorrectApproach    string
	ApplicableContexts []string
	SourceTrajectoryID string

	Scope            memory.Scope
	SharedWithAgents []string
	TTL              time.Duration
}

// VoteRequest carries the inputs to RecordVote.
type VoteRequest struct {
	ProjectID    string
	MemoryID     string
	VoterAgentID string
	Kind         memory.VoteKind
	Context      string
	TaskID       string

	// IdempotencyKey makes retries exactly-once. Callers should derive it
	// from the logical voting action; when empty every call counts as a
	// distinct vote.
	IdempotencyKey string
}

// HandoffRequest carries the inputs to Handoff.
type HandoffRequest struct {
	ProjectID      string
	Namespace      string
	FromAgent      string
	ToAgent        string
	ContextSummary string

	// Metadata describes the transferred task state and is stored as the
	// handoff record's coordination metadata.
	Metadata map[string]any
}

// Curator manages the ACE lifecycle. All storage flows through the
// Repository so dedup, expiry, and referential guarantees are never
// bypassed.
type Curator struct {
	repo     *memory.Repository
	embedder embed.Embedder
	locks    store.Locker
	policy   DeprecationPolicy
	logger   *slog.Logger
}

// NewCurator creates a Curator. A nil logger falls back to slog.Default.
func NewCurator(repo *memory.Repository, embedder embed.Embedder, locks store.Locker, policy DeprecationPolicy, logger *slog.Logger) *Curator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Curator{
		repo:     repo,
		embedder: embedder,
		locks:    locks,
		policy:   policy.withDefaults(),
		logger:   logger,
	}
}

// Policy returns the active deprecation policy.
func (c *Curator) Policy() DeprecationPolicy {
	return c.policy
}

// AddReflection stores a reflection memory. The content is embedded through
// the external provider; provider failures surface as embed.ErrUnavailable.
func (c *Curator) AddReflection(ctx context.Context, req ReflectionRequest) (string, error) {
	embedding, err := c.embedder.Embed(ctx, req.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", embed.ErrUnavailable, err)
	}
	id, err := c.repo.Put(ctx, memory.PutRequest{
		ProjectID:          req.ProjectID,
		Namespace:          req.Namespace,
		Content:            req.Content,
		Embedding:          embedding,
		AgentID:            req.AgentID,
		UserID:             req.UserID,
		Scope:              req.Scope,
		SharedWithAgents:   req.SharedWithAgents,
		Type:               memory.TypeReflection,
		ErrorPattern:       req.ErrorPattern,
		CorrectApproach:    req.CorrectApproach,
		ApplicableContexts: req.ApplicableContexts,
		SourceTrajectoryID: req.SourceTrajectoryID,
		TTL:                req.TTL,
	})
	if err != nil {
		return "", err
	}
	c.logger.Debug("reflection stored",
		"project_id", req.ProjectID,
		"memory_id", id,
		"agent_id", req.AgentID)
	return id, nil
}

// RecordVote inserts an immutable vote event, bumps the matching counter
// atomically, and re-evaluates deprecation for the target. Replaying an
// idempotency key returns the original vote id without side effects.
func (c *Curator) RecordVote(ctx context.Context, req VoteRequest) (string, error) {
	vote := &memory.Vote{
		MemoryID:     req.MemoryID,
		ProjectID:    req.ProjectID,
		VoterAgentID: req.VoterAgentID,
		Kind:         req.Kind,
		Context:      req.Context,
		TaskID:       req.TaskID,
	}
	voteID, applied, err := c.repo.RecordVote(ctx, vote, req.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if !applied {
		return voteID, nil
	}
	if _, err := c.EvaluateDeprecation(ctx, req.ProjectID, req.MemoryID); err != nil {
		// The vote is durable; deprecation re-evaluates on the next vote.
		c.logger.Warn("deprecation evaluation failed",
			"project_id", req.ProjectID,
			"memory_id", req.MemoryID,
			"error", err)
	}
	return voteID, nil
}

// EvaluateDeprecation applies the deprecation rule to the memory's current
// counters. It is idempotent: evaluating the same vote state twice produces
// the same outcome, and an already-deprecated memory is never re-deprecated.
// Returns true when this call transitioned the memory to deprecated.
func (c *Curator) EvaluateDeprecation(ctx context.Context, projectID, memoryID string) (bool, error) {
	helpful, harmful, err := c.repo.VoteCounts(ctx, projectID, memoryID)
	if err != nil {
		return false, err
	}
	if !c.policy.triggered(helpful, harmful) {
		return false, nil
	}
	reason := fmt.Sprintf("harmful votes (%d) exceeded helpful votes (%d)", harmful, helpful)
	changed, err := c.repo.Deprecate(ctx, projectID, memoryID, reason, "")
	if err != nil {
		return false, err
	}
	if changed {
		c.logger.Info("memory deprecated",
			"project_id", projectID,
			"memory_id", memoryID,
			"helpful", helpful,
			"harmful", harmful)
	}
	return changed, nil
}

// Supersede points oldID at newID and deprecates oldID. The edge is
// rejected with ErrCycle when following SupersededBy pointers from newID
// would reach oldID. Chain writes are serialized per project so concurrent
// supersessions over overlapping chains cannot introduce an undetected
// cycle.
func (c *Curator) Supersede(ctx context.Context, projectID, oldID, newID, reason string) error {
	if oldID == newID {
		return fmt.Errorf("%w: %s", ErrSelfSupersession, oldID)
	}

	release, err := c.acquireChainLock(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()

	// Both ends must exist in the project.
	if _, err := c.repo.Get(ctx, projectID, oldID); err != nil {
		return err
	}
	if _, err := c.repo.Get(ctx, projectID, newID); err != nil {
		return err
	}
	if err := c.checkCycle(ctx, projectID, oldID, newID); err != nil {
		return err
	}
	if err := c.repo.Supersede(ctx, projectID, oldID, newID, reason); err != nil {
		return err
	}
	c.logger.Info("memory superseded",
		"project_id", projectID,
		"old_id", oldID,
		"new_id", newID)
	return nil
}

// checkCycle walks the existing chain from newID; reaching oldID means the
// proposed edge closes a loop.
func (c *Curator) checkCycle(ctx context.Context, projectID, oldID, newID string) error {
	seen := map[string]bool{}
	current := newID
	for hops := 0; current != "" && hops < maxChainHops; hops++ {
		if current == oldID {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, oldID, newID)
		}
		if seen[current] {
			return fmt.Errorf("%w: existing chain already loops at %s", ErrCycle, current)
		}
		seen[current] = true
		rec, err := c.repo.Get(ctx, projectID, current)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				// Severed chain tail; nothing further to follow.
				return nil
			}
			return err
		}
		current = rec.SupersededBy
	}
	return nil
}

// acquireChainLock polls the per-project supersession lock until acquired
// or the caller's deadline expires.
func (c *Curator) acquireChainLock(ctx context.Context, projectID string) (func(), error) {
	name := "supersede:" + projectID
	for {
		ok, err := c.locks.AcquireLock(ctx, name, supersedeLockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				if err := c.locks.ReleaseLock(context.WithoutCancel(ctx), name); err != nil {
					c.logger.Warn("failed to release supersession lock",
						"lock", name,
						"error", err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: supersession lock %s: %v", store.ErrTimeout, name, ctx.Err())
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Handoff transfers task context from one agent to another by storing a
// coordination memory shared with the receiving agent. Purely additive: no
// existing memory is mutated.
func (c *Curator) Handoff(ctx context.Context, req HandoffRequest) (*memory.Memory, error) {
	if req.FromAgent == "" || req.ToAgent == "" {
		return nil, fmt.Errorf("curation: handoff requires both agents")
	}
	embedding, err := c.embedder.Embed(ctx, req.ContextSummary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embed.ErrUnavailable, err)
	}
	coordination := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		coordination[k] = v
	}
	coordination["from_agent"] = req.FromAgent
	coordination["to_agent"] = req.ToAgent
	coordination["handoff_at"] = time.Now().UTC().Format(time.RFC3339)

	id, err := c.repo.Put(ctx, memory.PutRequest{
		ProjectID:            req.ProjectID,
		Namespace:            req.Namespace,
		Content:              req.ContextSummary,
		Embedding:            embedding,
		AgentID:              req.FromAgent,
		Scope:                memory.ScopeAgentShared,
		SharedWithAgents:     []string{req.ToAgent},
		DerivedFrom:          []string{req.FromAgent},
		Type:                 memory.TypeCoordination,
		CoordinationMetadata: coordination,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("handoff recorded",
		"project_id", req.ProjectID,
		"from_agent", req.FromAgent,
		"to_agent", req.ToAgent,
		"memory_id", id)
	return c.repo.Get(ctx, req.ProjectID, id)
}
