package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/aegis-ai/aegis/store"
)

// Ref identifies a memory record across projects, used by the expiry sweep.
type Ref struct {
	ProjectID string
	ID        string
}

// Store is the durable keyed storage the Repository requires from the
// persistence collaborator. Implementations must provide atomic
// check-and-insert (ReserveHash, AddVote), atomic counter increments inside
// AddVote, optimistic-version updates, and cascade deletion of votes.
//
// All operations honor the caller's context deadline and surface
// store.ErrTimeout / store.ErrConflict for the retryable classes.
type Store interface {
	// PutRecord inserts a new record. The record's Version must be 1.
	PutRecord(ctx context.Context, m *Memory) error

	// GetRecord fetches a record snapshot. Vote counters are not hydrated;
	// read them through VoteCounts. Returns ErrNotFound for unknown ids.
	GetRecord(ctx context.Context, projectID, id string) (*Memory, error)

	// UpdateRecord applies an optimistic update: the write succeeds only if
	// the stored version equals m.Version, and increments m.Version on
	// success. Returns store.ErrConflict on a lost race.
	// Content, ContentHash, and CreatedAt are never altered by updates.
	UpdateRecord(ctx context.Context, m *Memory) error

	// DeleteRecord removes a record and cascades: its votes, its dedup
	// reservation, its expiry entry, and its outgoing supersession
	// reference all go with it.
	DeleteRecord(ctx context.Context, projectID, id string) error

	// ReserveHash atomically claims a dedup key for id. When the key is
	// already claimed the existing id is returned with won=false.
	ReserveHash(ctx context.Context, key, id string) (existingID string, won bool, err error)

	// ReleaseHash drops a dedup reservation. Releasing an unclaimed key is
	// a no-op.
	ReleaseHash(ctx context.Context, key string) error

	// AddVote records an immutable vote event and increments the matching
	// counter in the same atomic unit. idemKey deduplicates retries: when
	// the key was already consumed, the original vote id is returned with
	// applied=false and no counter moves.
	AddVote(ctx context.Context, v *Vote, idemKey string) (existingID string, applied bool, err error)

	// VoteCounts reads the atomic counters for a memory.
	VoteCounts(ctx context.Context, projectID, memoryID string) (helpful, harmful int64, err error)

	// ListVotes returns the recorded vote events for a memory, oldest first.
	ListVotes(ctx context.Context, projectID, memoryID string) ([]Vote, error)

	// ExpiredRefs returns up to limit references whose expiry passed at now.
	ExpiredRefs(ctx context.Context, now time.Time, limit int) ([]Ref, error)

	// ClearExpiry removes entries from the expiry index.
	ClearExpiry(ctx context.Context, refs []Ref) error

	// AddReference records that referrerID points at targetID via
	// SupersededBy.
	AddReference(ctx context.Context, projectID, targetID, referrerID string) error

	// HasReferences reports whether any live memory references id.
	HasReferences(ctx context.Context, projectID, id string) (bool, error)
}

// PutRequest carries the inputs to Repository.Put.
type PutRequest struct {
	ProjectID string
	Namespace string // defaults to DefaultNamespace
	Content   string
	Embedding []float32

	AgentID string
	UserID  string

	Scope            Scope // defaults to ScopeAgentPrivate
	SharedWithAgents []string
	DerivedFrom      []string

	Type                 Type // defaults to TypeStandard
	Metadata             map[string]any
	CoordinationMetadata map[string]any

	// Reflection fields, honored when Type is TypeReflection.
	ErrorPattern       string
	CorrectApproach    string
	ApplicableContexts []string
	SourceTrajectoryID string

	// TTL sets a soft expiry relative to the store time. Zero means the
	// memory never expires.
	TTL time.Duration
}

const sweepBatch = 256

// Repository owns Memory and Vote persistence. It is the sole writer of
// ContentHash and CreatedAt; every other mutation path flows through its
// curation methods so dedup, expiry, and referential guarantees hold.
type Repository struct {
	store    Store
	index    store.VectorIndex
	cache    *ristretto.Cache
	cacheTTL time.Duration
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithCache enables a TTL-bounded read-through cache on record reads.
// The cache only serves Get; every mutation path invalidates locally.
func WithCache(ttl time.Duration) RepositoryOption {
	return func(r *Repository) {
		r.cacheTTL = ttl
	}
}

// NewRepository creates a Repository over the given store and vector index.
func NewRepository(st Store, idx store.VectorIndex, opts ...RepositoryOption) (*Repository, error) {
	r := &Repository{store: st, index: idx}
	for _, opt := range opts {
		opt(r)
	}
	if r.cacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     10_000,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create record cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Put stores content, deduplicating against live memories in the same
// (project, namespace, owning-agent) grouping. On a dedup hit the existing
// memory's id is returned and its UpdatedAt advances; otherwise a new record
// is inserted with CreatedAt = UpdatedAt = now. Two concurrent puts of
// identical content converge on a single winner.
func (r *Repository) Put(ctx context.Context, req PutRequest) (string, error) {
	if req.ProjectID == "" {
		return "", fmt.Errorf("memory: project id required")
	}
	if req.Content == "" {
		return "", ErrEmptyContent
	}
	if req.AgentID == "" && req.UserID == "" {
		return "", ErrMissingOwner
	}
	if req.Namespace == "" {
		req.Namespace = DefaultNamespace
	}
	if req.Scope == "" {
		req.Scope = ScopeAgentPrivate
	}
	if err := req.Scope.Validate(); err != nil {
		return "", err
	}
	if req.Type == "" {
		req.Type = TypeStandard
	}
	if err := req.Type.Validate(); err != nil {
		return "", err
	}

	hash := HashContent(req.Content)
	key := DedupKey(req.ProjectID, req.Namespace, req.AgentID, hash)
	id := uuid.NewString()

	existingID, won, err := r.store.ReserveHash(ctx, key, id)
	if err != nil {
		return "", err
	}
	if !won {
		// Lost the reservation: converge on the winner. Re-adding the
		// embedding is idempotent and heals a winner whose index write
		// failed mid-flight.
		if err := r.touch(ctx, req.ProjectID, existingID, req.Embedding); err != nil {
			return "", err
		}
		return existingID, nil
	}

	now := time.Now().UTC()
	rec := &Memory{
		ID:                   id,
		ProjectID:            req.ProjectID,
		Namespace:            req.Namespace,
		Content:              req.Content,
		ContentHash:          hash,
		Embedding:            req.Embedding,
		AgentID:              req.AgentID,
		UserID:               req.UserID,
		Scope:                req.Scope,
		SharedWithAgents:     req.SharedWithAgents,
		DerivedFromAgents:    req.DerivedFrom,
		Type:                 req.Type,
		Metadata:             req.Metadata,
		CoordinationMetadata: req.CoordinationMetadata,
		ErrorPattern:         req.ErrorPattern,
		CorrectApproach:      req.CorrectApproach,
		ApplicableContexts:   req.ApplicableContexts,
		SourceTrajectoryID:   req.SourceTrajectoryID,
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              1,
	}
	if req.TTL > 0 {
		exp := now.Add(req.TTL)
		rec.ExpiresAt = &exp
	}

	if err := r.store.PutRecord(ctx, rec); err != nil {
		// The reservation must not outlive a failed insert.
		_ = r.store.ReleaseHash(ctx, key)
		return "", err
	}
	if len(rec.Embedding) > 0 {
		if err := r.index.Add(ctx, rec.ProjectID, rec.Namespace, rec.ID, rec.Embedding); err != nil {
			return "", fmt.Errorf("index embedding for %s: %w", rec.ID, err)
		}
	}
	return id, nil
}

// touch advances UpdatedAt on a dedup hit. A lost race means another writer
// advanced it even more recently, so conflicts are absorbed.
func (r *Repository) touch(ctx context.Context, projectID, id string, embedding []float32) error {
	rec, err := r.store.GetRecord(ctx, projectID, id)
	if err != nil {
		return err
	}
	if len(embedding) > 0 {
		if err := r.index.Add(ctx, rec.ProjectID, rec.Namespace, rec.ID, embedding); err != nil {
			return fmt.Errorf("index embedding for %s: %w", rec.ID, err)
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateRecord(ctx, rec); err != nil {
		if store.IsRetryable(err) {
			return nil
		}
		return err
	}
	r.invalidate(projectID, id)
	return nil
}

// Get fetches a memory with vote counters hydrated.
func (r *Repository) Get(ctx context.Context, projectID, id string) (*Memory, error) {
	rec, err := r.getRecord(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	helpful, harmful, err := r.store.VoteCounts(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	rec.HelpfulCount = helpful
	rec.HarmfulCount = harmful
	return rec, nil
}

// GetFor fetches a memory on behalf of a requester, enforcing the same
// scope rules as retrieval. A requester without read access receives
// ErrScopeViolation.
func (r *Repository) GetFor(ctx context.Context, projectID, id string, as Accessor) (*Memory, error) {
	rec, err := r.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if !CanRead(as, rec) {
		return nil, fmt.Errorf("%w: %s", ErrScopeViolation, id)
	}
	return rec, nil
}

func (r *Repository) getRecord(ctx context.Context, projectID, id string) (*Memory, error) {
	cacheKey := projectID + "/" + id
	if r.cache != nil {
		if v, ok := r.cache.Get(cacheKey); ok {
			cached := *(v.(*Memory))
			return &cached, nil
		}
	}
	rec, err := r.store.GetRecord(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		stored := *rec
		r.cache.SetWithTTL(cacheKey, &stored, 1, r.cacheTTL)
	}
	return rec, nil
}

// Delete removes a memory and cascades to its votes. The delete is blocked
// with ErrStillReferenced while another memory points at it via
// SupersededBy; the chain must be re-pointed or severed first.
func (r *Repository) Delete(ctx context.Context, projectID, id string) error {
	rec, err := r.store.GetRecord(ctx, projectID, id)
	if err != nil {
		return err
	}
	referenced, err := r.store.HasReferences(ctx, projectID, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: %s", ErrStillReferenced, id)
	}
	if err := r.store.DeleteRecord(ctx, projectID, id); err != nil {
		return err
	}
	if len(rec.Embedding) > 0 {
		if err := r.index.Remove(ctx, rec.ProjectID, rec.Namespace, id); err != nil {
			return err
		}
	}
	r.invalidate(projectID, id)
	return nil
}

// SweepExpired removes expired memories from the retrieval path: their
// vector-index entries and dedup reservations are dropped and their expiry
// entries cleared. Records survive for audit (soft expiry). The sweep is
// idempotent and safe to run concurrently; each entry is handled at most
// once per pass and a re-run over swept state is a no-op.
func (r *Repository) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	swept := 0
	for {
		refs, err := r.store.ExpiredRefs(ctx, now, sweepBatch)
		if err != nil {
			return swept, err
		}
		if len(refs) == 0 {
			return swept, nil
		}
		for _, ref := range refs {
			rec, err := r.store.GetRecord(ctx, ref.ProjectID, ref.ID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return swept, err
			}
			if len(rec.Embedding) > 0 {
				if err := r.index.Remove(ctx, rec.ProjectID, rec.Namespace, rec.ID); err != nil {
					return swept, err
				}
			}
			// Expired content no longer participates in dedup; re-storing
			// it creates a fresh live memory.
			key := DedupKey(rec.ProjectID, rec.Namespace, rec.AgentID, rec.ContentHash)
			if err := r.store.ReleaseHash(ctx, key); err != nil {
				return swept, err
			}
			r.invalidate(ref.ProjectID, ref.ID)
			swept++
		}
		if err := r.store.ClearExpiry(ctx, refs); err != nil {
			return swept, err
		}
	}
}

// RecordVote persists an immutable vote event and bumps the matching
// counter atomically. idemKey makes retries exactly-once: replaying a
// consumed key returns the original vote id with applied=false and moves no
// counter. An empty idemKey treats every call as a distinct vote event.
func (r *Repository) RecordVote(ctx context.Context, v *Vote, idemKey string) (string, bool, error) {
	if err := v.Kind.Validate(); err != nil {
		return "", false, err
	}
	if _, err := r.store.GetRecord(ctx, v.ProjectID, v.MemoryID); err != nil {
		return "", false, err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if idemKey == "" {
		idemKey = v.ID
	}
	v.CreatedAt = time.Now().UTC()
	existingID, applied, err := r.store.AddVote(ctx, v, idemKey)
	if err != nil {
		return "", false, err
	}
	if !applied {
		return existingID, false, nil
	}
	r.invalidate(v.ProjectID, v.MemoryID)
	return v.ID, true, nil
}

// VoteCounts reads the atomic vote counters for a memory.
func (r *Repository) VoteCounts(ctx context.Context, projectID, memoryID string) (helpful, harmful int64, err error) {
	return r.store.VoteCounts(ctx, projectID, memoryID)
}

// ListVotes returns the vote history for a memory, oldest first.
func (r *Repository) ListVotes(ctx context.Context, projectID, memoryID string) ([]Vote, error) {
	return r.store.ListVotes(ctx, projectID, memoryID)
}

// Deprecate marks a memory deprecated, releases its dedup reservation, and
// records the supersession reference when supersededBy is set. Deprecation
// never deletes data; it only removes the memory from default retrieval.
// Calling Deprecate on an already-deprecated memory is a no-op reporting
// changed=false, which makes vote-driven evaluation idempotent.
func (r *Repository) Deprecate(ctx context.Context, projectID, id, reason, supersededBy string) (bool, error) {
	rec, err := r.store.GetRecord(ctx, projectID, id)
	if err != nil {
		return false, err
	}
	if rec.IsDeprecated {
		return false, nil
	}
	now := time.Now().UTC()
	rec.IsDeprecated = true
	rec.DeprecatedAt = &now
	rec.DeprecationReason = reason
	rec.SupersededBy = supersededBy
	rec.UpdatedAt = now
	if err := r.store.UpdateRecord(ctx, rec); err != nil {
		return false, err
	}
	key := DedupKey(rec.ProjectID, rec.Namespace, rec.AgentID, rec.ContentHash)
	if err := r.store.ReleaseHash(ctx, key); err != nil {
		return false, err
	}
	if supersededBy != "" {
		if err := r.store.AddReference(ctx, projectID, supersededBy, id); err != nil {
			return false, err
		}
	}
	r.invalidate(projectID, id)
	return true, nil
}

// Supersede points old at its replacement and deprecates it. The call is
// idempotent for a repeated (old, new) pair; pointing an already-superseded
// memory at a different replacement fails with ErrAlreadySuperseded. Cycle
// checking over the chain is the curator's responsibility; this method only
// records an already-validated edge.
func (r *Repository) Supersede(ctx context.Context, projectID, oldID, newID, reason string) error {
	rec, err := r.store.GetRecord(ctx, projectID, oldID)
	if err != nil {
		return err
	}
	if rec.SupersededBy == newID {
		return nil
	}
	if rec.SupersededBy != "" {
		return fmt.Errorf("%w: %s -> %s", ErrAlreadySuperseded, oldID, rec.SupersededBy)
	}
	now := time.Now().UTC()
	wasDeprecated := rec.IsDeprecated
	rec.SupersededBy = newID
	if !rec.IsDeprecated {
		rec.IsDeprecated = true
		rec.DeprecatedAt = &now
		rec.DeprecationReason = reason
	}
	rec.UpdatedAt = now
	if err := r.store.UpdateRecord(ctx, rec); err != nil {
		return err
	}
	if !wasDeprecated {
		key := DedupKey(rec.ProjectID, rec.Namespace, rec.AgentID, rec.ContentHash)
		if err := r.store.ReleaseHash(ctx, key); err != nil {
			return err
		}
	}
	if err := r.store.AddReference(ctx, projectID, newID, oldID); err != nil {
		return err
	}
	r.invalidate(projectID, oldID)
	return nil
}

func (r *Repository) invalidate(projectID, id string) {
	if r.cache != nil {
		r.cache.Del(projectID + "/" + id)
	}
}
