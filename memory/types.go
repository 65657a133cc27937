package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Common errors returned by memory operations.
var (
	// ErrNotFound is returned when a requested memory does not exist.
	ErrNotFound = errors.New("memory: not found")

	// ErrInvalidScope is returned when a scope value is not recognized.
	ErrInvalidScope = errors.New("memory: invalid scope")

	// ErrInvalidType is returned when a memory type value is not recognized.
	ErrInvalidType = errors.New("memory: invalid memory type")

	// ErrInvalidVote is returned when a vote value is not recognized.
	ErrInvalidVote = errors.New("memory: invalid vote")

	// ErrScopeViolation is returned when a requester lacks read access to a
	// memory. Scope violations are terminal; they are never retried.
	ErrScopeViolation = errors.New("memory: scope violation")

	// ErrStillReferenced is returned when deleting a memory that another
	// memory still points to via SupersededBy. The chain must be re-pointed
	// or severed before the delete can proceed.
	ErrStillReferenced = errors.New("memory: still referenced by supersession chain")

	// ErrAlreadySuperseded is returned when superseding a memory that
	// already points at a different replacement.
	ErrAlreadySuperseded = errors.New("memory: already superseded")

	// ErrEmptyContent is returned when storing a memory with no content.
	ErrEmptyContent = errors.New("memory: empty content")

	// ErrMissingOwner is returned when storing a memory without an agent or
	// user owner.
	ErrMissingOwner = errors.New("memory: owner required")
)

// DefaultNamespace is the namespace used when a request leaves it empty.
const DefaultNamespace = "default"

// Scope is the visibility tier of a memory.
type Scope string

const (
	// ScopeAgentPrivate restricts visibility to the owning agent.
	ScopeAgentPrivate Scope = "agent-private"

	// ScopeAgentShared permits the owner plus the agents listed in
	// SharedWithAgents.
	ScopeAgentShared Scope = "agent-shared"

	// ScopeGlobal permits every agent in the project.
	ScopeGlobal Scope = "global"
)

// IsValid returns true if the scope is one of the defined constants.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeAgentPrivate, ScopeAgentShared, ScopeGlobal:
		return true
	default:
		return false
	}
}

// Validate returns an error if the scope is not valid.
func (s Scope) Validate() error {
	if !s.IsValid() {
		return fmt.Errorf("%w: %q (must be one of: agent-private, agent-shared, global)", ErrInvalidScope, s)
	}
	return nil
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}

// ParseScope parses a string into a Scope value.
// Unknown values are rejected at the boundary rather than defaulted.
func ParseScope(s string) (Scope, error) {
	scope := Scope(s)
	if err := scope.Validate(); err != nil {
		return "", err
	}
	return scope, nil
}

// Type categorizes a memory record.
type Type string

const (
	// TypeStandard is an ordinary stored fact.
	TypeStandard Type = "standard"

	// TypeReflection is a curated lesson recorded by the ACE pipeline,
	// carrying error-pattern and correct-approach fields.
	TypeReflection Type = "reflection"

	// TypeCoordination is a handoff record transferring task context
	// between agents.
	TypeCoordination Type = "coordination"
)

// IsValid returns true if the type is one of the defined constants.
func (t Type) IsValid() bool {
	switch t {
	case TypeStandard, TypeReflection, TypeCoordination:
		return true
	default:
		return false
	}
}

// Validate returns an error if the type is not valid.
func (t Type) Validate() error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return nil
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// VoteKind classifies a vote event.
type VoteKind string

const (
	// VoteHelpful records that a memory helped the voting agent.
	VoteHelpful VoteKind = "helpful"

	// VoteHarmful records that a memory misled the voting agent.
	VoteHarmful VoteKind = "harmful"
)

// IsValid returns true if the vote kind is one of the defined constants.
func (v VoteKind) IsValid() bool {
	switch v {
	case VoteHelpful, VoteHarmful:
		return true
	default:
		return false
	}
}

// Validate returns an error if the vote kind is not valid.
func (v VoteKind) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("%w: %q (must be helpful or harmful)", ErrInvalidVote, v)
	}
	return nil
}

// String returns the string representation of the vote kind.
func (v VoteKind) String() string {
	return string(v)
}

// ParseVoteKind parses a string into a VoteKind value.
func ParseVoteKind(s string) (VoteKind, error) {
	kind := VoteKind(s)
	if err := kind.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}

// Memory is a stored fact or reflection.
//
// ContentHash is a pure function of Content and is written exactly once, by
// Repository.Put. Vote counters only move through recorded Vote events and
// never decrease. SupersededBy, when set, references a memory in the same
// project; the supersession relation is acyclic.
type Memory struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Namespace string `json:"namespace"`

	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding,omitempty"`

	// Ownership. At least one of AgentID and UserID is set.
	AgentID string `json:"agent_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`

	Scope             Scope    `json:"scope"`
	SharedWithAgents  []string `json:"shared_with_agents,omitempty"`
	DerivedFromAgents []string `json:"derived_from_agents,omitempty"`

	Type Type `json:"memory_type"`

	// Free-form payload the engine passes through untouched.
	Metadata             map[string]any `json:"metadata,omitempty"`
	CoordinationMetadata map[string]any `json:"coordination_metadata,omitempty"`

	// Reflection fields, set when Type is TypeReflection.
	ErrorPattern       string   `json:"error_pattern,omitempty"`
	CorrectApproach    string   `json:"correct_approach,omitempty"`
	ApplicableContexts []string `json:"applicable_contexts,omitempty"`
	SourceTrajectoryID string   `json:"source_trajectory_id,omitempty"`

	// Curation state.
	IsDeprecated      bool       `json:"is_deprecated"`
	DeprecatedAt      *time.Time `json:"deprecated_at,omitempty"`
	SupersededBy      string     `json:"superseded_by,omitempty"`
	DeprecationReason string     `json:"deprecation_reason,omitempty"`

	// Vote counters, hydrated from the backend's atomic counters on read.
	// Mutated only through recorded Vote events.
	HelpfulCount int64 `json:"helpful_count"`
	HarmfulCount int64 `json:"harmful_count"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Version supports optimistic concurrency in the backing store.
	// Incremented on every successful update.
	Version int64 `json:"version"`
}

// Expired reports whether the memory's soft expiry has passed at now.
// Memories without an expiry never expire.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// OwnedByAgent reports whether agentID is the owning agent.
func (m *Memory) OwnedByAgent(agentID string) bool {
	return m.AgentID != "" && m.AgentID == agentID
}

// SharedWith reports whether agentID appears in SharedWithAgents.
func (m *Memory) SharedWith(agentID string) bool {
	if agentID == "" {
		return false
	}
	for _, a := range m.SharedWithAgents {
		if a == agentID {
			return true
		}
	}
	return false
}

// Vote is an immutable record of a single voting action against a memory.
// Votes are created once and never mutated; they are deleted only by the
// cascade when their memory is deleted.
type Vote struct {
	ID           string    `json:"id"`
	MemoryID     string    `json:"memory_id"`
	ProjectID    string    `json:"project_id"`
	VoterAgentID string    `json:"voter_agent_id"`
	Kind         VoteKind  `json:"vote"`
	Context      string    `json:"context,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashContent computes the deterministic content digest used for dedup.
// Identical content always yields the identical hash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DedupKey builds the dedup grouping key for a memory. Two stores collide
// only when project, namespace, owning agent, and content hash all match.
func DedupKey(projectID, namespace, agentID, contentHash string) string {
	return projectID + "/" + namespace + "/" + agentID + "/" + contentHash
}
