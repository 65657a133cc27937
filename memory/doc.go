// Package memory provides the scoped memory substrate for Aegis agents.
//
// A Memory is a stored fact or reflection owned by an agent and/or user
// within a project. Every memory carries a visibility scope, an optional
// embedding for semantic retrieval, curation state (votes, deprecation,
// supersession), and free-form metadata that the engine passes through
// untouched.
//
// # Scopes
//
// Visibility is decided by a pure resolver over three tiers:
//
//   - ScopeAgentPrivate: visible only to the owning agent
//   - ScopeAgentShared: visible to the owner and the agents listed in
//     SharedWithAgents
//   - ScopeGlobal: visible to every agent in the project
//
// The resolver is invoked on every retrieval candidate:
//
//	if memory.CanRead(acc, m) {
//	    // requester may see m
//	}
//
// # Deduplication
//
// Content is hashed deterministically; re-storing identical content within
// the same (project, namespace, owner) grouping resolves to the existing
// memory instead of inserting a duplicate. Two concurrent stores of the same
// content converge on a single winner through an atomic reservation in the
// backing store.
//
// # Repository
//
// The Repository owns all Memory and Vote persistence. Curation components
// mutate deprecation and supersession state exclusively through Repository
// methods so dedup, expiry, and referential invariants hold everywhere:
//
//	repo := memory.NewRepository(backend, index)
//	id, err := repo.Put(ctx, memory.PutRequest{
//	    ProjectID: "proj-1",
//	    AgentID:   "researcher",
//	    Content:   "Always check .gov sources first",
//	    Scope:     memory.ScopeAgentShared,
//	})
//
// Expiry is soft: swept memories drop out of retrieval but their records
// survive for audit until deleted explicitly.
package memory
