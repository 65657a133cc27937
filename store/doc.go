// Package store defines the contracts the Aegis engine requires from its
// persistence collaborators, together with the cross-cutting error sentinels
// shared by every backend-facing component.
//
// The engine does not implement physical storage or approximate-nearest-
// neighbor indexing itself. Instead, each component declares the narrow
// interface it consumes (memory.Store, session.Store, feature.Store), and
// this package holds the pieces that are shared across components:
//
//   - VectorIndex: the ANN capability over embeddings under cosine distance
//   - Locker: short-lived advisory locks for chain-touching critical sections
//   - ErrTimeout / ErrConflict: the retryable storage error classes
//
// Backend implementations live in subpackages: store/redis provides the
// durable keyed store with atomic primitives, store/chromem provides the
// embedded vector index.
package store
