// Package retrieval implements similarity search over the scoped memory
// substrate.
//
// A search runs in three stages: approximate-nearest-neighbor candidate
// generation through the store.VectorIndex capability, scope and lifecycle
// filtering through the memory resolver, and a composite rerank that blends
// cosine similarity with curation signal (vote counts) and recency. The
// weighting is a configuration surface; given identical inputs the ordering
// is deterministic.
//
// Filtered-out candidates are silent exclusions: an empty result list is a
// successful search, not an error.
package retrieval
