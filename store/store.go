package store

import (
	"context"
	"errors"
	"time"
)

// Common errors shared by persistence backends. Component packages define
// their own domain sentinels; these cover the two retryable storage classes
// plus unique-key violations, which every backend surfaces the same way.
var (
	// ErrTimeout is returned when a storage operation exceeds the caller's
	// deadline. Timeouts are retryable with backoff.
	ErrTimeout = errors.New("store: operation timed out")

	// ErrConflict is returned when an optimistic (versioned) update detects
	// a concurrent write. Conflicts are retryable after re-reading.
	ErrConflict = errors.New("store: concurrent write detected")

	// ErrAlreadyExists is returned when a create hits an existing unique key.
	ErrAlreadyExists = errors.New("store: key already exists")
)

// Candidate is a raw nearest-neighbor hit returned by a VectorIndex query,
// before scope filtering and reranking.
type Candidate struct {
	// ID is the memory identifier the embedding was indexed under.
	ID string

	// Similarity is the cosine similarity to the query embedding, in [-1, 1].
	// Higher is closer.
	Similarity float32
}

// VectorIndex is the approximate-nearest-neighbor capability the engine
// requires from its persistence collaborator. Embeddings are supplied by the
// caller; the index never generates them.
//
// Implementations must be safe for concurrent use. Query results are ordered
// by descending similarity.
type VectorIndex interface {
	// Add indexes an embedding under (projectID, namespace, id).
	// Re-adding an existing id replaces the previous embedding.
	Add(ctx context.Context, projectID, namespace, id string, embedding []float32) error

	// Remove deletes an indexed embedding. Removing an unknown id is a no-op.
	Remove(ctx context.Context, projectID, namespace, id string) error

	// Query returns up to k candidates nearest to the query embedding within
	// (projectID, namespace), ordered by descending cosine similarity.
	// An empty result is not an error.
	Query(ctx context.Context, projectID, namespace string, embedding []float32, k int) ([]Candidate, error)
}

// Locker provides short-lived advisory locks. The curator serializes
// supersession-chain mutations per project through a Locker so that
// concurrent chain writes cannot slip a cycle past the check.
type Locker interface {
	// AcquireLock attempts to take the named lock with the given TTL.
	// Returns false without error when the lock is held elsewhere.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// ReleaseLock releases the named lock. Releasing an expired or unheld
	// lock is a no-op.
	ReleaseLock(ctx context.Context, name string) error
}

// IsRetryable reports whether err is one of the retryable storage error
// classes (timeout or optimistic conflict).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConflict)
}
