// Package chromem implements the vector index on chromem-go, a pure Go
// embedded vector database. Each (project, namespace) pair maps to its own
// collection, and embeddings are always supplied by the caller.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/aegis-ai/aegis/store"
)

// Index implements store.VectorIndex over an in-process chromem database.
// Safe for concurrent use.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an empty in-memory Index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// collection returns the collection for a (project, namespace) pair,
// creating it on first use.
func (x *Index) collection(projectID, namespace string) (*chromem.Collection, error) {
	key := projectID + "/" + namespace

	x.mu.RLock()
	col, ok := x.collections[key]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[key]; ok {
		return col, nil
	}

	col, err := x.db.GetOrCreateCollection(collectionName(projectID, namespace), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection for %s: %w", key, err)
	}
	x.collections[key] = col
	return col, nil
}

// Add indexes an embedding under (projectID, namespace, id). Re-adding an
// existing id replaces the previous embedding.
func (x *Index) Add(ctx context.Context, projectID, namespace, id string, embedding []float32) error {
	col, err := x.collection(projectID, namespace)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID: id,
		// chromem requires non-empty content; the id stands in because
		// record content lives in the primary store, not the index.
		Content:   id,
		Embedding: embedding,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

// Remove deletes an indexed embedding. Removing an unknown id is a no-op.
func (x *Index) Remove(ctx context.Context, projectID, namespace, id string) error {
	col, err := x.collection(projectID, namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// Query returns up to k candidates nearest to the query embedding, ordered
// by descending cosine similarity. chromem rejects nResults larger than the
// collection, so k is clamped to the current document count.
func (x *Index) Query(ctx context.Context, projectID, namespace string, embedding []float32, k int) ([]store.Candidate, error) {
	col, err := x.collection(projectID, namespace)
	if err != nil {
		return nil, err
	}
	if n := col.Count(); n < k {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s/%s: %w", projectID, namespace, err)
	}

	candidates := make([]store.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, store.Candidate{
			ID:         r.ID,
			Similarity: r.Similarity,
		})
	}
	return candidates, nil
}

// collectionName flattens a (project, namespace) pair into a collection
// identifier.
func collectionName(projectID, namespace string) string {
	return fmt.Sprintf("p_%s_ns_%s", projectID, namespace)
}
