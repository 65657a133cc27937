// Package embed defines the embedding collaborator contract. The engine
// never generates embeddings itself; it calls an Embedder supplied by the
// host and propagates its failures as ErrUnavailable.
package embed

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding provider cannot produce a
// vector. The engine propagates it to the caller without retrying.
var ErrUnavailable = errors.New("embed: embedding provider unavailable")

// Embedder converts text to fixed-dimension vector embeddings.
// Implementations wrap whatever model the host runs; the engine only
// requires determinism of dimensions and honoring the context deadline.
type Embedder interface {
	// Embed converts a single text to an embedding vector of Dimensions()
	// length.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
