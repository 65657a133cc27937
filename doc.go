// Package aegis is a persistent memory substrate for AI agent systems.
//
// Agents store content as scoped memories, retrieve them later by vector
// similarity, and curate them over time: feedback votes accumulate on each
// memory, consistently harmful ones are deprecated, and corrected knowledge
// supersedes what it replaces. Alongside memories the engine tracks
// session progress for resumable long-running work and feature status with
// verification-gated completion.
//
// The Engine type is the composition root. It wires the memory repository,
// the retriever, the curator, and the two trackers over pluggable
// persistence: any backend implementing the store contracts works, and the
// store/redis and store/chromem packages provide the production pair.
//
//	eng, err := aegis.New(aegis.Dependencies{
//		Memories: backend,
//		Sessions: backend,
//		Features: backend,
//		Locks:    backend,
//		Index:    chromem.New(),
//		Embedder: embedder,
//	})
//
// Embeddings always come from the caller-supplied Embedder; the engine
// never generates them itself.
package aegis
