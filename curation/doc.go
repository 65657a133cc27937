// Package curation implements the ACE (Agentic Context Engineering)
// lifecycle over the memory substrate: reflections, vote ingestion,
// vote-driven deprecation, supersession chains, and agent handoffs.
//
// Agents record reflections as memories, vote on their usefulness, and the
// curator deprecates or supersedes low-value entries so that default
// retrieval serves a curated playbook. Deprecation never deletes data; it
// only removes a memory from default retrieval.
//
// Votes are exactly-once: callers supply an idempotency key, replaying a
// consumed key returns the original vote id without moving a counter.
// Supersession chains form a DAG; the curator rejects any edge that would
// let a memory transitively supersede itself, serializing chain writes per
// project so concurrent requests cannot slip a cycle past the check.
package curation
