// Package redis implements the persistence contracts on Redis using
// go-redis/v9.
//
// One Store value backs the memory repository, the session tracker, the
// feature tracker, and the curator's lock service. Records are stored as
// JSON strings under namespaced keys; the operations that must be atomic
// lean on the primitives Redis gives for them:
//
//   - dedup reservations and idempotency keys use SETNX, so exactly one
//     claimant wins
//   - optimistic-version updates use WATCH/MULTI/EXEC, surfacing lost races
//     as store.ErrConflict
//   - a vote event and its counter increment travel in one MULTI/EXEC
//     pipeline, so readers never observe one without the other
//   - soft expiry lives in a single sorted set scored by expiry time, which
//     the sweep drains in bounded batches
//
// The package is exercised hermetically in tests through miniredis.
package redis
