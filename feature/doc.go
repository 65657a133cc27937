// Package feature tracks per-feature implementation status, gating
// completion on verification evidence.
//
// One tracker record exists per (project, namespace, feature). Status moves
// through a small state machine in which declared features start work, may
// block, enter testing, and fail and retry. The complete state is reachable
// only when a recorded test result passed and a verifier is on record, which
// prevents premature completion claims.
//
// Like session progress, updates are optimistically versioned: concurrent
// writers are detected and reported as store.ErrConflict instead of
// silently overwriting each other.
package feature
