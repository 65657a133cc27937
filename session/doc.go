// Package session tracks long-running task progress so agents can resume
// work across context windows.
//
// One Progress record exists per (project, session). It carries an item
// checklist (completed, in progress, upcoming, blocked) plus a summary of
// the last action taken. The status lifecycle is a small state machine:
// active sessions may pause and resume, and terminate as completed or
// failed; paused sessions may also fail on timeout or abandonment.
//
// Updates assume a single writer per session in the common case, but lost
// updates under concurrent writers are detected through optimistic
// versioning and reported as store.ErrConflict rather than silently
// overwritten.
package session
