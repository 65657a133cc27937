package session

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by session operations.
var (
	// ErrNotFound is returned when a requested session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrSessionConflict is returned when creating a session whose
	// (project, session) key already exists.
	ErrSessionConflict = errors.New("session: session already exists")

	// ErrInvalidTransition is returned for status changes the lifecycle
	// does not permit.
	ErrInvalidTransition = errors.New("session: invalid status transition")

	// ErrInvalidStatus is returned when a status value is not recognized.
	ErrInvalidStatus = errors.New("session: invalid status")
)

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusActive indicates the session is being worked on.
	StatusActive Status = "active"

	// StatusPaused indicates the session is suspended and resumable.
	StatusPaused Status = "paused"

	// StatusCompleted indicates the session finished successfully. Terminal.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the session was abandoned or failed. Terminal.
	StatusFailed Status = "failed"
)

// IsValid returns true if the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Validate returns an error if the status is not valid.
func (s Status) Validate() error {
	if !s.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Permitted moves: active <-> paused, active -> completed, active -> failed,
// paused -> failed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusPaused || next == StatusCompleted || next == StatusFailed
	case StatusPaused:
		return next == StatusActive || next == StatusFailed
	default:
		return false
	}
}

// Progress is the durable state of one session, unique per
// (ProjectID, SessionID).
type Progress struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
	Namespace string `json:"namespace"`
	AgentID   string `json:"agent_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	Status Status `json:"status"`

	TotalItems     int      `json:"total_items"`
	CompletedItems []string `json:"completed_items"`
	InProgressItem string   `json:"in_progress_item,omitempty"`
	NextItems      []string `json:"next_items"`
	BlockedItems   []string `json:"blocked_items"`

	Summary    string `json:"summary,omitempty"`
	LastAction string `json:"last_action,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version supports optimistic concurrency; lost updates surface as
	// store.ErrConflict.
	Version int64 `json:"version"`
}
