package feature

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by feature-tracker operations.
var (
	// ErrNotFound is returned when a requested feature does not exist.
	ErrNotFound = errors.New("feature: not found")

	// ErrDuplicateFeature is returned when declaring a feature whose
	// (project, namespace, feature) key already exists.
	ErrDuplicateFeature = errors.New("feature: feature already declared")

	// ErrInvalidTransition is returned for status changes the state
	// machine does not permit.
	ErrInvalidTransition = errors.New("feature: invalid status transition")

	// ErrStateViolation is returned when completion is claimed without a
	// passing result and a verifier on record.
	ErrStateViolation = errors.New("feature: completion requires a passing verified result")

	// ErrInvalidStatus is returned when a status value is not recognized.
	ErrInvalidStatus = errors.New("feature: invalid status")

	// ErrMissingFailureReason is returned when a failing result is
	// recorded without a reason.
	ErrMissingFailureReason = errors.New("feature: failure reason required")
)

// Status represents the implementation state of a feature.
type Status string

const (
	// StatusNotStarted indicates the feature is declared but untouched.
	StatusNotStarted Status = "not_started"

	// StatusInProgress indicates the feature is being implemented.
	StatusInProgress Status = "in_progress"

	// StatusBlocked indicates work is stalled on an external dependency.
	StatusBlocked Status = "blocked"

	// StatusTesting indicates implementation finished and verification is
	// underway.
	StatusTesting Status = "testing"

	// StatusComplete indicates a passing, verified feature. Terminal.
	StatusComplete Status = "complete"

	// StatusFailed indicates verification failed; work may resume.
	StatusFailed Status = "failed"
)

// IsValid returns true if the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked,
		StatusTesting, StatusComplete, StatusFailed:
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
	return s == StatusComplete
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the state machine permits moving to next.
// Permitted moves: not_started -> in_progress; in_progress -> blocked,
// testing, failed; blocked -> in_progress; testing -> complete, failed;
// failed -> in_progress (retry). Complete is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusNotStarted:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusBlocked || next == StatusTesting || next == StatusFailed
	case StatusBlocked:
		return next == StatusInProgress
	case StatusTesting:
		return next == StatusComplete || next == StatusFailed
	case StatusFailed:
		return next == StatusInProgress
	default:
		return false
	}
}

// Tracker is the durable state of one feature, unique per
// (ProjectID, Namespace, FeatureID).
type Tracker struct {
	ProjectID string `json:"project_id"`
	Namespace string `json:"namespace"`
	FeatureID string `json:"feature_id"`

	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	TestSteps   []string `json:"test_steps"`

	Status Status `json:"status"`

	// Passes records the latest verification outcome; completion requires
	// it to be true alongside a non-empty VerifiedBy.
	Passes     bool   `json:"passes"`
	VerifiedBy string `json:"verified_by,omitempty"`

	ImplementedBy       string `json:"implemented_by,omitempty"`
	ImplementationNotes string `json:"implementation_notes,omitempty"`
	FailureReason       string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version supports optimistic concurrency; lost updates surface as
	// store.ErrConflict.
	Version int64 `json:"version"`
}
