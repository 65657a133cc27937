package aegis

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a memory, session, or feature
	// was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindConflict represents optimistic-concurrency conflicts and
	// duplicate-key violations.
	KindConflict = "conflict"

	// KindScope represents scope and access violations.
	KindScope = "scope"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindUnavailable represents failures of external collaborators, such
	// as the embedding provider or the backing store.
	KindUnavailable = "unavailable"

	// KindInternal represents internal engine errors.
	KindInternal = "internal"
)

// EngineError is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of
// error.
//
// EngineError implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &EngineError{
//		Op:   "Engine.Store",
//		Kind: KindValidation,
//		Err:  memory.ErrEmptyContent,
//	}
type EngineError struct {
	// Op is the operation that failed (e.g., "Engine.Store", "Engine.Vote").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include memory IDs, project IDs, or other debugging information.
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("aegis: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("aegis: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("aegis: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error matching for EngineError, allowing comparison based on
// the underlying error or the EngineError itself.
func (e *EngineError) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*EngineError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a new EngineError with the provided context added.
// This is useful for adding debugging information to errors.
func (e *EngineError) WithContext(ctx map[string]any) *EngineError {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new EngineError with KindNotFound.
func NewNotFoundError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindNotFound,
		Err:  err,
	}
}

// NewValidationError creates a new EngineError with KindValidation.
func NewValidationError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindValidation,
		Err:  err,
	}
}

// NewConflictError creates a new EngineError with KindConflict.
func NewConflictError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindConflict,
		Err:  err,
	}
}

// NewScopeError creates a new EngineError with KindScope.
func NewScopeError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindScope,
		Err:  err,
	}
}

// NewTimeoutError creates a new EngineError with KindTimeout.
func NewTimeoutError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindTimeout,
		Err:  err,
	}
}

// NewUnavailableError creates a new EngineError with KindUnavailable.
func NewUnavailableError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindUnavailable,
		Err:  err,
	}
}

// NewInternalError creates a new EngineError with KindInternal.
func NewInternalError(op string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: KindInternal,
		Err:  err,
	}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g.,
// "redis store", "vector index"). If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
