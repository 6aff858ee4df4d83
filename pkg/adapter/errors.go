package adapter

import (
	"errors"
	"fmt"
)

// Sentinel errors for adapter operations.
var (
	// ErrTargetNotFound indicates a symbolic reference resolved to nothing.
	ErrTargetNotFound = errors.New("target not found")

	// ErrOutputUnavailable indicates the backend has no output for the
	// operation. This is an expected condition, not a failure.
	ErrOutputUnavailable = errors.New("output unavailable")
)

// FailureKind classifies a backend-side failure.
type FailureKind string

const (
	// KindBackendRejected indicates the backend refused the parameters.
	KindBackendRejected FailureKind = "backend_rejected"

	// KindTargetMissing indicates the target disappeared between resolve
	// and apply.
	KindTargetMissing FailureKind = "target_missing"

	// KindAuthFailed indicates authorization failed twice in a row, after
	// the single transparent credential refresh.
	KindAuthFailed FailureKind = "auth_failed"

	// KindTimeout indicates the backend did not answer in time.
	KindTimeout FailureKind = "timeout"
)

// Error wraps a backend failure with the operation and backend it came from.
type Error struct {
	// Op is the operation that failed (e.g., "Apply", "Status").
	Op string

	// Backend is the backend family.
	Backend Backend

	// Kind classifies the failure.
	Kind FailureKind

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTargetNotFound returns true if the error indicates a symbolic reference
// could not be resolved.
func IsTargetNotFound(err error) bool {
	return errors.Is(err, ErrTargetNotFound)
}

// IsOutputUnavailable returns true if the error indicates the backend has no
// output for the operation.
func IsOutputUnavailable(err error) bool {
	return errors.Is(err, ErrOutputUnavailable)
}

// IsAuthFailed returns true if the error is an adapter failure of kind
// auth_failed.
func IsAuthFailed(err error) bool {
	return isKind(err, KindAuthFailed)
}

// IsBackendRejected returns true if the error is an adapter failure of kind
// backend_rejected.
func IsBackendRejected(err error) bool {
	return isKind(err, KindBackendRejected)
}

// IsTargetMissing returns true if the error is an adapter failure of kind
// target_missing.
func IsTargetMissing(err error) bool {
	return isKind(err, KindTargetMissing)
}

func isKind(err error, kind FailureKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
