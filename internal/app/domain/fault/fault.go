// Package fault defines the error kinds shared across the marketplace core.
// Callers classify failures with errors.Is against these sentinels.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Nothing was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition marks an illegal state-machine edge. Nothing was mutated.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound marks a missing entity reference.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an identity without authority over the target entity.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict marks a lost concurrent-write race or a duplicate
	// filing/bid/submission.
	ErrConflict = errors.New("conflict")

	// ErrUpstream marks a verification-service failure, distinct from a
	// failing verdict.
	ErrUpstream = errors.New("upstream failure")
)

// Validation wraps a formatted message as a validation error.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// Transition wraps an illegal edge description.
func Transition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidTransition}, args...)...)
}

// NotFound wraps a missing-entity description.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// Forbidden wraps an authorization failure description.
func Forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrForbidden}, args...)...)
}

// Conflict wraps a concurrency or duplicate failure description.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
}

// Upstream wraps an external-service failure description.
func Upstream(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrUpstream}, args...)...)
}
