package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrPermission indicates the caller's role does not permit the operation.
var ErrPermission = errors.New("permission denied")

// ErrDuplicateSubmission indicates an original submission was attempted
// against a return that is already submitted or accepted.
var ErrDuplicateSubmission = errors.New("return already has an active original submission")

// ErrIllegalTransition indicates a state-machine transition not present in
// the transition table.
var ErrIllegalTransition = errors.New("illegal submission state transition")

// ErrTerminalState indicates an operation against a submission that has
// already reached a terminal state.
var ErrTerminalState = errors.New("submission is in a terminal state")

// ErrBuild indicates a required field was missing at envelope-build time
// despite validation passing. This is a contract bug between validator and
// builder; internal detail must not leak to the caller.
var ErrBuild = errors.New("envelope build failed")

// ErrTransmission indicates a network or provider failure during
// transmission. The attempt is recorded as an error row; the return is left
// untouched so a retry remains possible.
var ErrTransmission = errors.New("transmission failed")

// ValidationError carries the itemized rule violations from pre-transmission
// validation. The full list is surfaced, never silently dropped.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// NewValidationError wraps an itemized violation list.
func NewValidationError(errs []string) *ValidationError {
	return &ValidationError{Errors: errs}
}
