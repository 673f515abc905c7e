package attempt

import (
	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound           = errors.New("attempt not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrReadOnly           = errors.New("attempt is read-only")
	ErrNotSubmitted       = errors.New("attempt has not been submitted")
	ErrSubmitFailure      = errors.New("submit failed")
)

// ConflictError is returned when a live attempt already exists for a (learner, prompt) pair.
// AttemptID may be empty when the service did not say which attempt it is.
type ConflictError struct {
	AttemptID string
}

func (err *ConflictError) Error() string {
	if err.AttemptID == "" {
		return "an attempt already exists for this learner and prompt"
	}
	return "attempt " + err.AttemptID + " already exists for this learner and prompt"
}

// IsConflict returns the ConflictError in err's chain, if any.
func IsConflict(err error) (*ConflictError, bool) {
	var cErr *ConflictError
	ok := errors.As(err, &cErr)
	return cErr, ok
}

// SubmitError wraps any failure of the submit call. The attempt is left untouched.
type SubmitError struct {
	AttemptID string
	Err       error
}

func (err *SubmitError) Error() string {
	return "submitting attempt " + err.AttemptID + ": " + err.Err.Error()
}

func (err *SubmitError) Unwrap() error { return err.Err }

func (err *SubmitError) Is(target error) bool { return target == ErrSubmitFailure }
