package recommend

import (
	"errors"
	"fmt"
)

// ErrInconsistentInput is matched by errors from Recommend when the analysis
// result was not computed from the supplied rules.
var ErrInconsistentInput = errors.New("inconsistent input")

// InconsistentInputError reports a result/rule-list mismatch. It indicates a
// programming error in the caller, not bad rule data.
type InconsistentInputError struct {
	Reason string
}

func (e *InconsistentInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInconsistentInput, e.Reason)
}

func (e *InconsistentInputError) Unwrap() error {
	return ErrInconsistentInput
}

func inconsistent(format string, args ...any) error {
	return &InconsistentInputError{Reason: fmt.Sprintf(format, args...)}
}
