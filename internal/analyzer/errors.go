package analyzer

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by errors from Analyze when rules were excluded
// from analysis.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError lists the rules excluded from analysis. The Result that
// accompanies it was computed over the remaining rules.
type InvalidInputError struct {
	Diagnostics []Diagnostic
}

func (e *InvalidInputError) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return ErrInvalidInput.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Diagnostics[0])
	default:
		return fmt.Sprintf("%s: %d rules excluded, first: %s", ErrInvalidInput, len(e.Diagnostics), e.Diagnostics[0])
	}
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}
