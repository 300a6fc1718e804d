package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrInference is matched by every error raised by the model.
	ErrInference = errors.New("inference error")
	// ErrCancelled marks a generation that stopped early on request. It is
	// never returned from Generate; Result.Err exposes it for callers that
	// want to treat cancellation as an error.
	ErrCancelled = errors.New("generation cancelled")
	// ErrEmptyPrompt is returned when the prompt encodes to no tokens.
	ErrEmptyPrompt = errors.New("prompt encodes to zero tokens")
)

// InferenceError wraps a failure of the injected model at a given step.
type InferenceError struct {
	Step int
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: step %d: %v", e.Step, e.Err)
}

func (e *InferenceError) Unwrap() []error {
	return []error{ErrInference, e.Err}
}
