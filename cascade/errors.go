package cascade

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed    = errors.New("classifier returned a malformed result")
	ErrInconsistent = errors.New("classifier decision is inconsistent with its probability")
)

// InferenceError reports which classifier stage failed. Classifier failures
// are deterministic for a given record, so callers should not retry.
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s classifier failed: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
