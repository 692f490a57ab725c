package advisor

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks requests rejected before any downstream call.
var ErrInvalidRequest = errors.New("invalid request")

// GenerationError is returned when the model produced no final answer. Nothing
// is persisted for such a turn.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate reply with %s: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
