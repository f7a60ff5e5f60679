package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidArgument indicates a NaN, infinite or out-of-range numeric argument.
	ErrInvalidArgument = errors.New("dynamo: invalid argument")

	// ErrInvalidOperation indicates an operation not allowed in the current state,
	// such as reconfiguring a running simulation.
	ErrInvalidOperation = errors.New("dynamo: invalid operation")

	// ErrOutOfRange indicates a roster or history index outside [0, count).
	ErrOutOfRange = errors.New("dynamo: index out of range")

	// ErrNonFinite indicates a body state that diverged to NaN or Inf.
	ErrNonFinite = errors.New("dynamo: non-finite body state")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    uint64
	Time    float64
	Body    int
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f) body %d: %v", e.Step, e.Time, e.Body, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
