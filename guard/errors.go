package guard

import "errors"

// Sentinel errors for guarded execution.
var (
	// ErrCircuitOpen is returned while the breaker is blocking commands.
	ErrCircuitOpen = errors.New("guard: circuit breaker is open")

	// ErrTooManyCommands is returned when the bulkhead is at capacity.
	ErrTooManyCommands = errors.New("guard: too many concurrent commands")

	// ErrCommandTimeout is returned when a command exceeds its deadline.
	ErrCommandTimeout = errors.New("guard: command timed out")
)
