package sim

import (
	"errors"
	"fmt"
	"time"
)

// Lifecycle errors for controller operations.
var (
	// ErrInvalidConfiguration indicates missing or out of range parameters, or
	// a Configure call after Start.
	ErrInvalidConfiguration = errors.New("sim: invalid configuration")

	// ErrInvalidState indicates an operation called in the wrong lifecycle phase.
	ErrInvalidState = errors.New("sim: invalid state")

	// ErrEmptySystem indicates Start was called with no particles.
	ErrEmptySystem = errors.New("sim: no particles added")

	// ErrTimeout indicates the run did not reach a terminal state in time.
	// The engine keeps running.
	ErrTimeout = errors.New("sim: timed out waiting for simulation")

	// ErrEngine indicates the engine finished in the Errored state.
	ErrEngine = errors.New("sim: engine failed")
)

// StateError wraps ErrInvalidState with the operation and the status it met.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("sim: %s not allowed while %s", e.Op, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// TimeoutError wraps ErrTimeout with the wait parameters.
type TimeoutError struct {
	Timeout time.Duration
	Polls   int
	Last    Status
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sim: still %s after %v (%d polls)", e.Last, e.Timeout, e.Polls)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
