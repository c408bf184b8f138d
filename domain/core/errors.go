package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Structural errors - fatal for the whole run
	ErrGraphSpec = errors.New("malformed causal graph specification")

	// Identification errors - recoverable per outcome
	ErrNotIdentifiable = errors.New("no valid backdoor adjustment set")

	// Sampling errors
	ErrInsufficientSample = errors.New("insufficient sample for resampling")
	ErrInsufficientData   = errors.New("insufficient data for analysis")

	// Panel errors
	ErrDuplicateRow    = errors.New("duplicate (entity, period) row")
	ErrUnknownColumn   = errors.New("unknown panel column")
	ErrColumnContract  = errors.New("panel column contract violated")
	ErrVariableUnknown = errors.New("variable not declared in graph")

	// Determinism errors
	ErrSeedRequired = errors.New("explicit random seed required")
)

// Error constructors with context

func NewGraphSpecError(variable string, reason string) error {
	return fmt.Errorf("%w: variable %q: %s", ErrGraphSpec, variable, reason)
}

func NewNotIdentifiableError(outcome string, reason string) error {
	return fmt.Errorf("%w for outcome %q: %s", ErrNotIdentifiable, outcome, reason)
}

func NewInsufficientSampleError(got, required int) error {
	return fmt.Errorf("%w: %d entities available, %d required", ErrInsufficientSample, got, required)
}

// Error checking helpers

func IsGraphSpecError(err error) bool {
	return errors.Is(err, ErrGraphSpec)
}

func IsNotIdentifiableError(err error) bool {
	return errors.Is(err, ErrNotIdentifiable)
}

func IsInsufficientSampleError(err error) bool {
	return errors.Is(err, ErrInsufficientSample)
}
