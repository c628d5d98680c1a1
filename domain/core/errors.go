package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrColumnNotFound = fmt.Errorf("%w: column", ErrNotFound)

	// Validation errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrRowMismatch      = errors.New("row count mismatch")
	ErrEmptyGroup       = errors.New("treatment or control group is empty")
	ErrUnsupportedLevel = errors.New("treatment level not known to the propensity model")

	// Setup errors
	ErrPropensityNotFitted = errors.New("propensity model fitting failed")
	ErrUnsupportedProblem  = errors.New("unsupported causal problem type")
	ErrMissingEstimator    = errors.New("malformed scores: estimator_name field missing")
)

// Error constructors with context
func NewColumnNotFoundError(name string) error {
	return fmt.Errorf("%w %q", ErrColumnNotFound, name)
}

func NewRowMismatchError(what string, want, got int) error {
	return fmt.Errorf("%w: %s has %d rows, expected %d", ErrRowMismatch, what, got, want)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
